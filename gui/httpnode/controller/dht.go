package controller

import (
	"encoding/json"
	"io/ioutil"
	"net/http"

	"github.com/rs/zerolog"
	"go.dedis.ch/kademlia/peer"
	"go.dedis.ch/kademlia/types"
)

// ValueRequest is the body of a value store.
type ValueRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ValueResponse is returned for a value found or stored.
type ValueResponse struct {
	Key       string `json:"key"`
	Value     string `json:"value,omitempty"`
	Published bool   `json:"published"`
}

// DataRequest is the body of a page publication.
type DataRequest struct {
	Payload string `json:"payload"`
}

// DataResponse describes a signed page.
type DataResponse struct {
	Key       string `json:"key"`
	Payload   string `json:"payload,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// NodeResponse describes a routing table entry.
type NodeResponse struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

// NewDHT returns a new initialized controller over the DHT of a peer.
func NewDHT(peer peer.Peer, log *zerolog.Logger) dhtctrl {
	return dhtctrl{
		peer: peer,
		log:  log,
	}
}

type dhtctrl struct {
	peer peer.Peer
	log  *zerolog.Logger
}

// Mux registers every handler of the controller.
func (d *dhtctrl) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/dht/value", d.ValueHandler())
	mux.Handle("/dht/data", d.DataHandler())
	mux.Handle("/dht/lookup", d.LookupHandler())
	mux.Handle("/dht/routing", d.RoutingHandler())

	return mux
}

// ValueHandler reads a value with GET ?key= and stores one with POST.
func (d *dhtctrl) ValueHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Access-Control-Allow-Origin", "*")
			d.getValue(w, r)
		case http.MethodPost:
			w.Header().Set("Access-Control-Allow-Origin", "*")
			d.storeValue(w, r)
		case http.MethodOptions:
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Headers", "*")
		default:
			http.Error(w, "forbidden method", http.StatusMethodNotAllowed)
		}
	}
}

// DataHandler fetches a signed page with GET ?key= and publishes one with
// POST.
func (d *dhtctrl) DataHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Access-Control-Allow-Origin", "*")
			d.getData(w, r)
		case http.MethodPost:
			w.Header().Set("Access-Control-Allow-Origin", "*")
			d.publishData(w, r)
		case http.MethodOptions:
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Headers", "*")
		default:
			http.Error(w, "forbidden method", http.StatusMethodNotAllowed)
		}
	}
}

// LookupHandler runs a node lookup of GET ?target=.
func (d *dhtctrl) LookupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Access-Control-Allow-Origin", "*")

			target, ok := d.parseKey(w, r.URL.Query().Get("target"))
			if !ok {
				return
			}

			nodes, err := d.peer.NodeLookup(r.Context(), target)
			if err != nil {
				http.Error(w, "failed to lookup: "+err.Error(), http.StatusInternalServerError)
				return
			}

			d.writeJSON(w, toNodeResponses(nodes))
		default:
			http.Error(w, "forbidden method", http.StatusMethodNotAllowed)
		}
	}
}

// RoutingHandler returns the routing table.
func (d *dhtctrl) RoutingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Access-Control-Allow-Origin", "*")
			d.writeJSON(w, toNodeResponses(d.peer.RoutingTable()))
		default:
			http.Error(w, "forbidden method", http.StatusMethodNotAllowed)
		}
	}
}

func (d *dhtctrl) getValue(w http.ResponseWriter, r *http.Request) {
	key, ok := d.parseKey(w, r.URL.Query().Get("key"))
	if !ok {
		return
	}

	value, found, err := d.peer.GetValue(r.Context(), key)
	if err != nil {
		http.Error(w, "failed to get value: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if !found {
		http.Error(w, "value not found", http.StatusNotFound)
		return
	}

	d.writeJSON(w, ValueResponse{Key: key.String(), Value: string(value)})
}

func (d *dhtctrl) storeValue(w http.ResponseWriter, r *http.Request) {
	buf, err := ioutil.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body: "+err.Error(), http.StatusInternalServerError)
		return
	}

	req := ValueRequest{}
	err = json.Unmarshal(buf, &req)
	if err != nil {
		http.Error(w, "failed to unmarshal value request: "+err.Error(), http.StatusBadRequest)
		return
	}

	var key types.NodeID
	if req.Key == "" {
		key = types.KeyForContent([]byte(req.Value), len(d.peer.GetID()))
	} else {
		var ok bool
		key, ok = d.parseKey(w, req.Key)
		if !ok {
			return
		}
	}

	published, err := d.peer.Store(r.Context(), key, []byte(req.Value))
	if err != nil {
		http.Error(w, "failed to store: "+err.Error(), http.StatusInternalServerError)
		return
	}

	d.log.Info().Msgf("stored %s, published: %v", key.Short(), published)

	d.writeJSON(w, ValueResponse{Key: key.String(), Published: published})
}

func (d *dhtctrl) getData(w http.ResponseWriter, r *http.Request) {
	key, ok := d.parseKey(w, r.URL.Query().Get("key"))
	if !ok {
		return
	}

	data, found, err := d.peer.GetData(r.Context(), key)
	if err != nil {
		http.Error(w, "failed to get data: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if !found {
		http.Error(w, "data not found", http.StatusNotFound)
		return
	}

	d.writeJSON(w, DataResponse{
		Key:       key.String(),
		Payload:   string(data.Page.Payload),
		Timestamp: data.Page.Timestamp.UnixNano(),
	})
}

func (d *dhtctrl) publishData(w http.ResponseWriter, r *http.Request) {
	buf, err := ioutil.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body: "+err.Error(), http.StatusInternalServerError)
		return
	}

	req := DataRequest{}
	err = json.Unmarshal(buf, &req)
	if err != nil {
		http.Error(w, "failed to unmarshal data request: "+err.Error(), http.StatusBadRequest)
		return
	}

	key, err := d.peer.PublishData(r.Context(), []byte(req.Payload))
	if err != nil {
		http.Error(w, "failed to publish: "+err.Error(), http.StatusInternalServerError)
		return
	}

	d.writeJSON(w, DataResponse{Key: key.String()})
}

func (d *dhtctrl) parseKey(w http.ResponseWriter, s string) (types.NodeID, bool) {
	key, err := types.NodeIDFromHex(s, len(d.peer.GetID()))
	if err != nil {
		http.Error(w, "invalid key: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}

	return key, true
}

func (d *dhtctrl) writeJSON(w http.ResponseWriter, v interface{}) {
	buf, err := json.MarshalIndent(v, "", "\t")
	if err != nil {
		http.Error(w, "failed to marshal response: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	_, err = w.Write(buf)
	if err != nil {
		d.log.Err(err).Msg("failed to write response")
	}
}

func toNodeResponses(nodes []types.KademliaNode) []NodeResponse {
	res := make([]NodeResponse, len(nodes))
	for i, n := range nodes {
		res[i] = NodeResponse{ID: n.ID.String(), Addr: n.Addr()}
	}
	return res
}
