package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"go.dedis.ch/kademlia/gui/httpnode/controller"
	"go.dedis.ch/kademlia/keys"
	"go.dedis.ch/kademlia/peer"
	"go.dedis.ch/kademlia/peer/impl"
	"go.dedis.ch/kademlia/storage"
	"go.dedis.ch/kademlia/storage/inmemory"
	"go.dedis.ch/kademlia/storage/leveldb"
	"go.dedis.ch/kademlia/transport/udp"
	"golang.org/x/xerrors"
)

const keyFile = "node.pem"

func main() {
	app := &cli.App{
		Name:  "kadnode",
		Usage: "run a Kademlia DHT node",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "start a node and open a shell",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "UDP address to listen on",
						Value: "127.0.0.1:6000",
					},
					&cli.StringFlag{
						Name:  "bootstrap",
						Usage: "address of a node to join, none starts a new network",
					},
					&cli.StringFlag{
						Name:  "data-dir",
						Usage: "directory of the leveldb store and the signing key, in memory if empty",
					},
					&cli.StringFlag{
						Name:  "log-level",
						Usage: "trace, debug, info, warn or error",
						Value: "info",
					},
					&cli.StringFlag{
						Name:  "trace",
						Usage: "prefix of a GoVector trace of every RPC",
					},
					&cli.StringFlag{
						Name:  "http",
						Usage: "address of the HTTP controller, disabled if empty",
					},
					&cli.IntFlag{
						Name:  "k",
						Usage: "bucket size and replication factor",
						Value: peer.DefaultConfiguration().K,
					},
					&cli.IntFlag{
						Name:  "alpha",
						Usage: "lookup concurrency",
						Value: peer.DefaultConfiguration().Alpha,
					},
					&cli.BoolFlag{
						Name:  "no-shell",
						Usage: "run until interrupted instead of reading commands",
					},
				},
				Action: run,
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal().Err(err).Msg("kadnode failed")
	}
}

func run(c *cli.Context) error {
	level, err := zerolog.ParseLevel(c.String("log-level"))
	if err != nil {
		return xerrors.Errorf("invalid log level: %v", err)
	}

	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	socket, err := udp.NewUDP().CreateSocket(c.String("addr"))
	if err != nil {
		return err
	}
	defer socket.Close()

	conf := peer.DefaultConfiguration()
	conf.Socket = socket
	conf.BootstrapAddr = c.String("bootstrap")
	conf.TraceFile = c.String("trace")
	conf.K = c.Int("k")
	conf.Alpha = c.Int("alpha")

	store, signer, err := openDataDir(c.String("data-dir"))
	if err != nil {
		return err
	}
	defer store.Close()

	conf.Storage = store
	conf.Signer = signer

	node, err := impl.NewPeer(conf)
	if err != nil {
		return err
	}

	err = node.Start()
	if err != nil {
		node.Stop()
		return err
	}
	defer node.Stop()

	log.Info().Msgf("node %s listening on %s", node.GetID(), node.GetAddr())

	if c.String("http") != "" {
		serveHTTP(c.String("http"), node)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if c.Bool("no-shell") {
		<-ctx.Done()
		return nil
	}

	return newShell(node, os.Stdin, os.Stdout).run(ctx)
}

// openDataDir returns the storage and signer of a data directory, in memory
// ones when dir is empty.
func openDataDir(dir string) (storage.Storage, keys.Signer, error) {
	if dir == "" {
		signer, err := keys.GenerateRSA(keys.DefaultBits)
		if err != nil {
			return nil, nil, err
		}

		return inmemory.NewStorage(), signer, nil
	}

	err := os.MkdirAll(dir, 0700)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to create %s: %v", dir, err)
	}

	signer, err := keys.LoadOrGenerate(filepath.Join(dir, keyFile))
	if err != nil {
		return nil, nil, err
	}

	store, err := leveldb.NewStorage(filepath.Join(dir, "db"))
	if err != nil {
		return nil, nil, err
	}

	return store, signer, nil
}

func serveHTTP(addr string, node peer.Peer) {
	logger := log.With().Str("role", "http").Logger()
	ctrl := controller.NewDHT(node, &logger)

	go func() {
		logger.Info().Msgf("serving on %s", addr)

		err := http.ListenAndServe(addr, ctrl.Mux())
		if err != nil {
			logger.Error().Msgf("http server stopped: %v", err)
		}
	}()
}
