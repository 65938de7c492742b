package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.dedis.ch/kademlia/peer"
	"go.dedis.ch/kademlia/types"
	"golang.org/x/xerrors"
)

const commandTimeout = 30 * time.Second

const help = `commands:
  put <text>            store text under the hash of its content
  store <key> <text>    store text under a hex key
  get <key>             read the value of a hex key
  publish <text>        publish text as the signed page of this node
  fetch <key>           read and verify the signed page under a hex key
  lookup <id>           find the nodes closest to a hex id
  ping <addr>           ping a node
  table                 print the routing table
  exit                  stop the node`

var errExit = xerrors.New("exit")

type shell struct {
	node peer.Peer
	in   io.Reader
	out  io.Writer
}

func newShell(node peer.Peer, in io.Reader, out io.Writer) *shell {
	return &shell{node: node, in: in, out: out}
}

// run executes the commands read from in until exit, end of input or ctx is
// done.
func (s *shell) run(ctx context.Context) error {
	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	fmt.Fprintln(s.out, help)

	for {
		fmt.Fprint(s.out, "> ")

		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}

			err := s.exec(ctx, line)
			if xerrors.Is(err, errExit) {
				return nil
			}
			if err != nil {
				fmt.Fprintf(s.out, "error: %v\n", err)
			}
		}
	}
}

func (s *shell) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd, args := fields[0], fields[1:]
	idLength := len(s.node.GetID())

	switch cmd {
	case "put":
		if len(args) == 0 {
			return xerrors.New("usage: put <text>")
		}
		text := strings.Join(args, " ")
		return s.store(ctx, types.KeyForContent([]byte(text), idLength), text)

	case "store":
		if len(args) < 2 {
			return xerrors.New("usage: store <key> <text>")
		}
		key, err := types.NodeIDFromHex(args[0], idLength)
		if err != nil {
			return err
		}
		return s.store(ctx, key, strings.Join(args[1:], " "))

	case "get":
		if len(args) != 1 {
			return xerrors.New("usage: get <key>")
		}
		key, err := types.NodeIDFromHex(args[0], idLength)
		if err != nil {
			return err
		}
		value, found, err := s.node.GetValue(ctx, key)
		if err != nil {
			return err
		}
		if !found {
			fmt.Fprintln(s.out, "not found")
			return nil
		}
		fmt.Fprintln(s.out, string(value))

	case "publish":
		if len(args) == 0 {
			return xerrors.New("usage: publish <text>")
		}
		key, err := s.node.PublishData(ctx, []byte(strings.Join(args, " ")))
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "published under %s\n", key)

	case "fetch":
		if len(args) != 1 {
			return xerrors.New("usage: fetch <key>")
		}
		key, err := types.NodeIDFromHex(args[0], idLength)
		if err != nil {
			return err
		}
		data, found, err := s.node.GetData(ctx, key)
		if err != nil {
			return err
		}
		if !found {
			fmt.Fprintln(s.out, "not found")
			return nil
		}
		fmt.Fprintf(s.out, "%s (%s)\n", data.Page.Payload, data.Page.Timestamp.Format(time.RFC3339))

	case "lookup":
		if len(args) != 1 {
			return xerrors.New("usage: lookup <id>")
		}
		target, err := types.NodeIDFromHex(args[0], idLength)
		if err != nil {
			return err
		}
		nodes, err := s.node.NodeLookup(ctx, target)
		if err != nil {
			return err
		}
		s.printNodes(nodes)

	case "ping":
		if len(args) != 1 {
			return xerrors.New("usage: ping <addr>")
		}
		remote, err := s.node.Ping(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "pong from %s\n", remote)

	case "table":
		s.printNodes(s.node.RoutingTable())

	case "help":
		fmt.Fprintln(s.out, help)

	case "exit", "quit":
		return errExit

	default:
		return xerrors.Errorf("unknown command %q", cmd)
	}

	return nil
}

func (s *shell) store(ctx context.Context, key types.NodeID, text string) error {
	published, err := s.node.Store(ctx, key, []byte(text))
	if err != nil {
		return err
	}

	if published {
		fmt.Fprintf(s.out, "stored under %s\n", key)
	} else {
		fmt.Fprintf(s.out, "stored locally under %s, no other node known\n", key)
	}

	return nil
}

func (s *shell) printNodes(nodes []types.KademliaNode) {
	if len(nodes) == 0 {
		fmt.Fprintln(s.out, "no node")
		return
	}

	for _, n := range nodes {
		fmt.Fprintf(s.out, "%s %s\n", n.ID, n.Addr())
	}
}
