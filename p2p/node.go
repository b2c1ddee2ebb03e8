// node.go - Transaction relay between ledger daemons.
//
// Every node exposes one HTTP endpoint that accepts Message envelopes and dispatches them to the
// handler registered for the message type. Accepted transactions are relayed to every peer except
// the one they came from; a peer that already holds a transaction rejects it as a conflict, which
// ends the flood.

package p2p

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"zkledger/internal/zerocash"
)

// MessagePath is where nodes receive messages.
const MessagePath = "/p2p/message"

var (
	// ErrUnknownPeer is returned when sending to a peer outside the directory.
	ErrUnknownPeer = errors.New("peer not found in directory")
	// ErrNoHandler is returned for message types nobody registered.
	ErrNoHandler = errors.New("no handler for message type")
)

// HandlerFunc processes one received message. A returned error is reported to the sender.
type HandlerFunc func(n *Node, msg Message) error

// Node is one daemon in the relay network.
type Node struct {
	ID    string
	Peers map[string]string // node ID -> host:port

	client *http.Client
	log    zerolog.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewNode creates a node that knows the given peers.
func NewNode(id string, peers map[string]string, logger zerolog.Logger) *Node {
	return &Node{
		ID:       id,
		Peers:    peers,
		client:   &http.Client{Timeout: 5 * time.Second},
		log:      logger.With().Str("component", "p2p").Str("node", id).Logger(),
		handlers: make(map[string]HandlerFunc),
	}
}

// ParsePeers parses "id=host:port" entries.
func ParsePeers(entries []string) (map[string]string, error) {
	peers := make(map[string]string, len(entries))
	for _, e := range entries {
		id, addr, ok := strings.Cut(strings.TrimSpace(e), "=")
		if !ok || id == "" || addr == "" {
			return nil, errors.Newf("invalid peer %q, want id=host:port", e)
		}
		if _, dup := peers[id]; dup {
			return nil, errors.Newf("duplicate peer %q", id)
		}
		peers[id] = addr
	}
	return peers, nil
}

// RegisterHandler sets the handler for a message type.
func (n *Node) RegisterHandler(msgType string, h HandlerFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[msgType] = h
}

// OnTransaction registers fn for incoming transactions. Transactions fn accepts are relayed on.
func (n *Node) OnTransaction(fn func(from string, tx *zerocash.Transaction) error) {
	n.RegisterHandler(MsgTransaction, func(n *Node, msg Message) error {
		var p TransactionPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return errors.Wrap(err, "decode transaction payload")
		}
		tx, err := zerocash.TransactionFromHex(p.Transaction)
		if err != nil {
			return err
		}
		return fn(msg.SenderID, tx)
	})
}

// Handler returns the HTTP handler of MessagePath.
func (n *Node) Handler() http.Handler {
	return http.HandlerFunc(n.messageHandler)
}

func (n *Node) messageHandler(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		n.log.Warn().Err(err).Msg("bad message")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	n.mu.RLock()
	h, ok := n.handlers[msg.Type]
	n.mu.RUnlock()
	if !ok {
		n.log.Warn().Str("type", msg.Type).Str("from", msg.SenderID).Msg("unknown message type")
		http.Error(w, ErrNoHandler.Error(), http.StatusNotFound)
		return
	}

	n.log.Debug().Str("type", msg.Type).Str("from", msg.SenderID).Msg("received message")
	if err := h(n, msg); err != nil {
		n.log.Debug().Err(err).Str("type", msg.Type).Str("from", msg.SenderID).Msg("message rejected")
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// SendMessage sends payload to a single peer.
func (n *Node) SendMessage(ctx context.Context, targetID, msgType string, payload interface{}) error {
	addr, ok := n.Peers[targetID]
	if !ok {
		return errors.Wrapf(ErrUnknownPeer, "peer %q", targetID)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal payload")
	}
	body, err := json.Marshal(Message{Type: msgType, Payload: raw, SenderID: n.ID})
	if err != nil {
		return errors.Wrap(err, "marshal message envelope")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+addr+MessagePath, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "send to %s", targetID)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Newf("peer %s returned %s", targetID, resp.Status)
	}
	return nil
}

// Broadcast sends payload to every peer except those in skip and waits for all sends.
func (n *Node) Broadcast(ctx context.Context, msgType string, payload interface{}, skip ...string) error {
	targets := make([]string, 0, len(n.Peers))
	for id := range n.Peers {
		if id != n.ID && !slices.Contains(skip, id) {
			targets = append(targets, id)
		}
	}
	sort.Strings(targets)

	var (
		mu   sync.Mutex
		errs error
	)
	var g errgroup.Group
	for _, id := range targets {
		id := id
		g.Go(func() error {
			if err := n.SendMessage(ctx, id, msgType, payload); err != nil {
				mu.Lock()
				errs = errors.CombineErrors(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// Relay broadcasts tx in the background. Failures are logged.
func (n *Node) Relay(tx *zerocash.Transaction, from string) {
	if len(n.Peers) == 0 {
		return
	}
	payload := TransactionPayload{Transaction: tx.Hex()}
	go func() {
		if err := n.Broadcast(context.Background(), MsgTransaction, payload, from); err != nil {
			n.log.Debug().Err(err).Stringer("tx", tx.ID()).Msg("relay incomplete")
		}
	}()
}

// AnnounceBlock tells every peer about a sealed block in the background.
func (n *Node) AnnounceBlock(height uint64, root string) {
	if len(n.Peers) == 0 {
		return
	}
	go func() {
		if err := n.Broadcast(context.Background(), MsgBlockSealed, BlockSealedPayload{Height: height, Root: root}); err != nil {
			n.log.Debug().Err(err).Uint64("height", height).Msg("block announcement incomplete")
		}
	}()
}
