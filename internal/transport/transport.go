// Package transport implements the tracker transport collaborator: it
// dials the configured rendezvous sources, multiplexes per-session peer
// connections over them, and delivers opaque payloads up to the core. It
// owns sockets, retries, and delivery; the core owns meaning.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"tradepost.dev/go/tradepost/internal/protocol"
)

// Handler receives transport events. Calls are made from the transport's
// read goroutines; implementations serialize their own state.
type Handler interface {
	TrackerConnected(announceURL string)
	TrackerClosed(announceURL string)
	TrackerWarning(err error)
	PeerConnected(peer *Peer)
	PeerClosed(peerID string)
	MessageReceived(peer *Peer, raw []byte)
}

// Peer is a transport-level connection handle. The ID is session-scoped
// and carries no durable identity.
type Peer struct {
	id     string
	source string // announce URL or mdns pseudo-URL this peer arrived via
	sendFn func([]byte) error
}

// ID returns the transport-assigned session ID
func (p *Peer) ID() string { return p.id }

// Source returns the rendezvous source the peer was discovered through
func (p *Peer) Source() string { return p.source }

// Send transmits a trade message to the peer, fire-and-forget
func (p *Peer) Send(msg *protocol.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return p.sendFn(data)
}

// Options configures the transport
type Options struct {
	// SessionID identifies us to rendezvous sources. Generated when empty.
	SessionID string

	// AnnounceURLs are the websocket tracker endpoints to dial
	AnnounceURLs []string

	// MDNS enables the LAN rendezvous source
	MDNS bool

	// MDNSPort is the TCP port LAN peers dial. Zero picks an ephemeral port.
	MDNSPort int
}

// Transport multiplexes peer sessions over every configured rendezvous
// source: websocket trackers plus the optional mDNS LAN source.
type Transport struct {
	sessionID string
	handler   Handler
	opts      Options

	mu       sync.Mutex
	trackers map[string]*trackerClient
	lan      *lanService

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a transport delivering events to handler
func New(opts Options, handler Handler) *Transport {
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		sessionID: opts.SessionID,
		handler:   handler,
		opts:      opts,
		trackers:  make(map[string]*trackerClient),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SessionID returns our transport-level session identity
func (t *Transport) SessionID() string { return t.sessionID }

// Start dials every configured rendezvous source. Individual sources
// failing is advisory; the transport keeps retrying in the background.
func (t *Transport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, url := range t.opts.AnnounceURLs {
		tc := newTrackerClient(t.ctx, url, t.sessionID, t.handler)
		t.trackers[url] = tc
		go tc.run()
	}

	if t.opts.MDNS {
		lan, err := newLANService(t.ctx, t.sessionID, t.opts.MDNSPort, t.handler)
		if err != nil {
			return fmt.Errorf("start LAN source: %w", err)
		}
		t.lan = lan
		go lan.run()
	}

	slog.Info("Transport started",
		"session", t.sessionID,
		"trackers", len(t.opts.AnnounceURLs),
		"mdns", t.opts.MDNS,
	)
	return nil
}

// RequestMorePeers re-announces to every reachable rendezvous source
func (t *Transport) RequestMorePeers() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, tc := range t.trackers {
		tc.announce()
	}
	if t.lan != nil {
		t.lan.browseNow()
	}
}

// Stop tears down all sources and peer sessions
func (t *Transport) Stop() {
	t.cancel()

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, tc := range t.trackers {
		tc.close()
	}
	if t.lan != nil {
		t.lan.close()
	}
	slog.Info("Transport stopped")
}

// MDNSSourceURL is the pseudo announce URL the LAN source reports under.
// It joins the configured source list whenever mDNS discovery is enabled.
const MDNSSourceURL = "mdns://local"
