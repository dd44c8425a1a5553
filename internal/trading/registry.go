// Package trading holds the core of the trade daemon: the registry of
// connected peers, the address-binding handshake, and the per-peer
// negotiation state machine. All mutation happens under a single lock, in
// transport delivery order, so invariants are checkable at one boundary.
package trading

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"tradepost.dev/go/tradepost/internal/protocol"
)

// ErrUnknownPeer is returned by local commands addressed to an external
// address with no identified peer behind it.
var ErrUnknownPeer = errors.New("no identified peer for address")

// Stats counts registry anomalies and protocol races
type Stats struct {
	BindingsSuperseded  atomic.Int64
	ValidationFailures  atomic.Int64
	HashRejections      atomic.Int64
	DroppedUnidentified atomic.Int64
}

// Registry is the set of connected transport sessions and, for those that
// completed the address handshake, their trading state. It is the single
// piece of mutable shared state in the core.
type Registry struct {
	localAddress string
	notifier     Notifier

	mu         sync.Mutex
	rawPeers   map[string]RawPeer      // session ID -> handle
	byAddress  map[string]*TradingPeer // external address -> peer
	bySession  map[string]*TradingPeer // session ID -> peer
	activePtr  string                  // active negotiation partner address

	stats Stats
}

// NewRegistry creates a registry for the given local external address.
// A nil notifier discards events.
func NewRegistry(localAddress string, notifier Notifier) *Registry {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Registry{
		localAddress: localAddress,
		notifier:     notifier,
		rawPeers:     make(map[string]RawPeer),
		byAddress:    make(map[string]*TradingPeer),
		bySession:    make(map[string]*TradingPeer),
	}
}

// LocalAddress returns our own external identity
func (r *Registry) LocalAddress() string {
	return r.localAddress
}

// Stats exposes the registry's counters
func (r *Registry) Stats() *Stats {
	return &r.stats
}

// OnPeerConnected registers a fresh transport session and immediately
// announces our external identity to it. The side that just connected
// always initiates the handshake; it is never solicited.
func (r *Registry) OnPeerConnected(peer RawPeer) {
	r.mu.Lock()
	r.rawPeers[peer.ID()] = peer
	r.mu.Unlock()

	slog.Debug("Peer session opened", "session", peer.ID())

	msg, err := protocol.NewMessage(protocol.MsgAddress, protocol.Address{Address: r.localAddress})
	if err != nil {
		slog.Error("Failed to build address message", "error", err)
		return
	}
	if err := peer.Send(msg); err != nil {
		slog.Debug("Address announce failed", "session", peer.ID(), "error", err)
	}
}

// OnPeerClosed removes every record backed by the closed session. If the
// removed peer was the active negotiation partner, the partner pointer is
// cleared and PartnerClosed fires.
func (r *Registry) OnPeerClosed(peerID string) {
	r.mu.Lock()
	delete(r.rawPeers, peerID)

	var closedPartner string
	if tp, ok := r.bySession[peerID]; ok {
		delete(r.bySession, peerID)
		delete(r.byAddress, tp.Address)
		if r.activePtr == tp.Address {
			r.activePtr = ""
			closedPartner = tp.Address
		}
		slog.Info("Identified peer removed", "address", tp.Address, "session", peerID)
	}
	r.mu.Unlock()

	if closedPartner != "" {
		r.notifier.PartnerClosed(closedPartner)
	}
}

// bindAddress implements the address handshake. Transport session IDs are
// not stable across reconnects, so the external address is the only
// reliable correlation key: any record bound to the same address over a
// different session is a stale binding and is removed first.
func (r *Registry) bindAddress(peer RawPeer, address string) {
	r.mu.Lock()

	if stale, ok := r.byAddress[address]; ok && stale.peer.ID() != peer.ID() {
		delete(r.bySession, stale.peer.ID())
		delete(r.byAddress, address)
		r.stats.BindingsSuperseded.Add(1)
		slog.Info("Superseded stale binding",
			"address", address,
			"old_session", stale.peer.ID(),
			"new_session", peer.ID(),
		)
	}

	if tp, ok := r.bySession[peer.ID()]; ok {
		// Re-identification on a live session updates the address in
		// place and keeps the negotiation state.
		if tp.Address != address {
			delete(r.byAddress, tp.Address)
			tp.Address = address
			r.byAddress[address] = tp
		}
		r.mu.Unlock()
		r.notifier.PeerIdentified(address)
		return
	}

	tp := &TradingPeer{
		peer:    peer,
		Address: address,
	}
	r.byAddress[address] = tp
	r.bySession[peer.ID()] = tp
	r.mu.Unlock()

	slog.Info("Peer identified", "address", address, "session", peer.ID())
	r.notifier.PeerIdentified(address)
}

// SetActivePartner records which identified peer the caller is negotiating
// with. An empty address clears the pointer.
func (r *Registry) SetActivePartner(address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if address != "" {
		if _, ok := r.byAddress[address]; !ok {
			return ErrUnknownPeer
		}
	}
	r.activePtr = address
	return nil
}

// ActivePartner returns the current negotiation partner address, or ""
func (r *Registry) ActivePartner() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activePtr
}

// Peer returns the public view of one identified peer
func (r *Registry) Peer(address string) (PeerSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tp, ok := r.byAddress[address]
	if !ok {
		return PeerSnapshot{}, false
	}
	return tp.snapshot(), true
}

// Snapshot returns the public view of every identified peer, sorted by
// address for stable rendering.
func (r *Registry) Snapshot() []PeerSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]PeerSnapshot, 0, len(r.byAddress))
	for _, tp := range r.byAddress {
		out = append(out, tp.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// SessionCount returns the number of open transport sessions
func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rawPeers)
}

// IdentifiedCount returns the number of identified peers
func (r *Registry) IdentifiedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byAddress)
}
