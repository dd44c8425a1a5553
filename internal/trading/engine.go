package trading

import (
	"fmt"
	"log/slog"

	"tradepost.dev/go/tradepost/internal/protocol"
)

// HandleMessage applies one inbound payload from a transport session.
// Malformed payloads and messages from unidentified sessions are dropped;
// nothing here is fatal to the session. Each peer's record is mutated
// atomically as a unit under the registry lock, and events fire after the
// mutation completes.
func (r *Registry) HandleMessage(peer RawPeer, raw []byte) {
	payload, err := protocol.Decode(raw)
	if err != nil {
		r.stats.ValidationFailures.Add(1)
		slog.Warn("Dropping malformed message", "session", peer.ID(), "error", err)
		return
	}

	if addr, ok := payload.(protocol.Address); ok {
		r.bindAddress(peer, addr.Address)
		return
	}

	// Negotiation messages are accepted only from identified peers
	r.mu.Lock()
	tp, ok := r.bySession[peer.ID()]
	if !ok {
		r.mu.Unlock()
		r.stats.DroppedUnidentified.Add(1)
		slog.Warn("Dropping message from unidentified session",
			"session", peer.ID(),
			"type", payload.Kind(),
		)
		return
	}

	var events []func()
	switch p := payload.(type) {
	case protocol.TradeRequest:
		events = r.applyTradeRequest(tp)
	case protocol.Offer:
		events = r.applyOffer(tp, p)
	case protocol.LockIn:
		events = r.applyLockIn(tp, p)
	case protocol.Chat:
		events = r.applyChat(tp, p)
	case protocol.Accept:
		events = r.applyAccept(tp, p)
	}
	r.mu.Unlock()

	for _, fire := range events {
		fire()
	}
}

// applyTradeRequest marks the remote's interest. Only the first transition
// counts as unseen news for the local observer.
func (r *Registry) applyTradeRequest(tp *TradingPeer) []func() {
	if !tp.TradeRequested {
		tp.TradeRequested = true
		tp.HasUnseenUpdate = true
	}
	addr := tp.Address
	return []func(){func() { r.notifier.PeerUpdated(addr) }}
}

// applyOffer replaces the remote offer wholesale. Any prior lock claim is
// invalidated until a fresh lockin re-confirms against the new content,
// even when the new offer is value-identical to the old one.
func (r *Registry) applyOffer(tp *TradingPeer, offer protocol.Offer) []func() {
	tp.RemoteOffer = append([]protocol.AssetEntry(nil), offer.Offer...)
	tp.RemoteOfferHash = offer.Hash
	tp.RemoteLocked = false
	tp.HasUnseenUpdate = true

	slog.Info("Offer received",
		"address", tp.Address,
		"entries", len(offer.Offer),
		"hash", offer.Hash,
	)

	addr := tp.Address
	return []func(){func() { r.notifier.PeerUpdated(addr) }}
}

// applyLockIn handles a lock claim. A lock is honored only when the carried
// hash matches the locally recomputed hash of the remote offer; a mismatch
// is a stale or racy message and degrades to a no-op. Unlock always goes
// through since it only removes a commitment.
func (r *Registry) applyLockIn(tp *TradingPeer, lock protocol.LockIn) []func() {
	addr := tp.Address

	if !lock.IsLocked {
		tp.RemoteLocked = false
		return []func(){func() { r.notifier.PeerUpdated(addr) }}
	}

	computed := protocol.OfferHash(tp.RemoteOffer)
	if lock.Hash != computed {
		r.stats.HashRejections.Add(1)
		slog.Warn("Rejecting stale lock",
			"address", addr,
			"claimed", lock.Hash,
			"computed", computed,
		)
		return nil
	}

	wasBoth := tp.State() == StateLockedBoth
	tp.RemoteLocked = true
	tp.RemoteOfferHash = lock.Hash

	events := []func(){func() { r.notifier.PeerUpdated(addr) }}
	if !wasBoth && tp.State() == StateLockedBoth {
		s := r.settlementLocked(tp)
		events = append(events, func() { r.notifier.ReadyToSettle(s) })
	}
	return events
}

// applyChat appends to the chat log. Chat never touches negotiation state
// or the unseen-update flag.
func (r *Registry) applyChat(tp *TradingPeer, chat protocol.Chat) []func() {
	tp.ChatLog = append(tp.ChatLog, ChatEntry{Sender: SenderThem, Text: chat.Message})
	addr := tp.Address
	return []func(){func() { r.notifier.PeerUpdated(addr) }}
}

// applyAccept surfaces the peer's confirmation to execute. The carried hash
// must match the offer of ours they locked; anything else is a replayed or
// stale accept and is dropped.
func (r *Registry) applyAccept(tp *TradingPeer, accept protocol.Accept) []func() {
	if !tp.LocalLocked || accept.Hash != tp.LocalOfferHash {
		r.stats.HashRejections.Add(1)
		slog.Warn("Rejecting accept with stale hash",
			"address", tp.Address,
			"claimed", accept.Hash,
			"locked", tp.LocalOfferHash,
		)
		return nil
	}

	addr, hash := tp.Address, accept.Hash
	return []func(){func() { r.notifier.AcceptReceived(addr, hash) }}
}

// settlementLocked builds the settlement view. Caller holds the lock.
func (r *Registry) settlementLocked(tp *TradingPeer) Settlement {
	return Settlement{
		PartnerAddress:  tp.Address,
		LocalOffer:      append([]protocol.AssetEntry(nil), tp.LocalOffer...),
		LocalOfferHash:  tp.LocalOfferHash,
		RemoteOffer:     append([]protocol.AssetEntry(nil), tp.RemoteOffer...),
		RemoteOfferHash: tp.RemoteOfferHash,
	}
}

// RequestTrade transmits our interest in trading with the peer. Advisory:
// no state of ours changes and no acknowledgement is expected.
func (r *Registry) RequestTrade(address string) error {
	tp, err := r.lookup(address)
	if err != nil {
		return err
	}
	return r.send(tp, protocol.MsgTradeRequest, protocol.TradeRequest{})
}

// SetLocalOffer replaces our offer to the peer and transmits it. Changing
// the offer retracts any lock we previously committed to, since the lock
// referenced the old content.
func (r *Registry) SetLocalOffer(address string, offer []protocol.AssetEntry) error {
	for i, entry := range offer {
		if err := protocol.ValidateAssetEntry(entry); err != nil {
			return fmt.Errorf("offer entry %d: %w", i, err)
		}
	}

	r.mu.Lock()
	tp, ok := r.byAddress[address]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownPeer
	}
	hash := protocol.OfferHash(offer)
	tp.LocalOffer = append([]protocol.AssetEntry(nil), offer...)
	tp.LocalOfferHash = hash
	tp.LocalLocked = false
	r.mu.Unlock()

	r.notifier.PeerUpdated(address)
	return r.send(tp, protocol.MsgOffer, protocol.Offer{Offer: offer, Hash: hash})
}

// SetLocalLock commits or retracts our lock on the current local offer and
// transmits the lockin carrying its commitment hash.
func (r *Registry) SetLocalLock(address string, locked bool) error {
	r.mu.Lock()
	tp, ok := r.byAddress[address]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownPeer
	}

	wasBoth := tp.State() == StateLockedBoth
	hash := protocol.OfferHash(tp.LocalOffer)
	tp.LocalOfferHash = hash
	tp.LocalLocked = locked

	var settlement *Settlement
	if locked && !wasBoth && tp.State() == StateLockedBoth {
		s := r.settlementLocked(tp)
		settlement = &s
	}
	r.mu.Unlock()

	r.notifier.PeerUpdated(address)
	if settlement != nil {
		r.notifier.ReadyToSettle(*settlement)
	}
	return r.send(tp, protocol.MsgLockIn, protocol.LockIn{IsLocked: locked, Hash: hash})
}

// SendChat appends a line to our view of the chat log and transmits it.
// Each side's log reflects its own send/receipt order; the two views may
// interleave differently and no reconciliation is attempted.
func (r *Registry) SendChat(address, text string) error {
	if text == "" {
		return fmt.Errorf("empty chat message")
	}

	r.mu.Lock()
	tp, ok := r.byAddress[address]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownPeer
	}
	tp.ChatLog = append(tp.ChatLog, ChatEntry{Sender: SenderMe, Text: text})
	r.mu.Unlock()

	r.notifier.PeerUpdated(address)
	return r.send(tp, protocol.MsgChat, protocol.Chat{Message: text})
}

// SendAccept transmits our confirmation to execute the locked trade. The
// accept carries the hash of the peer's locked offer so a stale accept can
// be detected on their side.
func (r *Registry) SendAccept(address string) error {
	r.mu.Lock()
	tp, ok := r.byAddress[address]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownPeer
	}
	if tp.State() != StateLockedBoth {
		r.mu.Unlock()
		return fmt.Errorf("trade with %s is not locked by both sides", address)
	}
	hash := tp.RemoteOfferHash
	r.mu.Unlock()

	return r.send(tp, protocol.MsgAccept, protocol.Accept{Hash: hash})
}

// AckUpdates clears the unseen-update flag once the local observer has
// looked at the peer.
func (r *Registry) AckUpdates(address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tp, ok := r.byAddress[address]
	if !ok {
		return ErrUnknownPeer
	}
	tp.HasUnseenUpdate = false
	return nil
}

// lookup resolves an address to its peer under the lock
func (r *Registry) lookup(address string) (*TradingPeer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tp, ok := r.byAddress[address]
	if !ok {
		return nil, ErrUnknownPeer
	}
	return tp, nil
}

// send builds and transmits a message, fire-and-forget. Delivery and retry
// are the transport's problem; a send error never mutates trading state.
func (r *Registry) send(tp *TradingPeer, msgType protocol.MessageType, payload interface{}) error {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		return fmt.Errorf("build %s message: %w", msgType, err)
	}
	if err := tp.peer.Send(msg); err != nil {
		slog.Debug("Send failed", "address", tp.Address, "type", msgType, "error", err)
		return fmt.Errorf("send %s: %w", msgType, err)
	}
	return nil
}
