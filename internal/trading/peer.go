package trading

import (
	"tradepost.dev/go/tradepost/internal/protocol"
)

// RawPeer is a transport-level connection handle. The transport owns the
// connection; the registry only holds a reference for the session's
// lifetime. IDs are transport-assigned and not stable across reconnects.
type RawPeer interface {
	ID() string
	Send(msg *protocol.Message) error
}

// Sender marks which side of the chat wrote a line
type Sender string

const (
	SenderMe   Sender = "me"
	SenderThem Sender = "them"
)

// ChatEntry is one line of the per-peer chat log
type ChatEntry struct {
	Sender Sender `json:"sender"`
	Text   string `json:"text"`
}

// State is the negotiation state, derived from the peer's fields. The
// fields remain the source of truth; State is a pure function over them.
type State int

const (
	StateBound State = iota
	StateRequested
	StateNegotiating
	StateLockedOneSide
	StateLockedBoth
)

func (s State) String() string {
	switch s {
	case StateBound:
		return "bound"
	case StateRequested:
		return "requested"
	case StateNegotiating:
		return "negotiating"
	case StateLockedOneSide:
		return "locked_one_side"
	case StateLockedBoth:
		return "locked_both"
	default:
		return "unknown"
	}
}

// TradingPeer is an identified peer: a raw session bound to a stable
// external address, plus its negotiation state. Created when an address
// message arrives, destroyed when the underlying session closes.
type TradingPeer struct {
	peer    RawPeer
	Address string

	TradeRequested  bool
	HasUnseenUpdate bool

	LocalOffer     []protocol.AssetEntry
	LocalOfferHash string
	LocalLocked    bool

	RemoteOffer     []protocol.AssetEntry
	RemoteOfferHash string
	RemoteLocked    bool

	ChatLog []ChatEntry
}

// State derives the explicit negotiation state from the field values
func (p *TradingPeer) State() State {
	switch {
	case p.LocalLocked && p.RemoteLocked:
		return StateLockedBoth
	case p.LocalLocked || p.RemoteLocked:
		return StateLockedOneSide
	case len(p.LocalOffer) > 0 || len(p.RemoteOffer) > 0:
		return StateNegotiating
	case p.TradeRequested:
		return StateRequested
	default:
		return StateBound
	}
}

// PeerSnapshot is the read-only public view of a trading peer, safe to hand
// to UI observers. Slices are copies; mutating a snapshot has no effect on
// the registry.
type PeerSnapshot struct {
	Address         string                 `json:"address"`
	SessionID       string                 `json:"session_id"`
	State           string                 `json:"state"`
	TradeRequested  bool                   `json:"trade_requested"`
	HasUnseenUpdate bool                   `json:"has_unseen_update"`
	LocalOffer      []protocol.AssetEntry  `json:"local_offer"`
	LocalOfferHash  string                 `json:"local_offer_hash,omitempty"`
	LocalLocked     bool                   `json:"local_locked"`
	RemoteOffer     []protocol.AssetEntry  `json:"remote_offer"`
	RemoteOfferHash string                 `json:"remote_offer_hash,omitempty"`
	RemoteLocked    bool                   `json:"remote_locked"`
	ChatLog         []ChatEntry            `json:"chat_log"`
}

// snapshot copies the peer into its public view. Caller holds the registry
// lock.
func (p *TradingPeer) snapshot() PeerSnapshot {
	return PeerSnapshot{
		Address:         p.Address,
		SessionID:       p.peer.ID(),
		State:           p.State().String(),
		TradeRequested:  p.TradeRequested,
		HasUnseenUpdate: p.HasUnseenUpdate,
		LocalOffer:      append([]protocol.AssetEntry(nil), p.LocalOffer...),
		LocalOfferHash:  p.LocalOfferHash,
		LocalLocked:     p.LocalLocked,
		RemoteOffer:     append([]protocol.AssetEntry(nil), p.RemoteOffer...),
		RemoteOfferHash: p.RemoteOfferHash,
		RemoteLocked:    p.RemoteLocked,
		ChatLog:         append([]ChatEntry(nil), p.ChatLog...),
	}
}
