package trading

import "tradepost.dev/go/tradepost/internal/protocol"

// Settlement is handed to the settlement collaborator the moment both sides
// are locked on matching content. The registry does not execute it.
type Settlement struct {
	PartnerAddress  string                `json:"partner_address"`
	LocalOffer      []protocol.AssetEntry `json:"local_offer"`
	LocalOfferHash  string                `json:"local_offer_hash"`
	RemoteOffer     []protocol.AssetEntry `json:"remote_offer"`
	RemoteOfferHash string                `json:"remote_offer_hash"`
}

// Notifier receives the registry's outward-facing events. Implementations
// must not call back into the registry from the notification; events are
// delivered after the mutation completes, outside the registry lock.
type Notifier interface {
	// PeerIdentified fires when an address binding is created or rebound
	PeerIdentified(address string)

	// PeerUpdated fires on any negotiation or chat state change, for UI
	// observers polling snapshots
	PeerUpdated(address string)

	// PartnerClosed fires when the active negotiation partner's session
	// closed and the partner pointer was cleared
	PartnerClosed(address string)

	// ReadyToSettle fires when both sides are locked on matching content
	ReadyToSettle(s Settlement)

	// AcceptReceived fires when the peer explicitly confirms execution of
	// the locked trade
	AcceptReceived(address, hash string)
}

// NopNotifier discards all events
type NopNotifier struct{}

func (NopNotifier) PeerIdentified(string)         {}
func (NopNotifier) PeerUpdated(string)            {}
func (NopNotifier) PartnerClosed(string)          {}
func (NopNotifier) ReadyToSettle(Settlement)      {}
func (NopNotifier) AcceptReceived(string, string) {}
