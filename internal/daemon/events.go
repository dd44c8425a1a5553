package daemon

import (
	"encoding/json"
	"log/slog"
)

// Event is broadcast to UI observers over the event hub
type Event struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event names emitted by the daemon
const (
	EventPeerIdentified = "peer.identified"
	EventPeerUpdated    = "peer.updated"
	EventPartnerClosed  = "partner.closed"
	EventReadyToSettle  = "trade.ready_to_settle"
	EventAcceptReceived = "trade.accept_received"
	EventTrackerChanged = "tracker.changed"
)

// mustMarshal serializes an event payload; marshal failures are programmer
// errors and degrade to an empty payload rather than dropping the event.
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal event payload", "error", err)
		return nil
	}
	return data
}
