package protocol

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of a trade message
type MessageType string

// The closed set of trade message variants. Anything else on the wire is
// rejected by the codec.
const (
	MsgAddress      MessageType = "address"
	MsgTradeRequest MessageType = "trade_request"
	MsgOffer        MessageType = "offer"
	MsgLockIn       MessageType = "lockin"
	MsgChat         MessageType = "chat"
	MsgAccept       MessageType = "accept"
)

// Message is the envelope every trade message travels in
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewMessage creates a new message with the given payload
func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   data,
	}, nil
}

// ParsePayload unmarshals the message payload
func (m *Message) ParsePayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}

// Encode serializes the message for the wire
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// AssetEntry is a quantity of a specific asset, identified by its contract
// address and token ID. Amount is a decimal string so arbitrary-precision
// token quantities survive the wire untouched.
type AssetEntry struct {
	ContractAddress string `json:"contractAddress"`
	TokenID         string `json:"tokenID"`
	Amount          string `json:"amount"`
}

// Address declares the sender's stable external identity. It is the first
// message sent on every fresh connection.
type Address struct {
	Address string `json:"address"`
}

// TradeRequest signals interest in trading. Advisory only: either side may
// send it at any time and no acknowledgement is expected.
type TradeRequest struct{}

// Offer replaces the sender's current offer in full. Hash is the sender's
// commitment hash over the offer contents.
type Offer struct {
	Offer []AssetEntry `json:"offer"`
	Hash  string       `json:"hash"`
}

// LockIn commits (or retracts) the sender's lock on the offer identified by
// Hash. A lock referencing a stale hash is dropped by the receiver.
type LockIn struct {
	IsLocked bool   `json:"isLocked"`
	Hash     string `json:"hash"`
}

// Chat carries a free-form text line for the per-peer chat log
type Chat struct {
	Message string `json:"message"`
}

// Accept confirms execution of the locked trade identified by Hash. The
// hash doubles as replay protection for the settlement collaborator.
type Accept struct {
	Hash string `json:"hash"`
}
