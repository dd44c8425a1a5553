package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
)

// Validation failures returned by Decode. A failed decode must leave no
// trace in peer state: callers drop the message and keep the connection.
var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrInvalidPayload     = errors.New("invalid payload")
)

// Payload is the typed result of decoding an inbound trade message.
// Exactly one concrete type per MessageType.
type Payload interface {
	Kind() MessageType
}

func (Address) Kind() MessageType      { return MsgAddress }
func (TradeRequest) Kind() MessageType { return MsgTradeRequest }
func (Offer) Kind() MessageType        { return MsgOffer }
func (LockIn) Kind() MessageType       { return MsgLockIn }
func (Chat) Kind() MessageType         { return MsgChat }
func (Accept) Kind() MessageType       { return MsgAccept }

// Decode parses an opaque inbound payload into a typed, structurally valid
// trade message. It either returns a fully valid Payload or an error; a
// partially valid message is never returned.
func Decode(raw []byte) (Payload, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", ErrInvalidPayload, err)
	}
	return DecodeMessage(&msg)
}

// DecodeMessage validates an already-unmarshaled envelope
func DecodeMessage(msg *Message) (Payload, error) {
	switch msg.Type {
	case MsgAddress:
		var p Address
		if err := msg.ParsePayload(&p); err != nil {
			return nil, fmt.Errorf("%w: address: %v", ErrInvalidPayload, err)
		}
		if p.Address == "" {
			return nil, fmt.Errorf("%w: address: missing address", ErrInvalidPayload)
		}
		return p, nil

	case MsgTradeRequest:
		return TradeRequest{}, nil

	case MsgOffer:
		var p Offer
		if err := msg.ParsePayload(&p); err != nil {
			return nil, fmt.Errorf("%w: offer: %v", ErrInvalidPayload, err)
		}
		if p.Hash == "" {
			return nil, fmt.Errorf("%w: offer: missing commitment hash", ErrInvalidPayload)
		}
		for i, entry := range p.Offer {
			if err := ValidateAssetEntry(entry); err != nil {
				return nil, fmt.Errorf("%w: offer entry %d: %v", ErrInvalidPayload, i, err)
			}
		}
		if p.Offer == nil {
			p.Offer = []AssetEntry{}
		}
		return p, nil

	case MsgLockIn:
		var p LockIn
		if err := msg.ParsePayload(&p); err != nil {
			return nil, fmt.Errorf("%w: lockin: %v", ErrInvalidPayload, err)
		}
		if p.IsLocked && p.Hash == "" {
			return nil, fmt.Errorf("%w: lockin: lock without commitment hash", ErrInvalidPayload)
		}
		return p, nil

	case MsgChat:
		var p Chat
		if err := msg.ParsePayload(&p); err != nil {
			return nil, fmt.Errorf("%w: chat: %v", ErrInvalidPayload, err)
		}
		if p.Message == "" {
			return nil, fmt.Errorf("%w: chat: empty message", ErrInvalidPayload)
		}
		return p, nil

	case MsgAccept:
		var p Accept
		if err := msg.ParsePayload(&p); err != nil {
			return nil, fmt.Errorf("%w: accept: %v", ErrInvalidPayload, err)
		}
		if p.Hash == "" {
			return nil, fmt.Errorf("%w: accept: missing commitment hash", ErrInvalidPayload)
		}
		return p, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, msg.Type)
	}
}

// ValidateAssetEntry checks the structural requirements of a single offer
// entry: identifiers present, amount a parseable non-negative integer.
func ValidateAssetEntry(entry AssetEntry) error {
	if entry.ContractAddress == "" {
		return errors.New("missing contract address")
	}
	if entry.TokenID == "" {
		return errors.New("missing token ID")
	}
	amount, ok := new(big.Int).SetString(entry.Amount, 10)
	if !ok {
		return fmt.Errorf("unparseable amount %q", entry.Amount)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("negative amount %q", entry.Amount)
	}
	return nil
}
