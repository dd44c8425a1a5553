package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func encode(t *testing.T, msgType MessageType, payload interface{}) []byte {
	t.Helper()
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	data, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data
}

func TestDecodeAddress(t *testing.T) {
	raw := encode(t, MsgAddress, Address{Address: "0xabc"})

	payload, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	addr, ok := payload.(Address)
	if !ok {
		t.Fatalf("expected Address, got %T", payload)
	}
	if addr.Address != "0xabc" {
		t.Errorf("address = %q, want %q", addr.Address, "0xabc")
	}
	if addr.Kind() != MsgAddress {
		t.Errorf("kind = %q, want %q", addr.Kind(), MsgAddress)
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	raw := encode(t, MessageType("transfer"), struct{}{})

	if _, err := Decode(raw); !errors.Is(err, ErrUnknownMessageType) {
		t.Errorf("err = %v, want ErrUnknownMessageType", err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not json")); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("err = %v, want ErrInvalidPayload", err)
	}
}

func TestDecodeValidation(t *testing.T) {
	validEntry := AssetEntry{ContractAddress: "0xc0ffee", TokenID: "1", Amount: "100"}

	tests := []struct {
		name    string
		msgType MessageType
		payload interface{}
		wantErr bool
	}{
		{"address missing", MsgAddress, Address{}, true},
		{"trade request", MsgTradeRequest, TradeRequest{}, false},
		{"offer valid", MsgOffer, Offer{Offer: []AssetEntry{validEntry}, Hash: "0x1"}, false},
		{"offer empty with hash", MsgOffer, Offer{Hash: "0x1"}, false},
		{"offer missing hash", MsgOffer, Offer{Offer: []AssetEntry{validEntry}}, true},
		{"offer bad amount", MsgOffer, Offer{Offer: []AssetEntry{{ContractAddress: "0xc", TokenID: "1", Amount: "12.5"}}, Hash: "0x1"}, true},
		{"offer negative amount", MsgOffer, Offer{Offer: []AssetEntry{{ContractAddress: "0xc", TokenID: "1", Amount: "-5"}}, Hash: "0x1"}, true},
		{"offer missing contract", MsgOffer, Offer{Offer: []AssetEntry{{TokenID: "1", Amount: "5"}}, Hash: "0x1"}, true},
		{"lock with hash", MsgLockIn, LockIn{IsLocked: true, Hash: "0x1"}, false},
		{"lock without hash", MsgLockIn, LockIn{IsLocked: true}, true},
		{"unlock without hash", MsgLockIn, LockIn{IsLocked: false}, false},
		{"chat valid", MsgChat, Chat{Message: "hi"}, false},
		{"chat empty", MsgChat, Chat{}, true},
		{"accept valid", MsgAccept, Accept{Hash: "0x1"}, false},
		{"accept missing hash", MsgAccept, Accept{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(encode(t, tt.msgType, tt.payload))
			if (err != nil) != tt.wantErr {
				t.Errorf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPayload) {
				t.Errorf("err = %v, want ErrInvalidPayload", err)
			}
		})
	}
}

func TestDecodeNormalizesNilOffer(t *testing.T) {
	raw := encode(t, MsgOffer, map[string]string{"hash": "0x1"})

	payload, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	offer := payload.(Offer)
	if offer.Offer == nil {
		t.Error("nil offer slice should be normalized to empty")
	}
}

func TestDecodeRejectsMismatchedPayload(t *testing.T) {
	// Valid JSON envelope with a payload of the wrong shape
	raw := []byte(`{"type":"offer","payload":"just a string"}`)

	if _, err := Decode(raw); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("err = %v, want ErrInvalidPayload", err)
	}
}

func TestValidateAssetEntryLargeAmount(t *testing.T) {
	// Amounts beyond uint64 must survive validation
	entry := AssetEntry{
		ContractAddress: "0xc0ffee",
		TokenID:         "7",
		Amount:          "115792089237316195423570985008687907853269984665640564039457584007913129639935",
	}
	if err := ValidateAssetEntry(entry); err != nil {
		t.Errorf("ValidateAssetEntry: %v", err)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	msg, err := NewMessage(MsgChat, Chat{Message: "hello"})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	data, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Type != MsgChat {
		t.Errorf("type = %q, want %q", decoded.Type, MsgChat)
	}
	var chat Chat
	if err := decoded.ParsePayload(&chat); err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if chat.Message != "hello" {
		t.Errorf("message = %q, want %q", chat.Message, "hello")
	}
}
