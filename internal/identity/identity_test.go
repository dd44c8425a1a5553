package identity

import (
	"errors"
	"strings"
	"testing"
)

func TestFromAddress(t *testing.T) {
	addr := "0xAbCd111111111111111111111111111111111111"

	ident, err := FromAddress(addr)
	if err != nil {
		t.Fatalf("FromAddress: %v", err)
	}
	if ident.Address != strings.ToLower(addr) {
		t.Errorf("address = %q, want lowercased input", ident.Address)
	}
	if ident.Mnemonic != "" {
		t.Error("external address must carry no mnemonic")
	}
}

func TestFromAddressRejectsBadShapes(t *testing.T) {
	bad := []string{
		"",
		"1111111111111111111111111111111111111111",
		"0x1111",
		"0xzz11111111111111111111111111111111111111",
	}
	for _, addr := range bad {
		if _, err := FromAddress(addr); !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("FromAddress(%q) err = %v, want ErrInvalidAddress", addr, err)
		}
	}
}

func TestGenerate(t *testing.T) {
	ident, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := ValidateAddress(ident.Address); err != nil {
		t.Errorf("generated address invalid: %v", err)
	}
	if ident.Mnemonic == "" {
		t.Error("generated identity must carry its mnemonic")
	}
	if words := strings.Fields(ident.Mnemonic); len(words) != 12 {
		t.Errorf("mnemonic has %d words, want 12", len(words))
	}
}

func TestFromMnemonicDeterministic(t *testing.T) {
	ident, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	again, err := FromMnemonic(ident.Mnemonic)
	if err != nil {
		t.Fatalf("FromMnemonic: %v", err)
	}
	if again.Address != ident.Address {
		t.Errorf("address not reproducible: %q vs %q", again.Address, ident.Address)
	}
}

func TestFromMnemonicRejectsInvalid(t *testing.T) {
	if _, err := FromMnemonic("definitely not a valid mnemonic phrase at all here ok"); err == nil {
		t.Error("invalid mnemonic must be rejected")
	}
}

func TestShort(t *testing.T) {
	ident := &Identity{Address: "0x1234567890abcdef1234567890abcdef12345678"}
	if got := ident.Short(); got != "0x12345678" {
		t.Errorf("Short() = %q", got)
	}
}
