package protocol

import (
	"strings"
	"testing"
)

func TestOfferHashDeterministic(t *testing.T) {
	offer := []AssetEntry{
		{ContractAddress: "0xaaa", TokenID: "1", Amount: "100"},
		{ContractAddress: "0xbbb", TokenID: "2", Amount: "1"},
	}

	h1 := OfferHash(offer)
	h2 := OfferHash(offer)
	if h1 != h2 {
		t.Errorf("hash not deterministic: %s vs %s", h1, h2)
	}
	if !strings.HasPrefix(h1, "0x") || len(h1) != 66 {
		t.Errorf("unexpected hash shape: %s", h1)
	}
}

func TestOfferHashDistinguishesContent(t *testing.T) {
	base := []AssetEntry{{ContractAddress: "0xaaa", TokenID: "1", Amount: "100"}}

	variants := [][]AssetEntry{
		{{ContractAddress: "0xaab", TokenID: "1", Amount: "100"}},
		{{ContractAddress: "0xaaa", TokenID: "2", Amount: "100"}},
		{{ContractAddress: "0xaaa", TokenID: "1", Amount: "101"}},
		{},
	}

	baseHash := OfferHash(base)
	for i, v := range variants {
		if OfferHash(v) == baseHash {
			t.Errorf("variant %d collides with base", i)
		}
	}
}

func TestOfferHashOrderSensitive(t *testing.T) {
	a := AssetEntry{ContractAddress: "0xaaa", TokenID: "1", Amount: "100"}
	b := AssetEntry{ContractAddress: "0xbbb", TokenID: "2", Amount: "200"}

	if OfferHash([]AssetEntry{a, b}) == OfferHash([]AssetEntry{b, a}) {
		t.Error("entry order must affect the hash")
	}
}

func TestOfferHashFieldBoundaries(t *testing.T) {
	// Length prefixing must keep adjacent fields from bleeding into each
	// other: "ab"+"c" and "a"+"bc" are different offers.
	x := []AssetEntry{{ContractAddress: "ab", TokenID: "c", Amount: "1"}}
	y := []AssetEntry{{ContractAddress: "a", TokenID: "bc", Amount: "1"}}

	if OfferHash(x) == OfferHash(y) {
		t.Error("field boundaries must affect the hash")
	}
}

func TestOfferHashEmptyAndNil(t *testing.T) {
	if OfferHash(nil) != OfferHash([]AssetEntry{}) {
		t.Error("nil and empty offers must hash identically")
	}
}
