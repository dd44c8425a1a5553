// Package identity provides the local external identity: the stable
// wallet-style address peers use to correlate us across reconnects.
// Authentication and signing belong to the wallet collaborator; this
// package only carries or derives the address itself.
package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	bip39 "github.com/cosmos/go-bip39"
	"golang.org/x/crypto/sha3"
)

// ErrInvalidAddress is returned for strings that are not 0x-prefixed
// 20-byte hex addresses.
var ErrInvalidAddress = errors.New("invalid address")

// Identity is the local external identity
type Identity struct {
	Address string

	// Mnemonic is set only for generated dev identities, so the address
	// can be reproduced across restarts.
	Mnemonic string
}

// FromAddress wraps an externally owned address after validating its shape
func FromAddress(address string) (*Identity, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}
	return &Identity{Address: strings.ToLower(address)}, nil
}

// Generate creates a throwaway dev identity from a fresh BIP-39 mnemonic.
// Useful for running a node without a connected wallet.
func Generate() (*Identity, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return nil, fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, fmt.Errorf("generate mnemonic: %w", err)
	}
	return FromMnemonic(mnemonic)
}

// FromMnemonic derives the dev identity for a BIP-39 mnemonic
func FromMnemonic(mnemonic string) (*Identity, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("invalid mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, "")

	// Deterministic key from the first 32 seed bytes; the address is the
	// last 20 bytes of the keccak-256 of the public key.
	key := ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])
	pub := key.Public().(ed25519.PublicKey)

	sum := sha3.NewLegacyKeccak256()
	sum.Write(pub)
	digest := sum.Sum(nil)

	return &Identity{
		Address:  "0x" + hex.EncodeToString(digest[len(digest)-20:]),
		Mnemonic: mnemonic,
	}, nil
}

// ValidateAddress checks that the string is a 0x-prefixed 20-byte hex value
func ValidateAddress(address string) error {
	if !strings.HasPrefix(address, "0x") || len(address) != 42 {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	if _, err := hex.DecodeString(address[2:]); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return nil
}

// Short returns a truncated address for logging
func (i *Identity) Short() string {
	if len(i.Address) < 10 {
		return i.Address
	}
	return i.Address[:10]
}
