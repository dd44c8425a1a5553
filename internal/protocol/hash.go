package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// OfferHash computes the commitment hash of an offer: keccak-256 over a
// canonical length-prefixed encoding of every entry. Both sides must arrive
// at the same hash for the same content, so field order is fixed and no
// JSON is involved.
func OfferHash(offer []AssetEntry) string {
	var buf bytes.Buffer

	writeField := func(s string) {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
		buf.Write(lenBuf[:])
		buf.WriteString(s)
	}

	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(offer)))
	buf.Write(countBuf[:])

	for _, entry := range offer {
		writeField(entry.ContractAddress)
		writeField(entry.TokenID)
		writeField(entry.Amount)
	}

	sum := sha3.NewLegacyKeccak256()
	sum.Write(buf.Bytes())
	return "0x" + hex.EncodeToString(sum.Sum(nil))
}
