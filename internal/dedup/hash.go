package dedup

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Hash is a 128-bit content hash of a normalized payload.
type Hash [16]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// payloadKey seeds the payload hash. It is the zero-padded ASCII of the
// domain name and must never change, or hashes stored by an earlier run stop
// matching.
var payloadKey = [32]byte{
	't', 'r', 'a', 'n', 's', 'i', 't', '.', 'd', 'e', 'd', 'u', 'p', '.',
	'p', 'a', 'y', 'l', 'o', 'a', 'd', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashPayload returns the first 128 bits of the keyed BLAKE3 digest of b.
func HashPayload(b []byte) Hash {
	hasher, err := blake3.NewKeyed(payloadKey[:])
	if err != nil {
		panic("dedup: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(b)
	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h
}
