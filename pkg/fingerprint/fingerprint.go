// Package fingerprint derives stable, non-reversible identifiers for values
// that must not appear in plaintext in logs, metrics labels or store keys.
package fingerprint

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// size is the digest length in bytes; 16 bytes keeps log lines short while
// leaving collisions out of practical reach for an allow-list.
const size = 16

// Hasher produces keyed BLAKE2b fingerprints. The zero value is unkeyed.
type Hasher struct {
	key []byte
}

// New returns a Hasher keyed with key. Keys longer than 64 bytes are
// truncated, which is the BLAKE2b key limit.
func New(key string) Hasher {
	k := []byte(key)
	if len(k) > blake2b.Size {
		k = k[:blake2b.Size]
	}
	return Hasher{key: k}
}

// Sum returns the hex fingerprint of v. Empty input yields an empty string.
func (h Hasher) Sum(v string) string {
	if v == "" {
		return ""
	}
	d, err := blake2b.New(size, h.key)
	if err != nil {
		// only reachable with an oversized key, which New prevents
		return ""
	}
	d.Write([]byte(v))
	return hex.EncodeToString(d.Sum(nil))
}
