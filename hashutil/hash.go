// Package hashutil holds the hash primitives the rest of qvault composes:
// single and double SHA-256, RIPEMD160(SHA256) and iterated hash chains.
package hashutil

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck
)

// Size is the output size of SHA-256 in bytes.
const Size = sha256.Size

// SHA256 returns the SHA-256 digest of b.
func SHA256(b []byte) []byte {
	return chainhash.HashB(b)
}

// DoubleSHA256 returns SHA256(SHA256(b)).
func DoubleSHA256(b []byte) []byte {
	return chainhash.DoubleHashB(b)
}

// Hash160 returns RIPEMD160(SHA256(b)), the short script hash.
func Hash160(b []byte) []byte {
	h := ripemd160.New()
	h.Write(chainhash.HashB(b))

	return h.Sum(nil)
}

// Chain applies SHA-256 n times to seed. Chain(seed, 0) returns a copy of
// seed.
func Chain(seed []byte, n int) []byte {
	out := make([]byte, len(seed))
	copy(out, seed)

	for i := 0; i < n; i++ {
		h := sha256.Sum256(out)
		out = h[:]
	}

	return out
}

// Chain32 is Chain for a fixed 32 byte input.
func Chain32(seed [Size]byte, n int) [Size]byte {
	out := seed
	for i := 0; i < n; i++ {
		out = sha256.Sum256(out[:])
	}

	return out
}

// ReverseBytes returns a reversed copy of b.
func ReverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}

	return out
}
