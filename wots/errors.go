package wots

import "errors"

var (
	// ErrInvalidMessageLength is returned when a message digest handed to
	// a signer is not exactly 32 bytes.
	ErrInvalidMessageLength = errors.New("invalid message length")

	// ErrLengthMismatch is returned when serialized private key material
	// does not hold exactly one scalar per chunk.
	ErrLengthMismatch = errors.New("length mismatch")

	// ErrPublicKeyHashMismatch is returned when the public key hash
	// recomputed from private scalars differs from the expected one.
	ErrPublicKeyHashMismatch = errors.New("public key hash mismatch")

	// ErrEntropy is returned when the randomness source fails.
	ErrEntropy = errors.New("entropy source unavailable")
)
