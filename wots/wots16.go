package wots

import (
	"crypto/sha256"
	"io"

	"github.com/quantumvault/qvault/hashutil"
	"github.com/quantumvault/qvault/vaulterr"
)

const (
	// NibbleBase is the Winternitz parameter w of WOTS-16.
	NibbleBase = 16

	// MaxNibble is the largest nibble value and the length of each
	// WOTS-16 hash chain.
	MaxNibble = NibbleBase - 1

	// MessageNibbles is the number of nibbles in a 32 byte digest.
	MessageNibbles = MessageSize * 2

	// ChecksumNibbles is the number of nibbles encoding the checksum.
	ChecksumNibbles = 4

	// WOTS16Chunks is the total number of chains of a WOTS-16 keypair.
	WOTS16Chunks = MessageNibbles + ChecksumNibbles
)

// WOTS16Keypair is a Winternitz keypair with w=16 over 68 chains: 64 message
// nibbles and 4 checksum nibbles. Each commitment is exactly 15 hashes from
// its scalar; a verifier applies the remaining 15-d hashes to a revealed
// chain value at position d.
type WOTS16Keypair struct {
	// PrivateScalars are the secret chain starts, in chunk order.
	PrivateScalars [WOTS16Chunks]Scalar

	// PublicCommitments[i] is SHA256^15(PrivateScalars[i]).
	PublicCommitments [WOTS16Chunks]Commitment

	// PublicKeyHash is SHA256 over the concatenated commitments.
	PublicKeyHash [sha256.Size]byte
}

// GenerateWOTS16 draws WOTS16Chunks independent scalars from rand and derives
// the public side. A failing entropy source is fatal.
func GenerateWOTS16(rand io.Reader) (*WOTS16Keypair, error) {
	var scalars [WOTS16Chunks]Scalar
	if err := readScalars(rand, scalars[:]); err != nil {
		return nil, vaulterr.Wrap(
			vaulterr.KindFatal, "wots.GenerateWOTS16", err,
			"unable to draw private scalars",
		)
	}

	kp := newWOTS16(scalars)

	log.Debugf("Generated WOTS-16 keypair, public_key_hash=%x",
		kp.PublicKeyHash[:])

	return kp, nil
}

// RestoreWOTS16 rebuilds a WOTS-16 keypair from its serialized scalars,
// recomputing every commitment and the public key hash.
func RestoreWOTS16(priv []byte) (*WOTS16Keypair, error) {
	if len(priv) != WOTS16Chunks*ScalarSize {
		return nil, vaulterr.Wrap(
			vaulterr.KindValidation, "wots.RestoreWOTS16",
			ErrLengthMismatch, "got %d bytes, want %d", len(priv),
			WOTS16Chunks*ScalarSize,
		)
	}

	var scalars [WOTS16Chunks]Scalar
	for i := range scalars {
		copy(scalars[i][:], priv[i*ScalarSize:])
	}

	return newWOTS16(scalars), nil
}

func newWOTS16(scalars [WOTS16Chunks]Scalar) *WOTS16Keypair {
	kp := &WOTS16Keypair{PrivateScalars: scalars}
	for i, s := range scalars {
		kp.PublicCommitments[i] = Commitment(
			hashutil.Chain32(s, MaxNibble),
		)
	}
	kp.PublicKeyHash = sha256.Sum256(kp.PublicKeyPreimage())

	return kp
}

// PublicKeyPreimage returns the concatenated commitments.
func (k *WOTS16Keypair) PublicKeyPreimage() []byte {
	return concatCommitments(k.PublicCommitments[:])
}

// Serialize returns the concatenated private scalars.
func (k *WOTS16Keypair) Serialize() []byte {
	return concatScalars(k.PrivateScalars[:])
}

// Verify checks the public key hash against an expected value.
func (k *WOTS16Keypair) Verify(expected [sha256.Size]byte) error {
	return verifyHash("wots.WOTS16Keypair.Verify", k.PublicKeyHash, expected)
}

// Zero wipes the private scalars.
func (k *WOTS16Keypair) Zero() {
	for i := range k.PrivateScalars {
		k.PrivateScalars[i] = Scalar{}
	}
}
