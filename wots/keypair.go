package wots

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/quantumvault/qvault/hashutil"
	"github.com/quantumvault/qvault/vaulterr"
)

const (
	// ScalarSize is the size of a private scalar and of every commitment.
	ScalarSize = hashutil.Size

	// MessageSize is the size of the digests the signers accept.
	MessageSize = 32

	// KeypairChunks is the number of chunks of the preimage keypair.
	KeypairChunks = 32

	// KeypairChainLength is the number of hash applications between a
	// preimage keypair scalar and its commitment.
	KeypairChainLength = 256
)

// Scalar is a single 32 byte private value.
type Scalar [ScalarSize]byte

// Commitment is the end of a scalar's hash chain.
type Commitment [ScalarSize]byte

// String returns the hex encoding of the commitment.
func (c Commitment) String() string {
	return hex.EncodeToString(c[:])
}

// Keypair is the 32 chunk keypair backing the preimage reveal scheme. Each
// commitment sits 256 hashes away from its scalar and the public key hash
// commits to all of them.
type Keypair struct {
	// PrivateScalars are the secret chain starts, in chunk order.
	PrivateScalars [KeypairChunks]Scalar

	// PublicCommitments[i] is SHA256^256(PrivateScalars[i]).
	PublicCommitments [KeypairChunks]Commitment

	// PublicKeyHash is SHA256 over the concatenated commitments.
	PublicKeyHash [sha256.Size]byte
}

// GenerateKeypair draws KeypairChunks independent scalars from rand and
// derives the public side. A failing entropy source is fatal.
func GenerateKeypair(rand io.Reader) (*Keypair, error) {
	var scalars [KeypairChunks]Scalar
	if err := readScalars(rand, scalars[:]); err != nil {
		return nil, vaulterr.Wrap(
			vaulterr.KindFatal, "wots.GenerateKeypair", err,
			"unable to draw private scalars",
		)
	}

	kp := newKeypair(scalars)

	log.Debugf("Generated preimage keypair, public_key_hash=%x",
		kp.PublicKeyHash[:])

	return kp, nil
}

// RestoreKeypair rebuilds a keypair from its serialized scalars. All public
// values are recomputed; nothing stored alongside the scalars is trusted.
func RestoreKeypair(priv []byte) (*Keypair, error) {
	if len(priv) != KeypairChunks*ScalarSize {
		return nil, vaulterr.Wrap(
			vaulterr.KindValidation, "wots.RestoreKeypair",
			ErrLengthMismatch, "got %d bytes, want %d", len(priv),
			KeypairChunks*ScalarSize,
		)
	}

	var scalars [KeypairChunks]Scalar
	for i := range scalars {
		copy(scalars[i][:], priv[i*ScalarSize:])
	}

	return newKeypair(scalars), nil
}

func newKeypair(scalars [KeypairChunks]Scalar) *Keypair {
	kp := &Keypair{PrivateScalars: scalars}
	for i, s := range scalars {
		kp.PublicCommitments[i] = Commitment(
			hashutil.Chain32(s, KeypairChainLength),
		)
	}
	kp.PublicKeyHash = sha256.Sum256(kp.PublicKeyPreimage())

	return kp
}

// PublicKeyPreimage returns the concatenated commitments, the value whose
// SHA-256 is the public key hash.
func (k *Keypair) PublicKeyPreimage() []byte {
	return concatCommitments(k.PublicCommitments[:])
}

// Serialize returns the concatenated private scalars.
func (k *Keypair) Serialize() []byte {
	return concatScalars(k.PrivateScalars[:])
}

// Verify checks the public key hash against an expected value.
func (k *Keypair) Verify(expected [sha256.Size]byte) error {
	return verifyHash("wots.Keypair.Verify", k.PublicKeyHash, expected)
}

// Sign produces the spend data for the preimage scheme. The reveal does not
// depend on msg, which is only checked for length so that both keypair kinds
// share one calling convention.
func (k *Keypair) Sign(msg []byte) ([]byte, error) {
	if len(msg) != MessageSize {
		return nil, vaulterr.Wrap(
			vaulterr.KindValidation, "wots.Keypair.Sign",
			ErrInvalidMessageLength, "got %d bytes", len(msg),
		)
	}

	return k.PublicKeyPreimage(), nil
}

// Zero wipes the private scalars.
func (k *Keypair) Zero() {
	for i := range k.PrivateScalars {
		k.PrivateScalars[i] = Scalar{}
	}
}

func readScalars(rand io.Reader, scalars []Scalar) error {
	for i := range scalars {
		if _, err := io.ReadFull(rand, scalars[i][:]); err != nil {
			return fmt.Errorf("%w: %v", ErrEntropy, err)
		}
	}

	return nil
}

func concatScalars(scalars []Scalar) []byte {
	var b bytes.Buffer
	b.Grow(len(scalars) * ScalarSize)
	for i := range scalars {
		b.Write(scalars[i][:])
	}

	return b.Bytes()
}

func concatCommitments(commitments []Commitment) []byte {
	var b bytes.Buffer
	b.Grow(len(commitments) * ScalarSize)
	for i := range commitments {
		b.Write(commitments[i][:])
	}

	return b.Bytes()
}

func verifyHash(op string, got, expected [sha256.Size]byte) error {
	if got == expected {
		return nil
	}

	return vaulterr.Wrap(
		vaulterr.KindIntegrity, op, ErrPublicKeyHashMismatch,
		"recomputed %x, expected %x", got[:], expected[:],
	)
}
