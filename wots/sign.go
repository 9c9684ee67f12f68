package wots

import (
	"github.com/quantumvault/qvault/hashutil"
	"github.com/quantumvault/qvault/vaulterr"
)

// Chunk is the revealed state of one hash chain.
type Chunk struct {
	// Value is SHA256^Iterations(scalar).
	Value [ScalarSize]byte

	// Iterations is the nibble d the chain was advanced by.
	Iterations uint8

	// Remaining is 15-d, the number of hashes a verifier still applies to
	// reach the commitment.
	Remaining uint8
}

// Signature is a WOTS-16 one-time signature over a 32 byte digest.
type Signature struct {
	Chunks [WOTS16Chunks]Chunk
}

// Nibbles decomposes a 32 byte digest into the 68 chain positions signed by
// WOTS-16: the 64 message nibbles, high nibble first within each byte and
// bytes in order, followed by the 4 checksum nibbles, least significant
// first.
func Nibbles(msg []byte) ([WOTS16Chunks]uint8, error) {
	var out [WOTS16Chunks]uint8
	if len(msg) != MessageSize {
		return out, vaulterr.Wrap(
			vaulterr.KindValidation, "wots.Nibbles",
			ErrInvalidMessageLength, "got %d bytes", len(msg),
		)
	}

	for i, b := range msg {
		out[2*i] = b >> 4
		out[2*i+1] = b & 0x0f
	}

	csum := checksum(out[:MessageNibbles])
	for i := 0; i < ChecksumNibbles; i++ {
		out[MessageNibbles+i] = uint8(csum>>(4*i)) & 0x0f
	}

	return out, nil
}

// Checksum returns the WOTS-16 checksum of the 64 message nibbles of msg.
func Checksum(msg []byte) (uint16, error) {
	nibbles, err := Nibbles(msg)
	if err != nil {
		return 0, err
	}

	return checksum(nibbles[:MessageNibbles]), nil
}

// checksum sums 15-n over the nibbles. The accumulator is 16 bits wide and
// wraps: only four checksum nibbles are committed to.
func checksum(nibbles []uint8) uint16 {
	var sum uint16
	for _, n := range nibbles {
		sum += uint16(MaxNibble - n)
	}

	return sum
}

// Sign produces the one-time signature of msg. Signing is deterministic.
// A keypair must never sign two distinct messages.
func (k *WOTS16Keypair) Sign(msg []byte) (*Signature, error) {
	nibbles, err := Nibbles(msg)
	if err != nil {
		return nil, err
	}

	sig := &Signature{}
	for i, d := range nibbles {
		sig.Chunks[i] = Chunk{
			Value:      hashutil.Chain32(k.PrivateScalars[i], int(d)),
			Iterations: d,
			Remaining:  MaxNibble - d,
		}
	}

	log.Tracef("Signed digest %x with WOTS-16 key %x", msg,
		k.PublicKeyHash[:])

	return sig, nil
}

// Verify recomputes the chain ends from the signature and compares them with
// the commitments. It mirrors what the on-chain verifier checks and also
// re-derives the nibbles from msg, so a signature is only accepted for the
// message it was produced over.
func (s *Signature) Verify(msg []byte,
	commitments [WOTS16Chunks]Commitment) bool {

	nibbles, err := Nibbles(msg)
	if err != nil {
		return false
	}

	for i, c := range s.Chunks {
		if c.Iterations != nibbles[i] ||
			int(c.Iterations)+int(c.Remaining) != MaxNibble {

			return false
		}

		end := hashutil.Chain32(c.Value, int(c.Remaining))
		if Commitment(end) != commitments[i] {
			return false
		}
	}

	return true
}
