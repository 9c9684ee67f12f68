// Package sighash builds the signature hash preimage that both the covenant
// clause and the WOTS-16 output commitment are computed over. The layout is
// the BIP143 one used with SIGHASH_ALL|FORKID on the target ledger.
package sighash

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/quantumvault/qvault/vaulterr"
)

const (
	// SigHashForkID is the replay protection flag of the target ledger.
	SigHashForkID txscript.SigHashType = 0x40

	// SigHashAllForkID commits to every input and output.
	SigHashAllForkID = txscript.SigHashAll | SigHashForkID

	// sigHashMask extracts the base type from a hash type.
	sigHashMask = 0x1f

	// MinPreimageSize is the size of a preimage with a one byte script
	// code: version, hashPrevouts, hashSequence, outpoint, the script
	// code's length prefix and its byte, value, sequence, hashOutputs,
	// lock time and hash type.
	MinPreimageSize = 4 + 32 + 32 + 36 + 1 + 1 + 8 + 4 + 32 + 4 + 4
)

var (
	// ErrInputIndex is returned when the input index is out of range.
	ErrInputIndex = errors.New("input index out of range")

	// ErrUnsupportedHashType is returned for any hash type other than
	// SIGHASH_ALL, with or without the fork id flag.
	ErrUnsupportedHashType = errors.New("unsupported sighash type")
)

// HashPrevouts is the double SHA-256 of every input's outpoint.
func HashPrevouts(tx *wire.MsgTx) chainhash.Hash {
	var b bytes.Buffer
	for _, in := range tx.TxIn {
		b.Write(in.PreviousOutPoint.Hash[:])

		var idx [4]byte
		binary.LittleEndian.PutUint32(idx[:], in.PreviousOutPoint.Index)
		b.Write(idx[:])
	}

	return chainhash.DoubleHashH(b.Bytes())
}

// HashSequence is the double SHA-256 of every input's sequence number.
func HashSequence(tx *wire.MsgTx) chainhash.Hash {
	var b bytes.Buffer
	for _, in := range tx.TxIn {
		var seq [4]byte
		binary.LittleEndian.PutUint32(seq[:], in.Sequence)
		b.Write(seq[:])
	}

	return chainhash.DoubleHashH(b.Bytes())
}

// HashOutputs is the double SHA-256 of the serialized outputs. It is the same
// for every input of a transaction, which is why it is what the one-time
// WOTS-16 key signs.
func HashOutputs(outs []*wire.TxOut) (chainhash.Hash, error) {
	var b bytes.Buffer
	for _, out := range outs {
		if err := wire.WriteTxOut(&b, 0, 0, out); err != nil {
			return chainhash.Hash{}, err
		}
	}

	return chainhash.DoubleHashH(b.Bytes()), nil
}

// Preimage serializes the signature hash preimage of input idx spending an
// output of the given amount locked by scriptCode.
func Preimage(tx *wire.MsgTx, idx int, scriptCode []byte, amount int64,
	hashType txscript.SigHashType) ([]byte, error) {

	const op = "sighash.Preimage"

	if idx < 0 || idx >= len(tx.TxIn) {
		return nil, vaulterr.Wrap(
			vaulterr.KindValidation, op, ErrInputIndex,
			"index %d, %d inputs", idx, len(tx.TxIn),
		)
	}
	if hashType&sigHashMask != txscript.SigHashAll ||
		hashType&txscript.SigHashAnyOneCanPay != 0 {

		return nil, vaulterr.Wrap(
			vaulterr.KindValidation, op, ErrUnsupportedHashType,
			"0x%02x", uint32(hashType),
		)
	}

	hashOutputs, err := HashOutputs(tx.TxOut)
	if err != nil {
		return nil, vaulterr.Wrap(
			vaulterr.KindValidation, op, err, "unable to serialize "+
				"outputs",
		)
	}

	var (
		b    bytes.Buffer
		u32  [4]byte
		u64  [8]byte
		txIn = tx.TxIn[idx]
	)

	binary.LittleEndian.PutUint32(u32[:], uint32(tx.Version))
	b.Write(u32[:])

	prevouts := HashPrevouts(tx)
	b.Write(prevouts[:])

	sequences := HashSequence(tx)
	b.Write(sequences[:])

	b.Write(txIn.PreviousOutPoint.Hash[:])
	binary.LittleEndian.PutUint32(u32[:], txIn.PreviousOutPoint.Index)
	b.Write(u32[:])

	if err := wire.WriteVarBytes(&b, 0, scriptCode); err != nil {
		return nil, err
	}

	binary.LittleEndian.PutUint64(u64[:], uint64(amount))
	b.Write(u64[:])

	binary.LittleEndian.PutUint32(u32[:], txIn.Sequence)
	b.Write(u32[:])

	b.Write(hashOutputs[:])

	binary.LittleEndian.PutUint32(u32[:], tx.LockTime)
	b.Write(u32[:])

	binary.LittleEndian.PutUint32(u32[:], uint32(hashType))
	b.Write(u32[:])

	log.Tracef("Built sighash preimage for input %d (%d bytes)", idx,
		b.Len())

	return b.Bytes(), nil
}

// Digest returns the double SHA-256 of a preimage, the message an ECDSA
// signature over the input commits to.
func Digest(preimage []byte) chainhash.Hash {
	return chainhash.DoubleHashH(preimage)
}

// Sign produces a DER encoded ECDSA signature over digest with the hash type
// byte appended.
func Sign(priv *btcec.PrivateKey, digest chainhash.Hash,
	hashType txscript.SigHashType) []byte {

	sig := ecdsa.Sign(priv, digest[:])

	return append(sig.Serialize(), byte(hashType))
}

// VerifySignature checks a signature produced by Sign against digest. The
// hash type byte is stripped and returned.
func VerifySignature(pub *btcec.PublicKey, sig []byte,
	digest chainhash.Hash) (txscript.SigHashType, bool) {

	if len(sig) < 2 {
		return 0, false
	}

	hashType := txscript.SigHashType(sig[len(sig)-1])
	parsed, err := ecdsa.ParseDERSignature(sig[:len(sig)-1])
	if err != nil {
		return hashType, false
	}

	return hashType, parsed.Verify(digest[:], pub)
}

// TxChecker checks signatures against the signature hash of one input of a
// transaction.
type TxChecker struct {
	Tx     *wire.MsgTx
	Index  int
	Amount int64
}

// CheckSig reports whether sig is a valid signature by pubKey over the
// signature hash of the checker's input with scriptCode as the spent
// script. Malformed keys and unsupported hash types fail the check rather
// than the evaluation.
func (c *TxChecker) CheckSig(sig, pubKey, scriptCode []byte) (bool, error) {
	if len(sig) == 0 {
		return false, nil
	}

	pub, err := btcec.ParsePubKey(pubKey)
	if err != nil {
		return false, nil
	}

	hashType := txscript.SigHashType(sig[len(sig)-1])
	preimage, err := Preimage(c.Tx, c.Index, scriptCode, c.Amount, hashType)
	switch {
	case errors.Is(err, ErrUnsupportedHashType):
		return false, nil

	case err != nil:
		return false, fmt.Errorf("unable to compute sighash: %w", err)
	}

	_, ok := VerifySignature(pub, sig, Digest(preimage))

	return ok, nil
}
