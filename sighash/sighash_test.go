package sighash

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/quantumvault/qvault/vaulterr"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var testScript = []byte{
	txscript.OP_SHA256, txscript.OP_DATA_1, 0x01, txscript.OP_EQUAL,
}

func testTx(numInputs int) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	for i := 0; i < numInputs; i++ {
		prev := chainhash.DoubleHashH([]byte{byte(i)})
		in := wire.NewTxIn(wire.NewOutPoint(&prev, uint32(i)), nil, nil)
		in.Sequence = wire.MaxTxInSequenceNum - uint32(i)
		tx.AddTxIn(in)
	}
	tx.AddTxOut(wire.NewTxOut(90_000, []byte{txscript.OP_TRUE}))
	tx.LockTime = 800_000

	return tx
}

// TestPreimageMatchesTxscript asserts the preimage hashes to the same digest
// btcd computes for the BIP143 layout.
func TestPreimageMatchesTxscript(t *testing.T) {
	t.Parallel()

	tx := testTx(3)
	const amount = 100_000

	fetcher := txscript.NewCannedPrevOutputFetcher(testScript, amount)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	for idx := range tx.TxIn {
		preimage, err := Preimage(
			tx, idx, testScript, amount, SigHashAllForkID,
		)
		require.NoError(t, err)

		want, err := txscript.CalcWitnessSigHash(
			testScript, sigHashes, SigHashAllForkID, tx, idx,
			amount,
		)
		require.NoError(t, err)

		digest := Digest(preimage)
		require.Equal(t, want, digest[:], "input %d", idx)
	}
}

// TestPreimageLayout checks the fixed size fields land where a script
// inspecting the preimage expects them.
func TestPreimageLayout(t *testing.T) {
	t.Parallel()

	tx := testTx(1)
	preimage, err := Preimage(tx, 0, testScript, 1234, SigHashAllForkID)
	require.NoError(t, err)
	require.Len(t, preimage, MinPreimageSize+len(testScript)-1)

	require.Equal(t, uint32(2), binary.LittleEndian.Uint32(preimage[:4]))

	n := len(preimage)
	require.Equal(
		t, uint32(SigHashAllForkID),
		binary.LittleEndian.Uint32(preimage[n-4:]),
	)
	require.Equal(
		t, tx.LockTime, binary.LittleEndian.Uint32(preimage[n-8:n-4]),
	)

	hashOutputs, err := HashOutputs(tx.TxOut)
	require.NoError(t, err)
	require.Equal(t, hashOutputs[:], preimage[n-40:n-8])

	scriptStart := 4 + 32 + 32 + 36
	require.Equal(t, byte(len(testScript)), preimage[scriptStart])
	require.True(t, bytes.Equal(
		testScript,
		preimage[scriptStart+1:scriptStart+1+len(testScript)],
	))
}

// TestHashOutputsIndependentOfInputs asserts the output commitment only
// depends on the outputs, so every input of a spend shares it.
func TestHashOutputsIndependentOfInputs(t *testing.T) {
	t.Parallel()

	a, b := testTx(1), testTx(4)
	ha, err := HashOutputs(a.TxOut)
	require.NoError(t, err)
	hb, err := HashOutputs(b.TxOut)
	require.NoError(t, err)
	require.Equal(t, ha, hb)

	b.TxOut[0].Value--
	hb, err = HashOutputs(b.TxOut)
	require.NoError(t, err)
	require.NotEqual(t, ha, hb)
}

func TestPreimageErrors(t *testing.T) {
	t.Parallel()

	tx := testTx(1)

	_, err := Preimage(tx, 1, testScript, 1, SigHashAllForkID)
	require.ErrorIs(t, err, ErrInputIndex)
	require.ErrorIs(t, err, vaulterr.ErrValidation)

	_, err = Preimage(tx, -1, testScript, 1, SigHashAllForkID)
	require.ErrorIs(t, err, ErrInputIndex)

	for _, ht := range []txscript.SigHashType{
		txscript.SigHashNone | SigHashForkID,
		txscript.SigHashSingle | SigHashForkID,
		SigHashAllForkID | txscript.SigHashAnyOneCanPay,
	} {
		_, err = Preimage(tx, 0, testScript, 1, ht)
		require.ErrorIs(t, err, ErrUnsupportedHashType)
	}

	_, err = Preimage(tx, 0, testScript, 1, txscript.SigHashAll)
	require.NoError(t, err)
}

// TestSignVerify exercises the ECDSA round trip over random digests.
func TestSignVerify(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "key")
		priv, pub := btcec.PrivKeyFromBytes(seed)
		if priv.Key.IsZero() {
			t.Skip("zero key")
		}

		msg := rapid.SliceOfN(rapid.Byte(), 1, 64).Draw(t, "msg")
		digest := chainhash.DoubleHashH(msg)

		sig := Sign(priv, digest, SigHashAllForkID)
		ht, ok := VerifySignature(pub, sig, digest)
		require.True(t, ok)
		require.Equal(t, SigHashAllForkID, ht)

		other := chainhash.DoubleHashH(append(msg, 0))
		_, ok = VerifySignature(pub, sig, other)
		require.False(t, ok)
	})
}

func TestTxChecker(t *testing.T) {
	t.Parallel()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pubKey := priv.PubKey().SerializeCompressed()

	tx := testTx(2)
	const amount = 50_000

	preimage, err := Preimage(tx, 1, testScript, amount, SigHashAllForkID)
	require.NoError(t, err)
	sig := Sign(priv, Digest(preimage), SigHashAllForkID)

	checker := &TxChecker{Tx: tx, Index: 1, Amount: amount}
	ok, err := checker.CheckSig(sig, pubKey, testScript)
	require.NoError(t, err)
	require.True(t, ok)

	// The signature is bound to the input.
	other := &TxChecker{Tx: tx, Index: 0, Amount: amount}
	ok, err = other.CheckSig(sig, pubKey, testScript)
	require.NoError(t, err)
	require.False(t, ok)

	// And to the outputs.
	tx.TxOut[0].Value = 1
	ok, err = checker.CheckSig(sig, pubKey, testScript)
	require.NoError(t, err)
	require.False(t, ok)

	// Garbage fails the check without an error.
	ok, err = checker.CheckSig([]byte{0x30, 0x41}, pubKey, testScript)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = checker.CheckSig(sig, []byte{0x02}, testScript)
	require.NoError(t, err)
	require.False(t, ok)
}
