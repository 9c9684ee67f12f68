package vscript

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/quantumvault/qvault/hashutil"
	"github.com/quantumvault/qvault/scriptvm"
	"github.com/quantumvault/qvault/sighash"
	"github.com/quantumvault/qvault/vaulterr"
	"github.com/quantumvault/qvault/wots"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const chunkVerifierSize = 88

func newWOTS16(t testing.TB) *wots.WOTS16Keypair {
	kp, err := wots.GenerateWOTS16(rand.Reader)
	require.NoError(t, err)

	return kp
}

func wotsParams(kp *wots.WOTS16Keypair) Params {
	return Params{
		Policy:      Policy{Scheme: SchemeWOTS16},
		Commitments: &kp.PublicCommitments,
	}
}

// spendTx returns a one input one output transaction together with the
// checker options evaluating its first input.
func spendTx(amount int64) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	prev := chainhash.DoubleHashH([]byte("funding"))
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prev, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(amount-500, []byte{txscript.OP_TRUE}))

	return tx
}

func evalOpts(tx *wire.MsgTx, amount int64) []scriptvm.Option {
	return []scriptvm.Option{
		scriptvm.WithTxContext(tx, 0),
		scriptvm.WithSigChecker(&sighash.TxChecker{
			Tx: tx, Index: 0, Amount: amount,
		}),
	}
}

// TestStandardLockingScript checks the 35 byte preimage tier layout and its
// end to end spend.
func TestStandardLockingScript(t *testing.T) {
	t.Parallel()

	kp, err := wots.GenerateKeypair(rand.Reader)
	require.NoError(t, err)

	params := Params{PublicKeyHash: kp.PublicKeyHash}
	lock, err := LockingScript(params)
	require.NoError(t, err)
	require.Len(t, lock, 35)
	require.Equal(t, byte(txscript.OP_SHA256), lock[0])
	require.Equal(t, byte(txscript.OP_DATA_32), lock[1])
	require.Equal(t, kp.PublicKeyHash[:], lock[2:34])
	require.Equal(t, byte(txscript.OP_EQUAL), lock[34])

	preimage, err := kp.Sign(make([]byte, 32))
	require.NoError(t, err)
	require.Len(t, preimage, 1024)
	require.Equal(t, kp.PublicKeyHash[:], hashutil.SHA256(preimage))

	unlock, err := UnlockingScript(Unlock{
		Scheme: SchemePreimage, Preimage: preimage,
	})
	require.NoError(t, err)
	require.Len(t, unlock, 1027)
	require.Equal(t, MaxUnlockingSize(params.Policy, len(lock)),
		len(unlock))

	require.NoError(t, scriptvm.Execute(unlock, lock))

	// A preimage of any other key is rejected.
	other, err := wots.GenerateKeypair(rand.Reader)
	require.NoError(t, err)
	unlock, err = UnlockingScript(Unlock{
		Scheme: SchemePreimage, Preimage: other.PublicKeyPreimage(),
	})
	require.NoError(t, err)
	require.ErrorIs(
		t, scriptvm.Execute(unlock, lock), scriptvm.ErrEvalFalse,
	)

	disasm, err := Disasm(lock)
	require.NoError(t, err)
	require.Equal(t, "OP_SHA256 "+hex.EncodeToString(
		kp.PublicKeyHash[:])+" OP_EQUAL", disasm)
}

func TestLockTimePrefix(t *testing.T) {
	t.Parallel()

	kp, err := wots.GenerateKeypair(rand.Reader)
	require.NoError(t, err)

	params := Params{
		Policy: Policy{
			Scheme:   SchemePreimage,
			LockTime: fn.Some(uint32(800_000)),
		},
		PublicKeyHash: kp.PublicKeyHash,
	}
	lock, err := LockingScript(params)
	require.NoError(t, err)

	// 800000 = 0x0c3500, a three byte script number.
	require.Equal(t, []byte{
		txscript.OP_DATA_3, 0x00, 0x35, 0x0c,
		txscript.OP_CHECKLOCKTIMEVERIFY, txscript.OP_DROP,
	}, lock[:6])
	require.Len(t, lock, 41)

	unlock, err := UnlockingScript(Unlock{
		Scheme: SchemePreimage, Preimage: kp.PublicKeyPreimage(),
	})
	require.NoError(t, err)

	tx := spendTx(10_000)
	tx.TxIn[0].Sequence = wire.MaxTxInSequenceNum - 1

	tx.LockTime = 799_999
	err = scriptvm.Execute(unlock, lock, evalOpts(tx, 10_000)...)
	require.ErrorIs(t, err, scriptvm.ErrLockTime)

	tx.LockTime = 800_000
	require.NoError(t, scriptvm.Execute(unlock, lock, evalOpts(tx, 10_000)...))
}

func TestWOTS16LockingScript(t *testing.T) {
	t.Parallel()

	kp := newWOTS16(t)
	lock, err := LockingScript(wotsParams(kp))
	require.NoError(t, err)
	require.Len(t, lock, wots.WOTS16Chunks*chunkVerifierSize)

	// Deterministic.
	again, err := LockingScript(wotsParams(kp))
	require.NoError(t, err)
	require.Equal(t, lock, again)

	// Every commitment is embedded in chunk order.
	for i, c := range kp.PublicCommitments {
		at := bytes.Index(lock, c[:])
		require.Equal(t, i*chunkVerifierSize+chunkVerifierSize-33, at)
	}

	// Only the last chunk ends in OP_EQUAL.
	require.Equal(t, byte(txscript.OP_EQUAL), lock[len(lock)-1])
	require.Equal(t, byte(txscript.OP_EQUALVERIFY),
		lock[chunkVerifierSize-1])
}

// TestWOTS16EndToEnd signs the double SHA-256 of "test-output" and evaluates
// the resulting unlocking script against the locking script.
func TestWOTS16EndToEnd(t *testing.T) {
	t.Parallel()

	kp := newWOTS16(t)
	lock, err := LockingScript(wotsParams(kp))
	require.NoError(t, err)

	msg := hashutil.DoubleSHA256([]byte("test-output"))
	sig, err := kp.Sign(msg)
	require.NoError(t, err)
	require.True(t, sig.Verify(msg, kp.PublicCommitments))

	unlock, err := UnlockingScript(Unlock{
		Scheme: SchemeWOTS16, Signature: sig,
	})
	require.NoError(t, err)
	require.Len(t, unlock, MaxUnlockingSize(Policy{Scheme: SchemeWOTS16}, 0))

	trace, err := scriptvm.Trace(unlock, lock)
	require.NoError(t, err, "trace tail: %v", trace[len(trace)-5:])
}

// TestVerifierHonesty asserts the on-chain verifier accepts exactly the
// chunk values the off-chain check accepts.
func TestVerifierHonesty(t *testing.T) {
	t.Parallel()

	kp := newWOTS16(t)
	lock, err := LockingScript(wotsParams(kp))
	require.NoError(t, err)

	rapid.Check(t, func(t *rapid.T) {
		msg := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "msg")
		sig, err := kp.Sign(msg)
		require.NoError(t, err)

		unlock, err := UnlockingScript(Unlock{
			Scheme: SchemeWOTS16, Signature: sig,
		})
		require.NoError(t, err)
		require.NoError(t, scriptvm.Execute(unlock, lock))

		// Tamper with one chunk: either its value or its remaining
		// count.
		i := rapid.IntRange(0, wots.WOTS16Chunks-1).Draw(t, "chunk")
		bad := *sig
		if rapid.Bool().Draw(t, "value") {
			bad.Chunks[i].Value[0] ^= 0x01
		} else {
			delta := rapid.IntRange(1, 15).Draw(t, "delta")
			r := (int(bad.Chunks[i].Remaining) + delta) % 16
			bad.Chunks[i].Remaining = uint8(r)
		}

		unlock, err = UnlockingScript(Unlock{
			Scheme: SchemeWOTS16, Signature: &bad,
		})
		require.NoError(t, err)
		require.Error(t, scriptvm.Execute(unlock, lock))
	})
}

// TestOutOfRangeRemaining pushes a remaining count above 15 directly,
// which the typed unlock API refuses to build.
func TestOutOfRangeRemaining(t *testing.T) {
	t.Parallel()

	kp := newWOTS16(t)
	lock, err := LockingScript(wotsParams(kp))
	require.NoError(t, err)

	msg := make([]byte, 32)
	sig, err := kp.Sign(msg)
	require.NoError(t, err)

	bad := *sig
	bad.Chunks[0].Remaining = 16
	_, err = UnlockingScript(Unlock{Scheme: SchemeWOTS16, Signature: &bad})
	require.ErrorIs(t, err, ErrInvalidUnlock)
	require.ErrorIs(t, err, vaulterr.ErrValidation)

	for _, remaining := range []int64{16, 31, -1} {
		prog := &Program{}
		for i := wots.WOTS16Chunks - 1; i >= 0; i-- {
			c := sig.Chunks[i]
			r := int64(c.Remaining)
			if i == 0 {
				r = remaining
			}
			prog.Emit(PushNum(r), PushData(c.Value[:]))
		}
		unlock, err := prog.Script()
		require.NoError(t, err)

		require.Error(t, scriptvm.Execute(unlock, lock), "%d",
			remaining)
	}
}

func TestCovenantSpend(t *testing.T) {
	t.Parallel()

	const amount = 100_000

	ephemeral, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	wotsKey := newWOTS16(t)
	preimageKey, err := wots.GenerateKeypair(rand.Reader)
	require.NoError(t, err)

	policies := []Params{
		{
			Policy:        Policy{Covenant: true},
			PublicKeyHash: preimageKey.PublicKeyHash,
		},
		{
			Policy: Policy{
				Scheme: SchemeWOTS16, Covenant: true,
			},
			Commitments: &wotsKey.PublicCommitments,
		},
	}

	for _, params := range policies {
		params.CovenantKey = ephemeral.PubKey()

		lock, err := LockingScript(params)
		require.NoError(t, err)

		tx := spendTx(amount)
		preimage, err := sighash.Preimage(
			tx, 0, lock, amount, sighash.SigHashAllForkID,
		)
		require.NoError(t, err)
		covSig := sighash.Sign(
			ephemeral, sighash.Digest(preimage),
			sighash.SigHashAllForkID,
		)

		u := Unlock{
			Scheme:          params.Scheme,
			CovenantSig:     covSig,
			SighashPreimage: preimage,
		}
		switch params.Scheme {
		case SchemePreimage:
			u.Preimage = preimageKey.PublicKeyPreimage()

		case SchemeWOTS16:
			hashOutputs, err := sighash.HashOutputs(tx.TxOut)
			require.NoError(t, err)
			u.Signature, err = wotsKey.Sign(hashOutputs[:])
			require.NoError(t, err)
		}

		unlock, err := UnlockingScript(u)
		require.NoError(t, err)
		require.LessOrEqual(
			t, len(unlock), MaxUnlockingSize(params.Policy, len(lock)),
		)

		require.NoError(t, scriptvm.Execute(
			unlock, lock, evalOpts(tx, amount)...,
		), params.Policy.String())

		// Redirecting the output invalidates the covenant signature.
		tx.TxOut[0].PkScript = []byte{txscript.OP_FALSE}
		err = scriptvm.Execute(unlock, lock, evalOpts(tx, amount)...)
		require.ErrorIs(t, err, scriptvm.ErrEvalFalse)
	}
}

func TestParamsValidation(t *testing.T) {
	t.Parallel()

	_, err := LockingScript(Params{Policy: Policy{Scheme: SchemeWOTS16}})
	require.ErrorIs(t, err, ErrMissingCommitments)
	require.ErrorIs(t, err, vaulterr.ErrValidation)

	_, err = LockingScript(Params{Policy: Policy{Covenant: true}})
	require.ErrorIs(t, err, ErrMissingCovenantKey)

	_, err = LockingScript(Params{Policy: Policy{Scheme: 9}})
	require.ErrorIs(t, err, ErrUnknownScheme)

	_, err = UnlockingScript(Unlock{Scheme: SchemePreimage})
	require.ErrorIs(t, err, ErrInvalidUnlock)

	_, err = UnlockingScript(Unlock{
		Scheme: SchemePreimage, Preimage: []byte{1},
		CovenantSig: []byte{1},
	})
	require.ErrorIs(t, err, ErrInvalidUnlock)

	_, err = UnlockingScript(Unlock{Scheme: SchemeWOTS16})
	require.ErrorIs(t, err, ErrInvalidUnlock)
}

func TestSchemeString(t *testing.T) {
	t.Parallel()

	for _, s := range []Scheme{SchemePreimage, SchemeWOTS16} {
		parsed, err := ParseScheme(s.String())
		require.NoError(t, err)
		require.Equal(t, s, parsed)
	}

	_, err := ParseScheme("p2pkh")
	require.ErrorIs(t, err, ErrUnknownScheme)

	p := Policy{
		Scheme: SchemeWOTS16, Covenant: true,
		LockTime: fn.Some(uint32(10)),
	}
	require.Equal(t, "wots16+covenant+cltv(10)", p.String())
}
