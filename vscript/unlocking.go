package vscript

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/quantumvault/qvault/sighash"
	"github.com/quantumvault/qvault/vaulterr"
	"github.com/quantumvault/qvault/wots"
)

const (
	// maxCovenantSigSize is a high-S-free DER signature of 72 bytes plus
	// the hash type byte.
	maxCovenantSigSize = 73

	// preimageRevealSize is the public key preimage of the 32 chunk
	// keypair.
	preimageRevealSize = wots.KeypairChunks * wots.ScalarSize

	// sighashFixedSize is the sighash preimage without its script code.
	sighashFixedSize = sighash.MinPreimageSize - 2
)

// Unlock is the data satisfying a locking script.
type Unlock struct {
	// Scheme must match the scheme of the locking script.
	Scheme Scheme

	// Preimage is the revealed public key preimage for SchemePreimage.
	Preimage []byte

	// Signature is the WOTS-16 signature for SchemeWOTS16.
	Signature *wots.Signature

	// CovenantSig and SighashPreimage satisfy the covenant clause. Both
	// are nil when the policy has no covenant.
	CovenantSig     []byte
	SighashPreimage []byte
}

func (u *Unlock) validate() error {
	if (u.CovenantSig == nil) != (u.SighashPreimage == nil) {
		return fmt.Errorf("%w: covenant signature and sighash "+
			"preimage must be given together", ErrInvalidUnlock)
	}

	switch u.Scheme {
	case SchemePreimage:
		if len(u.Preimage) == 0 || u.Signature != nil {
			return fmt.Errorf("%w: preimage scheme needs exactly a "+
				"preimage", ErrInvalidUnlock)
		}

	case SchemeWOTS16:
		if u.Signature == nil || u.Preimage != nil {
			return fmt.Errorf("%w: wots16 scheme needs exactly a "+
				"signature", ErrInvalidUnlock)
		}
		for i, c := range u.Signature.Chunks {
			if c.Remaining > wots.MaxNibble {
				return fmt.Errorf("%w: chunk %d remaining %d",
					ErrInvalidUnlock, i, c.Remaining)
			}
		}

	default:
		return fmt.Errorf("%w: %d", ErrUnknownScheme, u.Scheme)
	}

	return nil
}

// UnlockingProgram returns the push-only instructions of the unlocking
// script. The covenant data is pushed first so the hash scheme's items end
// up on top of the stack; WOTS-16 chunks are pushed last to first so chunk 0
// is on top, each as its remaining count followed by its value.
func UnlockingProgram(u Unlock) (*Program, error) {
	if err := u.validate(); err != nil {
		return nil, err
	}

	prog := &Program{}
	if u.CovenantSig != nil {
		prog.Emit(PushData(u.CovenantSig), PushData(u.SighashPreimage))
	}

	switch u.Scheme {
	case SchemePreimage:
		prog.Emit(PushData(u.Preimage))

	case SchemeWOTS16:
		for i := wots.WOTS16Chunks - 1; i >= 0; i-- {
			c := u.Signature.Chunks[i]
			prog.Emit(PushNum(c.Remaining), PushData(c.Value[:]))
		}
	}

	return prog, nil
}

// UnlockingScript serializes the unlocking script for u.
func UnlockingScript(u Unlock) ([]byte, error) {
	const op = "vscript.UnlockingScript"

	prog, err := UnlockingProgram(u)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindValidation, op, err,
			"scheme %v", u.Scheme)
	}

	// The unlocking script of the covenant tier carries the whole
	// sighash preimage which in turn embeds the locking script, so it
	// is assembled without the builder's standardness size cap.
	script := make([]byte, 0, 4096)
	for _, ins := range prog.Instructions() {
		b := txscript.NewScriptBuilder()
		ins.encode(b)

		raw, err := b.Script()
		if err != nil {
			return nil, vaulterr.Wrap(vaulterr.KindValidation, op,
				err, "unable to encode %v", ins)
		}
		script = append(script, raw...)
	}

	return script, nil
}

// pushSize is the serialized size of a data push of n bytes.
func pushSize(n int) int {
	switch {
	case n <= txscript.OP_DATA_75:
		return 1 + n
	case n <= 0xff:
		return 2 + n
	case n <= 0xffff:
		return 3 + n
	default:
		return 5 + n
	}
}

// MaxUnlockingSize returns the largest unlocking script any spend of a
// locking script of lockingLen bytes under policy can produce. Fees are
// sized against it.
func MaxUnlockingSize(policy Policy, lockingLen int) int {
	size := 0
	if policy.Covenant {
		preimageLen := sighashFixedSize +
			wire.VarIntSerializeSize(uint64(lockingLen)) + lockingLen

		size += pushSize(maxCovenantSigSize) + pushSize(preimageLen)
	}

	switch policy.Scheme {
	case SchemePreimage:
		size += pushSize(preimageRevealSize)

	case SchemeWOTS16:
		// A small integer opcode and a 32 byte push per chunk.
		size += wots.WOTS16Chunks * (1 + pushSize(wots.ScalarSize))
	}

	return size
}
