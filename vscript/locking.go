package vscript

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/quantumvault/qvault/sighash"
	"github.com/quantumvault/qvault/vaulterr"
	"github.com/quantumvault/qvault/wots"
)

// nibbleBits are the powers of two a remaining count is decomposed into.
var nibbleBits = [...]int64{8, 4, 2, 1}

// LockingScript synthesizes the locking script for params. The output is a
// pure function of its input.
func LockingScript(params Params) ([]byte, error) {
	const op = "vscript.LockingScript"

	prog, err := LockingProgram(params)
	if err != nil {
		return nil, vaulterr.Wrap(
			vaulterr.KindValidation, op, err, "policy %v",
			params.Policy,
		)
	}

	script, err := prog.Script()
	if err != nil {
		return nil, vaulterr.Wrap(
			vaulterr.KindValidation, op, err, "unable to serialize",
		)
	}

	log.Debugf("Synthesized %v locking script (%d bytes)", params.Policy,
		len(script))

	return script, nil
}

// LockingProgram returns the typed instructions of the locking script.
func LockingProgram(params Params) (*Program, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	prog := &Program{}

	params.LockTime.WhenSome(func(lt uint32) {
		prog.Emit(PushNum(lt), OpCheckLockTimeVerify, OpDrop)
	})

	switch params.Scheme {
	case SchemePreimage:
		final := OpEqual
		if params.Covenant {
			final = OpEqualVerify
		}
		prog.Emit(
			OpSHA256, PushData(params.PublicKeyHash[:]), final,
		)

	case SchemeWOTS16:
		for i, c := range params.Commitments {
			last := i == wots.WOTS16Chunks-1 && !params.Covenant
			prog.Append(chunkVerifier(c, last))
		}
	}

	if params.Covenant {
		prog.Append(covenantClause(params))
	}

	return prog, nil
}

// chunkVerifier checks one chain. It expects the chunk's remaining count
// under its revealed value on the stack, hashes the value forward once per
// unit of remaining by testing each bit of the count, and then requires the
// count to have reached exactly zero. A count above 15 can never reach zero,
// so out of range reveals fail.
func chunkVerifier(commitment wots.Commitment, last bool) *Program {
	prog := &Program{}
	prog.Emit(OpSwap)

	for _, k := range nibbleBits {
		prog.Emit(OpDup, PushNum(k), OpGreaterThanOrEqual, OpIf)
		prog.Emit(PushNum(k), OpSub, OpSwap)
		prog.Repeat(OpSHA256, int(k))
		prog.Emit(OpSwap, OpEndIf)
	}

	prog.Emit(OpNot, OpVerify, PushData(commitment[:]))

	if last {
		prog.Emit(OpEqual)
	} else {
		prog.Emit(OpEqualVerify)
	}

	return prog
}

// covenantClause requires a sighash preimage sized push and a signature by
// the vault's ephemeral key over the spending transaction.
func covenantClause(params Params) *Program {
	prog := &Program{}

	return prog.Emit(
		OpSize, PushNum(sighash.MinPreimageSize), OpGreaterThanOrEqual,
		OpVerify, OpDrop,
		PushData(params.CovenantKey.SerializeCompressed()), OpCheckSig,
	)
}

// Disasm returns the one line disassembly of a script.
func Disasm(script []byte) (string, error) {
	return txscript.DisasmString(script)
}
