package vscript

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/txscript"
)

// Category groups opcodes by what they do to the evaluation stack.
type Category uint8

const (
	CategoryPushData Category = iota
	CategoryPushNum
	CategoryFlow
	CategoryArith
	CategoryHash
	CategoryEquality
	CategoryStack
	CategoryCrypto
	CategoryLocktime
)

// Instruction is a single typed script element. Only the types declared in
// this file implement it, so a Program can never hold a raw byte that is not
// a known opcode.
type Instruction interface {
	// Category returns the instruction's opcode category.
	Category() Category

	// String returns the disassembled form of the instruction.
	String() string

	encode(b *txscript.ScriptBuilder)
}

// PushData pushes an arbitrary byte string with minimal encoding.
type PushData []byte

// PushNum pushes a script number with minimal encoding.
type PushNum int64

// FlowOp is a conditional or verify opcode.
type FlowOp byte

// ArithOp is a numeric opcode.
type ArithOp byte

// HashOp is a hashing opcode.
type HashOp byte

// EqualityOp compares the two top stack items.
type EqualityOp byte

// StackOp rearranges stack items.
type StackOp byte

// CryptoOp checks an elliptic curve signature.
type CryptoOp byte

// LocktimeOp checks the spending transaction's lock time.
type LocktimeOp byte

const (
	OpIf     FlowOp = txscript.OP_IF
	OpNotIf  FlowOp = txscript.OP_NOTIF
	OpElse   FlowOp = txscript.OP_ELSE
	OpEndIf  FlowOp = txscript.OP_ENDIF
	OpVerify FlowOp = txscript.OP_VERIFY

	OpAdd                ArithOp = txscript.OP_ADD
	OpSub                ArithOp = txscript.OP_SUB
	OpMul                ArithOp = txscript.OP_MUL
	OpDiv                ArithOp = txscript.OP_DIV
	OpMod                ArithOp = txscript.OP_MOD
	OpNot                ArithOp = txscript.OP_NOT
	Op0NotEqual          ArithOp = txscript.OP_0NOTEQUAL
	OpLessThan           ArithOp = txscript.OP_LESSTHAN
	OpGreaterThanOrEqual ArithOp = txscript.OP_GREATERTHANOREQUAL

	OpSHA256  HashOp = txscript.OP_SHA256
	OpHash160 HashOp = txscript.OP_HASH160
	OpHash256 HashOp = txscript.OP_HASH256

	OpEqual       EqualityOp = txscript.OP_EQUAL
	OpEqualVerify EqualityOp = txscript.OP_EQUALVERIFY

	OpDup  StackOp = txscript.OP_DUP
	OpSwap StackOp = txscript.OP_SWAP
	OpDrop StackOp = txscript.OP_DROP
	OpSize StackOp = txscript.OP_SIZE

	OpCheckSig       CryptoOp = txscript.OP_CHECKSIG
	OpCheckSigVerify CryptoOp = txscript.OP_CHECKSIGVERIFY

	OpCheckLockTimeVerify LocktimeOp = txscript.OP_CHECKLOCKTIMEVERIFY
)

// opcodeNames is the read-only opcode name table, filled once at init from
// txscript's table for the opcodes this package can emit.
var opcodeNames = map[byte]string{}

func init() {
	emitted := []byte{
		byte(OpIf), byte(OpNotIf), byte(OpElse), byte(OpEndIf),
		byte(OpVerify), byte(OpAdd), byte(OpSub), byte(OpMul),
		byte(OpDiv), byte(OpMod), byte(OpNot), byte(Op0NotEqual),
		byte(OpLessThan), byte(OpGreaterThanOrEqual), byte(OpSHA256),
		byte(OpHash160), byte(OpHash256), byte(OpEqual),
		byte(OpEqualVerify), byte(OpDup), byte(OpSwap), byte(OpDrop),
		byte(OpSize), byte(OpCheckSig), byte(OpCheckSigVerify),
		byte(OpCheckLockTimeVerify),
	}

	for name, code := range txscript.OpcodeByName {
		for _, e := range emitted {
			if code != e {
				continue
			}

			// CLTV is registered under its NOP2 alias as well.
			if old, ok := opcodeNames[code]; ok &&
				!strings.HasPrefix(old, "OP_NOP") {

				continue
			}
			opcodeNames[code] = name
		}
	}
}

// OpcodeName returns the canonical name of an emitted opcode.
func OpcodeName(code byte) string {
	if name, ok := opcodeNames[code]; ok {
		return name
	}

	return fmt.Sprintf("OP_UNKNOWN%d", code)
}

func (p PushData) Category() Category { return CategoryPushData }
func (p PushNum) Category() Category  { return CategoryPushNum }
func (o FlowOp) Category() Category   { return CategoryFlow }
func (o ArithOp) Category() Category  { return CategoryArith }
func (o HashOp) Category() Category   { return CategoryHash }
func (o EqualityOp) Category() Category {
	return CategoryEquality
}
func (o StackOp) Category() Category    { return CategoryStack }
func (o CryptoOp) Category() Category   { return CategoryCrypto }
func (o LocktimeOp) Category() Category { return CategoryLocktime }

func (p PushData) String() string   { return fmt.Sprintf("%x", []byte(p)) }
func (p PushNum) String() string    { return fmt.Sprintf("%d", int64(p)) }
func (o FlowOp) String() string     { return OpcodeName(byte(o)) }
func (o ArithOp) String() string    { return OpcodeName(byte(o)) }
func (o HashOp) String() string     { return OpcodeName(byte(o)) }
func (o EqualityOp) String() string { return OpcodeName(byte(o)) }
func (o StackOp) String() string    { return OpcodeName(byte(o)) }
func (o CryptoOp) String() string   { return OpcodeName(byte(o)) }
func (o LocktimeOp) String() string { return OpcodeName(byte(o)) }

// Pushes above the standard element size are legal on the target ledger,
// so large data goes through AddFullData which skips that policy check but
// keeps canonical push encoding.
func (p PushData) encode(b *txscript.ScriptBuilder) {
	if len(p) > txscript.MaxScriptElementSize {
		b.AddFullData(p)
		return
	}
	b.AddData(p)
}

func (p PushNum) encode(b *txscript.ScriptBuilder)    { b.AddInt64(int64(p)) }
func (o FlowOp) encode(b *txscript.ScriptBuilder)     { b.AddOp(byte(o)) }
func (o ArithOp) encode(b *txscript.ScriptBuilder)    { b.AddOp(byte(o)) }
func (o HashOp) encode(b *txscript.ScriptBuilder)     { b.AddOp(byte(o)) }
func (o EqualityOp) encode(b *txscript.ScriptBuilder) { b.AddOp(byte(o)) }
func (o StackOp) encode(b *txscript.ScriptBuilder)    { b.AddOp(byte(o)) }
func (o CryptoOp) encode(b *txscript.ScriptBuilder)   { b.AddOp(byte(o)) }
func (o LocktimeOp) encode(b *txscript.ScriptBuilder) { b.AddOp(byte(o)) }

// ErrUnbalancedFlow is returned when a program's conditionals do not nest.
var ErrUnbalancedFlow = errors.New("unbalanced conditional")

// Program is an ordered list of instructions.
type Program struct {
	instrs []Instruction
}

// Emit appends instructions to the program.
func (p *Program) Emit(instrs ...Instruction) *Program {
	p.instrs = append(p.instrs, instrs...)
	return p
}

// Repeat appends n copies of ins.
func (p *Program) Repeat(ins Instruction, n int) *Program {
	for i := 0; i < n; i++ {
		p.instrs = append(p.instrs, ins)
	}

	return p
}

// Append appends all instructions of another program.
func (p *Program) Append(other *Program) *Program {
	p.instrs = append(p.instrs, other.instrs...)
	return p
}

// Instructions returns the program's instructions.
func (p *Program) Instructions() []Instruction {
	return p.instrs
}

// Len returns the number of instructions.
func (p *Program) Len() int {
	return len(p.instrs)
}

// PushOnly reports whether every instruction is a push.
func (p *Program) PushOnly() bool {
	for _, ins := range p.instrs {
		switch ins.Category() {
		case CategoryPushData, CategoryPushNum:
		default:
			return false
		}
	}

	return true
}

// String returns the disassembly of the program.
func (p *Program) String() string {
	parts := make([]string, len(p.instrs))
	for i, ins := range p.instrs {
		parts[i] = ins.String()
	}

	return strings.Join(parts, " ")
}

// checkFlow verifies every IF/NOTIF is closed by exactly one ENDIF with at
// most one ELSE in between.
func (p *Program) checkFlow() error {
	// Each entry records whether the open conditional has seen an ELSE.
	var open []bool
	for i, ins := range p.instrs {
		op, ok := ins.(FlowOp)
		if !ok {
			continue
		}

		switch op {
		case OpIf, OpNotIf:
			open = append(open, false)

		case OpElse:
			if len(open) == 0 || open[len(open)-1] {
				return fmt.Errorf("%w: stray OP_ELSE at %d",
					ErrUnbalancedFlow, i)
			}
			open[len(open)-1] = true

		case OpEndIf:
			if len(open) == 0 {
				return fmt.Errorf("%w: stray OP_ENDIF at %d",
					ErrUnbalancedFlow, i)
			}
			open = open[:len(open)-1]
		}
	}

	if len(open) != 0 {
		return fmt.Errorf("%w: %d unterminated conditionals",
			ErrUnbalancedFlow, len(open))
	}

	return nil
}

// Script serializes the program.
func (p *Program) Script() ([]byte, error) {
	if err := p.checkFlow(); err != nil {
		return nil, err
	}

	b := txscript.NewScriptBuilder()
	for _, ins := range p.instrs {
		ins.encode(b)
	}

	return b.Script()
}
