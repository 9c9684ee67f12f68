// Package scriptvm evaluates the scripts this module synthesizes. It covers
// the opcodes qvault emits, with the ledger's lifted limits: no opcode count
// and no element size cap. It is a local pre-flight check, not a consensus
// implementation.
package scriptvm

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/quantumvault/qvault/hashutil"
)

// lockTimeThreshold is the value below which lock times are block heights.
const lockTimeThreshold = 500_000_000

// SigChecker checks a signature from OP_CHECKSIG against the transaction
// being evaluated. scriptCode is the locking script.
type SigChecker interface {
	CheckSig(sig, pubKey, scriptCode []byte) (bool, error)
}

// TxContext is the part of the spending transaction OP_CHECKLOCKTIMEVERIFY
// inspects.
type TxContext struct {
	LockTime uint32
	Sequence uint32
}

// Step is a snapshot taken after an opcode executed.
type Step struct {
	// Script is 0 for the unlocking and 1 for the locking script.
	Script int

	// Offset is the opcode's byte offset in its script.
	Offset int

	// Opcode is the executed opcode.
	Opcode byte

	// Stack is a copy of the stack, top last.
	Stack [][]byte
}

// Option configures an Engine.
type Option func(*Engine)

// WithSigChecker sets the checker used by OP_CHECKSIG.
func WithSigChecker(c SigChecker) Option {
	return func(e *Engine) {
		e.sigChecker = c
	}
}

// WithTxContext sets the spending transaction's lock time fields.
func WithTxContext(tx *wire.MsgTx, idx int) Option {
	return func(e *Engine) {
		e.txCtx = &TxContext{
			LockTime: tx.LockTime,
			Sequence: tx.TxIn[idx].Sequence,
		}
	}
}

// WithStepCallback registers a function called after every executed opcode.
func WithStepCallback(f func(Step)) Option {
	return func(e *Engine) {
		e.onStep = f
	}
}

// Engine evaluates an unlocking script followed by a locking script.
type Engine struct {
	unlock []byte
	lock   []byte

	sigChecker SigChecker
	txCtx      *TxContext
	onStep     func(Step)

	stack [][]byte

	// condStack holds one entry per open conditional, true when its
	// branch executes.
	condStack []bool
}

// NewEngine returns an engine for the given script pair.
func NewEngine(unlock, lock []byte, opts ...Option) *Engine {
	e := &Engine{
		unlock: unlock,
		lock:   lock,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Execute evaluates unlock and then lock on the resulting stack. It returns
// nil iff the final top stack item is true.
func Execute(unlock, lock []byte, opts ...Option) error {
	return NewEngine(unlock, lock, opts...).Execute()
}

// Execute runs the engine.
func (e *Engine) Execute() error {
	e.stack = e.stack[:0]

	if err := e.run(0, e.unlock, true); err != nil {
		return fmt.Errorf("unlocking script: %w", err)
	}
	if err := e.run(1, e.lock, false); err != nil {
		return fmt.Errorf("locking script: %w", err)
	}

	if len(e.stack) == 0 || !asBool(e.stack[len(e.stack)-1]) {
		return ErrEvalFalse
	}

	log.Tracef("Script pair evaluated true, %d items left on stack",
		len(e.stack))

	return nil
}

// Stack returns the current stack, top last.
func (e *Engine) Stack() [][]byte {
	return e.stack
}

func (e *Engine) executing() bool {
	for _, c := range e.condStack {
		if !c {
			return false
		}
	}

	return true
}

func (e *Engine) run(idx int, script []byte, pushOnly bool) error {
	e.condStack = e.condStack[:0]

	tok := txscript.MakeScriptTokenizer(0, script)
	for {
		// ByteIndex moves past the opcode on Next.
		offset := int(tok.ByteIndex())
		if !tok.Next() {
			break
		}
		op := tok.Opcode()

		if pushOnly && op > txscript.OP_16 {
			return fmt.Errorf("%w: opcode 0x%02x at %d",
				ErrNotPushOnly, op, offset)
		}

		if err := e.step(op, tok.Data(), script); err != nil {
			return fmt.Errorf("opcode 0x%02x at offset %d: %w", op,
				offset, err)
		}

		if e.onStep != nil {
			stack := make([][]byte, len(e.stack))
			copy(stack, e.stack)
			e.onStep(Step{
				Script: idx,
				Offset: offset,
				Opcode: op,
				Stack:  stack,
			})
		}
	}
	if err := tok.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedScript, err)
	}

	if len(e.condStack) != 0 {
		return fmt.Errorf("%w: %d open", ErrUnbalancedConditional,
			len(e.condStack))
	}

	return nil
}

func (e *Engine) push(v []byte) {
	e.stack = append(e.stack, v)
}

func (e *Engine) pushNum(n scriptNum) {
	e.push(n.Bytes())
}

func (e *Engine) pop() ([]byte, error) {
	if len(e.stack) == 0 {
		return nil, ErrStackUnderflow
	}

	v := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]

	return v, nil
}

func (e *Engine) popNum() (scriptNum, error) {
	v, err := e.pop()
	if err != nil {
		return 0, err
	}

	return makeScriptNum(v, defaultNumLen)
}

func (e *Engine) popBool() (bool, error) {
	v, err := e.pop()
	if err != nil {
		return false, err
	}

	return asBool(v), nil
}

// peek returns the item depth positions below the top.
func (e *Engine) peek(depth int) ([]byte, error) {
	if depth >= len(e.stack) {
		return nil, ErrStackUnderflow
	}

	return e.stack[len(e.stack)-1-depth], nil
}

func (e *Engine) require(n int) error {
	if len(e.stack) < n {
		return fmt.Errorf("%w: need %d, have %d", ErrStackUnderflow, n,
			len(e.stack))
	}

	return nil
}

func (e *Engine) step(op byte, data []byte, script []byte) error {
	// Conditionals are tracked even inside branches that are skipped.
	switch op {
	case txscript.OP_IF, txscript.OP_NOTIF:
		cond := false
		if e.executing() {
			v, err := e.popBool()
			if err != nil {
				return err
			}
			cond = v == (op == txscript.OP_IF)
		}
		e.condStack = append(e.condStack, cond)

		return nil

	case txscript.OP_ELSE:
		if len(e.condStack) == 0 {
			return ErrUnbalancedConditional
		}

		// A branch nested in a skipped one stays skipped.
		last := len(e.condStack) - 1
		parentExecuting := true
		for _, c := range e.condStack[:last] {
			parentExecuting = parentExecuting && c
		}
		e.condStack[last] = parentExecuting && !e.condStack[last]

		return nil

	case txscript.OP_ENDIF:
		if len(e.condStack) == 0 {
			return ErrUnbalancedConditional
		}
		e.condStack = e.condStack[:len(e.condStack)-1]

		return nil
	}

	if !e.executing() {
		return nil
	}

	switch {
	case op == txscript.OP_0:
		e.push(nil)
		return nil

	case op >= txscript.OP_DATA_1 && op <= txscript.OP_PUSHDATA4:
		e.push(data)
		return nil

	case op == txscript.OP_1NEGATE:
		e.pushNum(-1)
		return nil

	case op >= txscript.OP_1 && op <= txscript.OP_16:
		e.pushNum(scriptNum(op - (txscript.OP_1 - 1)))
		return nil
	}

	switch op {
	case txscript.OP_NOP:

	case txscript.OP_VERIFY:
		ok, err := e.popBool()
		if err != nil {
			return err
		}
		if !ok {
			return ErrVerify
		}

	case txscript.OP_DUP:
		v, err := e.peek(0)
		if err != nil {
			return err
		}
		e.push(v)

	case txscript.OP_OVER:
		v, err := e.peek(1)
		if err != nil {
			return err
		}
		e.push(v)

	case txscript.OP_SWAP:
		if err := e.require(2); err != nil {
			return err
		}
		n := len(e.stack)
		e.stack[n-1], e.stack[n-2] = e.stack[n-2], e.stack[n-1]

	case txscript.OP_ROT:
		if err := e.require(3); err != nil {
			return err
		}
		n := len(e.stack)
		a := e.stack[n-3]
		copy(e.stack[n-3:], e.stack[n-2:])
		e.stack[n-1] = a

	case txscript.OP_DROP:
		if _, err := e.pop(); err != nil {
			return err
		}

	case txscript.OP_NIP:
		if err := e.require(2); err != nil {
			return err
		}
		n := len(e.stack)
		e.stack[n-2] = e.stack[n-1]
		e.stack = e.stack[:n-1]

	case txscript.OP_SIZE:
		v, err := e.peek(0)
		if err != nil {
			return err
		}
		e.pushNum(scriptNum(len(v)))

	case txscript.OP_EQUAL, txscript.OP_EQUALVERIFY:
		if err := e.require(2); err != nil {
			return err
		}
		b, _ := e.pop()
		a, _ := e.pop()
		eq := bytes.Equal(a, b)

		if op == txscript.OP_EQUALVERIFY {
			if !eq {
				return fmt.Errorf("%w: OP_EQUALVERIFY", ErrVerify)
			}
			return nil
		}
		e.push(fromBool(eq))

	case txscript.OP_NOT, txscript.OP_0NOTEQUAL:
		n, err := e.popNum()
		if err != nil {
			return err
		}
		if op == txscript.OP_NOT {
			e.push(fromBool(n == 0))
		} else {
			e.push(fromBool(n != 0))
		}

	case txscript.OP_ADD, txscript.OP_SUB, txscript.OP_MUL,
		txscript.OP_DIV, txscript.OP_MOD, txscript.OP_LESSTHAN,
		txscript.OP_GREATERTHANOREQUAL:

		return e.binaryArith(op)

	case txscript.OP_SHA256:
		return e.hash(hashutil.SHA256)

	case txscript.OP_HASH160:
		return e.hash(hashutil.Hash160)

	case txscript.OP_HASH256:
		return e.hash(hashutil.DoubleSHA256)

	case txscript.OP_CHECKSIG, txscript.OP_CHECKSIGVERIFY:
		return e.checkSig(op == txscript.OP_CHECKSIGVERIFY, script)

	case txscript.OP_CHECKLOCKTIMEVERIFY:
		return e.checkLockTime()

	default:
		return fmt.Errorf("%w: 0x%02x", ErrUnsupportedOpcode, op)
	}

	return nil
}

func (e *Engine) binaryArith(op byte) error {
	if err := e.require(2); err != nil {
		return err
	}

	b, err := e.popNum()
	if err != nil {
		return err
	}
	a, err := e.popNum()
	if err != nil {
		return err
	}

	switch op {
	case txscript.OP_ADD:
		e.pushNum(a + b)
	case txscript.OP_SUB:
		e.pushNum(a - b)
	case txscript.OP_MUL:
		e.pushNum(a * b)
	case txscript.OP_DIV, txscript.OP_MOD:
		if b == 0 {
			return ErrDivideByZero
		}
		if op == txscript.OP_DIV {
			e.pushNum(a / b)
		} else {
			e.pushNum(a % b)
		}
	case txscript.OP_LESSTHAN:
		e.push(fromBool(a < b))
	case txscript.OP_GREATERTHANOREQUAL:
		e.push(fromBool(a >= b))
	}

	return nil
}

func (e *Engine) hash(f func([]byte) []byte) error {
	v, err := e.pop()
	if err != nil {
		return err
	}
	e.push(f(v))

	return nil
}

func (e *Engine) checkSig(verify bool, scriptCode []byte) error {
	if e.sigChecker == nil {
		return fmt.Errorf("%w: OP_CHECKSIG needs a signature checker",
			ErrNoTxContext)
	}
	if err := e.require(2); err != nil {
		return err
	}

	pubKey, _ := e.pop()
	sig, _ := e.pop()

	ok, err := e.sigChecker.CheckSig(sig, pubKey, scriptCode)
	if err != nil {
		return err
	}

	if verify {
		if !ok {
			return fmt.Errorf("%w: OP_CHECKSIGVERIFY", ErrVerify)
		}
		return nil
	}
	e.push(fromBool(ok))

	return nil
}

// checkLockTime implements BIP65: the operand stays on the stack and must
// be of the same kind as, and not above, the transaction's lock time, whose
// input must not be final.
func (e *Engine) checkLockTime() error {
	if e.txCtx == nil {
		return ErrNoTxContext
	}

	v, err := e.peek(0)
	if err != nil {
		return err
	}
	n, err := makeScriptNum(v, lockTimeNumLen)
	if err != nil {
		return err
	}

	switch {
	case n < 0:
		return fmt.Errorf("%w: negative lock time %d", ErrLockTime, n)

	case (n < lockTimeThreshold) !=
		(int64(e.txCtx.LockTime) < lockTimeThreshold):

		return fmt.Errorf("%w: lock time type mismatch %d vs %d",
			ErrLockTime, n, e.txCtx.LockTime)

	case int64(n) > int64(e.txCtx.LockTime):
		return fmt.Errorf("%w: %d > tx lock time %d", ErrLockTime, n,
			e.txCtx.LockTime)

	case e.txCtx.Sequence == wire.MaxTxInSequenceNum:
		return fmt.Errorf("%w: input is final", ErrLockTime)
	}

	return nil
}
