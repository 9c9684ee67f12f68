package vault

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/quantumvault/qvault/scriptvm"
	"github.com/quantumvault/qvault/sighash"
	"github.com/quantumvault/qvault/vaulterr"
	"github.com/quantumvault/qvault/vscript"
)

const (
	// TxVersion is the version of spend transactions.
	TxVersion = 1

	// DefaultMinOutput is the smallest output a spend creates unless
	// configured otherwise.
	DefaultMinOutput btcutil.Amount = 546

	// DefaultDustRelayFee is the relay fee the dust threshold is
	// computed from.
	DefaultDustRelayFee btcutil.Amount = 1000
)

// SatPerKByte is a fee rate in satoshis per 1000 bytes of serialized
// transaction.
type SatPerKByte btcutil.Amount

// FeeForSize returns the fee of a transaction of the given size.
func (s SatPerKByte) FeeForSize(bytes int64) btcutil.Amount {
	return btcutil.Amount(s) * btcutil.Amount(bytes) / 1000
}

// String returns a human readable fee rate.
func (s SatPerKByte) String() string {
	return fmt.Sprintf("%v sat/kB", int64(s))
}

// UTXO is a funding output of a vault as reported by a ledger indexer.
type UTXO struct {
	// OutPoint references the output.
	OutPoint wire.OutPoint

	// Value is the output amount.
	Value btcutil.Amount

	// Height is the confirmation height, zero when unconfirmed.
	Height int32
}

// Spend is a fully signed transaction sweeping a vault.
type Spend struct {
	Tx *wire.MsgTx

	// Raw is the serialized transaction, Hex its hex encoding.
	Raw []byte
	Hex string

	TxID chainhash.Hash

	// Fee is the amount paid to miners and Output the amount sent to
	// the destination. They always sum to the inputs' total.
	Fee    btcutil.Amount
	Output btcutil.Amount

	// EstimatedSize is the size the fee was computed for. It is never
	// below len(Raw).
	EstimatedSize int
}

type spendConfig struct {
	minOutput     btcutil.Amount
	dustRelayFee  btcutil.Amount
	skipPreflight bool
}

// SpendOption modifies how a spend is built.
type SpendOption func(*spendConfig)

// WithMinOutput sets the smallest acceptable output.
func WithMinOutput(amt btcutil.Amount) SpendOption {
	return func(c *spendConfig) {
		c.minOutput = amt
	}
}

// WithDustRelayFee sets the relay fee the dust threshold is derived from.
func WithDustRelayFee(fee btcutil.Amount) SpendOption {
	return func(c *spendConfig) {
		c.dustRelayFee = fee
	}
}

// WithoutPreflight disables evaluating the signed inputs against the
// locking script.
func WithoutPreflight() SpendOption {
	return func(c *spendConfig) {
		c.skipPreflight = true
	}
}

// BuildSpend sweeps utxos to dest in a single output paying fee at
// feeRate. The fee is computed from the largest unlocking scripts the
// policy can produce, so the transaction never pays less than feeRate.
//
// WOTS-16 keys sign the transaction's output commitment, which every input
// shares, so a multi input spend still only ever signs one message.
func BuildSpend(rec *Record, utxos []UTXO, dest btcutil.Address,
	feeRate SatPerKByte, opts ...SpendOption) (*Spend, error) {

	const op = "vault.BuildSpend"

	cfg := &spendConfig{
		minOutput:    DefaultMinOutput,
		dustRelayFee: DefaultDustRelayFee,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	switch {
	case len(utxos) == 0:
		return nil, vaulterr.Wrap(vaulterr.KindValidation, op,
			ErrNoInputs, "nothing to spend")

	case dest == nil:
		return nil, vaulterr.New(vaulterr.KindValidation, op,
			"missing destination")

	case !dest.IsForNet(rec.Network):
		return nil, vaulterr.New(vaulterr.KindValidation, op,
			"destination %v is not a %s address", dest,
			rec.Network.Name)

	case feeRate < 0:
		return nil, vaulterr.New(vaulterr.KindValidation, op,
			"negative fee rate %v", feeRate)
	}

	pkScript, err := txscript.PayToAddrScript(dest)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindValidation, op, err,
			"unsupported destination %v", dest)
	}

	sequence := wire.MaxTxInSequenceNum
	tx := wire.NewMsgTx(TxVersion)
	rec.Policy.LockTime.WhenSome(func(lt uint32) {
		// The lock time is only enforced for non final inputs.
		sequence = wire.MaxTxInSequenceNum - 1
		tx.LockTime = lt
	})

	var total btcutil.Amount
	for _, u := range utxos {
		if u.Value <= 0 {
			return nil, vaulterr.New(vaulterr.KindValidation, op,
				"funding output %v has no value", u.OutPoint)
		}
		total += u.Value

		outPoint := u.OutPoint
		in := wire.NewTxIn(&outPoint, nil, nil)
		in.Sequence = sequence
		tx.AddTxIn(in)
	}
	tx.AddTxOut(wire.NewTxOut(0, pkScript))

	size := estimateSize(tx, rec)
	fee := feeRate.FeeForSize(int64(size))

	floor := txrules.GetDustThreshold(len(pkScript), cfg.dustRelayFee)
	if cfg.minOutput > floor {
		floor = cfg.minOutput
	}

	output := total - fee
	if output < floor {
		return nil, vaulterr.Wrap(vaulterr.KindInsufficientFunds, op,
			ErrInsufficientFunds, "inputs %v, fee %v leave %v, "+
				"minimum output is %v", total, fee, output, floor)
	}
	tx.TxOut[0].Value = int64(output)

	if err := signInputs(tx, rec, utxos); err != nil {
		return nil, err
	}

	if !cfg.skipPreflight {
		if err := Preflight(tx, rec.LockingScript, utxos); err != nil {
			return nil, vaulterr.Wrap(vaulterr.KindFatal, op, err,
				"built spend is invalid")
		}
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindFatal, op, err,
			"unable to serialize")
	}

	spend := &Spend{
		Tx:            tx,
		Raw:           buf.Bytes(),
		Hex:           hex.EncodeToString(buf.Bytes()),
		TxID:          tx.TxHash(),
		Fee:           fee,
		Output:        output,
		EstimatedSize: size,
	}

	log.Infof("Built spend %v of vault %s: %d inputs, output=%v fee=%v "+
		"(%d bytes at %v)", spend.TxID, rec.ID, len(utxos), output, fee,
		size, feeRate)

	return spend, nil
}

// estimateSize returns the size of tx once every input carries the largest
// unlocking script of the record's policy.
func estimateSize(tx *wire.MsgTx, rec *Record) int {
	unlockLen := vscript.MaxUnlockingSize(
		rec.Policy, len(rec.LockingScript),
	)

	// The empty signature scripts are already counted by their one
	// byte length prefix.
	perInput := wire.VarIntSerializeSize(uint64(unlockLen)) + unlockLen - 1

	return tx.SerializeSize() + len(tx.TxIn)*perInput
}

// signInputs attaches an unlocking script to every input of tx.
func signInputs(tx *wire.MsgTx, rec *Record, utxos []UTXO) error {
	const op = "vault.signInputs"

	hashOutputs, err := sighash.HashOutputs(tx.TxOut)
	if err != nil {
		return vaulterr.Wrap(vaulterr.KindFatal, op, err,
			"unable to hash outputs")
	}

	base := vscript.Unlock{Scheme: rec.Policy.Scheme}
	switch rec.Policy.Scheme {
	case vscript.SchemePreimage:
		if rec.Keypair == nil {
			return vaulterr.New(vaulterr.KindValidation, op,
				"record has no preimage keypair")
		}
		base.Preimage, err = rec.Keypair.Sign(hashOutputs[:])

	case vscript.SchemeWOTS16:
		if rec.WOTS16 == nil {
			return vaulterr.New(vaulterr.KindValidation, op,
				"record has no WOTS-16 keypair")
		}
		base.Signature, err = rec.WOTS16.Sign(hashOutputs[:])
	}
	if err != nil {
		return err
	}

	for i, u := range utxos {
		unlock := base

		if rec.Policy.Covenant {
			if rec.CovenantKey == nil {
				return vaulterr.New(vaulterr.KindValidation, op,
					"record has no covenant key")
			}

			preimage, err := sighash.Preimage(
				tx, i, rec.LockingScript, int64(u.Value),
				sighash.SigHashAllForkID,
			)
			if err != nil {
				return err
			}

			unlock.SighashPreimage = preimage
			unlock.CovenantSig = sighash.Sign(
				rec.CovenantKey, sighash.Digest(preimage),
				sighash.SigHashAllForkID,
			)
		}

		script, err := vscript.UnlockingScript(unlock)
		if err != nil {
			return err
		}
		tx.TxIn[i].SignatureScript = script
	}

	return nil
}

// Preflight evaluates every input of a spend against the vault's locking
// script.
func Preflight(tx *wire.MsgTx, lockingScript []byte, utxos []UTXO) error {
	if len(utxos) != len(tx.TxIn) {
		return fmt.Errorf("%w: %d inputs, %d funding outputs",
			ErrPreflight, len(tx.TxIn), len(utxos))
	}

	for i, u := range utxos {
		checker := &sighash.TxChecker{
			Tx: tx, Index: i, Amount: int64(u.Value),
		}
		err := scriptvm.Execute(
			tx.TxIn[i].SignatureScript, lockingScript,
			scriptvm.WithTxContext(tx, i),
			scriptvm.WithSigChecker(checker),
		)
		if err != nil {
			return fmt.Errorf("%w: input %d: %w", ErrPreflight, i,
				err)
		}
	}

	return nil
}
