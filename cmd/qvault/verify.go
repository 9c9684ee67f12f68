package main

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/quantumvault/qvault/scriptvm"
	"github.com/quantumvault/qvault/sighash"
	"github.com/urfave/cli"
)

var verifyCommand = cli.Command{
	Name:      "verify",
	Category:  "Vault",
	Usage:     "Evaluate the inputs of a raw spend against a vault.",
	ArgsUsage: "raw_tx",
	Description: `
	Run the unlocking script of every input of raw_tx against the locking
	script of the vault, offline. The locking script is taken from
	--locking_script or restored from the vault secret.

	Covenant vaults sign the spent amount, pass one --amount per input in
	input order for them.
	`,
	Flags: append([]cli.Flag{
		cli.StringFlag{
			Name:  "locking_script",
			Usage: "hex locking script of the vault",
		},
		cli.Int64SliceFlag{
			Name:  "amount",
			Usage: "amount in satoshis of the spent output",
		},
		cli.BoolFlag{
			Name:  "trace",
			Usage: "print the stack after every executed opcode",
		},
	}, secretFlags...),
	Action: verify,
}

type inputResult struct {
	Index int      `json:"index"`
	Valid bool     `json:"valid"`
	Error string   `json:"error,omitempty"`
	Trace []string `json:"trace,omitempty"`
}

type verifyResp struct {
	TxID   string        `json:"txid"`
	Valid  bool          `json:"valid"`
	Inputs []inputResult `json:"inputs"`
}

func lockingScriptFromFlags(ctx *cli.Context) ([]byte, error) {
	if ctx.IsSet("locking_script") {
		script, err := hex.DecodeString(ctx.String("locking_script"))
		if err != nil {
			return nil, fmt.Errorf("invalid locking script: %w", err)
		}
		return script, nil
	}

	rec, err := restoreFromFlags(ctx)
	if err != nil {
		return nil, err
	}
	defer rec.Zero()

	return rec.LockingScript, nil
}

func verify(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "verify")
	}

	raw, err := hex.DecodeString(ctx.Args().First())
	if err != nil {
		return fmt.Errorf("invalid raw tx: %w", err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("unable to decode tx: %w", err)
	}

	lockingScript, err := lockingScriptFromFlags(ctx)
	if err != nil {
		return err
	}

	amounts := ctx.Int64Slice("amount")
	if len(amounts) != 0 && len(amounts) != len(tx.TxIn) {
		return fmt.Errorf("got %d amounts for %d inputs", len(amounts),
			len(tx.TxIn))
	}

	resp := verifyResp{
		TxID:  tx.TxHash().String(),
		Valid: true,
	}
	for i, txIn := range tx.TxIn {
		var amount int64
		if len(amounts) != 0 {
			amount = amounts[i]
		}

		checker := &sighash.TxChecker{Tx: tx, Index: i, Amount: amount}
		opts := []scriptvm.Option{
			scriptvm.WithTxContext(tx, i),
			scriptvm.WithSigChecker(checker),
		}

		result := inputResult{Index: i}
		if ctx.Bool("trace") {
			result.Trace, err = scriptvm.Trace(
				txIn.SignatureScript, lockingScript, opts...,
			)
		} else {
			err = scriptvm.Execute(
				txIn.SignatureScript, lockingScript, opts...,
			)
		}

		result.Valid = err == nil
		if err != nil {
			result.Error = err.Error()
			resp.Valid = false
		}
		resp.Inputs = append(resp.Inputs, result)
	}

	return printJSON(ctx, resp)
}
