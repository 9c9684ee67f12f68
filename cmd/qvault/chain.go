package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/quantumvault/qvault/chainsvc"
	"github.com/quantumvault/qvault/vault"
	"github.com/quantumvault/qvault/vaultcfg"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"
)

// provider is an indexer client that can also broadcast.
type provider interface {
	chainsvc.Indexer
	chainsvc.Broadcaster
}

// getContext returns a context that is canceled on interrupt.
func getContext() (context.Context, func()) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// newProviders returns one client per configured indexer URL.
func newProviders(cfg *vaultcfg.Config) []provider {
	clientCfgs := cfg.ClientConfigs()

	providers := make([]provider, 0, len(clientCfgs))
	for _, c := range clientCfgs {
		switch cfg.Indexer.Provider {
		case vaultcfg.ProviderEsplora:
			providers = append(providers, chainsvc.NewEsplora(c))

		default:
			providers = append(providers, chainsvc.NewWhatsOnChain(c))
		}
	}

	return providers
}

var statusCommand = cli.Command{
	Name:     "status",
	Category: "Chain",
	Usage:    "Query the on-chain state and balance of a vault.",
	Flags:    secretFlags,
	Action:   status,
}

type statusResp struct {
	VaultID      string   `json:"vault_id"`
	State        string   `json:"state"`
	Balance      int64    `json:"balance_sat"`
	UTXOs        int      `json:"utxos"`
	Transactions int      `json:"transactions"`
	FiatValue    *float64 `json:"usd_value,omitempty"`
}

func status(ctx *cli.Context) error {
	ctxc, cancel := getContext()
	defer cancel()

	cfg := getConfig(ctx)

	rec, err := restoreFromFlags(ctx)
	if err != nil {
		return err
	}
	defer rec.Zero()

	indexer := newProviders(cfg)[0]

	var (
		st   *chainsvc.VaultStatus
		rate float64
	)
	g, gctx := errgroup.WithContext(ctxc)
	g.Go(func() error {
		var err error
		st, err = chainsvc.Status(gctx, indexer, rec.LongHash)
		return err
	})

	// The price is a nicety, a failing price source only costs the fiat
	// value.
	prices, hasPrice := indexer.(chainsvc.PriceSource)
	if hasPrice {
		g.Go(func() error {
			var err error
			rate, err = prices.Rate(gctx)
			if err != nil {
				qvltLog.Warnf("Unable to fetch exchange rate: %v",
					err)
				rate = 0
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	resp := statusResp{
		VaultID:      rec.ID,
		State:        st.State.String(),
		Balance:      st.Balance,
		UTXOs:        st.UTXOs,
		Transactions: st.Transactions,
	}
	if rate > 0 {
		value := btcutil.Amount(st.Balance).ToBTC() * rate
		resp.FiatValue = &value
	}

	return printJSON(ctx, resp)
}

var spendCommand = cli.Command{
	Name:      "spend",
	Category:  "Chain",
	Usage:     "Sweep every output of a vault to an address.",
	ArgsUsage: "dest_addr",
	Description: `
	Look up the unspent outputs of the vault, build a transaction sending
	all of them minus the fee to dest_addr and print it. The signed inputs
	are evaluated against the locking script before anything is printed.

	With --broadcast the transaction is submitted to each configured
	indexer in turn until one accepts it.
	`,
	Flags: append([]cli.Flag{
		cli.Int64Flag{
			Name: "sat_per_kbyte",
			Usage: "fee rate in sat/kB, overrides the configured " +
				"rate",
		},
		cli.BoolFlag{
			Name:  "broadcast",
			Usage: "broadcast the transaction",
		},
	}, secretFlags...),
	Action: spend,
}

type spendResp struct {
	TxID          string `json:"txid"`
	Inputs        int    `json:"inputs"`
	Fee           int64  `json:"fee_sat"`
	Output        int64  `json:"output_sat"`
	EstimatedSize int    `json:"estimated_size"`
	Size          int    `json:"size"`
	Broadcast     bool   `json:"broadcast"`
	RawTx         string `json:"raw_tx"`
}

// feeRate resolves the fee rate of a spend: the command flag, then an
// estimate if configured and available, then the configured rate.
func feeRate(ctx context.Context, cliCtx *cli.Context, cfg *vaultcfg.Config,
	p provider) (vault.SatPerKByte, error) {

	if cliCtx.IsSet("sat_per_kbyte") {
		rate := cliCtx.Int64("sat_per_kbyte")
		if rate < 0 {
			return 0, fmt.Errorf("negative fee rate %d", rate)
		}
		return vault.SatPerKByte(rate), nil
	}

	var fees chainsvc.FeeSource = chainsvc.StaticFeeSource(
		cfg.Spend.FeeRate,
	)
	if estimator, ok := p.(chainsvc.FeeSource); ok && cfg.Spend.EstimateFee {
		fees = estimator
	}

	return fees.FeeRate(ctx)
}

func spend(ctx *cli.Context) error {
	ctxc, cancel := getContext()
	defer cancel()

	cfg := getConfig(ctx)

	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "spend")
	}

	rec, err := restoreFromFlags(ctx)
	if err != nil {
		return err
	}
	defer rec.Zero()

	dest, err := btcutil.DecodeAddress(ctx.Args().First(), rec.Network)
	if err != nil {
		return fmt.Errorf("invalid destination: %w", err)
	}

	providers := newProviders(cfg)

	utxos, err := providers[0].ListUnspent(ctxc, rec.LongHash)
	if err != nil {
		return err
	}

	rate, err := feeRate(ctxc, ctx, cfg, providers[0])
	if err != nil {
		return err
	}

	qvltLog.Infof("Spending %d outputs of %s at %v", len(utxos), rec.ID,
		rate)

	s, err := vault.BuildSpend(
		rec, utxos, dest, rate,
		vault.WithMinOutput(btcutil.Amount(cfg.Spend.MinOutput)),
		vault.WithDustRelayFee(btcutil.Amount(cfg.Spend.DustRelayFee)),
	)
	if err != nil {
		return err
	}

	resp := spendResp{
		TxID:          s.TxID.String(),
		Inputs:        len(s.Tx.TxIn),
		Fee:           int64(s.Fee),
		Output:        int64(s.Output),
		EstimatedSize: s.EstimatedSize,
		Size:          len(s.Raw),
		RawTx:         s.Hex,
	}

	if ctx.Bool("broadcast") {
		broadcasters := make([]chainsvc.Broadcaster, 0, len(providers))
		for _, p := range providers {
			broadcasters = append(broadcasters, p)
		}

		txid, err := chainsvc.NewFallbackBroadcaster(
			broadcasters...,
		).Broadcast(ctxc, s.Hex)
		if err != nil {
			return err
		}

		if txid != s.TxID {
			qvltLog.Warnf("Broadcaster reported txid %v, expected "+
				"%v", txid, s.TxID)
		}
		resp.Broadcast = true
	}

	return printJSON(ctx, resp)
}
