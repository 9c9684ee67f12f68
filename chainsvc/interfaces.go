// Package chainsvc talks to the services around a vault: ledger indexers
// that report funding outputs and history, transaction broadcasters and
// exchange rate sources. None of the core packages depend on it.
package chainsvc

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/quantumvault/qvault/vault"
)

// UTXOSource lists the unspent outputs locked by a script, identified by its
// indexer script hash (vault.ScriptHash).
type UTXOSource interface {
	ListUnspent(ctx context.Context, scriptHash string) ([]vault.UTXO,
		error)
}

// HistorySource lists the transactions that touched a script.
type HistorySource interface {
	History(ctx context.Context, scriptHash string) ([]chainhash.Hash,
		error)
}

// Broadcaster submits a raw hex transaction and returns its txid.
type Broadcaster interface {
	// Name identifies the provider in errors and logs.
	Name() string

	Broadcast(ctx context.Context, rawHex string) (chainhash.Hash, error)
}

// PriceSource returns the fiat exchange rate of one coin.
type PriceSource interface {
	Rate(ctx context.Context) (float64, error)
}

// FeeSource returns the current network fee rate.
type FeeSource interface {
	FeeRate(ctx context.Context) (vault.SatPerKByte, error)
}

// StaticFeeSource always returns the same fee rate.
type StaticFeeSource vault.SatPerKByte

// FeeRate implements FeeSource.
func (s StaticFeeSource) FeeRate(context.Context) (vault.SatPerKByte,
	error) {

	return vault.SatPerKByte(s), nil
}

// Indexer is a service that can answer every status query.
type Indexer interface {
	UTXOSource
	HistorySource
}
