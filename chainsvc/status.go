package chainsvc

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// State is the on-chain state of a vault.
type State uint8

const (
	// StateCreated means no output has ever paid the locking script.
	StateCreated State = iota

	// StateFunded means at least one output locked by the script is
	// unspent.
	StateFunded

	// StateSpent means the script was paid and every output has been
	// spent.
	StateSpent
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateFunded:
		return "funded"
	case StateSpent:
		return "spent"
	default:
		return "unknown"
	}
}

// VaultStatus is the result of a status query.
type VaultStatus struct {
	State State

	// Balance is the sum of the unspent outputs, in satoshis.
	Balance int64

	// UTXOs is the number of unspent outputs.
	UTXOs int

	// Transactions is the number of transactions in the script history.
	Transactions int
}

// Status queries the indexer for the unspent outputs and history of a script
// hash concurrently and derives the vault state.
func Status(ctx context.Context, idx Indexer,
	scriptHash string) (*VaultStatus, error) {

	var (
		g, gctx = errgroup.WithContext(ctx)
		status  VaultStatus
	)

	g.Go(func() error {
		utxos, err := idx.ListUnspent(gctx, scriptHash)
		if err != nil {
			return err
		}

		status.UTXOs = len(utxos)
		for _, u := range utxos {
			status.Balance += int64(u.Value)
		}

		return nil
	})
	g.Go(func() error {
		history, err := idx.History(gctx, scriptHash)
		if err != nil {
			return err
		}

		status.Transactions = len(history)

		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	switch {
	case status.UTXOs > 0:
		status.State = StateFunded
	case status.Transactions > 0:
		status.State = StateSpent
	default:
		status.State = StateCreated
	}

	log.Debugf("Script %s: state=%v balance=%d txs=%d", scriptHash,
		status.State, status.Balance, status.Transactions)

	return &status, nil
}
