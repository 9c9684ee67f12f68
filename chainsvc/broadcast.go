package chainsvc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/quantumvault/qvault/vaulterr"
)

// ErrNoBroadcasters is returned when a FallbackBroadcaster has no providers.
var ErrNoBroadcasters = errors.New("no broadcasters configured")

// externalErr tags a collaborator failure with the external kind.
func externalErr(provider, what string, err error) error {
	return vaulterr.Wrap(
		vaulterr.KindExternal, "chainsvc."+what, err, "%s", provider,
	)
}

// ProviderError is the failure of a single provider.
type ProviderError struct {
	Provider string
	Err      error
}

// BroadcastError is returned when every provider rejected a transaction.
type BroadcastError struct {
	Failures []ProviderError
}

// Error implements the error interface.
func (e *BroadcastError) Error() string {
	reasons := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		reasons = append(reasons, fmt.Sprintf("%s: %v", f.Provider,
			f.Err))
	}

	return "all broadcasters failed: " + strings.Join(reasons, "; ")
}

// Unwrap returns the individual provider failures.
func (e *BroadcastError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}

	return errs
}

// FallbackBroadcaster tries its providers in order until one accepts the
// transaction.
type FallbackBroadcaster struct {
	providers []Broadcaster
}

// A compile-time check to ensure FallbackBroadcaster implements Broadcaster.
var _ Broadcaster = (*FallbackBroadcaster)(nil)

// NewFallbackBroadcaster returns a broadcaster over providers, tried in the
// given order.
func NewFallbackBroadcaster(providers ...Broadcaster) *FallbackBroadcaster {
	return &FallbackBroadcaster{providers: providers}
}

// Name returns the provider name.
func (f *FallbackBroadcaster) Name() string {
	names := make([]string, 0, len(f.providers))
	for _, p := range f.providers {
		names = append(names, p.Name())
	}

	return "fallback[" + strings.Join(names, ",") + "]"
}

// Broadcast submits rawHex to each provider in turn and returns the first
// txid. A provider is not tried once the context is done.
func (f *FallbackBroadcaster) Broadcast(ctx context.Context,
	rawHex string) (chainhash.Hash, error) {

	const op = "chainsvc.Broadcast"

	if len(f.providers) == 0 {
		return chainhash.Hash{}, vaulterr.Wrap(
			vaulterr.KindExternal, op, ErrNoBroadcasters, "",
		)
	}

	bErr := &BroadcastError{}
	for _, p := range f.providers {
		if err := ctx.Err(); err != nil {
			bErr.Failures = append(bErr.Failures, ProviderError{
				Provider: p.Name(),
				Err:      err,
			})
			break
		}

		txid, err := p.Broadcast(ctx, rawHex)
		if err == nil {
			log.Infof("Broadcast %v via %s", txid, p.Name())
			return txid, nil
		}

		log.Warnf("Broadcast via %s failed: %v", p.Name(), err)

		bErr.Failures = append(bErr.Failures, ProviderError{
			Provider: p.Name(),
			Err:      err,
		})
	}

	return chainhash.Hash{}, vaulterr.Wrap(
		vaulterr.KindExternal, op, bErr, "",
	)
}
