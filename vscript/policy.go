package vscript

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/quantumvault/qvault/wots"
)

// Scheme selects what the locking script verifies.
type Scheme uint8

const (
	// SchemePreimage locks to the SHA-256 of a 32 chunk public key
	// preimage which is revealed on spend.
	SchemePreimage Scheme = iota

	// SchemeWOTS16 verifies a full WOTS-16 signature on chain.
	SchemeWOTS16
)

// String returns the scheme's script type label.
func (s Scheme) String() string {
	switch s {
	case SchemePreimage:
		return "preimage"
	case SchemeWOTS16:
		return "wots16"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ParseScheme is the inverse of Scheme.String.
func ParseScheme(s string) (Scheme, error) {
	switch s {
	case "preimage":
		return SchemePreimage, nil
	case "wots16":
		return SchemeWOTS16, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownScheme, s)
	}
}

// Policy is the set of spending conditions of a vault. The toggles are
// independent; security levels are presets over them.
type Policy struct {
	// Scheme is the hash based authorization.
	Scheme Scheme

	// Covenant appends an ECDSA check under a key that is only used for
	// this vault, binding the spend to the transaction it is broadcast
	// in.
	Covenant bool

	// LockTime, when set, prefixes the script with a lock time guard.
	// Values below 500,000,000 are block heights, others unix times.
	LockTime fn.Option[uint32]
}

// String returns a short description of the policy.
func (p Policy) String() string {
	s := p.Scheme.String()
	if p.Covenant {
		s += "+covenant"
	}
	p.LockTime.WhenSome(func(lt uint32) {
		s += fmt.Sprintf("+cltv(%d)", lt)
	})

	return s
}

var (
	// ErrUnknownScheme is returned for an unrecognized scheme.
	ErrUnknownScheme = errors.New("unknown scheme")

	// ErrMissingCommitments is returned when the key material does not
	// match the scheme.
	ErrMissingCommitments = errors.New("missing key commitments")

	// ErrMissingCovenantKey is returned when a covenant is requested
	// without a key.
	ErrMissingCovenantKey = errors.New("missing covenant key")

	// ErrInvalidUnlock is returned when unlock data does not match the
	// policy it is meant for.
	ErrInvalidUnlock = errors.New("invalid unlock data")
)

// Params is everything needed to synthesize a locking script.
type Params struct {
	Policy

	// PublicKeyHash is the SHA-256 of the preimage keypair's
	// commitments. Used by SchemePreimage.
	PublicKeyHash [32]byte

	// Commitments are the WOTS-16 chain ends. Used by SchemeWOTS16.
	Commitments *[wots.WOTS16Chunks]wots.Commitment

	// CovenantKey is the ephemeral key of the covenant clause.
	CovenantKey *btcec.PublicKey
}

func (p *Params) validate() error {
	switch p.Scheme {
	case SchemePreimage:
	case SchemeWOTS16:
		if p.Commitments == nil {
			return ErrMissingCommitments
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownScheme, p.Scheme)
	}

	if p.Covenant && p.CovenantKey == nil {
		return ErrMissingCovenantKey
	}

	return nil
}
