package vault

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/quantumvault/qvault/vscript"
)

// SecurityLevel is a named preset of spending conditions.
type SecurityLevel string

const (
	// LevelStandard reveals the preimage of a 32 chunk public key. It
	// has the smallest script.
	LevelStandard SecurityLevel = "standard"

	// LevelEnhanced adds a lock time guard ahead of the preimage check.
	LevelEnhanced SecurityLevel = "enhanced"

	// LevelMaximum guards the preimage reveal with a covenant signature
	// under an ephemeral key, so a revealed preimage cannot be replayed
	// into a transaction paying elsewhere.
	LevelMaximum SecurityLevel = "maximum"

	// LevelUltimate verifies a full WOTS-16 signature on chain behind
	// the covenant.
	LevelUltimate SecurityLevel = "ultimate"
)

// Levels lists every security level, weakest first.
var Levels = []SecurityLevel{
	LevelStandard, LevelEnhanced, LevelMaximum, LevelUltimate,
}

// ParseSecurityLevel validates a level name.
func ParseSecurityLevel(s string) (SecurityLevel, error) {
	for _, l := range Levels {
		if string(l) == s {
			return l, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownSecurityLevel, s)
}

// Policy returns the spending conditions of the level. A lock time is
// required by the enhanced level and optional for the others.
func (l SecurityLevel) Policy(lockTime fn.Option[uint32]) (vscript.Policy,
	error) {

	var p vscript.Policy
	switch l {
	case LevelStandard:
		p = vscript.Policy{Scheme: vscript.SchemePreimage}

	case LevelEnhanced:
		if lockTime.IsNone() {
			return p, fmt.Errorf("%w: the %s level needs a lock time",
				ErrInvalidLockTime, l)
		}
		p = vscript.Policy{Scheme: vscript.SchemePreimage}

	case LevelMaximum:
		p = vscript.Policy{
			Scheme: vscript.SchemePreimage, Covenant: true,
		}

	case LevelUltimate:
		p = vscript.Policy{
			Scheme: vscript.SchemeWOTS16, Covenant: true,
		}

	default:
		return p, fmt.Errorf("%w: %q", ErrUnknownSecurityLevel, l)
	}
	p.LockTime = lockTime

	return p, nil
}

// LockType says how a lock time is interpreted.
type LockType string

const (
	// LockBlockHeight locks until a block height.
	LockBlockHeight LockType = "blockheight"

	// LockTimestamp locks until a unix timestamp.
	LockTimestamp LockType = "timestamp"
)

// lockTimeThreshold is the value below which lock times are block heights.
const lockTimeThreshold = 500_000_000

// validate checks lockTime lies in the range of the lock type.
func (t LockType) validate(lockTime uint32) error {
	switch t {
	case LockBlockHeight:
		if lockTime == 0 || lockTime >= lockTimeThreshold {
			return fmt.Errorf("%w: block height %d out of range",
				ErrInvalidLockTime, lockTime)
		}

	case LockTimestamp:
		if lockTime < lockTimeThreshold {
			return fmt.Errorf("%w: timestamp %d is before the lock "+
				"time threshold", ErrInvalidLockTime, lockTime)
		}

	default:
		return fmt.Errorf("%w: unknown lock type %q",
			ErrInvalidLockTime, t)
	}

	return nil
}

// lockTypeOf infers the lock type from a lock time value.
func lockTypeOf(lockTime uint32) LockType {
	if lockTime < lockTimeThreshold {
		return LockBlockHeight
	}

	return LockTimestamp
}

// networks are the ledgers a vault can be created for.
var networks = map[string]*chaincfg.Params{
	chaincfg.MainNetParams.Name:       &chaincfg.MainNetParams,
	chaincfg.TestNet3Params.Name:      &chaincfg.TestNet3Params,
	chaincfg.RegressionNetParams.Name: &chaincfg.RegressionNetParams,
}

// NetworkParams returns the chain parameters of a network name.
func NetworkParams(name string) (*chaincfg.Params, error) {
	params, ok := networks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, name)
	}

	return params, nil
}
