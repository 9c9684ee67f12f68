package vault

import "errors"

var (
	// ErrCorruptedSecret is returned when the public data recomputed from
	// a secret's private keys does not match what the secret stores.
	ErrCorruptedSecret = errors.New("corrupted secret")

	// ErrMalformedSecret is returned when a secret blob cannot be
	// decoded.
	ErrMalformedSecret = errors.New("malformed secret")

	// ErrUnsupportedVersion is returned for a secret version this code
	// does not know how to interpret.
	ErrUnsupportedVersion = errors.New("unsupported secret version")

	// ErrUnknownSecurityLevel is returned for an unrecognized level.
	ErrUnknownSecurityLevel = errors.New("unknown security level")

	// ErrInvalidLockTime is returned when a lock time is missing, or
	// does not fit its lock type.
	ErrInvalidLockTime = errors.New("invalid lock time")

	// ErrUnknownNetwork is returned for an unrecognized network name.
	ErrUnknownNetwork = errors.New("unknown network")

	// ErrInvalidVaultID is returned when a vault identifier is malformed
	// or its checksum does not match.
	ErrInvalidVaultID = errors.New("invalid vault id")

	// ErrInsufficientFunds is returned when the inputs of a spend cannot
	// pay the fee and leave a spendable output.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNoInputs is returned when a spend is requested without funding
	// outputs.
	ErrNoInputs = errors.New("no funding outputs")

	// ErrPreflight is returned when a freshly built spend does not
	// evaluate against its own locking script.
	ErrPreflight = errors.New("spend failed script evaluation")
)
