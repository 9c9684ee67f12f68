// Package vault creates, restores and spends hash locked vaults. It is
// stateless: every operation derives what it needs from the caller's secret.
package vault

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/quantumvault/qvault/hashutil"
	"github.com/quantumvault/qvault/vaulterr"
	"github.com/quantumvault/qvault/vscript"
	"github.com/quantumvault/qvault/wots"
)

// CreateOptions configures a new vault.
type CreateOptions struct {
	// SecurityLevel selects the spending conditions.
	SecurityLevel SecurityLevel

	// LockTime is required for LevelEnhanced and optional otherwise.
	LockTime fn.Option[uint32]

	// LockType says how LockTime is interpreted. When empty it is
	// inferred from the value.
	LockType LockType

	// Network defaults to mainnet.
	Network *chaincfg.Params

	// Rand is the entropy source, crypto/rand when nil.
	Rand io.Reader
}

// Record is an in-memory vault. It holds private keys and must not
// outlive the operation it was created or restored for.
type Record struct {
	// ID is the shareable vault identifier.
	ID string

	SecurityLevel SecurityLevel
	Policy        vscript.Policy
	LockType      LockType
	Network       *chaincfg.Params

	// Keypair is set for the preimage scheme, WOTS16 for the WOTS-16
	// scheme.
	Keypair *wots.Keypair
	WOTS16  *wots.WOTS16Keypair

	// CovenantKey is the ephemeral key of the covenant clause, nil
	// without a covenant.
	CovenantKey *btcec.PrivateKey

	// PublicKeyHash is the hash of the active keypair's commitments.
	PublicKeyHash [32]byte

	// LockingScript is the bare script funds are sent to.
	LockingScript []byte

	// ShortHash is the hex Hash160 of the locking script, used for
	// display and in the vault ID.
	ShortHash string

	// LongHash is the byte reversed hex SHA-256 of the locking script,
	// the key ledger indexers look scripts up by.
	LongHash string

	// Secret is the encoded credential.
	Secret string
}

// Create mints the key material of a new vault, synthesizes its locking
// script and serializes its secret.
func Create(opts CreateOptions) (*Record, error) {
	const op = "vault.Create"

	policy, err := opts.SecurityLevel.Policy(opts.LockTime)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindValidation, op, err,
			"invalid options")
	}

	lockType := opts.LockType
	err = fn.MapOptionZ(opts.LockTime, func(lt uint32) error {
		if lockType == "" {
			lockType = lockTypeOf(lt)
		}
		return lockType.validate(lt)
	})
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindValidation, op, err,
			"invalid options")
	}

	rec := &Record{
		SecurityLevel: opts.SecurityLevel,
		Policy:        policy,
		LockType:      lockType,
		Network:       opts.Network,
	}
	if rec.Network == nil {
		rec.Network = &chaincfg.MainNetParams
	}

	// The secret names the network, so only networks Restore resolves
	// can be used.
	net, err := NetworkParams(rec.Network.Name)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindValidation, op, err,
			"invalid options")
	}
	if net.Net != rec.Network.Net {
		return nil, vaulterr.Wrap(vaulterr.KindValidation, op,
			fmt.Errorf("%w: %q has foreign magic %v",
				ErrUnknownNetwork, rec.Network.Name,
				rec.Network.Net), "invalid options")
	}
	rec.Network = net

	entropy := opts.Rand
	if entropy == nil {
		entropy = rand.Reader
	}

	switch policy.Scheme {
	case vscript.SchemePreimage:
		rec.Keypair, err = wots.GenerateKeypair(entropy)
		if err != nil {
			return nil, err
		}
		rec.PublicKeyHash = rec.Keypair.PublicKeyHash

	case vscript.SchemeWOTS16:
		rec.WOTS16, err = wots.GenerateWOTS16(entropy)
		if err != nil {
			return nil, err
		}
		rec.PublicKeyHash = rec.WOTS16.PublicKeyHash
	}

	if policy.Covenant {
		rec.CovenantKey, err = newCovenantKey(entropy)
		if err != nil {
			return nil, vaulterr.Wrap(vaulterr.KindFatal, op, err,
				"unable to generate covenant key")
		}
	}

	if err := rec.synthesize(); err != nil {
		return nil, err
	}

	secret, err := rec.secret()
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindFatal, op, err,
			"unable to encode secret")
	}
	rec.Secret, err = secret.Encode()
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindFatal, op, err,
			"unable to encode secret")
	}

	log.Infof("Created %s vault %s (policy=%v, script=%d bytes)",
		rec.SecurityLevel, rec.ID, rec.Policy, len(rec.LockingScript))

	return rec, nil
}

// newCovenantKey draws a secp256k1 private key from entropy.
func newCovenantKey(entropy io.Reader) (*btcec.PrivateKey, error) {
	var seed [32]byte
	for {
		if _, err := io.ReadFull(entropy, seed[:]); err != nil {
			return nil, fmt.Errorf("%w: %v", wots.ErrEntropy, err)
		}

		// Reject the vanishingly unlikely zero or overflowing seed
		// rather than reducing it.
		var s btcec.ModNScalar
		if overflow := s.SetByteSlice(seed[:]); !overflow &&
			!s.IsZero() {

			priv, _ := btcec.PrivKeyFromBytes(seed[:])
			return priv, nil
		}
	}
}

// Params returns the script parameters of the record.
func (r *Record) Params() vscript.Params {
	params := vscript.Params{
		Policy:        r.Policy,
		PublicKeyHash: r.PublicKeyHash,
	}
	if r.WOTS16 != nil {
		params.Commitments = &r.WOTS16.PublicCommitments
	}
	if r.CovenantKey != nil {
		params.CovenantKey = r.CovenantKey.PubKey()
	}

	return params
}

// synthesize builds the locking script and everything derived from it.
func (r *Record) synthesize() error {
	script, err := vscript.LockingScript(r.Params())
	if err != nil {
		return err
	}

	r.LockingScript = script
	r.ShortHash = hex.EncodeToString(hashutil.Hash160(script))
	r.LongHash = ScriptHash(script)
	r.ID = NewVaultID(script)

	return nil
}

// ScriptHash is the indexer lookup key of a script: its SHA-256 in reversed
// byte order, hex encoded.
func ScriptHash(script []byte) string {
	return hex.EncodeToString(hashutil.ReverseBytes(hashutil.SHA256(script)))
}

func (r *Record) secret() (*Secret, error) {
	priv, err := encodePrivateKey(r.Policy.Scheme, r.Keypair, r.WOTS16)
	if err != nil {
		return nil, err
	}

	s := &Secret{
		Version:       SecretVersion,
		PrivateKey:    priv,
		PublicKeyHash: hex.EncodeToString(r.PublicKeyHash[:]),
		LockingScript: hex.EncodeToString(r.LockingScript),
		ScriptType:    r.Policy.Scheme.String(),
		SecurityLevel: string(r.SecurityLevel),
		LockType:      string(r.LockType),
		UnlockInfo: UnlockInfo{
			Covenant: r.Policy.Covenant,
		},
		Network: r.Network.Name,
	}
	r.Policy.LockTime.WhenSome(func(lt uint32) {
		s.LockTime = &lt
	})
	if r.CovenantKey != nil {
		s.UnlockInfo.EphemeralPrivateKey = hex.EncodeToString(
			r.CovenantKey.Serialize(),
		)
		s.UnlockInfo.EphemeralPublicKey = hex.EncodeToString(
			r.CovenantKey.PubKey().SerializeCompressed(),
		)
	}

	return s, nil
}

// Restore rebuilds a vault from its secret. Every public value is
// recomputed from the private keys and compared with the stored one; any
// difference is reported as a corrupted secret and nothing is returned.
func Restore(blob string) (*Record, error) {
	const op = "vault.Restore"

	validation := func(err error) error {
		return vaulterr.Wrap(vaulterr.KindValidation, op, err,
			"unable to decode secret")
	}
	corrupted := func(format string, args ...interface{}) error {
		return vaulterr.Wrap(vaulterr.KindIntegrity, op,
			ErrCorruptedSecret, format, args...)
	}

	s, err := DecodeSecret(blob)
	if err != nil {
		return nil, validation(err)
	}

	level, err := ParseSecurityLevel(s.SecurityLevel)
	if err != nil {
		return nil, validation(err)
	}

	policy, err := level.Policy(fn.OptionFromPtr(s.LockTime))
	if err != nil {
		return nil, validation(err)
	}

	scheme, err := vscript.ParseScheme(s.ScriptType)
	if err != nil {
		return nil, validation(err)
	}
	if scheme != policy.Scheme || s.UnlockInfo.Covenant != policy.Covenant {
		return nil, validation(fmt.Errorf("%w: script type %s does "+
			"not match level %s", ErrMalformedSecret, scheme, level))
	}

	network, err := NetworkParams(s.Network)
	if err != nil {
		return nil, validation(err)
	}

	lockType := LockType(s.LockType)
	if s.LockTime != nil {
		if lockType == "" {
			lockType = lockTypeOf(*s.LockTime)
		}
		if err := lockType.validate(*s.LockTime); err != nil {
			return nil, validation(err)
		}
	}

	storedHash, err := hex.DecodeString(s.PublicKeyHash)
	if err != nil || len(storedHash) != 32 {
		return nil, validation(fmt.Errorf("%w: public key hash",
			ErrMalformedSecret))
	}
	storedScript, err := hex.DecodeString(s.LockingScript)
	if err != nil {
		return nil, validation(fmt.Errorf("%w: locking script: %v",
			ErrMalformedSecret, err))
	}

	priv, err := decodePrivateKey(scheme, s.PrivateKey)
	if err != nil {
		return nil, validation(err)
	}

	rec := &Record{
		SecurityLevel: level,
		Policy:        policy,
		LockType:      lockType,
		Network:       network,
		Secret:        blob,
	}

	var expected [32]byte
	copy(expected[:], storedHash)

	switch scheme {
	case vscript.SchemePreimage:
		rec.Keypair, err = wots.RestoreKeypair(priv)
		if err != nil {
			return nil, err
		}
		err = rec.Keypair.Verify(expected)
		rec.PublicKeyHash = rec.Keypair.PublicKeyHash

	case vscript.SchemeWOTS16:
		rec.WOTS16, err = wots.RestoreWOTS16(priv)
		if err != nil {
			return nil, err
		}
		err = rec.WOTS16.Verify(expected)
		rec.PublicKeyHash = rec.WOTS16.PublicKeyHash
	}
	if err != nil {
		return nil, corrupted("public key hash %x, recomputed %x",
			expected, rec.PublicKeyHash)
	}

	if policy.Covenant {
		rec.CovenantKey, err = restoreCovenantKey(s.UnlockInfo)
		if err != nil {
			return nil, vaulterr.Wrap(vaulterr.KindIntegrity, op,
				ErrCorruptedSecret, "%v", err)
		}
	}

	if err := rec.synthesize(); err != nil {
		return nil, err
	}
	if !bytes.Equal(rec.LockingScript, storedScript) {
		return nil, corrupted("locking script does not match keys")
	}

	log.Debugf("Restored %s vault %s", rec.SecurityLevel, rec.ID)

	return rec, nil
}

// restoreCovenantKey parses the ephemeral key and checks it against the
// stored public key, when one is stored.
func restoreCovenantKey(info UnlockInfo) (*btcec.PrivateKey, error) {
	raw, err := hex.DecodeString(info.EphemeralPrivateKey)
	if err != nil || len(raw) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("malformed ephemeral key")
	}

	priv, pub := btcec.PrivKeyFromBytes(raw)
	if info.EphemeralPublicKey != "" &&
		info.EphemeralPublicKey !=
			hex.EncodeToString(pub.SerializeCompressed()) {

		return nil, fmt.Errorf("ephemeral public key does not match " +
			"private key")
	}

	return priv, nil
}

// Zero wipes the private key material held by the record.
func (r *Record) Zero() {
	if r.Keypair != nil {
		r.Keypair.Zero()
	}
	if r.WOTS16 != nil {
		r.WOTS16.Zero()
	}
	if r.CovenantKey != nil {
		r.CovenantKey.Zero()
	}
}
