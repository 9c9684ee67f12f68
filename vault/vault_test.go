package vault

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/quantumvault/qvault/hashutil"
	"github.com/quantumvault/qvault/vaulterr"
	"github.com/quantumvault/qvault/vscript"
	"github.com/quantumvault/qvault/wots"
	"github.com/stretchr/testify/require"
)

func createVault(t *testing.T, level SecurityLevel,
	lockTime fn.Option[uint32]) *Record {

	t.Helper()

	rec, err := Create(CreateOptions{
		SecurityLevel: level,
		LockTime:      lockTime,
		Network:       &chaincfg.RegressionNetParams,
	})
	require.NoError(t, err)

	return rec
}

// mutateSecret decodes a secret, applies f and re-encodes it.
func mutateSecret(t *testing.T, blob string, f func(s *Secret)) string {
	t.Helper()

	s, err := DecodeSecret(blob)
	require.NoError(t, err)
	f(s)

	out, err := s.Encode()
	require.NoError(t, err)

	return out
}

func TestCreateLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level      SecurityLevel
		lockTime   fn.Option[uint32]
		scheme     vscript.Scheme
		covenant   bool
		scriptSize int
	}{
		{
			level:      LevelStandard,
			scheme:     vscript.SchemePreimage,
			scriptSize: 35,
		},
		{
			level:      LevelEnhanced,
			lockTime:   fn.Some(uint32(850_000)),
			scheme:     vscript.SchemePreimage,
			scriptSize: 41,
		},
		{
			level:      LevelMaximum,
			scheme:     vscript.SchemePreimage,
			covenant:   true,
			scriptSize: 35 + 42,
		},
		{
			level:      LevelUltimate,
			scheme:     vscript.SchemeWOTS16,
			covenant:   true,
			scriptSize: wots.WOTS16Chunks*88 + 42,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(string(test.level), func(t *testing.T) {
			t.Parallel()

			rec := createVault(t, test.level, test.lockTime)

			require.Equal(t, test.scheme, rec.Policy.Scheme)
			require.Equal(t, test.covenant, rec.Policy.Covenant)
			require.Len(t, rec.LockingScript, test.scriptSize)
			require.Equal(t, test.covenant, rec.CovenantKey != nil)

			switch test.scheme {
			case vscript.SchemePreimage:
				require.NotNil(t, rec.Keypair)
				require.Nil(t, rec.WOTS16)
			case vscript.SchemeWOTS16:
				require.Nil(t, rec.Keypair)
				require.NotNil(t, rec.WOTS16)
			}

			// The two script hashes are different encodings.
			require.Equal(t, hex.EncodeToString(
				hashutil.Hash160(rec.LockingScript),
			), rec.ShortHash)
			require.Len(t, rec.LongHash, 64)
			require.Equal(t, hex.EncodeToString(hashutil.ReverseBytes(
				hashutil.SHA256(rec.LockingScript),
			)), rec.LongHash)

			ok, err := MatchesScript(rec.ID, rec.LockingScript)
			require.NoError(t, err)
			require.True(t, ok)
		})
	}
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()

	_, err := Create(CreateOptions{SecurityLevel: LevelEnhanced})
	require.ErrorIs(t, err, ErrInvalidLockTime)
	require.ErrorIs(t, err, vaulterr.ErrValidation)

	_, err = Create(CreateOptions{SecurityLevel: "paranoid"})
	require.ErrorIs(t, err, ErrUnknownSecurityLevel)

	_, err = Create(CreateOptions{
		SecurityLevel: LevelEnhanced,
		LockTime:      fn.Some(uint32(1_700_000_000)),
		LockType:      LockBlockHeight,
	})
	require.ErrorIs(t, err, ErrInvalidLockTime)

	_, err = Create(CreateOptions{
		SecurityLevel: LevelEnhanced,
		LockTime:      fn.Some(uint32(800_000)),
		LockType:      LockTimestamp,
	})
	require.ErrorIs(t, err, ErrInvalidLockTime)

	// A secret naming a network Restore cannot resolve would lock the
	// funds for good.
	_, err = Create(CreateOptions{
		SecurityLevel: LevelStandard,
		Network:       &chaincfg.SimNetParams,
	})
	require.ErrorIs(t, err, ErrUnknownNetwork)
	require.ErrorIs(t, err, vaulterr.ErrValidation)

	custom := chaincfg.RegressionNetParams
	custom.Net = chaincfg.SimNetParams.Net
	_, err = Create(CreateOptions{
		SecurityLevel: LevelStandard,
		Network:       &custom,
	})
	require.ErrorIs(t, err, ErrUnknownNetwork)
}

// TestCreateRestoreNetworks asserts a vault created on every accepted
// network restores onto the same network.
func TestCreateRestoreNetworks(t *testing.T) {
	t.Parallel()

	for _, params := range []*chaincfg.Params{
		&chaincfg.MainNetParams, &chaincfg.TestNet3Params,
		&chaincfg.RegressionNetParams,
	} {
		rec, err := Create(CreateOptions{
			SecurityLevel: LevelStandard,
			Network:       params,
		})
		require.NoError(t, err, params.Name)

		restored, err := Restore(rec.Secret)
		require.NoError(t, err, params.Name)
		require.Same(t, params, restored.Network)
		require.Equal(t, rec.ID, restored.ID)
	}
}

func TestCreateEntropyFailure(t *testing.T) {
	t.Parallel()

	_, err := Create(CreateOptions{
		SecurityLevel: LevelStandard,
		Rand:          failingReader{},
	})
	require.ErrorIs(t, err, wots.ErrEntropy)
	require.Equal(t, vaulterr.KindFatal, vaulterr.KindOf(err))
	require.False(t, vaulterr.KindOf(err).Recoverable())
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("no entropy")
}

// TestRestoreRoundTrip restores every level twice and compares the
// results with the created record.
func TestRestoreRoundTrip(t *testing.T) {
	t.Parallel()

	for _, level := range Levels {
		lockTime := fn.None[uint32]()
		if level == LevelEnhanced {
			lockTime = fn.Some(uint32(1_900_000_000))
		}
		rec := createVault(t, level, lockTime)

		first, err := Restore(rec.Secret)
		require.NoError(t, err, level)
		second, err := Restore(rec.Secret)
		require.NoError(t, err, level)

		require.Equal(t, first, second)
		require.Equal(t, rec.PublicKeyHash, first.PublicKeyHash)
		require.Equal(t, rec.LockingScript, first.LockingScript)
		require.Equal(t, rec.ID, first.ID)
		require.Equal(t, rec.LongHash, first.LongHash)
		require.Equal(t, rec.Policy, first.Policy)
		require.Equal(t, rec.LockType, first.LockType)
		require.Equal(t, rec.Network.Name, first.Network.Name)

		if rec.CovenantKey != nil {
			require.Equal(t, rec.CovenantKey.Serialize(),
				first.CovenantKey.Serialize())
		}
	}
}

func TestRestoreCorrupted(t *testing.T) {
	t.Parallel()

	standard := createVault(t, LevelStandard, fn.None[uint32]())
	maximum := createVault(t, LevelMaximum, fn.None[uint32]())

	tests := []struct {
		name   string
		blob   string
		mutate func(s *Secret)
	}{
		{
			name: "public key hash",
			blob: standard.Secret,
			mutate: func(s *Secret) {
				s.PublicKeyHash = hex.EncodeToString(
					make([]byte, 32),
				)
			},
		},
		{
			name: "private key",
			blob: standard.Secret,
			mutate: func(s *Secret) {
				var priv string
				require.NoError(t, json.Unmarshal(
					s.PrivateKey, &priv,
				))
				b, _ := hex.DecodeString(priv)
				b[0] ^= 0x01
				s.PrivateKey, _ = json.Marshal(
					hex.EncodeToString(b),
				)
			},
		},
		{
			name: "locking script",
			blob: standard.Secret,
			mutate: func(s *Secret) {
				s.LockingScript = s.LockingScript[:68] + "88"
			},
		},
		{
			name: "ephemeral public key",
			blob: maximum.Secret,
			mutate: func(s *Secret) {
				other, err := btcec.NewPrivateKey()
				require.NoError(t, err)

				s.UnlockInfo.EphemeralPublicKey = hex.EncodeToString(
					other.PubKey().SerializeCompressed(),
				)
			},
		},
		{
			name: "ephemeral private key",
			blob: maximum.Secret,
			mutate: func(s *Secret) {
				s.UnlockInfo.EphemeralPrivateKey = "00"
			},
		},
	}

	for _, test := range tests {
		blob := mutateSecret(t, test.blob, test.mutate)

		_, err := Restore(blob)
		require.ErrorIs(t, err, ErrCorruptedSecret, test.name)
		require.Equal(t, vaulterr.KindIntegrity, vaulterr.KindOf(err),
			test.name)
	}
}

func TestRestoreMalformed(t *testing.T) {
	t.Parallel()

	rec := createVault(t, LevelUltimate, fn.None[uint32]())

	tests := []struct {
		name string
		blob string
		err  error
	}{
		{
			name: "not base64",
			blob: "%%%",
			err:  ErrMalformedSecret,
		},
		{
			name: "not json",
			blob: base64.StdEncoding.EncodeToString([]byte("{")),
			err:  ErrMalformedSecret,
		},
		{
			name: "version",
			blob: base64.StdEncoding.EncodeToString(
				[]byte(`{"version":2}`),
			),
			err: ErrUnsupportedVersion,
		},
		{
			name: "level",
			blob: mutateSecret(t, rec.Secret, func(s *Secret) {
				s.SecurityLevel = "legendary"
			}),
			err: ErrUnknownSecurityLevel,
		},
		{
			name: "scheme mismatch",
			blob: mutateSecret(t, rec.Secret, func(s *Secret) {
				s.ScriptType = "preimage"
			}),
			err: ErrMalformedSecret,
		},
		{
			name: "network",
			blob: mutateSecret(t, rec.Secret, func(s *Secret) {
				s.Network = "bsv-stn"
			}),
			err: ErrUnknownNetwork,
		},
		{
			name: "short scalar",
			blob: mutateSecret(t, rec.Secret, func(s *Secret) {
				var key wots16PrivateKey
				require.NoError(t, json.Unmarshal(
					s.PrivateKey, &key,
				))
				key.Scalars[3] = key.Scalars[3][2:]
				s.PrivateKey, _ = json.Marshal(key)
			}),
			err: ErrMalformedSecret,
		},
		{
			name: "missing scalar",
			blob: mutateSecret(t, rec.Secret, func(s *Secret) {
				var key wots16PrivateKey
				require.NoError(t, json.Unmarshal(
					s.PrivateKey, &key,
				))
				key.Scalars = key.Scalars[1:]
				key.Chunks--
				s.PrivateKey, _ = json.Marshal(key)
			}),
			err: wots.ErrLengthMismatch,
		},
	}

	for _, test := range tests {
		_, err := Restore(test.blob)
		require.ErrorIs(t, err, test.err, test.name)
		require.Equal(t, vaulterr.KindValidation, vaulterr.KindOf(err),
			test.name)
	}
}

// TestSecretLayout pins the JSON field names of the credential.
func TestSecretLayout(t *testing.T) {
	t.Parallel()

	rec := createVault(t, LevelEnhanced, fn.Some(uint32(900_000)))

	raw, err := base64.StdEncoding.DecodeString(rec.Secret)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))

	for _, name := range []string{
		"version", "privateKey", "publicKeyHash", "lockingScript",
		"scriptType", "securityLevel", "lockTime", "unlockInfo",
		"network",
	} {
		require.Contains(t, fields, name)
	}

	require.JSONEq(t, `1`, string(fields["version"]))
	require.JSONEq(t, `900000`, string(fields["lockTime"]))
	require.JSONEq(t, `"preimage"`, string(fields["scriptType"]))
	require.JSONEq(t, `"enhanced"`, string(fields["securityLevel"]))
	require.JSONEq(t, `"regtest"`, string(fields["network"]))
	require.JSONEq(t, `"blockheight"`, string(fields["lockType"]))
}
