package vault

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/quantumvault/qvault/vscript"
	"github.com/quantumvault/qvault/wots"
)

// SecretVersion is the only secret layout this code reads and writes.
const SecretVersion = 1

// Secret is the persisted credential of a vault. It is handed to the
// caller as base64 of its JSON encoding and is the only way to spend.
type Secret struct {
	Version       int             `json:"version"`
	PrivateKey    json.RawMessage `json:"privateKey"`
	PublicKeyHash string          `json:"publicKeyHash"`
	LockingScript string          `json:"lockingScript"`
	ScriptType    string          `json:"scriptType"`
	SecurityLevel string          `json:"securityLevel"`
	LockTime      *uint32         `json:"lockTime"`
	LockType      string          `json:"lockType,omitempty"`
	UnlockInfo    UnlockInfo      `json:"unlockInfo"`
	Network       string          `json:"network"`
}

// UnlockInfo holds what a spend needs besides the hash based key.
type UnlockInfo struct {
	// Covenant is set when the locking script ends in a covenant
	// clause.
	Covenant bool `json:"covenant"`

	// EphemeralPrivateKey is the hex encoded covenant key.
	EphemeralPrivateKey string `json:"ephemeralPrivateKey,omitempty"`

	// EphemeralPublicKey is the compressed public covenant key as
	// embedded in the locking script.
	EphemeralPublicKey string `json:"ephemeralPublicKey,omitempty"`
}

// wots16PrivateKey is the structured private key of the WOTS-16 scheme.
type wots16PrivateKey struct {
	Scheme  string   `json:"scheme"`
	Chunks  int      `json:"chunks"`
	Scalars []string `json:"scalars"`
}

// Encode returns base64(JSON(s)).
func (s *Secret) Encode() (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeSecret parses a secret blob. Only the encoding and the version are
// checked here.
func DecodeSecret(blob string) (*Secret, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrMalformedSecret, err)
	}

	var s Secret
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: json: %v", ErrMalformedSecret, err)
	}

	if s.Version != SecretVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion,
			s.Version)
	}

	return &s, nil
}

// encodePrivateKey serializes the private scalars of the scheme: a hex
// string for the preimage scheme, a structured object for WOTS-16.
func encodePrivateKey(scheme vscript.Scheme,
	kp *wots.Keypair, w *wots.WOTS16Keypair) (json.RawMessage, error) {

	switch scheme {
	case vscript.SchemePreimage:
		return json.Marshal(hex.EncodeToString(kp.Serialize()))

	case vscript.SchemeWOTS16:
		key := wots16PrivateKey{
			Scheme:  scheme.String(),
			Chunks:  wots.WOTS16Chunks,
			Scalars: make([]string, wots.WOTS16Chunks),
		}
		for i, s := range w.PrivateScalars {
			key.Scalars[i] = hex.EncodeToString(s[:])
		}

		return json.Marshal(key)

	default:
		return nil, fmt.Errorf("%w: %v", vscript.ErrUnknownScheme,
			scheme)
	}
}

// decodePrivateKey returns the raw concatenated scalars stored for scheme.
func decodePrivateKey(scheme vscript.Scheme,
	raw json.RawMessage) ([]byte, error) {

	switch scheme {
	case vscript.SchemePreimage:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: private key: %v",
				ErrMalformedSecret, err)
		}

		priv, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: private key: %v",
				ErrMalformedSecret, err)
		}

		return priv, nil

	case vscript.SchemeWOTS16:
		var key wots16PrivateKey
		if err := json.Unmarshal(raw, &key); err != nil {
			return nil, fmt.Errorf("%w: private key: %v",
				ErrMalformedSecret, err)
		}
		if key.Scheme != scheme.String() ||
			key.Chunks != len(key.Scalars) {

			return nil, fmt.Errorf("%w: private key header "+
				"scheme=%q chunks=%d scalars=%d",
				ErrMalformedSecret, key.Scheme, key.Chunks,
				len(key.Scalars))
		}

		priv := make([]byte, 0, len(key.Scalars)*wots.ScalarSize)
		for i, s := range key.Scalars {
			b, err := hex.DecodeString(s)
			if err != nil {
				return nil, fmt.Errorf("%w: scalar %d: %v",
					ErrMalformedSecret, i, err)
			}
			if len(b) != wots.ScalarSize {
				return nil, fmt.Errorf("%w: scalar %d has %d "+
					"bytes", ErrMalformedSecret, i, len(b))
			}
			priv = append(priv, b...)
		}

		return priv, nil

	default:
		return nil, fmt.Errorf("%w: %v", vscript.ErrUnknownScheme,
			scheme)
	}
}
