package vault

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/quantumvault/qvault/hashutil"
	"github.com/quantumvault/qvault/vaulterr"
)

const (
	// VaultIDPrefix starts every vault identifier.
	VaultIDPrefix = "qv"

	idHashSize     = 20
	idChecksumSize = 4
)

// NewVaultID derives the display identifier of a locking script: the
// prefix followed by base58 of its Hash160 and a four byte double SHA-256
// checksum. It is never used to verify anything.
func NewVaultID(lockingScript []byte) string {
	h := hashutil.Hash160(lockingScript)

	payload := make([]byte, 0, idHashSize+idChecksumSize)
	payload = append(payload, h...)
	payload = append(payload, chainhash.DoubleHashB(h)[:idChecksumSize]...)

	return VaultIDPrefix + base58.Encode(payload)
}

// ParseVaultID validates an identifier and returns the script Hash160 it
// encodes.
func ParseVaultID(id string) ([idHashSize]byte, error) {
	const op = "vault.ParseVaultID"

	var h [idHashSize]byte

	invalid := func(format string, args ...interface{}) error {
		return vaulterr.Wrap(vaulterr.KindValidation, op,
			ErrInvalidVaultID, format, args...)
	}

	if !strings.HasPrefix(id, VaultIDPrefix) {
		return h, invalid("missing %q prefix", VaultIDPrefix)
	}

	// base58.Decode returns an empty slice for invalid characters.
	payload := base58.Decode(strings.TrimPrefix(id, VaultIDPrefix))
	if len(payload) != idHashSize+idChecksumSize {
		return h, invalid("bad length or encoding")
	}

	sum := chainhash.DoubleHashB(payload[:idHashSize])[:idChecksumSize]
	if !bytes.Equal(sum, payload[idHashSize:]) {
		return h, invalid("checksum mismatch")
	}

	copy(h[:], payload)

	return h, nil
}

// MatchesScript reports whether id was derived from lockingScript.
func MatchesScript(id string, lockingScript []byte) (bool, error) {
	h, err := ParseVaultID(id)
	if err != nil {
		return false, err
	}

	return bytes.Equal(h[:], hashutil.Hash160(lockingScript)), nil
}

// String formats the identifying hashes of a record.
func (r *Record) String() string {
	return fmt.Sprintf("vault %s (%s, short=%s long=%s)", r.ID,
		r.SecurityLevel, r.ShortHash, r.LongHash)
}
