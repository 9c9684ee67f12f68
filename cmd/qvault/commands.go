package main

import (
	"encoding/hex"
	"fmt"
	"math"
	"os"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/quantumvault/qvault/vault"
	"github.com/quantumvault/qvault/vscript"
	"github.com/urfave/cli"
)

// vaultInfo is the printable description of a vault.
type vaultInfo struct {
	VaultID       string  `json:"vault_id"`
	SecurityLevel string  `json:"security_level"`
	Policy        string  `json:"policy"`
	LockTime      *uint32 `json:"lock_time,omitempty"`
	LockType      string  `json:"lock_type,omitempty"`
	Network       string  `json:"network"`
	LockingScript string  `json:"locking_script"`
	ScriptASM     string  `json:"script_asm"`
	ScriptSize    int     `json:"script_size"`
	ShortHash     string  `json:"short_hash"`
	ScriptHash    string  `json:"script_hash"`
	Secret        string  `json:"secret,omitempty"`
}

func newVaultInfo(rec *vault.Record) (*vaultInfo, error) {
	asm, err := vscript.Disasm(rec.LockingScript)
	if err != nil {
		return nil, err
	}

	info := &vaultInfo{
		VaultID:       rec.ID,
		SecurityLevel: string(rec.SecurityLevel),
		Policy:        rec.Policy.String(),
		Network:       rec.Network.Name,
		LockingScript: hex.EncodeToString(rec.LockingScript),
		ScriptASM:     asm,
		ScriptSize:    len(rec.LockingScript),
		ShortHash:     rec.ShortHash,
		ScriptHash:    rec.LongHash,
	}
	rec.Policy.LockTime.WhenSome(func(lt uint32) {
		info.LockTime = &lt
		info.LockType = string(rec.LockType)
	})

	return info, nil
}

var createCommand = cli.Command{
	Name:     "create",
	Category: "Vault",
	Usage:    "Create a new vault.",
	Description: `
	Mint fresh key material for a vault of the given security level and
	print its identifier, locking script and secret.

	The secret is the only way to spend the vault. Store it offline, it is
	never written anywhere by this command.
	`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name: "level",
			Usage: "the security level: standard, enhanced, " +
				"maximum or ultimate",
			Value: string(vault.LevelStandard),
		},
		cli.Uint64Flag{
			Name: "locktime",
			Usage: "block height or unix timestamp before which " +
				"the vault cannot be spent; required by the " +
				"enhanced level",
		},
		cli.StringFlag{
			Name: "locktype",
			Usage: "blockheight or timestamp, inferred from the " +
				"lock time if unset",
		},
	},
	Action: create,
}

func create(ctx *cli.Context) error {
	cfg := getConfig(ctx)

	level, err := vault.ParseSecurityLevel(ctx.String("level"))
	if err != nil {
		return err
	}

	net, err := vault.NetworkParams(cfg.Network)
	if err != nil {
		return err
	}

	lockTime := fn.None[uint32]()
	if ctx.IsSet("locktime") {
		lt := ctx.Uint64("locktime")
		if lt > math.MaxUint32 {
			return fmt.Errorf("lock time %d out of range", lt)
		}
		lockTime = fn.Some(uint32(lt))
	}

	rec, err := vault.Create(vault.CreateOptions{
		SecurityLevel: level,
		LockTime:      lockTime,
		LockType:      vault.LockType(ctx.String("locktype")),
		Network:       net,
	})
	if err != nil {
		return err
	}
	defer rec.Zero()

	qvltLog.Infof("Created %v", rec)

	info, err := newVaultInfo(rec)
	if err != nil {
		return err
	}
	info.Secret = rec.Secret

	fmt.Fprintln(os.Stderr, "Keep the secret safe: anyone holding it "+
		"can spend the vault.")

	return printJSON(ctx, info)
}

var infoCommand = cli.Command{
	Name:     "info",
	Category: "Vault",
	Usage:    "Restore a vault from its secret and show its details.",
	Description: `
	Decode a vault secret, check that the stored public data matches the
	key material and print the vault without its secret.
	`,
	Flags:  secretFlags,
	Action: info,
}

func restoreFromFlags(ctx *cli.Context) (*vault.Record, error) {
	secret, err := readSecret(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to read secret: %w", err)
	}

	return vault.Restore(secret)
}

func info(ctx *cli.Context) error {
	rec, err := restoreFromFlags(ctx)
	if err != nil {
		return err
	}
	defer rec.Zero()

	info, err := newVaultInfo(rec)
	if err != nil {
		return err
	}

	return printJSON(ctx, info)
}

var decodeIDCommand = cli.Command{
	Name:      "decodeid",
	Category:  "Vault",
	Usage:     "Decode a vault identifier.",
	ArgsUsage: "vault_id",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name: "locking_script",
			Usage: "hex locking script to check the identifier " +
				"against",
		},
	},
	Action: decodeID,
}

type decodedID struct {
	VaultID   string `json:"vault_id"`
	ShortHash string `json:"short_hash"`
	Matches   *bool  `json:"matches_script,omitempty"`
}

func decodeID(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "decodeid")
	}
	id := ctx.Args().First()

	h, err := vault.ParseVaultID(id)
	if err != nil {
		return err
	}

	resp := decodedID{
		VaultID:   id,
		ShortHash: hex.EncodeToString(h[:]),
	}

	if ctx.IsSet("locking_script") {
		script, err := hex.DecodeString(ctx.String("locking_script"))
		if err != nil {
			return fmt.Errorf("invalid locking script: %w", err)
		}

		ok, err := vault.MatchesScript(id, script)
		if err != nil {
			return err
		}
		resp.Matches = &ok
	}

	return printJSON(ctx, resp)
}
