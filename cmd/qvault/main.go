package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	flags "github.com/jessevdk/go-flags"
	"github.com/quantumvault/qvault/build"
	"github.com/quantumvault/qvault/vaultcfg"
	"github.com/urfave/cli"
	"golang.org/x/term"
)

const configKey = "config"

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[qvault] %v\n", err)
	os.Exit(1)
}

func main() {
	// Options ahead of the command name configure qvault itself, the
	// rest is the command line of a subcommand.
	cfg, rest, err := vaultcfg.Load(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			return
		}
		fatal(err)
	}

	if cfg.ShowVersion {
		fmt.Println("qvault version", build.Version(),
			"commit="+build.Commit)
		return
	}

	cleanUp, err := setupLogging(cfg)
	if err != nil {
		fatal(err)
	}

	app := newApp(cfg)
	err = app.Run(append([]string{os.Args[0]}, rest...))
	cleanUp()
	if err != nil {
		fatal(err)
	}
}

func newApp(cfg *vaultcfg.Config) *cli.App {
	app := cli.NewApp()
	app.Name = "qvault"
	app.Version = build.Version() + " commit=" + build.Commit
	app.Usage = "create and spend hash based quantum resistant vaults"
	app.Metadata = map[string]interface{}{configKey: cfg}
	app.Commands = []cli.Command{
		createCommand,
		infoCommand,
		decodeIDCommand,
		statusCommand,
		spendCommand,
		verifyCommand,
	}

	return app
}

func getConfig(ctx *cli.Context) *vaultcfg.Config {
	return ctx.App.Metadata[configKey].(*vaultcfg.Config)
}

func printJSON(ctx *cli.Context, resp interface{}) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	var out bytes.Buffer
	_ = json.Indent(&out, b, "", "    ")
	out.WriteString("\n")
	_, err = out.WriteTo(ctx.App.Writer)

	return err
}

var secretFlags = []cli.Flag{
	cli.StringFlag{
		Name: "secret",
		Usage: "the vault secret; use \"-\" to read it from stdin. " +
			"When neither this nor --secret_file is set the " +
			"secret is prompted for",
	},
	cli.StringFlag{
		Name:  "secret_file",
		Usage: "path to a file holding the vault secret",
	},
}

// readSecret returns the secret from the flags, stdin or a terminal prompt.
func readSecret(ctx *cli.Context) (string, error) {
	switch {
	case ctx.String("secret") == "-":
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimSpace(line), nil

	case ctx.IsSet("secret"):
		return ctx.String("secret"), nil

	case ctx.IsSet("secret_file"):
		b, err := os.ReadFile(
			vaultcfg.CleanAndExpandPath(ctx.String("secret_file")),
		)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	secret, err := readPassword("Vault secret: ")
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(secret)), nil
}

// readPassword reads a secret from the terminal without echoing it.
func readPassword(text string) ([]byte, error) {
	fmt.Print(text)

	// The variable syscall.Stdin is of a different type in the Windows API
	// that's why we need the explicit cast. And of course the linter
	// doesn't like it either.
	pw, err := term.ReadPassword(int(syscall.Stdin)) // nolint:unconvert
	fmt.Println()
	return pw, err
}
