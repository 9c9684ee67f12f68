package main

import (
	"github.com/btcsuite/btclog"
	"github.com/quantumvault/qvault/build"
	"github.com/quantumvault/qvault/chainsvc"
	"github.com/quantumvault/qvault/scriptvm"
	"github.com/quantumvault/qvault/sighash"
	"github.com/quantumvault/qvault/vault"
	"github.com/quantumvault/qvault/vaultcfg"
	"github.com/quantumvault/qvault/vscript"
	"github.com/quantumvault/qvault/wots"
)

// qvltLog is the logger of the command itself.
var qvltLog = btclog.Disabled

// setupLogging routes every subsystem logger through a rotating log file and
// applies the configured debug levels. The returned function flushes and
// closes the log file.
func setupLogging(cfg *vaultcfg.Config) (func(), error) {
	logRotator, err := build.NewRotatingLogWriter(
		cfg.LogConfig.File, cfg.LogFile(),
	)
	if err != nil {
		return nil, err
	}
	cleanUp := func() {
		_ = logRotator.Close()
	}

	mgr := build.NewSubLoggerManager(logRotator)
	SetupLoggers(mgr)

	if err := build.ParseAndSetDebugLevels(cfg.DebugLevel, mgr); err != nil {
		cleanUp()
		return nil, err
	}

	return cleanUp, nil
}

// SetupLoggers initializes all package-global logger variables.
func SetupLoggers(mgr *build.SubLoggerManager) {
	qvltLog = mgr.GenSubLogger("QVLT")

	wots.UseLogger(mgr.GenSubLogger(wots.Subsystem))
	vscript.UseLogger(mgr.GenSubLogger(vscript.Subsystem))
	scriptvm.UseLogger(mgr.GenSubLogger(scriptvm.Subsystem))
	sighash.UseLogger(mgr.GenSubLogger(sighash.Subsystem))
	vault.UseLogger(mgr.GenSubLogger(vault.Subsystem))
	chainsvc.UseLogger(mgr.GenSubLogger(chainsvc.Subsystem))
}
