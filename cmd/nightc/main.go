// Command nightc consolidates accumulated Night rewards from many wallet
// addresses into one destination address.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/night-consolidator/config"
	"github.com/Klingon-tech/night-consolidator/internal/log"
)

const version = "0.1.0"

const shortDescription = "nightc - batch Night reward consolidation"

const longDescription = `
nightc signs a donation message with every address of a local wallet and
submits the signed batch to the rewards API, assigning everything accumulated
by those addresses to a single destination. Each run is recorded in a session
log directory and in the local consolidation history.
`

var (
	dataDir    string
	configFile string
	testnet    bool

	// cfg is loaded before any subcommand runs.
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:               "nightc",
		Short:             shortDescription,
		Long:              longDescription,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadConfig,
	}
)

// flagKeys maps command-line flags to config keys. Only flags the user set
// override the file and environment.
var flagKeys = map[string]string{
	"log-level":   "log.level",
	"log-file":    "log.file",
	"log-json":    "log.json",
	"endpoint":    "api.endpoint",
	"timeout":     "api.timeout",
	"delay":       "api.delay",
	"wallet":      "wallet.name",
	"count":       "wallet.count",
	"session-dir": "session.dir",
	"addr":        "launcher.addr",
	"port":        "launcher.port",
	"inline":      "launcher.inline",
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&dataDir, "datadir", "", "data directory (default ~/.nightc)")
	pf.StringVar(&configFile, "config", "", "config file path (default <datadir>/nightc.conf)")
	pf.BoolVar(&testnet, "testnet", false, "use testnet addresses and data")
	pf.String("log-level", "", "logging level (debug, info, warn, error)")
	pf.String("log-file", "", "also write JSON logs to this file")
	pf.Bool("log-json", false, "log JSON instead of console output")
	pf.String("wallet", "", "wallet name")
	pf.String("session-dir", "", "session log root (default ~/NightConsolidation)")
	cobra.CheckErr(rootCmd.MarkPersistentFlagFilename("config", "conf"))

	// register all commands and their subcommands
	rootCmd.AddCommand(walletCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(donateCmd)
	rootCmd.AddCommand(donateBatchCmd)
	rootCmd.AddCommand(launcherCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// loadConfig layers defaults, file, environment and set flags.
func loadConfig(cmd *cobra.Command, _ []string) error {
	opts := config.Options{
		DataDir:    dataDir,
		ConfigFile: configFile,
		Overrides:  make(map[string]string),
	}
	if testnet {
		opts.Network = config.Testnet
	}
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			opts.Overrides[key] = f.Value.String()
		}
	}

	c, err := config.Load(opts)
	if err != nil {
		return err
	}
	if err := log.Init(c.Log.Level, c.Log.JSON, c.Log.File); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	cfg = c
	log.Logger.Debug().
		Str("datadir", cfg.DataDir).
		Str("network", string(cfg.Network)).
		Str("endpoint", cfg.API.Endpoint).
		Msg("Configuration loaded")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
