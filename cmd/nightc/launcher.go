package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/night-consolidator/internal/donation"
	"github.com/Klingon-tech/night-consolidator/internal/launcher"
	"github.com/Klingon-tech/night-consolidator/internal/log"
)

var launcherCmd = &cobra.Command{
	Use:   "launcher",
	Short: "Run the local launcher service",
	Long: `
The launcher listens on loopback for consolidation requests from the local UI
or from "nightc consolidate --via-launcher". Each request starts a donation
worker, by default a separate nightc process, and the result is served on
GET /result once the worker has written it.
`,
	Args: cobra.NoArgs,
	RunE: runLauncher,
}

var launcherHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that a launcher is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := launcherClient(cmd).Health(context.Background()); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}

var launcherStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask a running launcher to shut down",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := launcherClient(cmd).Shutdown(context.Background()); err != nil {
			return err
		}
		fmt.Println("Launcher shutting down.")
		return nil
	},
}

func init() {
	f := launcherCmd.Flags()
	f.String("addr", "", "listen address (default launcher.addr)")
	f.Int("port", 0, "listen port (default launcher.port)")
	f.Bool("inline", false, "run workers in this process instead of child processes")
	f.String("endpoint", "", "donation API base URL for inline workers")
	f.Duration("delay", 0, "pause between consecutive requests for inline workers")

	launcherCmd.PersistentFlags().String("url", "", "launcher base URL for health/stop")
	launcherCmd.AddCommand(launcherHealthCmd, launcherStopCmd)
}

func launcherClient(cmd *cobra.Command) *launcher.Client {
	url, _ := cmd.Flags().GetString("url")
	if url == "" {
		url = cfg.Launcher.URL()
	}
	return launcher.NewClient(launcher.ClientConfig{BaseURL: url})
}

func runLauncher(cmd *cobra.Command, _ []string) error {
	var spawner launcher.Spawner
	if cfg.Launcher.Inline {
		spawner = &launcher.InlineSpawner{
			Client: donation.NewClient(donationConfig()),
			Output: os.Stdout,
		}
	} else {
		args := []string{"--datadir", cfg.DataDir}
		if configFile != "" {
			args = append(args, "--config", configFile)
		}
		if testnet {
			args = append(args, "--testnet")
		}
		spawner = &launcher.ExecSpawner{Args: args}
	}

	srv, err := launcher.New(launcher.Config{
		Addr:        cfg.Launcher.ListenAddr(),
		CORSOrigins: cfg.Launcher.CORSOrigins,
		WorkDir:     cfg.LauncherDir(),
		Spawner:     spawner,
	})
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	fmt.Printf("Launcher listening on http://%s\n", srv.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Launcher.Info().Str("signal", sig.String()).Msg("Shutting down")
		return srv.Stop()
	case <-srv.Done():
		return nil
	}
}
