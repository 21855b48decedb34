package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/night-consolidator/internal/donation"
	"github.com/Klingon-tech/night-consolidator/internal/launcher"
	"github.com/Klingon-tech/night-consolidator/internal/orchestrator"
	"github.com/Klingon-tech/night-consolidator/internal/records"
	"github.com/Klingon-tech/night-consolidator/internal/wallet"
	"github.com/Klingon-tech/night-consolidator/pkg/types"
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Sign and submit donations from wallet addresses to one destination",
	Long: `
Consolidate signs "Assign accumulated Scavenger rights to: <destination>" with
every selected wallet address and submits the signed batch. The destination
is either an external address (--dest) or one of the wallet's own addresses
(--dest-index). Sources equal to the destination are skipped.
`,
	Args: cobra.NoArgs,
	RunE: runConsolidate,
}

func init() {
	f := consolidateCmd.Flags()
	f.String("dest", "", "destination address")
	f.Int("dest-index", -1, "use the wallet address with this index as destination")
	f.String("indices", "", "source address indices, e.g. 0-9,12 (default all wallet addresses)")
	f.String("retry-failed", "", "retry only the failed addresses of this session ID")
	f.Bool("skip-consolidated", false, "skip sources already consolidated to this destination")
	f.String("label", "", "custom session log directory label")
	f.Bool("via-launcher", false, "submit through a running launcher service")
	f.String("launcher-url", "", "launcher base URL (default from launcher.addr and launcher.port)")
	f.String("endpoint", "", "donation API base URL")
	f.Duration("timeout", 0, "per-request timeout")
	f.Duration("delay", 0, "pause between consecutive requests")
	consolidateCmd.MarkFlagsMutuallyExclusive("dest", "dest-index")
	consolidateCmd.MarkFlagsMutuallyExclusive("indices", "retry-failed")
}

func runConsolidate(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	destFlag, _ := flags.GetString("dest")
	destIndex, _ := flags.GetInt("dest-index")
	indicesFlag, _ := flags.GetString("indices")
	retryID, _ := flags.GetString("retry-failed")
	skipDone, _ := flags.GetBool("skip-consolidated")
	label, _ := flags.GetString("label")
	viaLauncher, _ := flags.GetBool("via-launcher")
	launcherURL, _ := flags.GetString("launcher-url")

	ks, err := openKeystore()
	if err != nil {
		return err
	}
	signer := wallet.NewSigner(ks, cfg.Wallet.Name)
	entries, err := signer.Addresses()
	if err != nil {
		return err
	}

	req := orchestrator.Request{SessionLabel: label}
	switch {
	case destIndex >= 0:
		entry, ok := findEntry(entries, destIndex)
		if !ok {
			return fmt.Errorf("wallet %q has no address with index %d", cfg.Wallet.Name, destIndex)
		}
		req.Destination = entry.Bech32
		req.DestinationMode = records.ModeWallet
		req.DestinationIndex = &destIndex
	case destFlag != "":
		hrp, _, err := types.ParseAddress(destFlag)
		if err != nil {
			return fmt.Errorf("invalid destination address: %w", err)
		}
		if hrp != cfg.Network.HRP() {
			return fmt.Errorf("destination is a %q address, expected %q for %s", hrp, cfg.Network.HRP(), cfg.Network)
		}
		req.Destination = destFlag
		req.DestinationMode = records.ModeCustom
	default:
		return fmt.Errorf("a destination is required (--dest or --dest-index)")
	}

	store := openRecords()
	defer store.Close()
	if !store.Persistent() {
		fmt.Fprintln(os.Stderr, "Warning: consolidation history is unavailable, this run will not be recorded.")
	}

	switch {
	case retryID != "":
		req.Sources, err = store.FailedSources(retryID)
		if err != nil {
			return err
		}
		if len(req.Sources) == 0 {
			fmt.Printf("Session %s has no failed addresses to retry.\n", retryID)
			return nil
		}
	case indicesFlag != "":
		indices, err := parseIndices(indicesFlag)
		if err != nil {
			return err
		}
		for _, idx := range indices {
			entry, ok := findEntry(entries, idx)
			if !ok {
				return fmt.Errorf("wallet %q has no address with index %d (derive more with `nightc wallet derive`)", cfg.Wallet.Name, idx)
			}
			req.Sources = append(req.Sources, entry.Source())
		}
	default:
		for _, e := range entries {
			req.Sources = append(req.Sources, e.Source())
		}
	}

	if skipDone {
		kept := req.Sources[:0]
		for _, src := range req.Sources {
			if store.HasBeenConsolidated(src.Bech32, req.Destination) {
				fmt.Printf("  skipping [%d] %s (already consolidated)\n", src.Index, types.Preview(src.Bech32, 40))
				continue
			}
			kept = append(kept, src)
		}
		req.Sources = kept
	}
	if len(req.Sources) == 0 {
		fmt.Println("No source addresses to consolidate.")
		return nil
	}

	var submitter orchestrator.Submitter
	if viaLauncher {
		if launcherURL == "" {
			launcherURL = cfg.Launcher.URL()
		}
		lc := launcher.NewClient(launcher.ClientConfig{
			BaseURL:      launcherURL,
			PollInterval: cfg.Launcher.PollInterval,
			SingleWait:   cfg.Launcher.SingleWait,
			BatchWait:    cfg.Launcher.BatchWait,
			SessionLabel: label,
		})
		if err := lc.Health(context.Background()); err != nil {
			return fmt.Errorf("launcher not reachable at %s (start it with `nightc launcher`): %w", launcherURL, err)
		}
		submitter = lc
	} else {
		submitter = donation.NewClient(donationConfig())
	}

	password, err := readPassword("Wallet password: ")
	if err != nil {
		return err
	}
	req.Password = string(password)

	fmt.Printf("Consolidating %d addresses into %s\n\n", len(req.Sources), req.Destination)
	printer := &progressPrinter{}
	req.OnProgress = printer.print

	orch := orchestrator.New(orchestrator.Config{
		Signer:      signer,
		Submitter:   submitter,
		Records:     store,
		SessionRoot: sessionRoot(),
	})
	ctx, cancel := signalContext(orch.Stop)
	defer cancel()

	outcomes, err := orch.Consolidate(ctx, req)
	if err != nil {
		if errors.Is(err, wallet.ErrAuthentication) {
			return fmt.Errorf("incorrect wallet password")
		}
		return err
	}
	printSummary(req.Destination, outcomes, len(req.Sources))
	return nil
}

func findEntry(entries []wallet.AddressEntry, index int) (wallet.AddressEntry, bool) {
	for _, e := range entries {
		if e.Index == index {
			return e, true
		}
	}
	return wallet.AddressEntry{}, false
}

// progressPrinter prints progress log lines that were not printed yet.
type progressPrinter struct {
	last string
}

func (p *progressPrinter) print(pr orchestrator.Progress) {
	start := 0
	if p.last != "" {
		for i := len(pr.Logs) - 1; i >= 0; i-- {
			if pr.Logs[i] == p.last {
				start = i + 1
				break
			}
		}
	}
	for _, line := range pr.Logs[start:] {
		fmt.Println(line)
	}
	if len(pr.Logs) > 0 {
		p.last = pr.Logs[len(pr.Logs)-1]
	}
}
