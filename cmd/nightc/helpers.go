package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Klingon-tech/night-consolidator/internal/donation"
	"github.com/Klingon-tech/night-consolidator/internal/records"
	"github.com/Klingon-tech/night-consolidator/internal/session"
	"github.com/Klingon-tech/night-consolidator/internal/wallet"
)

// ── Password input ──────────────────────────────────────────────────────

// stdin is shared so piped input is not lost between prompts.
var stdin = bufio.NewReader(os.Stdin)

func stdinIsTerminal() bool {
	return term.IsTerminal(int(syscall.Stdin))
}

// readLine prompts on stderr and reads one line of visible input.
func readLine(prompt string) (string, error) {
	if stdinIsTerminal() {
		fmt.Fprint(os.Stderr, prompt)
	}
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readPassword reads the wallet password, from NIGHTC_PASSWORD when set.
func readPassword(prompt string) ([]byte, error) {
	return readSecret(prompt, "NIGHTC_PASSWORD")
}

// readSecret prompts on stderr and reads without echo. The env variable
// takes precedence, and without a terminal one line of stdin is used.
func readSecret(prompt, env string) ([]byte, error) {
	if v, ok := os.LookupEnv(env); ok {
		return []byte(v), nil
	}
	if !stdinIsTerminal() {
		line, err := readLine(prompt)
		if err != nil {
			return nil, fmt.Errorf("read password: %w", err)
		}
		return []byte(line), nil
	}
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

// readNewPassword asks twice and requires both entries to match.
func readNewPassword() ([]byte, error) {
	password, err := readPassword("Enter password: ")
	if err != nil {
		return nil, err
	}
	if len(password) == 0 {
		return nil, fmt.Errorf("password must not be empty")
	}
	if _, ok := os.LookupEnv("NIGHTC_PASSWORD"); ok || !stdinIsTerminal() {
		return password, nil
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		return nil, err
	}
	if string(password) != string(confirm) {
		return nil, fmt.Errorf("passwords do not match")
	}
	return password, nil
}

// ── Shared resources ────────────────────────────────────────────────────

func openKeystore() (*wallet.Keystore, error) {
	ks, err := wallet.NewKeystore(cfg.KeystoreDir(), cfg.Network.HRP())
	if err != nil {
		return nil, fmt.Errorf("open keystore: %w", err)
	}
	return ks, nil
}

// openRecords opens the history database, falling back to memory when it
// is unavailable.
func openRecords() *records.Store {
	return records.Open(cfg.RecordsDir())
}

func sessionRoot() string {
	if cfg.Session.Dir != "" {
		return cfg.Session.Dir
	}
	return session.DefaultRoot()
}

func donationConfig() donation.Config {
	return donation.Config{
		Endpoint:  cfg.API.Endpoint,
		UserAgent: cfg.API.UserAgent,
		Timeout:   cfg.API.Timeout,
		Delay:     cfg.API.Delay,
	}
}

// signalContext returns a context canceled on the second interrupt. The
// first interrupt calls onFirst, which lets a run stop at a boundary.
func signalContext(onFirst func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		if onFirst != nil {
			fmt.Fprintln(os.Stderr, "\nStopping after the current address (interrupt again to abort)...")
			onFirst()
			select {
			case <-sigCh:
			case <-ctx.Done():
				return
			}
		}
		cancel()
	}()
	return ctx, cancel
}

// ── Parsing ─────────────────────────────────────────────────────────────

const maxIndexRange = 10000

// parseIndices parses "0,2,5-9" into sorted unique indices.
func parseIndices(s string) ([]int, error) {
	seen := make(map[int]struct{})
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		from, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil || from < 0 {
			return nil, fmt.Errorf("invalid index %q", part)
		}
		to := from
		if isRange {
			to, err = strconv.Atoi(strings.TrimSpace(hi))
			if err != nil || to < from {
				return nil, fmt.Errorf("invalid index range %q", part)
			}
			if to-from >= maxIndexRange {
				return nil, fmt.Errorf("index range %q spans more than %d addresses", part, maxIndexRange)
			}
		}
		for i := from; i <= to; i++ {
			seen[i] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("no indices in %q", s)
	}
	out := make([]int, 0, len(seen))
	for i := range seen {
		out = append(out, i)
	}
	sort.Ints(out)
	return out, nil
}

// ── Output ──────────────────────────────────────────────────────────────

func outcomeMark(o donation.Outcome) string {
	switch o.Kind {
	case donation.KindSuccess:
		return "✓"
	case donation.KindAlreadyDonated:
		return "⚠"
	case donation.KindSkipped:
		return "-"
	default:
		return "✗"
	}
}

func printSummary(dest string, outcomes []donation.Outcome, total int) {
	s := donation.NewBatchResult(dest, outcomes, total).Summary
	fmt.Println()
	fmt.Printf("Processed:   %d of %d\n", len(outcomes), s.Total)
	fmt.Printf("Successful:  %d\n", s.Successful)
	fmt.Printf("Skipped:     %d\n", s.Skipped)
	fmt.Printf("Errors:      %d\n", s.Errors)
	fmt.Printf("Solutions:   %d\n", s.TotalSolutions)
}
