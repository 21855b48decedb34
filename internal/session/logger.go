// Package session writes the per-run log directory: the request/response
// trace, run metadata, a plain-text summary and copies of result artifacts.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/night-consolidator/internal/log"
)

// Files inside a session directory.
const (
	TraceFile    = "logs.txt"
	MetadataFile = "session-info.json"
	SummaryFile  = "EstNightTotal.txt"
)

// Lines appended to every summary.
var summaryFooter = []string{
	"",
	"Note: Midnight finalizes Night rewards independently.",
	"Values recorded here reflect the exact time this consolidation ran.",
}

// Logger records one consolidation run. Implementations never return
// errors: failures are logged and the call is dropped.
type Logger interface {
	Log(format string, args ...any)
	WriteSummary(lines []string)
	UpdateMetadata(patch map[string]any)
	CopyArtifact(src, name string)
	WriteJSON(name string, v any)
	Dir() string
	Label() string
	Active() bool
}

// DefaultRoot returns ~/NightConsolidation.
func DefaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "NightConsolidation"
	}
	return filepath.Join(home, "NightConsolidation")
}

// Open creates a session directory under root named after customLabel, or
// after primary when no usable custom label is given. If the directory cannot
// be created a no-op Logger is returned.
func Open(root, primary string, metadata map[string]any, customLabel string) Logger {
	l, err := open(root, primary, metadata, customLabel, time.Now())
	if err != nil {
		log.Session.Warn().Err(err).Str("root", root).Msg("Session logging disabled")
		return Noop()
	}
	log.Session.Info().Str("dir", l.dir).Msg("Session log opened")
	return l
}

func open(root, primary string, metadata map[string]any, customLabel string, now time.Time) (*fileLogger, error) {
	label := SanitizeCustomLabel(customLabel)
	custom := label != ""
	if !custom {
		label = AddressLabel(primary)
	}

	parent := filepath.Join(root, label)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return nil, fmt.Errorf("create session root: %w", err)
	}
	stamp := Timestamp(now)
	dir, err := uniqueDir(parent, stamp)
	if err != nil {
		return nil, err
	}

	l := &fileLogger{
		dir:   dir,
		label: label,
		meta:  map[string]any{},
	}
	l.trace = zerolog.New(zerolog.ConsoleWriter{
		Out:        &appendFile{path: filepath.Join(dir, TraceFile)},
		NoColor:    true,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()

	l.meta["addressLabel"] = label
	l.meta["sessionTimestamp"] = filepath.Base(dir)
	l.meta["createdAt"] = now.UTC().Format(time.RFC3339)
	if custom {
		l.meta["customLabel"] = customLabel
	}
	for k, v := range metadata {
		l.meta[k] = v
	}
	if err := l.writeMetadata(); err != nil {
		return nil, err
	}
	return l, nil
}

// uniqueDir creates parent/stamp, or parent/stamp-N for the first free N.
func uniqueDir(parent, stamp string) (string, error) {
	for n := 1; n < 1000; n++ {
		name := stamp
		if n > 1 {
			name = fmt.Sprintf("%s-%d", stamp, n)
		}
		dir := filepath.Join(parent, name)
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("create session dir: %w", err)
		}
	}
	return "", fmt.Errorf("no free session directory for %s", stamp)
}

// appendFile opens the file for every write so no handle outlives a call.
type appendFile struct {
	path string
}

func (a *appendFile) Write(p []byte) (int, error) {
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return 0, err
	}
	n, err := f.Write(p)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

type fileLogger struct {
	mu    sync.Mutex
	dir   string
	label string
	meta  map[string]any
	trace zerolog.Logger
}

func (l *fileLogger) Dir() string   { return l.dir }
func (l *fileLogger) Label() string { return l.label }
func (l *fileLogger) Active() bool  { return true }

// Log appends one timestamped line to the trace file.
func (l *fileLogger) Log(format string, args ...any) {
	l.trace.Info().Msg(fmt.Sprintf(format, args...))
}

// WriteSummary replaces the summary file with lines and the fixed footer.
func (l *fileLogger) WriteSummary(lines []string) {
	content := strings.Join(append(append([]string{}, lines...), summaryFooter...), "\n")
	if err := os.WriteFile(filepath.Join(l.dir, SummaryFile), []byte(content), 0644); err != nil {
		log.Session.Warn().Err(err).Msg("Failed to write session summary")
	}
}

// UpdateMetadata merges patch into the metadata file. createdAt is kept.
func (l *fileLogger) UpdateMetadata(patch map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range patch {
		if k == "createdAt" {
			continue
		}
		l.meta[k] = v
	}
	if err := l.writeMetadataLocked(); err != nil {
		log.Session.Warn().Err(err).Msg("Failed to update session metadata")
	}
}

func (l *fileLogger) writeMetadata() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writeMetadataLocked()
}

func (l *fileLogger) writeMetadataLocked() error {
	data, err := json.MarshalIndent(l.meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.dir, MetadataFile), data, 0644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// CopyArtifact copies src into the session directory as name. A missing
// source is noted in the trace.
func (l *fileLogger) CopyArtifact(src, name string) {
	if src == "" || name == "" {
		return
	}
	in, err := os.Open(src)
	if errors.Is(err, os.ErrNotExist) {
		l.Log("Skipping artifact copy. Source not found: %s", src)
		return
	}
	if err != nil {
		l.Log("Failed to copy artifact %s: %v", name, err)
		return
	}
	defer in.Close()

	out, err := os.Create(filepath.Join(l.dir, filepath.Base(name)))
	if err != nil {
		l.Log("Failed to copy artifact %s: %v", name, err)
		return
	}
	if _, err := io.Copy(out, in); err != nil {
		l.Log("Failed to copy artifact %s: %v", name, err)
	}
	if err := out.Close(); err != nil {
		l.Log("Failed to copy artifact %s: %v", name, err)
	}
}

// WriteJSON stores v as an indented JSON artifact named name.
func (l *fileLogger) WriteJSON(name string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		l.Log("Failed to encode artifact %s: %v", name, err)
		return
	}
	if err := os.WriteFile(filepath.Join(l.dir, filepath.Base(name)), data, 0644); err != nil {
		l.Log("Failed to write artifact %s: %v", name, err)
	}
}
