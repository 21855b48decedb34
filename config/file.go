package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Keys lists every recognized configuration key.
var Keys = []string{
	"network",
	"datadir",
	"api.endpoint",
	"api.timeout",
	"api.delay",
	"api.useragent",
	"launcher.addr",
	"launcher.port",
	"launcher.cors",
	"launcher.poll",
	"launcher.single_wait",
	"launcher.batch_wait",
	"launcher.inline",
	"session.dir",
	"wallet.name",
	"wallet.count",
	"log.level",
	"log.file",
	"log.json",
}

// LoadFile loads configuration values from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyValues applies key/value settings to a Config struct.
func ApplyValues(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by key.
func setConfigValue(cfg *Config, key, value string) error {
	var err error
	switch key {
	// Core
	case "network":
		cfg.Network = NetworkType(strings.ToLower(value))
	case "datadir":
		cfg.DataDir = value

	// API
	case "api.endpoint":
		cfg.API.Endpoint = value
	case "api.timeout":
		cfg.API.Timeout, err = parseDuration(value)
	case "api.delay":
		cfg.API.Delay, err = parseDuration(value)
	case "api.useragent":
		cfg.API.UserAgent = value

	// Launcher
	case "launcher.addr":
		cfg.Launcher.Addr = value
	case "launcher.port":
		cfg.Launcher.Port, err = strconv.Atoi(value)
	case "launcher.cors":
		cfg.Launcher.CORSOrigins = parseStringList(value)
	case "launcher.poll":
		cfg.Launcher.PollInterval, err = parseDuration(value)
	case "launcher.single_wait":
		cfg.Launcher.SingleWait, err = parseDuration(value)
	case "launcher.batch_wait":
		cfg.Launcher.BatchWait, err = parseDuration(value)
	case "launcher.inline":
		cfg.Launcher.Inline = parseBool(value)

	// Sessions
	case "session.dir":
		cfg.Session.Dir = value

	// Wallet
	case "wallet.name":
		cfg.Wallet.Name = value
	case "wallet.count":
		cfg.Wallet.Count, err = strconv.Atoi(value)

	// Logging
	case "log.level":
		cfg.Log.Level = strings.ToLower(value)
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return err
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseDuration accepts Go durations ("30s", "500ms") or bare milliseconds.
func parseDuration(s string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	content := `# Night Consolidator Configuration
#
# Every key can also be set with an environment variable:
# NIGHTC_ + key in upper case with dots replaced by underscores,
# e.g. NIGHTC_API_ENDPOINT or NIGHTC_LOG_LEVEL.

# Network: mainnet or testnet (selects the address prefix)
network = ` + string(network) + `

# Data directory (default: ~/.nightc)
# datadir = ~/.nightc

# ============================================================================
# Donation API
# ============================================================================

api.endpoint = https://scavenger.prod.gd.midnighttge.io
# Per-request timeout
api.timeout = 30s
# Pause between consecutive requests in a batch
api.delay = 500ms
# api.useragent = MidnightConsolidationTool/1.0

# ============================================================================
# Launcher
# ============================================================================

launcher.addr = 127.0.0.1
launcher.port = 3002
# CORS allowed origins ("*" for all)
launcher.cors = http://localhost:3000
# launcher.poll = 1s
# launcher.single_wait = 60s
# launcher.batch_wait = 300s
# Run workers inside the launcher process instead of separate processes
# launcher.inline = false

# ============================================================================
# Sessions
# ============================================================================

# Session log root (default: ~/NightConsolidation)
# session.dir =

# ============================================================================
# Wallet
# ============================================================================

wallet.name = default
# Addresses derived when a wallet is created or imported
wallet.count = 10

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
