// Package config handles application configuration.
//
// Settings are layered: built-in defaults, then the nightc.conf file in the
// data directory, then NIGHTC_* environment variables, then command-line
// flags.
package config

import (
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/Klingon-tech/night-consolidator/pkg/types"
)

// NetworkType identifies mainnet or testnet addresses.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// HRP returns the bech32 prefix for addresses on this network.
func (n NetworkType) HRP() string {
	if n == Testnet {
		return types.TestnetHRP
	}
	return types.MainnetHRP
}

// Config holds runtime configuration.
type Config struct {
	Network NetworkType `conf:"network" validate:"oneof=mainnet testnet"`
	DataDir string      `conf:"datadir" validate:"required"`

	// Remote donation API
	API APIConfig

	// Local launcher service
	Launcher LauncherConfig

	// Session logs
	Session SessionConfig

	// Wallet
	Wallet WalletConfig

	// Logging
	Log LogConfig
}

// APIConfig holds donation API settings.
type APIConfig struct {
	Endpoint  string        `conf:"api.endpoint" validate:"required,http_url"`
	Timeout   time.Duration `conf:"api.timeout"`
	Delay     time.Duration `conf:"api.delay"`
	UserAgent string        `conf:"api.useragent" validate:"required"`
}

// LauncherConfig holds launcher service and client settings.
type LauncherConfig struct {
	Addr         string        `conf:"launcher.addr" validate:"required,ip"`
	Port         int           `conf:"launcher.port"`
	CORSOrigins  []string      `conf:"launcher.cors" validate:"dive,required"`
	PollInterval time.Duration `conf:"launcher.poll"`
	SingleWait   time.Duration `conf:"launcher.single_wait"`
	BatchWait    time.Duration `conf:"launcher.batch_wait"`
	// Inline runs workers inside the launcher instead of child processes.
	Inline bool `conf:"launcher.inline"`
}

// ListenAddr returns host:port for the launcher.
func (l LauncherConfig) ListenAddr() string {
	return net.JoinHostPort(l.Addr, strconv.Itoa(l.Port))
}

// URL returns the launcher base URL.
func (l LauncherConfig) URL() string {
	return "http://" + l.ListenAddr()
}

// SessionConfig holds session log settings.
type SessionConfig struct {
	Dir string `conf:"session.dir"` // Empty = ~/NightConsolidation
}

// WalletConfig holds wallet settings.
type WalletConfig struct {
	Name  string `conf:"wallet.name" validate:"required,excludesall=/\\"`
	Count int    `conf:"wallet.count"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level" validate:"omitempty,oneof=trace debug info warn error"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.nightc
//	macOS:   ~/Library/Application Support/NightConsolidator
//	Windows: %APPDATA%\NightConsolidator
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nightc"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "NightConsolidator")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "NightConsolidator")
		}
		return filepath.Join(home, "AppData", "Roaming", "NightConsolidator")
	default:
		return filepath.Join(home, ".nightc")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.NetworkDataDir(), "keystore")
}

// RecordsDir returns the consolidation record database directory.
func (c *Config) RecordsDir() string {
	return filepath.Join(c.NetworkDataDir(), "records")
}

// LauncherDir holds the launcher's batch input and result files.
func (c *Config) LauncherDir() string {
	return filepath.Join(c.DataDir, "launcher")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "nightc.conf")
}
