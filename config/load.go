package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Options selects where configuration comes from.
type Options struct {
	Network NetworkType
	DataDir string
	// ConfigFile overrides <datadir>/nightc.conf.
	ConfigFile string
	// Overrides are explicitly set command-line values, keyed like the file.
	Overrides map[string]string
}

// Load builds the configuration: defaults, config file, environment,
// then overrides. Data directories are created on first use.
func Load(opts Options) (*Config, error) {
	env := EnvValues()

	// Network and datadir decide where the file lives, so resolve them first.
	network := Mainnet
	if v, ok := env["network"]; ok {
		network = NetworkType(strings.ToLower(v))
	}
	if opts.Network != "" {
		network = opts.Network
	}
	cfg := Default(network)
	if v, ok := env["datadir"]; ok {
		cfg.DataDir = v
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	cfg.DataDir = expandHome(cfg.DataDir)

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := opts.ConfigFile
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}
	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}
	// The file cannot move the data directory it was read from.
	delete(fileValues, "datadir")
	if opts.Network != "" {
		delete(fileValues, "network")
	}

	for _, layer := range []struct {
		name   string
		values map[string]string
	}{
		{"config file", fileValues},
		{"environment", env},
		{"flags", opts.Overrides},
	} {
		if err := ApplyValues(cfg, layer.values); err != nil {
			return nil, fmt.Errorf("applying %s: %w", layer.name, err)
		}
	}
	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.Session.Dir = expandHome(cfg.Session.Dir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	// Network may have changed after the file was read.
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}
	return cfg, nil
}

// EnsureDataDirs creates the data directories and a default config file.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.NetworkDataDir(),
		cfg.KeystoreDir(),
		cfg.LauncherDir(),
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	// Create default config if it doesn't exist.
	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
