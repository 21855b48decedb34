package config

import (
	"github.com/Klingon-tech/night-consolidator/internal/donation"
	"github.com/Klingon-tech/night-consolidator/internal/launcher"
)

// Default returns the default configuration for the given network.
func Default(network NetworkType) *Config {
	return &Config{
		Network: network,
		DataDir: DefaultDataDir(),
		API: APIConfig{
			Endpoint:  donation.DefaultEndpoint,
			Timeout:   donation.DefaultTimeout,
			Delay:     donation.DefaultDelay,
			UserAgent: donation.DefaultUserAgent,
		},
		Launcher: LauncherConfig{
			Addr:         "127.0.0.1",
			Port:         3002,
			CORSOrigins:  []string{launcher.DefaultCORSOrigin},
			PollInterval: launcher.DefaultPollInterval,
			SingleWait:   launcher.DefaultSingleWait,
			BatchWait:    launcher.DefaultBatchWait,
		},
		Wallet: WalletConfig{
			Name:  "default",
			Count: 10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultMainnet returns the default configuration for mainnet.
func DefaultMainnet() *Config {
	return Default(Mainnet)
}
