package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks runtime config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fieldError(verrs[0])
		}
		return err
	}

	if cfg.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if cfg.API.Delay < 0 {
		return fmt.Errorf("api.delay must not be negative")
	}
	if cfg.Launcher.Port < 0 || cfg.Launcher.Port > 65535 {
		return fmt.Errorf("launcher.port must be in range [0, 65535]")
	}
	if cfg.Launcher.PollInterval <= 0 {
		return fmt.Errorf("launcher.poll must be positive")
	}
	if cfg.Launcher.SingleWait < cfg.Launcher.PollInterval {
		return fmt.Errorf("launcher.single_wait must be at least launcher.poll")
	}
	if cfg.Launcher.BatchWait < cfg.Launcher.PollInterval {
		return fmt.Errorf("launcher.batch_wait must be at least launcher.poll")
	}
	if cfg.Launcher.PollInterval > time.Minute {
		return fmt.Errorf("launcher.poll must be at most 1m")
	}
	if cfg.Wallet.Count < 1 || cfg.Wallet.Count > 1000 {
		return fmt.Errorf("wallet.count must be in range [1, 1000]")
	}
	return nil
}

// fieldError reports a validation failure under the config key of the field.
func fieldError(fe validator.FieldError) error {
	key := confKey(fe.StructNamespace())
	if key == "" {
		key = fe.Namespace()
	}
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", key)
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", key, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Errorf("%s is invalid (%s)", key, fe.Tag())
	}
}

// confKey maps a struct namespace like "Config.API.Endpoint" to its key.
func confKey(ns string) string {
	switch strings.TrimPrefix(ns, "Config.") {
	case "Network":
		return "network"
	case "DataDir":
		return "datadir"
	case "API.Endpoint":
		return "api.endpoint"
	case "API.UserAgent":
		return "api.useragent"
	case "Launcher.Addr":
		return "launcher.addr"
	case "Wallet.Name":
		return "wallet.name"
	case "Log.Level":
		return "log.level"
	}
	if strings.HasPrefix(ns, "Config.Launcher.CORSOrigins") {
		return "launcher.cors"
	}
	return ""
}
