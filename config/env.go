package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. NIGHTC_API_ENDPOINT.
const EnvPrefix = "NIGHTC"

// newEnv returns a viper instance that resolves config keys from the
// environment only.
func newEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// EnvValues returns the config keys set in the environment.
func EnvValues() map[string]string {
	v := newEnv()
	values := make(map[string]string)
	for _, key := range Keys {
		if v.IsSet(key) {
			values[key] = v.GetString(key)
		}
	}
	return values
}
