package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix for environment variable overrides.
	// STATGUARD_RATE_LIMIT_MAX_REQUESTS overrides rate_limit.max_requests.
	EnvPrefix = "STATGUARD"

	configName = "statguard"
	configType = "yaml"
)

// InitViper configures viper with statguard's file search paths and
// environment bindings. Pass an explicit config file path to skip the
// search, or "" to look in the working directory, ~/.statguard, and
// /etc/statguard.
func InitViper(cfgFile string) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(configName)
		viper.SetConfigType(configType)
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".statguard"))
		}
		viper.AddConfigPath("/etc/statguard")
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	bindNestedEnvKeys(reflect.TypeOf(Config{}), "")
}

// bindNestedEnvKeys walks the Config struct and binds each leaf key so
// AutomaticEnv picks up nested keys that never appear in a config file.
func bindNestedEnvKeys(t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		if field.Type.Kind() == reflect.Struct {
			bindNestedEnvKeys(field.Type, key)
			continue
		}
		_ = viper.BindEnv(key)
	}
}

// LoadConfig reads, defaults, and validates the full configuration.
// A missing config file is not an error: defaults plus environment
// variables apply.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigRaw unmarshals the configuration without applying defaults
// or validation. Use when CLI flags may override fields before validation.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path of the config file in effect, or ""
// when running on defaults and environment variables only.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
