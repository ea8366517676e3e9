package config

// Package config provides a reusable loader for Meridian configuration files
// and environment variables. It is versioned so that applications can depend
// on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"meridian-network/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for a Meridian engine host.
// It mirrors the structure of the YAML files under cmd/config.
type Config struct {
	Network struct {
		ID   int    `mapstructure:"id" json:"id"`
		Name string `mapstructure:"name" json:"name"`
	} `mapstructure:"network" json:"network"`

	Genesis struct {
		InitialEpoch   int      `mapstructure:"initial_epoch" json:"initial_epoch"`
		RoundsPerEpoch int      `mapstructure:"rounds_per_epoch" json:"rounds_per_epoch"`
		FaucetSupply   string   `mapstructure:"faucet_supply" json:"faucet_supply"`
		ValidatorKeys  []string `mapstructure:"validator_keys" json:"validator_keys"`
		DevMode        bool     `mapstructure:"dev_mode" json:"dev_mode"`
	} `mapstructure:"genesis" json:"genesis"`

	Engine struct {
		TraceExecution bool `mapstructure:"trace_execution" json:"trace_execution"`
	} `mapstructure:"engine" json:"engine"`

	Explorer struct {
		ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
		RateLimit  int    `mapstructure:"rate_limit" json:"rate_limit"`
	} `mapstructure:"explorer" json:"explorer"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		JSON  bool   `mapstructure:"json" json:"json"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up from .env

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the MERIDIAN_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("MERIDIAN_ENV", ""))
}
