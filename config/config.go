// Package config loads the settings a gopush command-line tool needs
// to construct an apns.Service: which gateway environment to dial,
// where the client identity lives, and the dispatch tuning knobs in
// apns.Options.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mbillemont/gopush"
)

// Config is the on-disk/env-var shape a gopush tool reads at startup:
// one struct with mapstructure tags, a Load that layers defaults, env
// vars, and a config file through viper, and a Validate that catches
// missing required fields before anything dials out.
type Config struct {
	// Environment selects one of the named endpoint sets: "production",
	// "sandbox", or "local" (the in-process test fixture).
	Environment string `mapstructure:"environment"`

	IdentityFile     string `mapstructure:"identity_file"`
	IdentityPassword string `mapstructure:"identity_password"`
	// TrustFile, if set, is a PEM bundle of CA certificates to trust
	// instead of the host's root set. Required for Environment=local.
	TrustFile string `mapstructure:"trust_file"`

	MaxPayloadSize    int `mapstructure:"max_payload_size"`
	IdleTimeoutSec    int `mapstructure:"idle_timeout_sec"`
	QueueCapacity     int `mapstructure:"queue_capacity"`
	ConnectTimeoutSec int `mapstructure:"connect_timeout_sec"`
	ObserverPoolSize  int `mapstructure:"observer_pool_size"`

	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads configPath (if non-empty) layered over defaults and
// GOPUSH_-prefixed environment variables, and returns the resulting
// Config after validating it.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("environment", "production")
	v.SetDefault("max_payload_size", apns.DefaultMaxPayloadSize)
	v.SetDefault("idle_timeout_sec", int(apns.DefaultIdleTimeout/time.Second))
	v.SetDefault("queue_capacity", apns.DefaultQueueCapacity)
	v.SetDefault("connect_timeout_sec", int(apns.DefaultConnectTimeout/time.Second))
	v.SetDefault("observer_pool_size", apns.DefaultObserverPoolSize)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetEnvPrefix("GOPUSH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("identity_password", "GOPUSH_IDENTITY_PASSWORD")
	_ = v.BindEnv("identity_file", "GOPUSH_IDENTITY_FILE")
	_ = v.BindEnv("trust_file", "GOPUSH_TRUST_FILE")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("gopush")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Environment {
	case "production", "sandbox", "local":
	default:
		return fmt.Errorf("environment must be one of production, sandbox, local, got %q", c.Environment)
	}
	if c.Environment != "local" && c.IdentityFile == "" {
		return fmt.Errorf("identity_file is required (set GOPUSH_IDENTITY_FILE env var)")
	}
	if c.Environment == "local" && c.TrustFile == "" {
		return fmt.Errorf("trust_file is required when environment is local")
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be >= 1")
	}
	return nil
}

// Endpoints resolves Environment to the matching apns.Endpoints.
func (c *Config) Endpoints() apns.Endpoints {
	switch c.Environment {
	case "sandbox":
		return apns.EndpointsSandbox
	case "local":
		return apns.EndpointsLocal
	default:
		return apns.EndpointsProduction
	}
}

// Options builds an apns.Options from the tuning fields, falling back
// to the package defaults for anything left at its zero value.
func (c *Config) Options() apns.Options {
	opts := apns.NewOptions()
	if c.MaxPayloadSize > 0 {
		opts.MaxPayloadSize = c.MaxPayloadSize
	}
	if c.IdleTimeoutSec > 0 {
		opts.IdleTimeout = time.Duration(c.IdleTimeoutSec) * time.Second
	}
	if c.QueueCapacity > 0 {
		opts.QueueCapacity = c.QueueCapacity
	}
	if c.ConnectTimeoutSec > 0 {
		opts.ConnectTimeout = time.Duration(c.ConnectTimeoutSec) * time.Second
	}
	if c.ObserverPoolSize > 0 {
		opts.ObserverPoolSize = c.ObserverPoolSize
	}
	return opts
}

// LoadIdentity reads the client identity named by IdentityFile,
// dispatching on its extension between the PKCS#12 and PEM loaders.
func (c *Config) LoadIdentity() (apns.Identity, error) {
	if strings.HasSuffix(strings.ToLower(c.IdentityFile), ".pem") {
		return apns.LoadIdentityPEM(c.IdentityFile, c.IdentityFile)
	}
	return apns.LoadIdentity(c.IdentityFile, c.IdentityPassword)
}

// LoadTrustStore returns the configured TrustFile as a TrustStore, or
// the host's system trust store if none was set.
func (c *Config) LoadTrustStore() (apns.TrustStore, error) {
	if c.TrustFile == "" {
		return apns.SystemTrustStore(), nil
	}
	data, err := os.ReadFile(c.TrustFile)
	if err != nil {
		return apns.TrustStore{}, fmt.Errorf("reading trust file: %w", err)
	}
	return apns.TrustStoreFromPEM(data)
}
