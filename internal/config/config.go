package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ServeConfig holds configuration for the trading service.
type ServeConfig struct {
	Listen              string
	RPCURL              string
	TokenAddress        string
	VaultKey            string
	PGDSN               string
	Journal             string
	MinInitialReserve   uint64
	GraduationThreshold uint64
	ReconcileInterval   time.Duration
	FromBlock           uint64
	BatchSize           uint64
	MaxRetries          int
	RetryBackoff        time.Duration
	Checkpoint          string
	LogLevel            string
}

// LoadServe merges config file, environment variables, and flags into
// ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v := newViper()

	v.SetDefault("listen", ":8080")
	v.SetDefault("journal", "./data/trades.jsonl")
	v.SetDefault("min-initial-reserve", uint64(1_0000_0000))
	v.SetDefault("graduation-threshold", uint64(85_0000_0000))
	v.SetDefault("reconcile-interval", 15*time.Second)
	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("checkpoint", "./data/checkpoint.json")
	v.SetDefault("log-level", "info")

	if err := bindAndRead(v, cfgFile, flags); err != nil {
		return ServeConfig{}, err
	}

	cfg := ServeConfig{
		Listen:              v.GetString("listen"),
		RPCURL:              v.GetString("rpc"),
		TokenAddress:        v.GetString("token"),
		VaultKey:            v.GetString("vault-key"),
		PGDSN:               v.GetString("pg-dsn"),
		Journal:             v.GetString("journal"),
		MinInitialReserve:   v.GetUint64("min-initial-reserve"),
		GraduationThreshold: v.GetUint64("graduation-threshold"),
		ReconcileInterval:   v.GetDuration("reconcile-interval"),
		FromBlock:           v.GetUint64("from-block"),
		BatchSize:           v.GetUint64("batch-size"),
		MaxRetries:          v.GetInt("max-retries"),
		RetryBackoff:        v.GetDuration("retry-backoff"),
		Checkpoint:          v.GetString("checkpoint"),
		LogLevel:            v.GetString("log-level"),
	}

	if cfg.BatchSize == 0 {
		return ServeConfig{}, fmt.Errorf("batch-size must be greater than zero")
	}

	return cfg, nil
}

// ReconcileConfig holds configuration for a standalone reconciliation pass.
type ReconcileConfig struct {
	RPCURL       string
	TokenAddress string
	FromBlock    uint64
	ToBlock      uint64
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
	Checkpoint   string
	LogLevel     string
}

// LoadReconcile merges config file, environment variables, and flags into
// ReconcileConfig.
func LoadReconcile(cfgFile string, flags *pflag.FlagSet) (ReconcileConfig, error) {
	v := newViper()

	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("checkpoint", "./data/checkpoint.json")
	v.SetDefault("log-level", "info")

	if err := bindAndRead(v, cfgFile, flags); err != nil {
		return ReconcileConfig{}, err
	}

	cfg := ReconcileConfig{
		RPCURL:       v.GetString("rpc"),
		TokenAddress: v.GetString("token"),
		FromBlock:    v.GetUint64("from-block"),
		ToBlock:      v.GetUint64("to-block"),
		BatchSize:    v.GetUint64("batch-size"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		Checkpoint:   v.GetString("checkpoint"),
		LogLevel:     v.GetString("log-level"),
	}

	if cfg.RPCURL == "" {
		return ReconcileConfig{}, fmt.Errorf("rpc endpoint is required")
	}
	if cfg.TokenAddress == "" {
		return ReconcileConfig{}, fmt.Errorf("token address is required")
	}
	if cfg.BatchSize == 0 {
		return ReconcileConfig{}, fmt.Errorf("batch-size must be greater than zero")
	}

	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("LAUNCHPOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func bindAndRead(v *viper.Viper, cfgFile string, flags *pflag.FlagSet) error {
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}
