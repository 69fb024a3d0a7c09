// Package config loads the engine configuration from file and environment
// and exposes it as the quota.Config provider.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/printquota/server/internal/shared/errors"
	"github.com/printquota/server/internal/quota"
)

// Config holds all engine configuration.
type Config struct {
	Storage  StorageConfig            `mapstructure:"storage"`
	Log      LogConfig                `mapstructure:"log"`
	Quota    QuotaConfig              `mapstructure:"quota"`
	Printers map[string]PrinterConfig `mapstructure:"printers"`
}

// StorageConfig selects and parameterizes the storage backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
	NoCache bool   `mapstructure:"no_cache"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// QuotaConfig holds the global quota directives. Per-printer sections
// override policy, enforcement, grace delay and the job size ceiling.
type QuotaConfig struct {
	Policy      string        `mapstructure:"policy"`
	Enforcement string        `mapstructure:"enforcement"`
	GraceDelay  time.Duration `mapstructure:"grace_delay"`
	PoorMan     float64       `mapstructure:"poor_man"`
	BalanceZero float64       `mapstructure:"balance_zero"`
	MaxJobSize  int           `mapstructure:"max_job_size"` // 0 = unlimited
}

// PrinterConfig holds per-printer overrides. Zero values defer to the
// global quota section.
type PrinterConfig struct {
	Policy       string             `mapstructure:"policy"`
	Enforcement  string             `mapstructure:"enforcement"`
	GraceDelay   time.Duration      `mapstructure:"grace_delay"`
	MaxJobSize   int                `mapstructure:"max_job_size"`
	Coefficients map[string]float64 `mapstructure:"coefficients"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/printquota")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults and env
	}

	v.SetEnvPrefix("PRINTQUOTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.backend", "postgresql")
	v.SetDefault("storage.dsn", "host=localhost port=5432 user=printquota dbname=printquota sslmode=disable")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("quota.policy", "allow")
	v.SetDefault("quota.enforcement", "laxist")
	v.SetDefault("quota.grace_delay", 7*24*time.Hour)
	v.SetDefault("quota.poor_man", 1.0)
	v.SetDefault("quota.balance_zero", 0.0)
	v.SetDefault("quota.max_job_size", 0)
}

// Validate fails fast on directives the engine cannot act on.
func (c *Config) Validate() error {
	if c.Storage.Backend == "" {
		return errors.Config("storage.backend", "backend must be set")
	}
	if !validPolicy(c.Quota.Policy) {
		return errors.Config("quota.policy", "must be allow, deny or external, got %q", c.Quota.Policy)
	}
	if !validEnforcement(c.Quota.Enforcement) {
		return errors.Config("quota.enforcement", "must be strict or laxist, got %q", c.Quota.Enforcement)
	}
	if c.Quota.GraceDelay < 0 {
		return errors.Config("quota.grace_delay", "must not be negative, got %s", c.Quota.GraceDelay)
	}
	if c.Quota.MaxJobSize < 0 {
		return errors.Config("quota.max_job_size", "must not be negative, got %d", c.Quota.MaxJobSize)
	}
	for name, printer := range c.Printers {
		if printer.Policy != "" && !validPolicy(printer.Policy) {
			return errors.Config("printers."+name+".policy", "must be allow, deny or external, got %q", printer.Policy)
		}
		if printer.Enforcement != "" && !validEnforcement(printer.Enforcement) {
			return errors.Config("printers."+name+".enforcement", "must be strict or laxist, got %q", printer.Enforcement)
		}
		if printer.GraceDelay < 0 {
			return errors.Config("printers."+name+".grace_delay", "must not be negative, got %s", printer.GraceDelay)
		}
		for channel, coef := range printer.Coefficients {
			if coef < 0 {
				return errors.Config("printers."+name+".coefficients."+channel, "must not be negative, got %g", coef)
			}
		}
	}
	return nil
}

func validPolicy(p string) bool {
	switch quota.Policy(p) {
	case quota.PolicyAllow, quota.PolicyDeny, quota.PolicyExternal:
		return true
	}
	return false
}

func validEnforcement(e string) bool {
	switch quota.Enforcement(e) {
	case quota.EnforcementStrict, quota.EnforcementLaxist:
		return true
	}
	return false
}

// PrinterPolicy implements quota.Config.
func (c *Config) PrinterPolicy(printer string) quota.Policy {
	if p, ok := c.Printers[printer]; ok && p.Policy != "" {
		return quota.Policy(p.Policy)
	}
	return quota.Policy(c.Quota.Policy)
}

// PrinterEnforcement implements quota.Config.
func (c *Config) PrinterEnforcement(printer string) quota.Enforcement {
	if p, ok := c.Printers[printer]; ok && p.Enforcement != "" {
		return quota.Enforcement(p.Enforcement)
	}
	return quota.Enforcement(c.Quota.Enforcement)
}

// GraceDelay implements quota.Config.
func (c *Config) GraceDelay(printer string) time.Duration {
	if p, ok := c.Printers[printer]; ok && p.GraceDelay > 0 {
		return p.GraceDelay
	}
	return c.Quota.GraceDelay
}

// PoorMan implements quota.Config.
func (c *Config) PoorMan() float64 { return c.Quota.PoorMan }

// BalanceZero implements quota.Config.
func (c *Config) BalanceZero() float64 { return c.Quota.BalanceZero }

// Coefficients implements quota.Config.
func (c *Config) Coefficients(printer string) map[string]float64 {
	if p, ok := c.Printers[printer]; ok {
		return p.Coefficients
	}
	return nil
}

// MaxJobSize implements quota.Config.
func (c *Config) MaxJobSize(printer string) (int, bool) {
	if p, ok := c.Printers[printer]; ok && p.MaxJobSize > 0 {
		return p.MaxJobSize, true
	}
	if c.Quota.MaxJobSize > 0 {
		return c.Quota.MaxJobSize, true
	}
	return 0, false
}
