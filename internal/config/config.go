// SPDX-License-Identifier: Apache-2.0

package config

import (
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/automa-saga/logx"
	"github.com/go-playground/validator/v10"
	"github.com/joomcode/errorx"
	"github.com/spf13/viper"
)

const EnvPrefix = "WLANHOST"

// Config holds the global configuration for the application.
type Config struct {
	Log     logx.LoggingConfig `yaml:"log" json:"log"`
	Module  ModuleConfig       `yaml:"module" json:"module"`
	Vdev    VdevConfig         `yaml:"vdev" json:"vdev"`
	Ledger  LedgerConfig       `yaml:"ledger" json:"ledger"`
	Metrics MetricsConfig      `yaml:"metrics" json:"metrics"`
	Driver  DriverConfig       `yaml:"driver" json:"driver"`
}

// ModuleConfig represents the `module` configuration block.
type ModuleConfig struct {
	IdleShutdownInterval time.Duration `yaml:"idleShutdownInterval" json:"idleShutdownInterval" validate:"gt=0"`
	FirmwareReadyTimeout time.Duration `yaml:"firmwareReadyTimeout" json:"firmwareReadyTimeout" validate:"gt=0"`
	MaxInterfaces        int           `yaml:"maxInterfaces" json:"maxInterfaces" validate:"min=1,max=16"`
	MaxBusyDeferrals     int           `yaml:"maxBusyDeferrals" json:"maxBusyDeferrals" validate:"min=0"`
	// FirmwareConstraint is a semver constraint the firmware version must satisfy. Empty accepts any.
	FirmwareConstraint string `yaml:"firmwareConstraint" json:"firmwareConstraint"`
	// GlobalMode is the driver mode at attach (mission, ftm, monitor).
	GlobalMode string `yaml:"globalMode" json:"globalMode" validate:"oneof=mission ftm monitor"`
}

// VdevConfig represents the `vdev` configuration block.
type VdevConfig struct {
	DestroyTimeout time.Duration `yaml:"destroyTimeout" json:"destroyTimeout" validate:"gt=0"`
}

// LedgerConfig represents the `ledger` configuration block.
type LedgerConfig struct {
	LeakRetries    int           `yaml:"leakRetries" json:"leakRetries" validate:"min=0"`
	LeakRetryDelay time.Duration `yaml:"leakRetryDelay" json:"leakRetryDelay" validate:"gte=0"`
	// FatalOnLeak panics when an adapter is retired with outstanding references.
	FatalOnLeak bool `yaml:"fatalOnLeak" json:"fatalOnLeak"`
}

// MetricsConfig represents the `metrics` configuration block.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Address   string `yaml:"address" json:"address" validate:"required_if=Enabled true"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

// DriverConfig represents the `driver` configuration block.
type DriverConfig struct {
	// LockFile guards against two driver contexts owning the same device. Empty disables the lock.
	LockFile    string        `yaml:"lockFile" json:"lockFile"`
	LockTimeout time.Duration `yaml:"lockTimeout" json:"lockTimeout" validate:"gte=0"`
}

var globalConfig = Default()

func init() {
	// console logging until Initialize applies the loaded log section
	_ = logx.Initialize(globalConfig.Log)
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: logx.LoggingConfig{
			Level:          "Info",
			ConsoleLogging: true,
			FileLogging:    false,
		},
		Module: ModuleConfig{
			IdleShutdownInterval: 5 * time.Second,
			FirmwareReadyTimeout: 10 * time.Second,
			MaxInterfaces:        4,
			MaxBusyDeferrals:     10,
			GlobalMode:           "mission",
		},
		Vdev: VdevConfig{
			DestroyTimeout: 3 * time.Second,
		},
		Ledger: LedgerConfig{
			LeakRetries:    10,
			LeakRetryDelay: 10 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Address:   ":9464",
			Namespace: "wlanhost",
		},
		Driver: DriverConfig{
			LockTimeout: 5 * time.Second,
		},
	}
}

// Validate checks field ranges and cross-field rules.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return InvalidError.Wrap(err, "invalid configuration")
	}

	if _, err := c.Module.Constraint(); err != nil {
		return err
	}

	return nil
}

// Constraint parses FirmwareConstraint. It returns nil when no constraint is configured.
func (m ModuleConfig) Constraint() (*semver.Constraints, error) {
	if strings.TrimSpace(m.FirmwareConstraint) == "" {
		return nil, nil
	}

	c, err := semver.NewConstraint(m.FirmwareConstraint)
	if err != nil {
		return nil, InvalidError.Wrap(err, "invalid firmware constraint %q", m.FirmwareConstraint).
			WithProperty(errorx.PropertyPayload(), m.FirmwareConstraint)
	}
	return c, nil
}

// Initialize loads the configuration file at path over the defaults. Environment
// variables prefixed with WLANHOST_ override file values.
func Initialize(path string) error {
	if path != "" {
		cfg := Default()
		viper.Reset()
		viper.SetConfigFile(path)
		viper.SetEnvPrefix(EnvPrefix)
		viper.AutomaticEnv()
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

		err := viper.ReadInConfig()
		if err != nil {
			return NotFoundError.Wrap(err, "failed to read config file: %s", path).
				WithProperty(errorx.PropertyPayload(), path)
		}

		if err := viper.Unmarshal(&cfg); err != nil {
			return errorx.IllegalFormat.Wrap(err, "failed to parse configuration").
				WithProperty(errorx.PropertyPayload(), path)
		}

		if err := cfg.Validate(); err != nil {
			return errorx.Decorate(err, "configuration file %s", path)
		}

		globalConfig = cfg
	}

	return nil
}

func Get() Config {
	return globalConfig
}

func Set(c *Config) error {
	if err := c.Validate(); err != nil {
		return err
	}

	globalConfig = *c
	return nil
}
