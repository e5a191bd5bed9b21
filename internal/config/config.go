// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/blinklabs-io/veescrow/units"
)

type ctxKey string

const configContextKey ctxKey = "veescrow.config"

const DefaultShutdownTimeout = "30s"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type tempConfig struct {
	Config yaml.Node `yaml:"config,omitempty"`
}

type Config struct {
	Admin           string `yaml:"admin"`
	RewardSigner    string `yaml:"rewardSigner"    split_words:"true"`
	EscrowName      string `yaml:"escrowName"      split_words:"true"`
	EscrowSymbol    string `yaml:"escrowSymbol"    split_words:"true"`
	EscrowVersion   string `yaml:"escrowVersion"   split_words:"true"`
	BindAddr        string `yaml:"bindAddr"        split_words:"true"`
	ShutdownTimeout string `yaml:"shutdownTimeout" split_words:"true"`
	ChainID         uint64 `yaml:"chainId"         envconfig:"CHAIN_ID"`
	// Week and MaxTime are in seconds. Zero keeps the escrow defaults
	Week          uint64 `yaml:"week"`
	MaxTime       uint64 `yaml:"maxTime"       split_words:"true"`
	RatioNum      uint64 `yaml:"ratioNum"      split_words:"true"`
	RatioDen      uint64 `yaml:"ratioDen"      split_words:"true"`
	BonusBps      uint64 `yaml:"bonusBps"      split_words:"true"`
	// SupplyCap is in whole DAO tokens. Zero keeps the initial cap
	SupplyCap     uint64 `yaml:"supplyCap"     split_words:"true"`
	SourceLockEnd uint64 `yaml:"sourceLockEnd" split_words:"true"`
	MetricsPort   uint   `yaml:"metricsPort"   split_words:"true"`
	Tracing       bool   `yaml:"tracing"`
	TracingStdout bool   `yaml:"tracingStdout" split_words:"true"`
}

var globalConfig = defaultConfig()

func defaultConfig() *Config {
	return &Config{
		ChainID:         1,
		RatioNum:        units.AirdropRatio.Num,
		RatioDen:        units.AirdropRatio.Den,
		BonusBps:        100,
		BindAddr:        "127.0.0.1",
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.veescrow/veescrow.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".veescrow", "veescrow.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/veescrow/veescrow.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/veescrow/veescrow.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}

		var tempCfg tempConfig
		err = yaml.Unmarshal(buf, &tempCfg)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}

		// If config section exists, use it for main config. Decoding the
		// node directly onto globalConfig keeps defaults for omitted keys
		if tempCfg.Config.Kind != 0 {
			err = tempCfg.Config.Decode(globalConfig)
			if err != nil {
				return nil, fmt.Errorf("error parsing config section: %w", err)
			}
		} else {
			err = yaml.Unmarshal(buf, globalConfig)
			if err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}
	}
	// Process environment variables
	err := envconfig.Process("veescrow", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %+w", err)
	}
	if err := globalConfig.Validate(); err != nil {
		return nil, err
	}
	return globalConfig, nil
}

// Validate checks the values that cannot be caught later with a useful
// message
func (c *Config) Validate() error {
	if c.Admin != "" && !common.IsHexAddress(c.Admin) {
		return fmt.Errorf("invalid admin address: %q", c.Admin)
	}
	if c.RewardSigner != "" && !common.IsHexAddress(c.RewardSigner) {
		return fmt.Errorf("invalid reward signer address: %q", c.RewardSigner)
	}
	if err := c.Ratio().Validate(); err != nil {
		return fmt.Errorf("invalid exchange ratio: %w", err)
	}
	if err := units.ValidateBps(c.BonusBps); err != nil {
		return fmt.Errorf("invalid bonusBps: %w", err)
	}
	if (c.Week == 0) != (c.MaxTime == 0) {
		return errors.New("week and maxTime must be set together")
	}
	if _, err := c.ShutdownTimeoutDuration(); err != nil {
		return err
	}
	return nil
}

func (c *Config) Ratio() units.Ratio {
	return units.Ratio{Num: c.RatioNum, Den: c.RatioDen}
}

// ShutdownTimeoutDuration parses ShutdownTimeout, defaulting to 30s when empty
func (c *Config) ShutdownTimeoutDuration() (time.Duration, error) {
	if c.ShutdownTimeout == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return 0, fmt.Errorf(
			"invalid shutdownTimeout %q: %w",
			c.ShutdownTimeout,
			err,
		)
	}
	if d <= 0 {
		return 0, fmt.Errorf("shutdownTimeout must be positive: %q", c.ShutdownTimeout)
	}
	return d, nil
}

func GetConfig() *Config {
	return globalConfig
}
