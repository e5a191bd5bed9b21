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

package veescrow

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/blinklabs-io/veescrow/airdrop"
	"github.com/blinklabs-io/veescrow/clock"
	"github.com/blinklabs-io/veescrow/units"
)

type Config struct {
	promRegistry    prometheus.Registerer
	logger          *slog.Logger
	clock           clock.Clock
	supplyCap       *uint256.Int
	tracingWriter   io.Writer
	escrowName      string
	escrowSymbol    string
	escrowVersion   string
	ratio           units.Ratio
	admin           common.Address
	rewardSigner    common.Address
	chainID         uint64
	week            uint64
	maxTime         uint64
	bonusBps        uint64
	sourceLockEnd   uint64
	shutdownTimeout time.Duration
	tracing         bool
	tracingStdout   bool
}

func (s *System) configValidate() error {
	if s.config.admin == (common.Address{}) {
		return errors.New("no admin address configured")
	}
	if err := s.config.ratio.Validate(); err != nil {
		return fmt.Errorf("invalid exchange ratio %s: %w", s.config.ratio, err)
	}
	if err := units.ValidateBps(s.config.bonusBps); err != nil {
		return err
	}
	if s.config.supplyCap != nil && s.config.supplyCap.IsZero() {
		return errors.New("supply cap must be nonzero")
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the System config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new veescrow config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
		clock:    clock.System{},
		ratio:    units.AirdropRatio,
		bonusBps: airdrop.DefaultBonusBps,
		chainID:  1,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. In most cases, prometheus.DefaultRegistry would be
// a good choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithClock specifies the time source shared by every component. Scenarios and tests use a clock.Manual
func WithClock(clk clock.Clock) ConfigOptionFunc {
	return func(c *Config) {
		c.clock = clk
	}
}

// WithAdmin specifies the account that administers the escrows, owns the source token and holds every DAO token role
func WithAdmin(admin common.Address) ConfigOptionFunc {
	return func(c *Config) {
		c.admin = admin
	}
}

// WithRewardSigner specifies the account whose signatures the reward distributor accepts
func WithRewardSigner(signer common.Address) ConfigOptionFunc {
	return func(c *Config) {
		c.rewardSigner = signer
	}
}

// WithChainID specifies the chain id in the reward claim signing domain. The default is 1
func WithChainID(chainID uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.chainID = chainID
	}
}

// WithEscrowMetadata overrides the name, symbol and version of the destination escrow. Empty values keep the defaults
func WithEscrowMetadata(name string, symbol string, version string) ConfigOptionFunc {
	return func(c *Config) {
		c.escrowName = name
		c.escrowSymbol = symbol
		c.escrowVersion = version
	}
}

// WithEscrowPeriods overrides the week length and maximum lock time of both escrows. This is mostly useful for tests
func WithEscrowPeriods(week uint64, maxTime uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.week = week
		c.maxTime = maxTime
	}
}

// WithRatio specifies the airdrop exchange ratio
func WithRatio(ratio units.Ratio) ConfigOptionFunc {
	return func(c *Config) {
		c.ratio = ratio
	}
}

// WithBonusBps specifies the boost bonus rate in basis points. The default is 100
func WithBonusBps(bps uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.bonusBps = bps
	}
}

// WithSupplyCap replaces the DAO token's initial supply cap after initialization
func WithSupplyCap(supplyCap *uint256.Int) ConfigOptionFunc {
	return func(c *Config) {
		c.supplyCap = supplyCap
	}
}

// WithSourceLockEnd sets the source token's global lock end, which opens the airdrop window
func WithSourceLockEnd(lockEnd uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.sourceLockEnd = lockEnd
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for flushing traces on Stop. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}

// WithTracingWriter sends stdout tracing output to w instead
func WithTracingWriter(w io.Writer) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingWriter = w
	}
}
