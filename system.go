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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.opentelemetry.io/otel/trace"

	"github.com/blinklabs-io/veescrow/airdrop"
	"github.com/blinklabs-io/veescrow/clock"
	"github.com/blinklabs-io/veescrow/escrow"
	"github.com/blinklabs-io/veescrow/event"
	"github.com/blinklabs-io/veescrow/rewards"
	"github.com/blinklabs-io/veescrow/timelock"
	"github.com/blinklabs-io/veescrow/token"
)

const (
	boostEscrowName   = "Boost-Locked APY"
	boostEscrowSymbol = "blAPY"
)

// Component addresses. Each is derived from a fixed label so that
// signatures and logs are stable across runs
var (
	SourceTokenAddress = componentAddress("veescrow.source-token")
	BoostEscrowAddress = componentAddress("veescrow.boost-escrow")
	DaoTokenAddress    = componentAddress("veescrow.dao-token")
	EscrowAddress      = componentAddress("veescrow.escrow")
	RewardsAddress     = componentAddress("veescrow.rewards")
	MinterAddress      = componentAddress("veescrow.airdrop-minter")
)

func componentAddress(label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(label))[12:])
}

// System is a fully wired set of ledgers: the source time-lock token with
// its boost escrow, the DAO token with its escrow, the reward distributor
// and the airdrop minter that joins them
type System struct {
	config         Config
	eventBus       *event.EventBus
	daoToken       *token.DaoToken
	sourceToken    *timelock.Token
	boostEscrow    *escrow.Ledger
	escrow         *escrow.Ledger
	rewards        *rewards.Distributor
	minter         *airdrop.Minter
	tracerProvider trace.TracerProvider
	shutdownFuncs  []func(context.Context) error
	shutdownOnce   sync.Once
}

func New(opts ...ConfigOptionFunc) (*System, error) {
	cfg := NewConfig(opts...)
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.clock == nil {
		cfg.clock = clock.System{}
	}
	s := &System{
		config: cfg,
	}
	if err := s.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := s.build(); err != nil {
		// Release whatever was started before the failure
		_ = s.Stop()
		return nil, err
	}
	return s, nil
}

func (s *System) build() error {
	ctx := context.Background()
	logger := s.config.logger
	s.eventBus = event.NewEventBus(s.config.promRegistry, logger)
	// DAO token
	s.daoToken = token.NewDaoToken()
	if err := s.daoToken.Initialize(ctx, s.config.admin); err != nil {
		return fmt.Errorf("initialize DAO token: %w", err)
	}
	if s.config.supplyCap != nil {
		if err := s.daoToken.SetSupplyCap(
			ctx,
			s.config.admin,
			s.config.supplyCap,
		); err != nil {
			return fmt.Errorf("set supply cap: %w", err)
		}
	}
	// Source token
	s.sourceToken = timelock.New(timelock.Config{
		Logger: logger.With("component", "timelock"),
		Clock:  s.config.clock,
		Owner:  s.config.admin,
	})
	// Escrows
	var err error
	s.boostEscrow, err = escrow.New(escrow.Config{
		Token:        s.sourceToken,
		Clock:        s.config.clock,
		Logger:       logger.With("component", "escrow", "ledger", "boost"),
		PromRegistry: s.config.promRegistry,
		EventBus:     s.eventBus,
		Name:         boostEscrowName,
		Symbol:       boostEscrowSymbol,
		Address:      BoostEscrowAddress,
		Admin:        s.config.admin,
		Week:         s.config.week,
		MaxTime:      s.config.maxTime,
	})
	if err != nil {
		return fmt.Errorf("boost escrow: %w", err)
	}
	s.escrow, err = escrow.New(escrow.Config{
		Token:        s.daoToken,
		Clock:        s.config.clock,
		Logger:       logger.With("component", "escrow", "ledger", "dao"),
		PromRegistry: s.config.promRegistry,
		EventBus:     s.eventBus,
		Name:         s.config.escrowName,
		Symbol:       s.config.escrowSymbol,
		Version:      s.config.escrowVersion,
		Address:      EscrowAddress,
		Admin:        s.config.admin,
		Week:         s.config.week,
		MaxTime:      s.config.maxTime,
	})
	if err != nil {
		return fmt.Errorf("escrow: %w", err)
	}
	// Rewards
	s.rewards, err = rewards.New(rewards.Config{
		Token:        s.sourceToken,
		Logger:       logger.With("component", "rewards"),
		PromRegistry: s.config.promRegistry,
		EventBus:     s.eventBus,
		Address:      RewardsAddress,
		Owner:        s.config.admin,
		Signer:       s.config.rewardSigner,
		ChainID:      s.config.chainID,
	})
	if err != nil {
		return fmt.Errorf("reward distributor: %w", err)
	}
	// Configure tracing
	if s.config.tracing {
		if err := s.setupTracing(); err != nil {
			return err
		}
	}
	// Minter
	s.minter, err = airdrop.New(airdrop.Config{
		SourceToken:        s.sourceToken,
		BoostEscrow:        s.boostEscrow,
		DaoToken:           s.daoToken,
		Escrow:             s.escrow,
		Rewards:            s.rewards,
		Clock:              s.config.clock,
		Logger:             logger.With("component", "airdrop"),
		PromRegistry:       s.config.promRegistry,
		EventBus:           s.eventBus,
		TracerProvider:     s.tracerProvider,
		Address:            MinterAddress,
		SourceTokenAddress: SourceTokenAddress,
		BoostEscrowAddress: BoostEscrowAddress,
		DaoTokenAddress:    DaoTokenAddress,
		EscrowAddress:      EscrowAddress,
		RewardsAddress:     RewardsAddress,
		Ratio:              s.config.ratio,
		BonusBps:           s.config.bonusBps,
	})
	if err != nil {
		return fmt.Errorf("airdrop minter: %w", err)
	}
	// Permissions
	if err := s.daoToken.GrantRole(
		ctx,
		s.config.admin,
		token.MinterRole,
		MinterAddress,
	); err != nil {
		return fmt.Errorf("grant minter role: %w", err)
	}
	if err := s.sourceToken.AddLocker(
		ctx,
		s.config.admin,
		MinterAddress,
	); err != nil {
		return fmt.Errorf("add locker: %w", err)
	}
	if s.config.sourceLockEnd > 0 {
		if err := s.sourceToken.SetLockEnd(
			ctx,
			s.config.admin,
			s.config.sourceLockEnd,
		); err != nil {
			return fmt.Errorf("set source lock end: %w", err)
		}
	}
	s.config.logger.Info(
		"system ready",
		"component", "veescrow",
		"admin", s.config.admin.Hex(),
		"ratio", s.config.ratio.String(),
		"bonus_bps", s.config.bonusBps,
	)
	return nil
}

func (s *System) EventBus() *event.EventBus {
	return s.eventBus
}

func (s *System) DaoToken() *token.DaoToken {
	return s.daoToken
}

func (s *System) SourceToken() *timelock.Token {
	return s.sourceToken
}

// BoostEscrow is the vote-escrow over the source token
func (s *System) BoostEscrow() *escrow.Ledger {
	return s.boostEscrow
}

// Escrow is the vote-escrow over the DAO token
func (s *System) Escrow() *escrow.Ledger {
	return s.escrow
}

func (s *System) Rewards() *rewards.Distributor {
	return s.rewards
}

func (s *System) Minter() *airdrop.Minter {
	return s.minter
}

func (s *System) Clock() clock.Clock {
	return s.config.clock
}

func (s *System) Admin() common.Address {
	return s.config.admin
}

// Stop flushes tracing and stops the event bus. It is safe to call more
// than once
func (s *System) Stop() error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.shutdown()
	})
	return err
}

func (s *System) shutdown() error {
	shutdownTimeout := 30 * time.Second
	if s.config.shutdownTimeout > 0 {
		shutdownTimeout = s.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error
	s.config.logger.Debug("starting graceful shutdown")
	for _, fn := range s.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	s.shutdownFuncs = nil
	if s.eventBus != nil {
		s.eventBus.Close()
	}
	s.config.logger.Debug("graceful shutdown complete")
	return err
}
