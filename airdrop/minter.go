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

package airdrop

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/blinklabs-io/veescrow/clock"
	"github.com/blinklabs-io/veescrow/escrow"
	"github.com/blinklabs-io/veescrow/event"
	"github.com/blinklabs-io/veescrow/rewards"
	"github.com/blinklabs-io/veescrow/units"
)

const tracerName = "github.com/blinklabs-io/veescrow/airdrop"

// DefaultBonusBps is the boost bonus rate, 1%
const DefaultBonusBps uint64 = 100

var (
	ErrInvalidDaoAddress     = errors.New("INVALID_DAO_ADDRESS")
	ErrInvalidEscrowAddress  = errors.New("INVALID_ESCROW_ADDRESS")
	ErrAirdropInactive       = errors.New("AIRDROP_INACTIVE")
	ErrNoBoostLockedAmount   = errors.New("NO_BOOST_LOCKED_AMOUNT")
	ErrBoostLockEndsTooEarly = errors.New("BOOST_LOCK_ENDS_TOO_EARLY")
	ErrBonusOverflow         = errors.New("converted amount overflows")
)

// SourceToken is the time-locked asset being converted
type SourceToken interface {
	LockEnd() uint64
	UnlockedBalance(account common.Address) *uint256.Int
	LockAmount(
		ctx context.Context,
		caller common.Address,
		account common.Address,
		amount *uint256.Int,
	) error
}

// BoostEscrow is the vote-escrow over the source asset whose positions earn
// the bonus
type BoostEscrow interface {
	Locked(account common.Address) escrow.Lock
	BalanceOf(account common.Address) *uint256.Int
}

// MintableToken is the destination asset
type MintableToken interface {
	Mint(
		ctx context.Context,
		caller common.Address,
		to common.Address,
		amount *uint256.Int,
	) error
}

// LockCreator is the vote-escrow over the destination asset
type LockCreator interface {
	CreateLockFor(
		ctx context.Context,
		caller common.Address,
		account common.Address,
		amount *uint256.Int,
		unlockTime uint64,
	) error
}

type RewardClaimer interface {
	Claim(
		ctx context.Context,
		recipient rewards.Recipient,
		sig rewards.Signature,
	) error
}

type Config struct {
	SourceToken        SourceToken
	BoostEscrow        BoostEscrow
	DaoToken           MintableToken
	Escrow             LockCreator
	Rewards            RewardClaimer
	Clock              clock.Clock
	Logger             *slog.Logger
	PromRegistry       prometheus.Registerer
	EventBus           *event.EventBus
	TracerProvider     trace.TracerProvider
	Address            common.Address
	SourceTokenAddress common.Address
	BoostEscrowAddress common.Address
	DaoTokenAddress    common.Address
	EscrowAddress      common.Address
	RewardsAddress     common.Address
	Ratio              units.Ratio
	BonusBps           uint64
}

// Minter converts source positions into destination tokens. It holds no
// accounting state of its own; every balance it depends on lives in its
// collaborators
type Minter struct {
	config  Config
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *minterMetrics
	mu      sync.Mutex
}

func New(cfg Config) (*Minter, error) {
	if cfg.DaoToken == nil || cfg.DaoTokenAddress == (common.Address{}) {
		return nil, ErrInvalidDaoAddress
	}
	if cfg.Escrow == nil || cfg.EscrowAddress == (common.Address{}) {
		return nil, ErrInvalidEscrowAddress
	}
	if cfg.SourceToken == nil {
		return nil, errors.New("source token not configured")
	}
	if cfg.BoostEscrow == nil {
		return nil, errors.New("boost escrow not configured")
	}
	if cfg.Rewards == nil {
		return nil, errors.New("reward distributor not configured")
	}
	if cfg.Address == (common.Address{}) {
		return nil, errors.New("minter address not configured")
	}
	if cfg.Ratio == (units.Ratio{}) {
		cfg.Ratio = units.AirdropRatio
	}
	if err := cfg.Ratio.Validate(); err != nil {
		return nil, err
	}
	if err := units.ValidateBps(cfg.BonusBps); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	m := &Minter{
		config:  cfg,
		tracer:  cfg.TracerProvider.Tracer(tracerName),
		metrics: initMetrics(cfg.PromRegistry),
	}
	if cfg.Logger == nil {
		m.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		m.logger = cfg.Logger
	}
	return m, nil
}

// Address is the identity the minter presents to its collaborators
func (m *Minter) Address() common.Address {
	return m.config.Address
}

func (m *Minter) SourceTokenAddress() common.Address {
	return m.config.SourceTokenAddress
}

func (m *Minter) BoostEscrowAddress() common.Address {
	return m.config.BoostEscrowAddress
}

func (m *Minter) DaoTokenAddress() common.Address {
	return m.config.DaoTokenAddress
}

func (m *Minter) EscrowAddress() common.Address {
	return m.config.EscrowAddress
}

func (m *Minter) RewardsAddress() common.Address {
	return m.config.RewardsAddress
}

func (m *Minter) BonusBps() uint64 {
	return m.config.BonusBps
}

func (m *Minter) Ratio() units.Ratio {
	return m.config.Ratio
}

// IsAirdropActive reports whether the source lock end is still in the future
func (m *Minter) IsAirdropActive() bool {
	return m.config.SourceToken.LockEnd() > m.config.Clock.Now()
}

// ConvertedAmount returns floor(amount * ratio)
func (m *Minter) ConvertedAmount(amount *uint256.Int) (*uint256.Int, error) {
	return m.config.Ratio.Apply(amount)
}

// BonusAmount returns the converted bonus earned by a boost weight
func (m *Minter) BonusAmount(weight *uint256.Int) (*uint256.Int, error) {
	bonus, err := units.ApplyBps(weight, m.config.BonusBps)
	if err != nil {
		return nil, err
	}
	return m.config.Ratio.Apply(bonus)
}
