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

// Package escrow implements a vote-escrow ledger. Accounts lock a fungible
// asset until a week-aligned unlock time and receive voting weight that
// decays linearly to zero at that time. Aggregate weight is tracked with a
// global checkpoint plus a schedule of slope changes at week boundaries, so
// total supply at any instant costs one pass over the elapsed weeks rather
// than one pass over the accounts.
package escrow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/blinklabs-io/veescrow/clock"
	"github.com/blinklabs-io/veescrow/event"
	"github.com/blinklabs-io/veescrow/units"
)

var (
	ErrInvalidAmount          = errors.New("INVALID_AMOUNT")
	ErrShutdown               = errors.New("Contract is shutdown")
	ErrAdminOnly              = errors.New("Admin only")
	ErrDelegateOnly           = errors.New("Delegate only")
	ErrWithdrawOldTokensFirst = errors.New("Withdraw old tokens first")
	ErrLockInPast             = errors.New("Can only lock until time in the future")
	ErrLockTooLong            = errors.New("Voting lock can be 4 years max")
	ErrNoExistingLock         = errors.New("No existing lock found")
	ErrLockExpired            = errors.New("Cannot add to expired lock. Withdraw")
	ErrLockExpiredExtend      = errors.New("Lock expired")
	ErrNothingLocked          = errors.New("Nothing is locked")
	ErrCanOnlyIncrease        = errors.New("Can only increase lock duration")
	ErrLockNotExpired         = errors.New("The lock didn't expire")
	ErrAdminNotSet            = errors.New("Admin not set")
)

const (
	defaultName    = "Boost-Locked CXD"
	defaultSymbol  = "blCXD"
	defaultVersion = "1.0.0"
)

// Asset is the token the ledger escrows. The ledger pulls deposits with
// TransferFrom, acting as spender for its own address, and pays withdrawals
// with Transfer
type Asset interface {
	Decimals() uint8
	TransferFrom(
		ctx context.Context,
		spender common.Address,
		from common.Address,
		to common.Address,
		amount *uint256.Int,
	) error
	Transfer(
		ctx context.Context,
		from common.Address,
		to common.Address,
		amount *uint256.Int,
	) error
}

type Config struct {
	Token        Asset
	Clock        clock.Clock
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	EventBus     *event.EventBus
	Name         string
	Symbol       string
	Version      string
	Address      common.Address
	Admin        common.Address
	// Week and MaxTime default to units.Week and units.MaxTime
	Week    uint64
	MaxTime uint64
}

// Lock is an account's escrowed amount and its week-aligned unlock time.
// Amount is zero exactly when End is zero
type Lock struct {
	Amount *uint256.Int
	End    uint64
}

func (l Lock) clone() Lock {
	return Lock{Amount: amountOrZero(l.Amount).Clone(), End: l.End}
}

// IsZero reports whether the lock holds nothing
func (l Lock) IsZero() bool {
	return l.Amount == nil || l.Amount.IsZero()
}

// Point is a checkpoint of a linearly decaying weight:
// weight(t) = max(0, Bias - Slope*(t - Ts))
type Point struct {
	Bias  *uint256.Int
	Slope *uint256.Int
	Ts    uint64
}

func newPoint(ts uint64) Point {
	return Point{Bias: new(uint256.Int), Slope: new(uint256.Int), Ts: ts}
}

func (p Point) clone() Point {
	return Point{
		Bias:  amountOrZero(p.Bias).Clone(),
		Slope: amountOrZero(p.Slope).Clone(),
		Ts:    p.Ts,
	}
}

// valueAt evaluates the line at t, which must not precede Ts
func (p Point) valueAt(t uint64) *uint256.Int {
	if t <= p.Ts {
		return p.Bias.Clone()
	}
	return decay(p.Bias, p.Slope, t-p.Ts)
}

// Ledger is a vote-escrow ledger over one asset
type Ledger struct {
	config  Config
	logger  *slog.Logger
	metrics *escrowMetrics
	week    uint64
	maxTime uint64

	mu               sync.RWMutex
	admin            common.Address
	futureAdmin      common.Address
	supply           *uint256.Int
	locked           map[common.Address]Lock
	delegates        map[common.Address]common.Address
	pointHistory     []Point
	userPointHistory map[common.Address][]Point
	slopeChanges     map[uint64]*uint256.Int
	isShutdown       bool
	shutdownTime     uint64
}

func New(cfg Config) (*Ledger, error) {
	if cfg.Token == nil {
		return nil, errors.New("escrow asset not configured")
	}
	if cfg.Address == (common.Address{}) {
		return nil, errors.New("escrow address not configured")
	}
	if cfg.Admin == (common.Address{}) {
		return nil, ErrAdminNotSet
	}
	if cfg.Name == "" {
		cfg.Name = defaultName
	}
	if cfg.Symbol == "" {
		cfg.Symbol = defaultSymbol
	}
	if cfg.Version == "" {
		cfg.Version = defaultVersion
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Week == 0 {
		cfg.Week = units.Week
	}
	if cfg.MaxTime == 0 {
		cfg.MaxTime = units.MaxTime
	}
	if cfg.MaxTime < cfg.Week {
		return nil, errors.New("escrow max time shorter than one week")
	}
	if cfg.MaxTime/cfg.Week >= maxCheckpointWeeks {
		return nil, errors.New("escrow max time spans too many weeks")
	}
	l := &Ledger{
		config:           cfg,
		week:             cfg.Week,
		maxTime:          cfg.MaxTime,
		admin:            cfg.Admin,
		supply:           new(uint256.Int),
		locked:           make(map[common.Address]Lock),
		delegates:        make(map[common.Address]common.Address),
		pointHistory:     []Point{newPoint(cfg.Clock.Now())},
		userPointHistory: make(map[common.Address][]Point),
		slopeChanges:     make(map[uint64]*uint256.Int),
	}
	if cfg.Logger == nil {
		l.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		l.logger = cfg.Logger
	}
	l.metrics = initMetrics(cfg.PromRegistry, cfg.Symbol)
	return l, nil
}

func (l *Ledger) Name() string {
	return l.config.Name
}

func (l *Ledger) Symbol() string {
	return l.config.Symbol
}

func (l *Ledger) Version() string {
	return l.config.Version
}

func (l *Ledger) Decimals() uint8 {
	return l.config.Token.Decimals()
}

// Address is the account that holds escrowed tokens
func (l *Ledger) Address() common.Address {
	return l.config.Address
}

func (l *Ledger) Admin() common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.admin
}

func (l *Ledger) FutureAdmin() common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.futureAdmin
}

func (l *Ledger) IsShutdown() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.isShutdown
}

// ShutdownTime returns when the ledger was shut down, or 0
func (l *Ledger) ShutdownTime() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.shutdownTime
}

// Locked returns a copy of account's lock
func (l *Ledger) Locked(account common.Address) Lock {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lockOf(account)
}

func (l *Ledger) lockOf(account common.Address) Lock {
	if lk, ok := l.locked[account]; ok {
		return lk.clone()
	}
	return Lock{Amount: new(uint256.Int)}
}

// Supply returns the raw total of escrowed tokens
func (l *Ledger) Supply() *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply.Clone()
}

// DelegateFor returns the account allowed to create locks for account
func (l *Ledger) DelegateFor(account common.Address) common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.delegates[account]
}

// Epoch returns the index of the latest global checkpoint
func (l *Ledger) Epoch() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.pointHistory) - 1)
}

func (l *Ledger) PointHistory(epoch uint64) (Point, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if epoch >= uint64(len(l.pointHistory)) {
		return Point{}, false
	}
	return l.pointHistory[epoch].clone(), true
}

// UserPointEpoch returns the index of account's latest checkpoint. Index 0
// is the empty point every account starts with
func (l *Ledger) UserPointEpoch(account common.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	hist := l.userPointHistory[account]
	if len(hist) == 0 {
		return 0
	}
	return uint64(len(hist) - 1)
}

func (l *Ledger) UserPointHistory(account common.Address, epoch uint64) (Point, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	hist := l.userPointHistory[account]
	if epoch >= uint64(len(hist)) {
		return Point{}, false
	}
	return hist[epoch].clone(), true
}

// SlopeChange returns the slope reduction scheduled at week boundary t
func (l *Ledger) SlopeChange(t uint64) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.slopeChange(t).Clone()
}

func (l *Ledger) slopeChange(t uint64) *uint256.Int {
	if v, ok := l.slopeChanges[t]; ok {
		return v
	}
	return new(uint256.Int)
}

// BalanceOf returns account's voting weight now
func (l *Ledger) BalanceOf(account common.Address) *uint256.Int {
	return l.BalanceOfAt(account, l.config.Clock.Now())
}

// BalanceOfAt returns account's voting weight at t. After shutdown the
// weight is frozen at the shutdown instant
func (l *Ledger) BalanceOfAt(account common.Address, t uint64) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t = l.effectiveTime(t)
	hist := l.userPointHistory[account]
	idx := findPoint(hist, t)
	if idx <= 0 {
		return new(uint256.Int)
	}
	return hist[idx].valueAt(t)
}

// TotalSupply returns the aggregate voting weight now
func (l *Ledger) TotalSupply() *uint256.Int {
	return l.TotalSupplyAt(l.config.Clock.Now())
}

// TotalSupplyAt returns the aggregate voting weight at t, replaying the
// slope schedule from the latest global checkpoint at or before t
func (l *Ledger) TotalSupplyAt(t uint64) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t = l.effectiveTime(t)
	idx := findPoint(l.pointHistory, t)
	if idx < 0 {
		return new(uint256.Int)
	}
	return l.supplyAt(l.pointHistory[idx], t)
}

func (l *Ledger) effectiveTime(t uint64) uint64 {
	if l.isShutdown && t > l.shutdownTime {
		return l.shutdownTime
	}
	return t
}

// findPoint returns the index of the latest point with Ts <= t, or -1
func findPoint(points []Point, t uint64) int {
	// First index whose timestamp is after t
	i := sort.Search(len(points), func(i int) bool {
		return points[i].Ts > t
	})
	return i - 1
}

func amountOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
