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

// Package timelock implements the source asset of the airdrop: a fungible
// token whose holders' balances can be flagged as consumed by approved
// lockers until a global lock end.
package timelock

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/blinklabs-io/veescrow/access"
	"github.com/blinklabs-io/veescrow/clock"
	"github.com/blinklabs-io/veescrow/token"
	"github.com/blinklabs-io/veescrow/txn"
)

const (
	defaultName           = "APY Governance Token"
	defaultSymbol         = "APY"
	defaultDecimals uint8 = 18
)

var (
	ErrLockerOnly            = errors.New("LOCKER_ONLY")
	ErrAmountExceedsUnlocked = errors.New("AMOUNT_EXCEEDS_UNLOCKED_BALANCE")
	ErrLockedBalance         = errors.New("LOCKED_BALANCE")
	ErrInvalidLockerAddress  = errors.New("INVALID_ADDRESS")
	ErrOwnerOnly             = access.ErrNotOwner
)

type Config struct {
	Logger   *slog.Logger
	Clock    clock.Clock
	Name     string
	Symbol   string
	Owner    common.Address
	Decimals uint8
}

// Token is an ERC20 whose owner sets a global lock end. Until then, lockers
// may mark part of an account's balance as consumed; the consumed part can
// neither be transferred nor locked again. After the lock end every balance
// is fully unlocked
type Token struct {
	*token.ERC20
	owner   *access.Ownable
	clock   clock.Clock
	logger  *slog.Logger
	lockers map[common.Address]struct{}
	locked  map[common.Address]*uint256.Int
	lockEnd uint64
	mu      sync.RWMutex
}

func New(cfg Config) *Token {
	if cfg.Name == "" {
		cfg.Name = defaultName
	}
	if cfg.Symbol == "" {
		cfg.Symbol = defaultSymbol
	}
	if cfg.Decimals == 0 {
		cfg.Decimals = defaultDecimals
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	t := &Token{
		ERC20:   token.NewERC20(cfg.Name, cfg.Symbol, cfg.Decimals),
		owner:   access.NewOwnable(cfg.Owner),
		clock:   cfg.Clock,
		lockers: make(map[common.Address]struct{}),
		locked:  make(map[common.Address]*uint256.Int),
	}
	if cfg.Logger == nil {
		t.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		t.logger = cfg.Logger
	}
	t.SetBeforeTransfer(t.checkTransfer)
	return t
}

func (t *Token) Owner() common.Address {
	return t.owner.Owner()
}

func (t *Token) LockEnd() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lockEnd
}

func (t *Token) isLockActive() bool {
	return t.clock.Now() < t.LockEnd()
}

// SetLockEnd changes the global lock end. Owner only
func (t *Token) SetLockEnd(
	ctx context.Context,
	caller common.Address,
	lockEnd uint64,
) error {
	if err := t.owner.CheckOwner(caller); err != nil {
		return err
	}
	t.mu.Lock()
	prev := t.lockEnd
	t.lockEnd = lockEnd
	t.mu.Unlock()
	txn.Record(ctx, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.lockEnd = prev
	})
	t.logger.Debug(
		"lock end updated",
		"component", "timelock",
		"lock_end", lockEnd,
	)
	return nil
}

func (t *Token) IsLocker(account common.Address) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.lockers[account]
	return ok
}

// AddLocker grants locker permission. Owner only
func (t *Token) AddLocker(
	ctx context.Context,
	caller common.Address,
	account common.Address,
) error {
	return t.setLocker(ctx, caller, account, true)
}

// RemoveLocker revokes locker permission. Owner only
func (t *Token) RemoveLocker(
	ctx context.Context,
	caller common.Address,
	account common.Address,
) error {
	return t.setLocker(ctx, caller, account, false)
}

func (t *Token) setLocker(
	ctx context.Context,
	caller common.Address,
	account common.Address,
	enabled bool,
) error {
	if err := t.owner.CheckOwner(caller); err != nil {
		return err
	}
	if account == (common.Address{}) {
		return ErrInvalidLockerAddress
	}
	t.mu.Lock()
	_, was := t.lockers[account]
	if enabled {
		t.lockers[account] = struct{}{}
	} else {
		delete(t.lockers, account)
	}
	t.mu.Unlock()
	txn.Record(ctx, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if was {
			t.lockers[account] = struct{}{}
		} else {
			delete(t.lockers, account)
		}
	})
	return nil
}

// LockedAmount returns the consumed part of account's balance
func (t *Token) LockedAmount(account common.Address) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if amt, ok := t.locked[account]; ok {
		return amt.Clone()
	}
	return new(uint256.Int)
}

// UnlockedBalance returns the part of account's balance that is free to move
// or to be consumed
func (t *Token) UnlockedBalance(account common.Address) *uint256.Int {
	balance := t.BalanceOf(account)
	if !t.isLockActive() {
		return balance
	}
	locked := t.LockedAmount(account)
	if locked.Gt(balance) {
		return new(uint256.Int)
	}
	return balance.Sub(balance, locked)
}

// LockAmount flags amount of account's unlocked balance as consumed. Only
// lockers may call it. No tokens move
func (t *Token) LockAmount(
	ctx context.Context,
	caller common.Address,
	account common.Address,
	amount *uint256.Int,
) error {
	if !t.IsLocker(caller) {
		return ErrLockerOnly
	}
	if amount.Gt(t.UnlockedBalance(account)) {
		return ErrAmountExceedsUnlocked
	}
	t.mu.Lock()
	prev, hadPrev := t.locked[account]
	base := new(uint256.Int)
	if hadPrev {
		base = prev
	}
	t.locked[account] = new(uint256.Int).Add(base, amount)
	t.mu.Unlock()
	txn.Record(ctx, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if hadPrev {
			t.locked[account] = prev
		} else {
			delete(t.locked, account)
		}
	})
	return nil
}

// Mint issues new tokens. Owner only
func (t *Token) Mint(
	ctx context.Context,
	caller common.Address,
	to common.Address,
	amount *uint256.Int,
) error {
	if err := t.owner.CheckOwner(caller); err != nil {
		return err
	}
	return t.Issue(ctx, to, amount)
}

func (t *Token) checkTransfer(
	from common.Address,
	_ common.Address,
	amount *uint256.Int,
) error {
	if amount.Gt(t.UnlockedBalance(from)) {
		return ErrLockedBalance
	}
	return nil
}
