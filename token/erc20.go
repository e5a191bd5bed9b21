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

package token

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/blinklabs-io/veescrow/txn"
)

var (
	ErrInsufficientBalance   = errors.New("ERC20: transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("ERC20: insufficient allowance")
	ErrZeroAddress           = errors.New("ERC20: zero address")
	ErrSupplyOverflow        = errors.New("ERC20: total supply overflow")
)

// BeforeTransferFunc is consulted before any balance moves out of from.
// Returning an error rejects the transfer
type BeforeTransferFunc func(from, to common.Address, amount *uint256.Int) error

// ERC20 is an in-memory fungible token ledger with balances and allowances.
// Amounts are 256-bit unsigned integers with checked arithmetic
type ERC20 struct {
	name           string
	symbol         string
	balances       map[common.Address]*uint256.Int
	allowances     map[common.Address]map[common.Address]*uint256.Int
	totalSupply    *uint256.Int
	beforeTransfer BeforeTransferFunc
	mu             sync.RWMutex
	decimals       uint8
}

func NewERC20(name string, symbol string, decimals uint8) *ERC20 {
	return &ERC20{
		name:        name,
		symbol:      symbol,
		decimals:    decimals,
		balances:    make(map[common.Address]*uint256.Int),
		allowances:  make(map[common.Address]map[common.Address]*uint256.Int),
		totalSupply: new(uint256.Int),
	}
}

// SetBeforeTransfer installs a transfer hook. It should be called before the
// token is shared
func (t *ERC20) SetBeforeTransfer(fn BeforeTransferFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.beforeTransfer = fn
}

func (t *ERC20) Name() string {
	return t.name
}

func (t *ERC20) Symbol() string {
	return t.symbol
}

func (t *ERC20) Decimals() uint8 {
	return t.decimals
}

func (t *ERC20) TotalSupply() *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalSupply.Clone()
}

func (t *ERC20) BalanceOf(account common.Address) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balanceOf(account).Clone()
}

func (t *ERC20) balanceOf(account common.Address) *uint256.Int {
	if bal, ok := t.balances[account]; ok {
		return bal
	}
	return new(uint256.Int)
}

func (t *ERC20) Allowance(owner common.Address, spender common.Address) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.allowance(owner, spender).Clone()
}

func (t *ERC20) allowance(owner common.Address, spender common.Address) *uint256.Int {
	if amt, ok := t.allowances[owner][spender]; ok {
		return amt
	}
	return new(uint256.Int)
}

// Approve sets the amount spender may move out of owner's balance
func (t *ERC20) Approve(
	ctx context.Context,
	owner common.Address,
	spender common.Address,
	amount *uint256.Int,
) error {
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return ErrZeroAddress
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setAllowance(ctx, owner, spender, amount.Clone())
	return nil
}

// Transfer moves amount from the caller's balance to to
func (t *ERC20) Transfer(
	ctx context.Context,
	from common.Address,
	to common.Address,
	amount *uint256.Int,
) error {
	return t.transfer(ctx, from, to, amount)
}

// TransferFrom moves amount from from to to, spending spender's allowance.
// An allowance of 2^256-1 is treated as unlimited and not decreased
func (t *ERC20) TransferFrom(
	ctx context.Context,
	spender common.Address,
	from common.Address,
	to common.Address,
	amount *uint256.Int,
) error {
	t.mu.RLock()
	allowed := t.allowance(from, spender).Clone()
	t.mu.RUnlock()
	if allowed.Lt(amount) {
		return ErrInsufficientAllowance
	}
	if err := t.transfer(ctx, from, to, amount); err != nil {
		return err
	}
	if !allowed.Eq(maxUint256) {
		t.mu.Lock()
		t.setAllowance(ctx, from, spender, new(uint256.Int).Sub(allowed, amount))
		t.mu.Unlock()
	}
	return nil
}

// Issue creates amount new tokens for to. It performs no permission check;
// wrapping tokens gate it
func (t *ERC20) Issue(
	ctx context.Context,
	to common.Address,
	amount *uint256.Int,
) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	newSupply, overflow := new(uint256.Int).AddOverflow(t.totalSupply, amount)
	if overflow {
		return ErrSupplyOverflow
	}
	prevSupply := t.totalSupply
	t.totalSupply = newSupply
	txn.Record(ctx, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.totalSupply = prevSupply
	})
	// A balance can never exceed the total supply, so this cannot overflow
	t.setBalance(ctx, to, new(uint256.Int).Add(t.balanceOf(to), amount))
	return nil
}

func (t *ERC20) transfer(
	ctx context.Context,
	from common.Address,
	to common.Address,
	amount *uint256.Int,
) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return ErrZeroAddress
	}
	t.mu.RLock()
	hook := t.beforeTransfer
	t.mu.RUnlock()
	if hook != nil {
		if err := hook(from, to, amount); err != nil {
			return err
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fromBal := t.balanceOf(from)
	if fromBal.Lt(amount) {
		return ErrInsufficientBalance
	}
	t.setBalance(ctx, from, new(uint256.Int).Sub(fromBal, amount))
	t.setBalance(ctx, to, new(uint256.Int).Add(t.balanceOf(to), amount))
	return nil
}

// setBalance must be called with the write lock held
func (t *ERC20) setBalance(
	ctx context.Context,
	account common.Address,
	amount *uint256.Int,
) {
	prev, hadPrev := t.balances[account]
	t.balances[account] = amount
	txn.Record(ctx, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if hadPrev {
			t.balances[account] = prev
		} else {
			delete(t.balances, account)
		}
	})
}

// setAllowance must be called with the write lock held
func (t *ERC20) setAllowance(
	ctx context.Context,
	owner common.Address,
	spender common.Address,
	amount *uint256.Int,
) {
	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[common.Address]*uint256.Int)
	}
	prev, hadPrev := t.allowances[owner][spender]
	t.allowances[owner][spender] = amount
	txn.Record(ctx, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if hadPrev {
			t.allowances[owner][spender] = prev
		} else {
			delete(t.allowances[owner], spender)
		}
	})
}

var maxUint256 = new(uint256.Int).SetAllOne()

// MaxAmount returns 2^256-1, the unlimited allowance
func MaxAmount() *uint256.Int {
	return maxUint256.Clone()
}
