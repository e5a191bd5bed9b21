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

package timelock_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/veescrow/clock"
	"github.com/blinklabs-io/veescrow/timelock"
	"github.com/blinklabs-io/veescrow/txn"
	"github.com/blinklabs-io/veescrow/units"
)

var (
	owner  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	locker = common.HexToAddress("0x2000000000000000000000000000000000000002")
	holder = common.HexToAddress("0x3000000000000000000000000000000000000003")
	other  = common.HexToAddress("0x4000000000000000000000000000000000000004")
)

const startTime = 1_700_000_000

func newToken(t *testing.T) (*timelock.Token, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(startTime)
	tok := timelock.New(timelock.Config{Owner: owner, Clock: clk})
	ctx := context.Background()
	require.NoError(t, tok.Mint(ctx, owner, holder, units.TokenAmount(1000, 18)))
	require.NoError(t, tok.AddLocker(ctx, owner, locker))
	require.NoError(t, tok.SetLockEnd(ctx, owner, startTime+units.Year))
	return tok, clk
}

func TestDefaults(t *testing.T) {
	tok := timelock.New(timelock.Config{Owner: owner})
	assert.Equal(t, "APY", tok.Symbol())
	assert.Equal(t, uint8(18), tok.Decimals())
	assert.Equal(t, owner, tok.Owner())
	assert.Equal(t, uint64(0), tok.LockEnd())
}

func TestOwnerOnly(t *testing.T) {
	ctx := context.Background()
	tok, _ := newToken(t)
	assert.ErrorIs(t, tok.SetLockEnd(ctx, other, 1), timelock.ErrOwnerOnly)
	assert.ErrorIs(t, tok.AddLocker(ctx, other, other), timelock.ErrOwnerOnly)
	assert.ErrorIs(t, tok.Mint(ctx, other, other, uint256.NewInt(1)), timelock.ErrOwnerOnly)
	assert.ErrorIs(t, tok.AddLocker(ctx, owner, common.Address{}), timelock.ErrInvalidLockerAddress)
}

func TestLockAmount(t *testing.T) {
	ctx := context.Background()
	tok, _ := newToken(t)
	amount := units.TokenAmount(400, 18)

	assert.ErrorIs(t, tok.LockAmount(ctx, other, holder, amount), timelock.ErrLockerOnly)
	require.NoError(t, tok.LockAmount(ctx, locker, holder, amount))
	assert.Equal(t, units.TokenAmount(600, 18), tok.UnlockedBalance(holder))
	assert.Equal(t, amount, tok.LockedAmount(holder))
	assert.Equal(t, units.TokenAmount(1000, 18), tok.BalanceOf(holder))

	assert.ErrorIs(
		t,
		tok.LockAmount(ctx, locker, holder, units.TokenAmount(601, 18)),
		timelock.ErrAmountExceedsUnlocked,
	)
}

func TestLockedBalanceCannotMove(t *testing.T) {
	ctx := context.Background()
	tok, clk := newToken(t)
	require.NoError(t, tok.LockAmount(ctx, locker, holder, units.TokenAmount(900, 18)))

	assert.ErrorIs(
		t,
		tok.Transfer(ctx, holder, other, units.TokenAmount(101, 18)),
		timelock.ErrLockedBalance,
	)
	require.NoError(t, tok.Transfer(ctx, holder, other, units.TokenAmount(100, 18)))
	assert.True(t, tok.UnlockedBalance(holder).IsZero())

	// After the lock end the whole balance is free
	clk.Set(startTime + units.Year)
	assert.Equal(t, units.TokenAmount(900, 18), tok.UnlockedBalance(holder))
	require.NoError(t, tok.Transfer(ctx, holder, other, units.TokenAmount(900, 18)))
}

func TestRemoveLocker(t *testing.T) {
	ctx := context.Background()
	tok, _ := newToken(t)
	require.NoError(t, tok.RemoveLocker(ctx, owner, locker))
	assert.False(t, tok.IsLocker(locker))
	assert.ErrorIs(
		t,
		tok.LockAmount(ctx, locker, holder, uint256.NewInt(1)),
		timelock.ErrLockerOnly,
	)
}

func TestLockAmountRollback(t *testing.T) {
	tok, _ := newToken(t)
	ctx, tx := txn.Begin(context.Background())
	require.NoError(t, tok.LockAmount(ctx, locker, holder, units.TokenAmount(10, 18)))
	require.NoError(t, tok.SetLockEnd(ctx, owner, 5))
	tx.Rollback()
	assert.True(t, tok.LockedAmount(holder).IsZero())
	assert.Equal(t, uint64(startTime+units.Year), tok.LockEnd())
}
