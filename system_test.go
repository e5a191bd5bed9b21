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

package veescrow_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/veescrow"
	"github.com/blinklabs-io/veescrow/airdrop"
	"github.com/blinklabs-io/veescrow/clock"
	"github.com/blinklabs-io/veescrow/event"
	"github.com/blinklabs-io/veescrow/token"
	"github.com/blinklabs-io/veescrow/units"
)

const startTime uint64 = 1_700_000_000

var (
	admin = common.HexToAddress("0x1000000000000000000000000000000000000001")
	user  = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

func newSystem(t *testing.T, opts ...veescrow.ConfigOptionFunc) (*veescrow.System, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(startTime)
	opts = append(
		[]veescrow.ConfigOptionFunc{
			veescrow.WithClock(clk),
			veescrow.WithAdmin(admin),
			veescrow.WithSourceLockEnd(startTime + 30*units.Day),
		},
		opts...,
	)
	s, err := veescrow.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, s.Stop())
	})
	return s, clk
}

func TestNewValidation(t *testing.T) {
	_, err := veescrow.New()
	assert.ErrorContains(t, err, "no admin address configured")

	_, err = veescrow.New(
		veescrow.WithAdmin(admin),
		veescrow.WithBonusBps(units.BpsDenominator+1),
	)
	assert.ErrorIs(t, err, units.ErrInvalidBps)

	_, err = veescrow.New(
		veescrow.WithAdmin(admin),
		veescrow.WithRatio(units.Ratio{Num: 1}),
	)
	assert.ErrorIs(t, err, units.ErrZeroDivisor)

	_, err = veescrow.New(
		veescrow.WithAdmin(admin),
		veescrow.WithSupplyCap(new(uint256.Int)),
	)
	assert.ErrorContains(t, err, "supply cap must be nonzero")

	_, err = veescrow.New(
		veescrow.WithAdmin(admin),
		veescrow.WithEscrowPeriods(units.Week, 300*units.Week),
	)
	assert.ErrorContains(t, err, "too many weeks")
}

func TestWiring(t *testing.T) {
	s, _ := newSystem(t)

	assert.Equal(t, admin, s.Admin())
	assert.True(t, s.DaoToken().HasRole(token.MinterRole, veescrow.MinterAddress))
	assert.True(t, s.SourceToken().IsLocker(veescrow.MinterAddress))
	assert.Equal(t, startTime+30*units.Day, s.SourceToken().LockEnd())
	assert.True(t, s.Minter().IsAirdropActive())

	assert.Equal(t, "blAPY", s.BoostEscrow().Symbol())
	assert.Equal(t, "blCXD", s.Escrow().Symbol())
	assert.Equal(t, veescrow.BoostEscrowAddress, s.BoostEscrow().Address())
	assert.Equal(t, veescrow.EscrowAddress, s.Escrow().Address())
	assert.Equal(t, admin, s.Escrow().Admin())
	assert.Equal(t, veescrow.RewardsAddress, s.Rewards().Address())

	assert.Equal(t, veescrow.DaoTokenAddress, s.Minter().DaoTokenAddress())
	assert.Equal(t, veescrow.EscrowAddress, s.Minter().EscrowAddress())
	assert.Equal(t, airdrop.DefaultBonusBps, s.Minter().BonusBps())
	assert.Equal(t, units.AirdropRatio, s.Minter().Ratio())

	addrs := map[common.Address]struct{}{
		veescrow.SourceTokenAddress: {},
		veescrow.BoostEscrowAddress: {},
		veescrow.DaoTokenAddress:    {},
		veescrow.EscrowAddress:      {},
		veescrow.RewardsAddress:     {},
		veescrow.MinterAddress:      {},
	}
	assert.Len(t, addrs, 6)
}

func TestOptions(t *testing.T) {
	supplyCap := units.TokenAmount(1000, token.DaoTokenDecimals)
	s, _ := newSystem(
		t,
		veescrow.WithEscrowMetadata("Vote-Escrowed CXD", "veCXD", "2.0.0"),
		veescrow.WithBonusBps(250),
		veescrow.WithSupplyCap(supplyCap),
		veescrow.WithChainID(5),
	)
	assert.Equal(t, "Vote-Escrowed CXD", s.Escrow().Name())
	assert.Equal(t, "veCXD", s.Escrow().Symbol())
	assert.Equal(t, "2.0.0", s.Escrow().Version())
	assert.Equal(t, uint64(250), s.Minter().BonusBps())
	assert.Equal(t, supplyCap, s.DaoToken().SupplyCap())
	assert.Equal(t, uint64(5), s.Rewards().Domain().ChainID)
}

func TestMintEndToEnd(t *testing.T) {
	ctx := context.Background()
	s, clk := newSystem(t)
	require.NoError(
		t,
		s.SourceToken().Mint(ctx, admin, user, uint256.NewInt(1029)),
	)

	minted, err := s.Minter().Mint(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(2797), minted)
	assert.Equal(t, uint256.NewInt(2797), s.DaoToken().BalanceOf(user))

	// The window closes at the source lock end
	clk.Set(startTime + 30*units.Day)
	_, err = s.Minter().Mint(ctx, user)
	assert.ErrorIs(t, err, airdrop.ErrAirdropInactive)
}

func TestSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, _ := newSystem(t, veescrow.WithPrometheusRegistry(reg))
	ctx := context.Background()
	require.NoError(
		t,
		s.SourceToken().Mint(ctx, admin, user, units.TokenAmount(10, 18)),
	)
	require.NoError(
		t,
		s.SourceToken().Approve(ctx, user, veescrow.BoostEscrowAddress, token.MaxAmount()),
	)
	require.NoError(
		t,
		s.BoostEscrow().CreateLock(ctx, user, units.TokenAmount(10, 18), startTime+52*units.Week),
	)
	// Both escrows report under their own ledger label
	count, err := testutil.GatherAndCount(reg, "veescrow_escrow_active_locks")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestTracingStdout(t *testing.T) {
	var buf bytes.Buffer
	s, err := veescrow.New(
		veescrow.WithClock(clock.NewManual(startTime)),
		veescrow.WithAdmin(admin),
		veescrow.WithTracing(true),
		veescrow.WithTracingStdout(true),
		veescrow.WithTracingWriter(&buf),
	)
	require.NoError(t, err)
	// No lock end is set, so the airdrop is closed
	_, err = s.Minter().Mint(context.Background(), user)
	assert.ErrorIs(t, err, airdrop.ErrAirdropInactive)
	require.NoError(t, s.Stop())
	assert.Contains(t, buf.String(), "airdrop.mint")
	assert.Contains(t, buf.String(), airdrop.ErrAirdropInactive.Error())
}

func TestStopIsIdempotent(t *testing.T) {
	s, err := veescrow.New(veescrow.WithAdmin(admin))
	require.NoError(t, err)
	assert.NoError(t, s.Stop())
	assert.NoError(t, s.Stop())
	// The bus is closed for good, not restarted
	assert.False(
		t,
		s.EventBus().PublishAsync(
			event.EscrowShutdownEventType,
			event.NewEvent(event.EscrowShutdownEventType, nil),
		),
	)
}
