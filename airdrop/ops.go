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

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/blinklabs-io/veescrow/event"
	"github.com/blinklabs-io/veescrow/rewards"
	"github.com/blinklabs-io/veescrow/txn"
)

const (
	pathMint         = "mint"
	pathMintLocked   = "mint_locked"
	pathClaim        = "claim"
	pathClaimAndMint = "claim_and_mint"
)

// run executes fn as one transaction under a span. Collaborator errors are
// returned unwrapped
func (m *Minter) run(
	ctx context.Context,
	path string,
	caller common.Address,
	fn func(ctx context.Context) error,
) error {
	ctx, span := m.tracer.Start(
		ctx,
		"airdrop."+path,
		trace.WithAttributes(attribute.String("account", caller.Hex())),
	)
	defer span.End()
	m.mu.Lock()
	err := txn.Do(ctx, fn)
	m.mu.Unlock()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.metrics.failed(path)
		m.logger.Debug(
			"airdrop operation failed",
			"component", "airdrop",
			"path", path,
			"account", caller.Hex(),
			"error", err,
		)
		return err
	}
	m.metrics.succeeded(path)
	return nil
}

// Mint converts caller's unlocked source balance. The balance is flagged as
// consumed on the source, so repeating the call with no new source tokens
// mints nothing. It returns the minted amount
func (m *Minter) Mint(
	ctx context.Context,
	caller common.Address,
) (*uint256.Int, error) {
	var minted *uint256.Int
	err := m.run(ctx, pathMint, caller, func(ctx context.Context) error {
		var err error
		minted, err = m.mint(ctx, caller)
		return err
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

func (m *Minter) mint(
	ctx context.Context,
	caller common.Address,
) (*uint256.Int, error) {
	if !m.IsAirdropActive() {
		return nil, ErrAirdropInactive
	}
	balance := m.config.SourceToken.UnlockedBalance(caller)
	if err := m.config.SourceToken.LockAmount(
		ctx,
		m.config.Address,
		caller,
		balance,
	); err != nil {
		return nil, err
	}
	amount, err := m.ConvertedAmount(balance)
	if err != nil {
		return nil, err
	}
	if err := m.config.DaoToken.Mint(
		ctx,
		m.config.Address,
		caller,
		amount,
	); err != nil {
		return nil, err
	}
	txn.OnCommit(ctx, func() {
		m.metrics.addMinted(pathMint, amount)
	})
	m.logger.Debug(
		"airdrop mint",
		"component", "airdrop",
		"account", caller.Hex(),
		"source_amount", balance.Dec(),
		"amount", amount.Dec(),
	)
	m.publish(ctx, event.AirdropMintEventType, event.AirdropMintEvent{
		Account:      caller,
		SourceAmount: balance.Clone(),
		Minted:       amount.Clone(),
	})
	return amount, nil
}

// MintLocked converts caller's boost-escrow position. The converted amount
// is minted and locked on the destination escrow until the boost lock ends;
// the bonus is minted unlocked. The minter must be caller's delegate on the
// destination escrow. It returns the total minted
func (m *Minter) MintLocked(
	ctx context.Context,
	caller common.Address,
) (*uint256.Int, error) {
	var minted *uint256.Int
	err := m.run(ctx, pathMintLocked, caller, func(ctx context.Context) error {
		var err error
		minted, err = m.mintLocked(ctx, caller)
		return err
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

func (m *Minter) mintLocked(
	ctx context.Context,
	caller common.Address,
) (*uint256.Int, error) {
	if !m.IsAirdropActive() {
		return nil, ErrAirdropInactive
	}
	boost := m.config.BoostEscrow.Locked(caller)
	if boost.IsZero() {
		return nil, ErrNoBoostLockedAmount
	}
	if boost.End < m.config.SourceToken.LockEnd() {
		return nil, ErrBoostLockEndsTooEarly
	}
	converted, err := m.ConvertedAmount(boost.Amount)
	if err != nil {
		return nil, err
	}
	weight := m.config.BoostEscrow.BalanceOf(caller)
	bonus, err := m.BonusAmount(weight)
	if err != nil {
		return nil, err
	}
	total, overflow := new(uint256.Int).AddOverflow(converted, bonus)
	if overflow {
		return nil, ErrBonusOverflow
	}
	if err := m.config.DaoToken.Mint(
		ctx,
		m.config.Address,
		caller,
		total,
	); err != nil {
		return nil, err
	}
	if err := m.config.Escrow.CreateLockFor(
		ctx,
		m.config.Address,
		caller,
		converted,
		boost.End,
	); err != nil {
		return nil, err
	}
	txn.OnCommit(ctx, func() {
		m.metrics.addMinted(pathMintLocked, total)
	})
	m.logger.Debug(
		"airdrop locked mint",
		"component", "airdrop",
		"account", caller.Hex(),
		"amount", total.Dec(),
		"locked", converted.Dec(),
		"unlock_time", boost.End,
	)
	m.publish(ctx, event.AirdropMintLockedEventType, event.AirdropMintLockedEvent{
		Account:      caller,
		LockedAmount: boost.Amount.Clone(),
		BoostBalance: weight.Clone(),
		Converted:    converted.Clone(),
		Bonus:        bonus.Clone(),
		LockEnd:      boost.End,
	})
	return total, nil
}

// ClaimApy forwards a signed reward claim to the distributor. Its failure is
// returned verbatim
func (m *Minter) ClaimApy(
	ctx context.Context,
	caller common.Address,
	recipient rewards.Recipient,
	sig rewards.Signature,
) error {
	return m.run(ctx, pathClaim, caller, func(ctx context.Context) error {
		return m.claim(ctx, caller, recipient, sig)
	})
}

func (m *Minter) claim(
	ctx context.Context,
	caller common.Address,
	recipient rewards.Recipient,
	sig rewards.Signature,
) error {
	if err := m.config.Rewards.Claim(ctx, recipient, sig); err != nil {
		return err
	}
	amount := recipient.Amount
	if amount == nil {
		amount = new(uint256.Int)
	}
	m.publish(ctx, event.AirdropClaimEventType, event.AirdropClaimEvent{
		Account: caller,
		Wallet:  recipient.Wallet,
		Amount:  amount.Clone(),
	})
	return nil
}

// ClaimApyAndMint claims a reward and then converts caller's unlocked
// source balance, including the claimed tokens. Either both happen or
// neither does
func (m *Minter) ClaimApyAndMint(
	ctx context.Context,
	caller common.Address,
	recipient rewards.Recipient,
	sig rewards.Signature,
) (*uint256.Int, error) {
	var minted *uint256.Int
	err := m.run(ctx, pathClaimAndMint, caller, func(ctx context.Context) error {
		if !m.IsAirdropActive() {
			return ErrAirdropInactive
		}
		if err := m.claim(ctx, caller, recipient, sig); err != nil {
			return err
		}
		var err error
		minted, err = m.mint(ctx, caller)
		return err
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

// publish defers an event until the surrounding transaction commits
func (m *Minter) publish(ctx context.Context, eventType event.EventType, data any) {
	bus := m.config.EventBus
	if bus == nil {
		return
	}
	evt := event.NewEvent(eventType, data)
	txn.OnCommit(ctx, func() {
		bus.Publish(eventType, evt)
	})
}
