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

package escrow

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/blinklabs-io/veescrow/event"
	"github.com/blinklabs-io/veescrow/txn"
	"github.com/blinklabs-io/veescrow/units"
)

const (
	opCreateLock         = "create_lock"
	opCreateLockFor      = "create_lock_for"
	opDepositFor         = "deposit_for"
	opIncreaseAmount     = "increase_amount"
	opIncreaseUnlockTime = "increase_unlock_time"
	opWithdraw           = "withdraw"
	opAssignDelegate     = "assign_delegate"
	opShutdown           = "shutdown"
	opCommitOwnership    = "commit_transfer_ownership"
	opApplyOwnership     = "apply_transfer_ownership"
	opCheckpoint         = "checkpoint"
)

// run executes fn atomically. Every mutation fn makes is journaled, so an
// error from fn, or from the asset it calls, leaves the ledger untouched
func (l *Ledger) run(
	ctx context.Context,
	op string,
	fn func(ctx context.Context) error,
) error {
	err := txn.Do(ctx, func(ctx context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		// Gauges follow the outermost commit
		txn.OnCommit(ctx, l.updateGauges)
		return fn(ctx)
	})
	l.metrics.observe(op, err)
	return err
}

// now returns the current time, never earlier than the latest checkpoint.
// Caller must hold the lock
func (l *Ledger) now() uint64 {
	now := l.config.Clock.Now()
	if last := l.pointHistory[len(l.pointHistory)-1].Ts; now < last {
		return last
	}
	return now
}

// CreateLock escrows amount from caller until unlockTime, rounded down to a
// week boundary
func (l *Ledger) CreateLock(
	ctx context.Context,
	caller common.Address,
	amount *uint256.Int,
	unlockTime uint64,
) error {
	return l.run(ctx, opCreateLock, func(ctx context.Context) error {
		return l.createLock(ctx, caller, caller, amount, unlockTime)
	})
}

// CreateLockFor escrows amount from account on its behalf. Only the
// account's assigned delegate may call it
func (l *Ledger) CreateLockFor(
	ctx context.Context,
	caller common.Address,
	account common.Address,
	amount *uint256.Int,
	unlockTime uint64,
) error {
	return l.run(ctx, opCreateLockFor, func(ctx context.Context) error {
		if l.isShutdown {
			return ErrShutdown
		}
		delegate, ok := l.delegates[account]
		if !ok || delegate != caller {
			return ErrDelegateOnly
		}
		return l.createLock(ctx, caller, account, amount, unlockTime)
	})
}

func (l *Ledger) createLock(
	ctx context.Context,
	provider common.Address,
	account common.Address,
	amount *uint256.Int,
	unlockTime uint64,
) error {
	if l.isShutdown {
		return ErrShutdown
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	now := l.now()
	unlockTime = units.RoundDown(unlockTime, l.week)
	current := l.lockOf(account)
	if !current.IsZero() {
		return ErrWithdrawOldTokensFirst
	}
	if unlockTime <= now {
		return ErrLockInPast
	}
	if unlockTime > now+l.maxTime {
		return ErrLockTooLong
	}
	return l.depositFor(
		ctx,
		provider,
		account,
		amount,
		unlockTime,
		current,
		event.CreateLockType,
		now,
	)
}

// DepositFor adds amount, pulled from account, to account's unexpired lock
// without changing its unlock time. Anyone may call it
func (l *Ledger) DepositFor(
	ctx context.Context,
	caller common.Address,
	account common.Address,
	amount *uint256.Int,
) error {
	return l.run(ctx, opDepositFor, func(ctx context.Context) error {
		return l.addToLock(ctx, caller, account, amount, event.DepositForType)
	})
}

// IncreaseAmount adds amount to caller's unexpired lock without changing its
// unlock time
func (l *Ledger) IncreaseAmount(
	ctx context.Context,
	caller common.Address,
	amount *uint256.Int,
) error {
	return l.run(ctx, opIncreaseAmount, func(ctx context.Context) error {
		return l.addToLock(ctx, caller, caller, amount, event.IncreaseLockAmountType)
	})
}

func (l *Ledger) addToLock(
	ctx context.Context,
	provider common.Address,
	account common.Address,
	amount *uint256.Int,
	kind event.DepositKind,
) error {
	if l.isShutdown {
		return ErrShutdown
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	now := l.now()
	current := l.lockOf(account)
	if current.IsZero() {
		return ErrNoExistingLock
	}
	if current.End <= now {
		return ErrLockExpired
	}
	return l.depositFor(ctx, provider, account, amount, 0, current, kind, now)
}

// IncreaseUnlockTime extends caller's unexpired lock to unlockTime, rounded
// down to a week boundary
func (l *Ledger) IncreaseUnlockTime(
	ctx context.Context,
	caller common.Address,
	unlockTime uint64,
) error {
	return l.run(ctx, opIncreaseUnlockTime, func(ctx context.Context) error {
		if l.isShutdown {
			return ErrShutdown
		}
		now := l.now()
		current := l.lockOf(caller)
		unlockTime = units.RoundDown(unlockTime, l.week)
		if current.End <= now {
			return ErrLockExpiredExtend
		}
		if current.IsZero() {
			return ErrNothingLocked
		}
		if unlockTime <= current.End {
			return ErrCanOnlyIncrease
		}
		if unlockTime > now+l.maxTime {
			return ErrLockTooLong
		}
		return l.depositFor(
			ctx,
			caller,
			caller,
			new(uint256.Int),
			unlockTime,
			current,
			event.IncreaseUnlockTimeType,
			now,
		)
	})
}

// depositFor applies a validated deposit: it updates the lock and supply,
// checkpoints, and pulls amount from account. A zero unlockTime keeps the
// current end. Caller must hold the write lock
func (l *Ledger) depositFor(
	ctx context.Context,
	provider common.Address,
	account common.Address,
	amount *uint256.Int,
	unlockTime uint64,
	current Lock,
	kind event.DepositKind,
	now uint64,
) error {
	newSupply, overflow := new(uint256.Int).AddOverflow(l.supply, amount)
	if overflow {
		return ErrInvalidAmount
	}
	newLock := current.clone()
	newLock.Amount.Add(newLock.Amount, amount)
	if unlockTime != 0 {
		newLock.End = unlockTime
	}
	prevSupply := l.supply
	l.setSupply(ctx, newSupply)
	l.setLock(ctx, account, newLock)
	l.checkpoint(ctx, account, current, newLock, now)

	if !amount.IsZero() {
		if err := l.config.Token.TransferFrom(
			ctx,
			l.config.Address,
			account,
			l.config.Address,
			amount,
		); err != nil {
			return err
		}
	}
	l.logger.Debug(
		"escrow deposit",
		"component", "escrow",
		"ledger", l.config.Symbol,
		"type", kind.String(),
		"account", account.Hex(),
		"amount", amount.Dec(),
		"unlock_time", newLock.End,
	)
	l.publish(ctx, event.EscrowDepositEventType, event.EscrowDepositEvent{
		Ledger:    l.config.Address,
		Provider:  provider,
		Account:   account,
		Value:     amount.Clone(),
		LockEnd:   newLock.End,
		Kind:      kind,
		Timestamp: now,
	})
	l.publish(ctx, event.EscrowSupplyEventType, event.EscrowSupplyEvent{
		Ledger:     l.config.Address,
		PrevSupply: prevSupply.Clone(),
		Supply:     newSupply.Clone(),
	})
	return nil
}

// Withdraw returns caller's escrowed tokens once the lock has expired, or at
// any time after shutdown. After shutdown no checkpoint is written, so the
// frozen weights are left intact
func (l *Ledger) Withdraw(ctx context.Context, caller common.Address) error {
	return l.run(ctx, opWithdraw, func(ctx context.Context) error {
		now := l.now()
		current := l.lockOf(caller)
		if now < current.End && !l.isShutdown {
			return ErrLockNotExpired
		}
		value := current.Amount
		prevSupply := l.supply
		newSupply := subFloor(l.supply, value)
		l.setLock(ctx, caller, Lock{Amount: new(uint256.Int)})
		l.setSupply(ctx, newSupply)
		if !l.isShutdown {
			l.checkpoint(ctx, caller, current, Lock{Amount: new(uint256.Int)}, now)
		}
		if !value.IsZero() {
			if err := l.config.Token.Transfer(
				ctx,
				l.config.Address,
				caller,
				value,
			); err != nil {
				return err
			}
		}
		l.logger.Debug(
			"escrow withdraw",
			"component", "escrow",
			"ledger", l.config.Symbol,
			"account", caller.Hex(),
			"amount", value.Dec(),
		)
		l.publish(ctx, event.EscrowWithdrawEventType, event.EscrowWithdrawEvent{
			Ledger:    l.config.Address,
			Account:   caller,
			Value:     value.Clone(),
			Timestamp: now,
		})
		l.publish(ctx, event.EscrowSupplyEventType, event.EscrowSupplyEvent{
			Ledger:     l.config.Address,
			PrevSupply: prevSupply.Clone(),
			Supply:     newSupply.Clone(),
		})
		return nil
	})
}

// AssignDelegate sets the account allowed to create locks on caller's
// behalf. The zero address clears it
func (l *Ledger) AssignDelegate(
	ctx context.Context,
	caller common.Address,
	delegate common.Address,
) error {
	return l.run(ctx, opAssignDelegate, func(ctx context.Context) error {
		prev, hadPrev := l.delegates[caller]
		if delegate == (common.Address{}) {
			delete(l.delegates, caller)
		} else {
			l.delegates[caller] = delegate
		}
		txn.Record(ctx, func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if hadPrev {
				l.delegates[caller] = prev
			} else {
				delete(l.delegates, caller)
			}
		})
		l.publish(ctx, event.EscrowDelegateEventType, event.EscrowDelegateEvent{
			Ledger:   l.config.Address,
			Account:  caller,
			Delegate: delegate,
		})
		return nil
	})
}

// Shutdown permanently freezes voting weight and unlocks all escrowed
// tokens. Admin only
func (l *Ledger) Shutdown(ctx context.Context, caller common.Address) error {
	return l.run(ctx, opShutdown, func(ctx context.Context) error {
		if caller != l.admin {
			return ErrAdminOnly
		}
		if l.isShutdown {
			return ErrShutdown
		}
		now := l.now()
		// Bring the global history up to the freeze point
		l.checkpoint(ctx, common.Address{}, Lock{}, Lock{}, now)
		l.isShutdown = true
		l.shutdownTime = now
		txn.Record(ctx, func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.isShutdown = false
			l.shutdownTime = 0
		})
		l.logger.Info(
			"escrow shut down",
			"component", "escrow",
			"ledger", l.config.Symbol,
			"shutdown_time", now,
		)
		l.publish(ctx, event.EscrowShutdownEventType, event.EscrowShutdownEvent{
			Ledger:    l.config.Address,
			Timestamp: now,
		})
		return nil
	})
}

// CommitTransferOwnership stages future as the next admin. Admin only
func (l *Ledger) CommitTransferOwnership(
	ctx context.Context,
	caller common.Address,
	future common.Address,
) error {
	return l.run(ctx, opCommitOwnership, func(ctx context.Context) error {
		if caller != l.admin {
			return ErrAdminOnly
		}
		prev := l.futureAdmin
		l.futureAdmin = future
		txn.Record(ctx, func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.futureAdmin = prev
		})
		return nil
	})
}

// ApplyTransferOwnership promotes the staged admin. Admin only
func (l *Ledger) ApplyTransferOwnership(
	ctx context.Context,
	caller common.Address,
) error {
	return l.run(ctx, opApplyOwnership, func(ctx context.Context) error {
		if caller != l.admin {
			return ErrAdminOnly
		}
		if l.futureAdmin == (common.Address{}) {
			return ErrAdminNotSet
		}
		prev := l.admin
		l.admin = l.futureAdmin
		txn.Record(ctx, func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.admin = prev
		})
		l.logger.Info(
			"escrow admin changed",
			"component", "escrow",
			"ledger", l.config.Symbol,
			"admin", l.admin.Hex(),
		)
		return nil
	})
}

// Checkpoint brings the global history up to now. Anyone may call it
func (l *Ledger) Checkpoint(ctx context.Context) error {
	return l.run(ctx, opCheckpoint, func(ctx context.Context) error {
		l.checkpoint(ctx, common.Address{}, Lock{}, Lock{}, l.now())
		return nil
	})
}

func (l *Ledger) setLock(ctx context.Context, account common.Address, lock Lock) {
	prev, hadPrev := l.locked[account]
	if lock.IsZero() {
		delete(l.locked, account)
	} else {
		l.locked[account] = lock
	}
	txn.Record(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if hadPrev {
			l.locked[account] = prev
		} else {
			delete(l.locked, account)
		}
	})
}

func (l *Ledger) setSupply(ctx context.Context, supply *uint256.Int) {
	prev := l.supply
	l.supply = supply
	txn.Record(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.supply = prev
	})
}

// publish defers an event until the surrounding transaction commits
func (l *Ledger) publish(ctx context.Context, eventType event.EventType, data any) {
	bus := l.config.EventBus
	if bus == nil {
		return
	}
	evt := event.NewEvent(eventType, data)
	txn.OnCommit(ctx, func() {
		bus.Publish(eventType, evt)
	})
}
