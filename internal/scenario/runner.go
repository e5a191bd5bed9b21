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

package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/blinklabs-io/veescrow"
	"github.com/blinklabs-io/veescrow/clock"
	"github.com/blinklabs-io/veescrow/escrow"
	"github.com/blinklabs-io/veescrow/rewards"
	"github.com/blinklabs-io/veescrow/token"
)

var (
	ErrMissingError = errors.New("expected error did not occur")
	ErrWrongError   = errors.New("operation failed with an unexpected error")
	ErrMismatch     = errors.New("result does not match expectation")
)

// StepResult is the outcome of one step. Err holds the error a step was
// expected to produce
type StepResult struct {
	Index   int
	Op      string
	Account string
	Time    uint64
	Value   *uint256.Int
	Err     error
}

type opFunc func(r *Runner, ctx context.Context, step Step, now uint64) (*uint256.Int, error)

var ops = map[string]opFunc{
	"mint_source":          opMintSource,
	"approve":              opApprove,
	"create_lock":          opCreateLock,
	"increase_amount":      opIncreaseAmount,
	"increase_unlock_time": opIncreaseUnlockTime,
	"withdraw":             opWithdraw,
	"assign_delegate":      opAssignDelegate,
	"shutdown":             opShutdown,
	"set_lock_end":         opSetLockEnd,
	"mint":                 opMint,
	"mint_locked":          opMintLocked,
	"claim":                opClaim,
	"claim_and_mint":       opClaimAndMint,
	"balance":              opBalance,
	"supply":               opSupply,
}

type Runner struct {
	scenario *Scenario
	system   *veescrow.System
	clock    *clock.Manual
	logger   *slog.Logger
}

// NewRunner builds a System for sc on a synthetic clock. opts are applied
// before the scenario's own admin, signer, clock and lock end
func NewRunner(
	sc *Scenario,
	logger *slog.Logger,
	opts ...veescrow.ConfigOptionFunc,
) (*Runner, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	r := &Runner{
		scenario: sc,
		clock:    clock.NewManual(sc.Start),
		logger:   logger,
	}
	admin, err := sc.address(sc.Admin)
	if err != nil {
		return nil, err
	}
	opts = append(
		opts,
		veescrow.WithLogger(logger),
		veescrow.WithClock(r.clock),
		veescrow.WithAdmin(admin),
	)
	if sc.RewardSigner != "" {
		signer, err := sc.address(sc.RewardSigner)
		if err != nil {
			return nil, err
		}
		opts = append(opts, veescrow.WithRewardSigner(signer))
	}
	if sc.SourceLockEnd != "" {
		lockEnd, err := resolveTime(sc.SourceLockEnd, sc.Start)
		if err != nil {
			return nil, fmt.Errorf("sourceLockEnd: %w", err)
		}
		opts = append(opts, veescrow.WithSourceLockEnd(lockEnd))
	}
	r.system, err = veescrow.New(opts...)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runner) System() *veescrow.System {
	return r.system
}

func (r *Runner) Stop() error {
	return r.system.Stop()
}

// Run executes every step in order. It stops at the first step that fails
// unexpectedly, returning the results gathered so far
func (r *Runner) Run(ctx context.Context) ([]StepResult, error) {
	results := make([]StepResult, 0, len(r.scenario.Steps))
	for i, step := range r.scenario.Steps {
		res, err := r.runStep(ctx, i, step)
		if err != nil {
			return results, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Runner) runStep(ctx context.Context, idx int, step Step) (StepResult, error) {
	now, err := resolveTime(step.At, r.clock.Now())
	if err != nil {
		return StepResult{}, err
	}
	if now < r.clock.Now() {
		return StepResult{}, ErrTimeInPast
	}
	r.clock.Set(now)
	res := StepResult{
		Index:   idx,
		Op:      step.Op,
		Account: step.Account,
		Time:    now,
	}
	value, opErr := ops[step.Op](r, ctx, step, now)
	if step.ExpectError != "" {
		if opErr == nil {
			return res, fmt.Errorf("%w: %q", ErrMissingError, step.ExpectError)
		}
		if !strings.Contains(opErr.Error(), step.ExpectError) {
			return res, fmt.Errorf("%w: %w", ErrWrongError, opErr)
		}
		res.Err = opErr
	} else if opErr != nil {
		return res, opErr
	}
	res.Value = value
	if step.Expect != "" && opErr == nil {
		if value == nil || value.Dec() != step.Expect {
			return res, fmt.Errorf(
				"%w: got %s, want %s",
				ErrMismatch,
				valueString(value),
				step.Expect,
			)
		}
	}
	r.logger.Debug(
		"scenario step",
		"component", "scenario",
		"index", idx,
		"op", step.Op,
		"account", step.Account,
		"time", now,
		"value", valueString(value),
	)
	return res, nil
}

func valueString(v *uint256.Int) string {
	if v == nil {
		return ""
	}
	return v.Dec()
}

func (r *Runner) escrowFor(step Step) (*escrow.Ledger, error) {
	switch step.Ledger {
	case "", "escrow":
		return r.system.Escrow(), nil
	case "boost":
		return r.system.BoostEscrow(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownLedger, step.Ledger)
	}
}

func (r *Runner) admin() common.Address {
	return r.system.Admin()
}

func opMintSource(r *Runner, ctx context.Context, step Step, _ uint64) (*uint256.Int, error) {
	to, err := r.scenario.address(step.Account)
	if err != nil {
		return nil, err
	}
	amount, err := step.amount()
	if err != nil {
		return nil, err
	}
	if err := r.system.SourceToken().Mint(ctx, r.admin(), to, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// opApprove lets the selected escrow pull the account's tokens. Without an
// amount the allowance is unlimited
func opApprove(r *Runner, ctx context.Context, step Step, _ uint64) (*uint256.Int, error) {
	owner, err := r.scenario.address(step.Account)
	if err != nil {
		return nil, err
	}
	amount, err := step.amount()
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		amount = token.MaxAmount()
	}
	switch step.Ledger {
	case "", "escrow":
		err = r.system.DaoToken().Approve(ctx, owner, veescrow.EscrowAddress, amount)
	case "boost":
		err = r.system.SourceToken().Approve(ctx, owner, veescrow.BoostEscrowAddress, amount)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownLedger, step.Ledger)
	}
	if err != nil {
		return nil, err
	}
	return amount, nil
}

func opCreateLock(r *Runner, ctx context.Context, step Step, now uint64) (*uint256.Int, error) {
	ledger, err := r.escrowFor(step)
	if err != nil {
		return nil, err
	}
	account, err := r.scenario.address(step.Account)
	if err != nil {
		return nil, err
	}
	amount, err := step.amount()
	if err != nil {
		return nil, err
	}
	unlockTime, err := resolveTime(step.UnlockTime, now)
	if err != nil {
		return nil, err
	}
	if step.To != "" {
		// Delegated creation: Account acts for To
		target, err := r.scenario.address(step.To)
		if err != nil {
			return nil, err
		}
		if err := ledger.CreateLockFor(ctx, account, target, amount, unlockTime); err != nil {
			return nil, err
		}
		return amount, nil
	}
	if err := ledger.CreateLock(ctx, account, amount, unlockTime); err != nil {
		return nil, err
	}
	return amount, nil
}

func opIncreaseAmount(r *Runner, ctx context.Context, step Step, _ uint64) (*uint256.Int, error) {
	ledger, err := r.escrowFor(step)
	if err != nil {
		return nil, err
	}
	account, err := r.scenario.address(step.Account)
	if err != nil {
		return nil, err
	}
	amount, err := step.amount()
	if err != nil {
		return nil, err
	}
	if step.To != "" {
		target, err := r.scenario.address(step.To)
		if err != nil {
			return nil, err
		}
		if err := ledger.DepositFor(ctx, account, target, amount); err != nil {
			return nil, err
		}
		return amount, nil
	}
	if err := ledger.IncreaseAmount(ctx, account, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

func opIncreaseUnlockTime(r *Runner, ctx context.Context, step Step, now uint64) (*uint256.Int, error) {
	ledger, err := r.escrowFor(step)
	if err != nil {
		return nil, err
	}
	account, err := r.scenario.address(step.Account)
	if err != nil {
		return nil, err
	}
	unlockTime, err := resolveTime(step.UnlockTime, now)
	if err != nil {
		return nil, err
	}
	if err := ledger.IncreaseUnlockTime(ctx, account, unlockTime); err != nil {
		return nil, err
	}
	return uint256.NewInt(ledger.Locked(account).End), nil
}

func opWithdraw(r *Runner, ctx context.Context, step Step, _ uint64) (*uint256.Int, error) {
	ledger, err := r.escrowFor(step)
	if err != nil {
		return nil, err
	}
	account, err := r.scenario.address(step.Account)
	if err != nil {
		return nil, err
	}
	amount := ledger.Locked(account).Amount
	if err := ledger.Withdraw(ctx, account); err != nil {
		return nil, err
	}
	if amount == nil {
		amount = new(uint256.Int)
	}
	return amount, nil
}

func opAssignDelegate(r *Runner, ctx context.Context, step Step, _ uint64) (*uint256.Int, error) {
	ledger, err := r.escrowFor(step)
	if err != nil {
		return nil, err
	}
	account, err := r.scenario.address(step.Account)
	if err != nil {
		return nil, err
	}
	delegate, err := r.scenario.address(step.To)
	if err != nil {
		return nil, err
	}
	return nil, ledger.AssignDelegate(ctx, account, delegate)
}

// opShutdown runs as Account when one is named, otherwise as the admin
func opShutdown(r *Runner, ctx context.Context, step Step, _ uint64) (*uint256.Int, error) {
	ledger, err := r.escrowFor(step)
	if err != nil {
		return nil, err
	}
	caller := r.admin()
	if step.Account != "" {
		caller, err = r.scenario.address(step.Account)
		if err != nil {
			return nil, err
		}
	}
	return nil, ledger.Shutdown(ctx, caller)
}

func opSetLockEnd(r *Runner, ctx context.Context, step Step, now uint64) (*uint256.Int, error) {
	lockEnd, err := resolveTime(step.UnlockTime, now)
	if err != nil {
		return nil, err
	}
	if err := r.system.SourceToken().SetLockEnd(ctx, r.admin(), lockEnd); err != nil {
		return nil, err
	}
	return uint256.NewInt(lockEnd), nil
}

func opMint(r *Runner, ctx context.Context, step Step, _ uint64) (*uint256.Int, error) {
	account, err := r.scenario.address(step.Account)
	if err != nil {
		return nil, err
	}
	return r.system.Minter().Mint(ctx, account)
}

func opMintLocked(r *Runner, ctx context.Context, step Step, _ uint64) (*uint256.Int, error) {
	account, err := r.scenario.address(step.Account)
	if err != nil {
		return nil, err
	}
	return r.system.Minter().MintLocked(ctx, account)
}

// signedClaim builds the account's next claim, signed by the reward signer
func (r *Runner) signedClaim(step Step) (common.Address, rewards.Recipient, rewards.Signature, error) {
	account, err := r.scenario.address(step.Account)
	if err != nil {
		return common.Address{}, rewards.Recipient{}, rewards.Signature{}, err
	}
	key, ok := r.scenario.keys[r.scenario.RewardSigner]
	if !ok {
		return common.Address{}, rewards.Recipient{}, rewards.Signature{}, ErrNoSigningKey
	}
	amount, err := step.amount()
	if err != nil {
		return common.Address{}, rewards.Recipient{}, rewards.Signature{}, err
	}
	recipient := rewards.Recipient{
		Nonce:  r.system.Rewards().Nonce(account),
		Wallet: account,
		Amount: amount,
	}
	sig, err := rewards.Sign(key, r.system.Rewards().Domain(), recipient)
	if err != nil {
		return common.Address{}, rewards.Recipient{}, rewards.Signature{}, err
	}
	return account, recipient, sig, nil
}

func opClaim(r *Runner, ctx context.Context, step Step, _ uint64) (*uint256.Int, error) {
	account, recipient, sig, err := r.signedClaim(step)
	if err != nil {
		return nil, err
	}
	if err := r.system.Minter().ClaimApy(ctx, account, recipient, sig); err != nil {
		return nil, err
	}
	return recipient.Amount, nil
}

func opClaimAndMint(r *Runner, ctx context.Context, step Step, _ uint64) (*uint256.Int, error) {
	account, recipient, sig, err := r.signedClaim(step)
	if err != nil {
		return nil, err
	}
	return r.system.Minter().ClaimApyAndMint(ctx, account, recipient, sig)
}

func opBalance(r *Runner, _ context.Context, step Step, _ uint64) (*uint256.Int, error) {
	account, err := r.scenario.address(step.Account)
	if err != nil {
		return nil, err
	}
	switch step.Ledger {
	case "dao":
		return r.system.DaoToken().BalanceOf(account), nil
	case "source":
		return r.system.SourceToken().BalanceOf(account), nil
	}
	ledger, err := r.escrowFor(step)
	if err != nil {
		return nil, err
	}
	return ledger.BalanceOf(account), nil
}

func opSupply(r *Runner, _ context.Context, step Step, _ uint64) (*uint256.Int, error) {
	switch step.Ledger {
	case "dao":
		return r.system.DaoToken().TotalSupply(), nil
	case "source":
		return r.system.SourceToken().TotalSupply(), nil
	}
	ledger, err := r.escrowFor(step)
	if err != nil {
		return nil, err
	}
	return ledger.TotalSupply(), nil
}
