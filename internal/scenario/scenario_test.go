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
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/veescrow"
	"github.com/blinklabs-io/veescrow/airdrop"
	"github.com/blinklabs-io/veescrow/escrow"
)

const accountsYaml = `
admin: admin
rewardSigner: signer
sourceLockEnd: "+720h"
accounts:
  admin: "0x1000000000000000000000000000000000000001"
  signer: "0x4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d"
  alice: "0x2000000000000000000000000000000000000002"
`

func runScenario(t *testing.T, doc string) ([]StepResult, *Runner, error) {
	t.Helper()
	sc, err := Parse([]byte(doc))
	require.NoError(t, err)
	r, err := NewRunner(sc, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, r.Stop())
	})
	results, err := r.Run(context.Background())
	return results, r, err
}

func TestRunFullLifecycle(t *testing.T) {
	doc := accountsYaml + `
steps:
  - op: mint_source
    account: alice
    amount: "1029"
  - op: mint
    account: alice
    expect: "2797"
  - op: balance
    ledger: dao
    account: alice
    expect: "2797"
  - op: mint
    account: alice
    expect: "0"
  - op: mint_source
    account: rewards
    tokens: 1000
  - op: claim
    account: alice
    amount: "100"
  - op: balance
    ledger: source
    account: alice
    expect: "1129"
  - op: approve
    account: alice
  - op: create_lock
    account: alice
    amount: "2797"
    unlockTime: "+8760h"
  - op: supply
    ledger: dao
    expect: "2797"
  - op: withdraw
    account: alice
    expectError: "The lock didn't expire"
  - at: "+720h"
    op: mint
    account: alice
    expectError: AIRDROP_INACTIVE
  - at: "+8760h"
    op: withdraw
    account: alice
    expect: "2797"
  - op: balance
    account: alice
    expect: "0"
`
	results, r, err := runScenario(t, doc)
	require.NoError(t, err)
	require.Len(t, results, 14)

	assert.Equal(t, DefaultStart, results[0].Time)
	assert.Equal(t, uint256.NewInt(2797), results[1].Value)
	assert.ErrorIs(t, results[10].Err, escrow.ErrLockNotExpired)
	assert.ErrorIs(t, results[11].Err, airdrop.ErrAirdropInactive)
	assert.Equal(t, DefaultStart+720*3600, results[11].Time)
	assert.Equal(t, DefaultStart+(720+8760)*3600, results[12].Time)

	alice := common.HexToAddress("0x2000000000000000000000000000000000000002")
	assert.Equal(t, uint256.NewInt(2797), r.System().DaoToken().BalanceOf(alice))
	assert.Equal(t, uint256.NewInt(1), r.System().Rewards().Nonce(alice))
}

func TestRunBoostAndMintLocked(t *testing.T) {
	doc := accountsYaml + `
steps:
  - op: mint_source
    account: alice
    tokens: 500
  - op: approve
    ledger: boost
    account: alice
  - op: create_lock
    ledger: boost
    account: alice
    tokens: 500
    unlockTime: "+17520h"
  - op: assign_delegate
    account: alice
    to: minter
  - op: approve
    account: alice
  - op: mint_locked
    account: alice
  - op: mint_locked
    account: alice
    expectError: "Withdraw old tokens first"
`
	results, r, err := runScenario(t, doc)
	require.NoError(t, err)
	require.Len(t, results, 7)

	alice := common.HexToAddress("0x2000000000000000000000000000000000000002")
	lock := r.System().Escrow().Locked(alice)
	assert.Equal(t, r.System().BoostEscrow().Locked(alice).End, lock.End)
	converted, err := r.System().Minter().ConvertedAmount(
		r.System().BoostEscrow().Locked(alice).Amount,
	)
	require.NoError(t, err)
	assert.Equal(t, converted, lock.Amount)
	assert.Equal(t, results[5].Value, r.System().DaoToken().TotalSupply())
}

func TestRunShutdown(t *testing.T) {
	doc := accountsYaml + `
steps:
  - op: shutdown
    account: alice
    expectError: "Admin only"
  - op: shutdown
  - op: shutdown
    expectError: "Contract is shutdown"
  - op: shutdown
    ledger: boost
`
	_, r, err := runScenario(t, doc)
	require.NoError(t, err)
	assert.True(t, r.System().Escrow().IsShutdown())
	assert.True(t, r.System().BoostEscrow().IsShutdown())
}

func TestRunSetLockEnd(t *testing.T) {
	doc := accountsYaml + `
steps:
  - op: set_lock_end
    unlockTime: "+1h"
    expect: "1700003600"
  - at: "+2h"
    op: mint
    account: alice
    expectError: AIRDROP_INACTIVE
`
	_, r, err := runScenario(t, doc)
	require.NoError(t, err)
	assert.False(t, r.System().Minter().IsAirdropActive())
}

func TestRunFailures(t *testing.T) {
	testCases := []struct {
		name  string
		steps string
		err   error
	}{
		{
			"unexpected error",
			"  - op: withdraw\n    account: alice\n  - op: create_lock\n    account: alice\n",
			escrow.ErrInvalidAmount,
		},
		{
			"missing expected error",
			"  - op: mint\n    account: alice\n    expectError: AIRDROP_INACTIVE\n",
			ErrMissingError,
		},
		{
			"wrong error",
			"  - op: create_lock\n    account: alice\n    expectError: \"Admin only\"\n",
			ErrWrongError,
		},
		{
			"value mismatch",
			"  - op: supply\n    expect: \"5\"\n",
			ErrMismatch,
		},
		{
			"time in past",
			"  - at: \"1\"\n    op: supply\n",
			ErrTimeInPast,
		},
		{
			"unknown ledger",
			"  - op: supply\n    ledger: nowhere\n",
			ErrUnknownLedger,
		},
		{
			"unknown account",
			"  - op: mint\n    account: mallory\n",
			ErrUnknownAccount,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := runScenario(t, accountsYaml+"steps:\n"+tc.steps)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	doc := accountsYaml + `
steps:
  - op: supply
  - op: supply
    expect: "1"
  - op: supply
`
	results, _, err := runScenario(t, doc)
	assert.ErrorIs(t, err, ErrMismatch)
	assert.ErrorContains(t, err, "step 1 (supply)")
	assert.Len(t, results, 1)
}

func TestClaimNeedsSigningKey(t *testing.T) {
	doc := `
admin: admin
rewardSigner: admin
accounts:
  admin: "0x1000000000000000000000000000000000000001"
steps:
  - op: claim
    account: admin
    amount: "1"
`
	_, _, err := runScenario(t, doc)
	assert.ErrorIs(t, err, ErrNoSigningKey)
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		name    string
		doc     string
		errText string
	}{
		{"no admin", "accounts: {}\n", "no admin account"},
		{"unknown admin", "admin: bob\n", "unknown account"},
		{"reserved name", "admin: minter\naccounts:\n  minter: \"0x1000000000000000000000000000000000000001\"\n", "reserved"},
		{"bad length", "admin: a\naccounts:\n  a: \"0x1234\"\n", "expected a 20 byte address"},
		{"bad key", "admin: a\naccounts:\n  a: \"zz3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d\"\n", "invalid key"},
		{"unknown op", accountsYaml + "steps:\n  - op: teleport\n", "unknown operation"},
		{"malformed", "admin: [\n", "error parsing scenario"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errText)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(accountsYaml+"start: 1600000000\n"), 0o600))
	sc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_600_000_000), sc.Start)
	addr, err := sc.address("signer")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1"), addr)
	addr, err = sc.address("escrow")
	require.NoError(t, err)
	assert.Equal(t, veescrow.EscrowAddress, addr)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "error reading scenario file")
}

func TestResolveTime(t *testing.T) {
	v, err := resolveTime("", 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), v)

	v, err = resolveTime("+90s", 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(190), v)

	v, err = resolveTime("5000", 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), v)

	_, err = resolveTime("+-1s", 100)
	assert.Error(t, err)
	_, err = resolveTime("tomorrow", 100)
	assert.Error(t, err)
}

func TestStepAmount(t *testing.T) {
	amount, err := Step{Amount: "5", Tokens: 2}.amount()
	require.NoError(t, err)
	want, _ := uint256.FromDecimal("2000000000000000005")
	assert.Equal(t, want, amount)

	_, err = Step{Amount: "-1"}.amount()
	assert.Error(t, err)
}
