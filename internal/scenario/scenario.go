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

// Package scenario drives a veescrow System through a scripted sequence of
// timed operations read from YAML.
package scenario

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"github.com/blinklabs-io/veescrow"
	"github.com/blinklabs-io/veescrow/units"
)

// DefaultStart is the synthetic clock's start when a scenario names none
const DefaultStart uint64 = 1_700_000_000

const tokenDecimals = 18

var (
	ErrUnknownAccount = errors.New("unknown account")
	ErrUnknownOp      = errors.New("unknown operation")
	ErrUnknownLedger  = errors.New("unknown ledger")
	ErrNoSigningKey   = errors.New("reward signer has no private key")
	ErrTimeInPast     = errors.New("step time is before the current time")
)

// Component names usable wherever a scenario expects an account
var componentAccounts = map[string]common.Address{
	"minter":  veescrow.MinterAddress,
	"escrow":  veescrow.EscrowAddress,
	"boost":   veescrow.BoostEscrowAddress,
	"rewards": veescrow.RewardsAddress,
}

type Scenario struct {
	// Start is the initial synthetic time in unix seconds
	Start uint64 `yaml:"start"`
	// Admin and RewardSigner name entries in Accounts
	Admin        string `yaml:"admin"`
	RewardSigner string `yaml:"rewardSigner"`
	// SourceLockEnd is absolute seconds or +duration from Start
	SourceLockEnd string `yaml:"sourceLockEnd"`
	// Accounts maps a name to a hex private key or a hex address
	Accounts map[string]string `yaml:"accounts"`
	Steps    []Step            `yaml:"steps"`

	addresses map[string]common.Address
	keys      map[string]*ecdsa.PrivateKey
}

type Step struct {
	// At is absolute seconds or +duration from the previous step
	At      string `yaml:"at"`
	Op      string `yaml:"op"`
	Account string `yaml:"account"`
	To      string `yaml:"to"`
	// Ledger selects escrow, boost, dao or source. The default depends on op
	Ledger string `yaml:"ledger"`
	// Amount is in base units. Tokens is in whole tokens and is added to it
	Amount string `yaml:"amount"`
	Tokens uint64 `yaml:"tokens"`
	// UnlockTime is absolute seconds or +duration from the step time
	UnlockTime  string `yaml:"unlockTime"`
	Expect      string `yaml:"expect"`
	ExpectError string `yaml:"expectError"`
}

func Load(path string) (*Scenario, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading scenario file: %w", err)
	}
	return Parse(buf)
}

func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("error parsing scenario: %w", err)
	}
	if sc.Start == 0 {
		sc.Start = DefaultStart
	}
	sc.addresses = make(map[string]common.Address, len(sc.Accounts))
	sc.keys = make(map[string]*ecdsa.PrivateKey)
	for name, value := range sc.Accounts {
		if _, ok := componentAccounts[name]; ok {
			return nil, fmt.Errorf("account name %q is reserved", name)
		}
		hexValue := strings.TrimPrefix(value, "0x")
		switch len(hexValue) {
		case 2 * common.AddressLength:
			if !common.IsHexAddress(value) {
				return nil, fmt.Errorf("account %q: invalid address", name)
			}
			sc.addresses[name] = common.HexToAddress(value)
		case 64:
			key, err := crypto.HexToECDSA(hexValue)
			if err != nil {
				return nil, fmt.Errorf("account %q: invalid key: %w", name, err)
			}
			sc.keys[name] = key
			sc.addresses[name] = crypto.PubkeyToAddress(key.PublicKey)
		default:
			return nil, fmt.Errorf(
				"account %q: expected a 20 byte address or 32 byte key",
				name,
			)
		}
	}
	if sc.Admin == "" {
		return nil, errors.New("scenario has no admin account")
	}
	if _, err := sc.address(sc.Admin); err != nil {
		return nil, fmt.Errorf("admin: %w", err)
	}
	if sc.RewardSigner != "" {
		if _, err := sc.address(sc.RewardSigner); err != nil {
			return nil, fmt.Errorf("rewardSigner: %w", err)
		}
	}
	for i, step := range sc.Steps {
		if _, ok := ops[step.Op]; !ok {
			return nil, fmt.Errorf("step %d: %w: %q", i, ErrUnknownOp, step.Op)
		}
	}
	return &sc, nil
}

func (sc *Scenario) address(name string) (common.Address, error) {
	if addr, ok := sc.addresses[name]; ok {
		return addr, nil
	}
	if addr, ok := componentAccounts[name]; ok {
		return addr, nil
	}
	return common.Address{}, fmt.Errorf("%w: %q", ErrUnknownAccount, name)
}

// resolveTime parses absolute seconds or a +duration relative to base
func resolveTime(value string, base uint64) (uint64, error) {
	if value == "" {
		return base, nil
	}
	if rel, ok := strings.CutPrefix(value, "+"); ok {
		d, err := time.ParseDuration(rel)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", value, err)
		}
		if d < 0 {
			return 0, fmt.Errorf("negative duration %q", value)
		}
		return base + uint64(d/time.Second), nil
	}
	t, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", value, err)
	}
	return t, nil
}

func (s Step) amount() (*uint256.Int, error) {
	amount := new(uint256.Int)
	if s.Amount != "" {
		var err error
		amount, err = uint256.FromDecimal(s.Amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", s.Amount, err)
		}
	}
	if s.Tokens > 0 {
		sum, overflow := new(uint256.Int).AddOverflow(
			amount,
			units.TokenAmount(s.Tokens, tokenDecimals),
		)
		if overflow {
			return nil, units.ErrOverflow
		}
		amount = sum
	}
	return amount, nil
}
