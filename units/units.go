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

// Package units holds the time and amount arithmetic shared by the escrow
// ledger and the airdrop minter.
package units

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Time constants, in seconds
const (
	Day     uint64 = 86400
	Week    uint64 = 7 * Day
	Year    uint64 = 365 * Day
	MaxTime uint64 = 4 * Year
)

// BpsDenominator is the denominator for rates expressed in basis points
const BpsDenominator uint64 = 10000

var (
	ErrOverflow      = errors.New("arithmetic overflow")
	ErrZeroDivisor   = errors.New("ratio denominator is zero")
	ErrInvalidBps    = errors.New("basis points exceed denominator")
	ErrZeroEpochSize = errors.New("epoch size is zero")
)

// RoundDown rounds t down to the nearest multiple of epoch
func RoundDown(t uint64, epoch uint64) uint64 {
	if epoch == 0 {
		return t
	}
	return t / epoch * epoch
}

// RoundDownToWeek rounds t down to the nearest week boundary
func RoundDownToWeek(t uint64) uint64 {
	return RoundDown(t, Week)
}

// Ratio is a fixed exchange rate expressed as Num/Den
type Ratio struct {
	Num uint64 `yaml:"num"`
	Den uint64 `yaml:"den"`
}

// AirdropRatio is the source-to-destination conversion rate, 2.71828182
var AirdropRatio = Ratio{Num: 271828182, Den: 100000000}

func (r Ratio) Validate() error {
	if r.Den == 0 {
		return ErrZeroDivisor
	}
	return nil
}

func (r Ratio) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Apply returns floor(amount * Num / Den). The intermediate product is
// computed at 512 bits, so only a final result above 2^256-1 overflows.
func (r Ratio) Apply(amount *uint256.Int) (*uint256.Int, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if amount == nil {
		return new(uint256.Int), nil
	}
	res, overflow := new(uint256.Int).MulDivOverflow(
		amount,
		uint256.NewInt(r.Num),
		uint256.NewInt(r.Den),
	)
	if overflow {
		return nil, ErrOverflow
	}
	return res, nil
}

// ApplyBps returns floor(amount * bps / 10000)
func ApplyBps(amount *uint256.Int, bps uint64) (*uint256.Int, error) {
	return Ratio{Num: bps, Den: BpsDenominator}.Apply(amount)
}

// ValidateBps checks that a rate does not exceed 100%
func ValidateBps(bps uint64) error {
	if bps > BpsDenominator {
		return fmt.Errorf("%w: %d", ErrInvalidBps, bps)
	}
	return nil
}

// TokenAmount scales a whole-token amount by 10^decimals
func TokenAmount(whole uint64, decimals uint8) *uint256.Int {
	scale := new(uint256.Int).Exp(
		uint256.NewInt(10),
		uint256.NewInt(uint64(decimals)),
	)
	return new(uint256.Int).Mul(uint256.NewInt(whole), scale)
}
