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

package event

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Escrow ledger events. They are published only once the mutating operation
// that produced them has committed
const (
	EscrowDepositEventType  = EventType("escrow.deposit")
	EscrowWithdrawEventType = EventType("escrow.withdraw")
	EscrowSupplyEventType   = EventType("escrow.supply")
	EscrowShutdownEventType = EventType("escrow.shutdown")
	EscrowDelegateEventType = EventType("escrow.delegate")
)

// DepositKind tells which operation produced a deposit
type DepositKind uint8

const (
	DepositForType DepositKind = iota
	CreateLockType
	IncreaseLockAmountType
	IncreaseUnlockTimeType
)

func (k DepositKind) String() string {
	switch k {
	case DepositForType:
		return "deposit_for"
	case CreateLockType:
		return "create_lock"
	case IncreaseLockAmountType:
		return "increase_amount"
	case IncreaseUnlockTimeType:
		return "increase_unlock_time"
	default:
		return "unknown"
	}
}

type EscrowDepositEvent struct {
	Ledger    common.Address
	Provider  common.Address
	Account   common.Address
	Value     *uint256.Int
	LockEnd   uint64
	Kind      DepositKind
	Timestamp uint64
}

type EscrowWithdrawEvent struct {
	Ledger    common.Address
	Account   common.Address
	Value     *uint256.Int
	Timestamp uint64
}

// EscrowSupplyEvent reports the raw locked total before and after a change
type EscrowSupplyEvent struct {
	Ledger     common.Address
	PrevSupply *uint256.Int
	Supply     *uint256.Int
}

type EscrowShutdownEvent struct {
	Ledger    common.Address
	Timestamp uint64
}

// EscrowDelegateEvent reports a delegate change. A zero Delegate means the
// delegation was cleared
type EscrowDelegateEvent struct {
	Ledger   common.Address
	Account  common.Address
	Delegate common.Address
}

// Airdrop minter events
const (
	AirdropMintEventType       = EventType("airdrop.mint")
	AirdropMintLockedEventType = EventType("airdrop.mint_locked")
	AirdropClaimEventType      = EventType("airdrop.claim")
)

type AirdropMintEvent struct {
	Account      common.Address
	SourceAmount *uint256.Int
	Minted       *uint256.Int
}

type AirdropMintLockedEvent struct {
	Account      common.Address
	LockedAmount *uint256.Int
	BoostBalance *uint256.Int
	Converted    *uint256.Int
	Bonus        *uint256.Int
	LockEnd      uint64
}

type AirdropClaimEvent struct {
	Account common.Address
	Wallet  common.Address
	Amount  *uint256.Int
}

// Reward distributor events
const RewardClaimedEventType = EventType("rewards.claimed")

type RewardClaimedEvent struct {
	Distributor common.Address
	Wallet      common.Address
	Amount      *uint256.Int
	Nonce       *uint256.Int
}
