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

	"github.com/blinklabs-io/veescrow/access"
	"github.com/blinklabs-io/veescrow/txn"
	"github.com/blinklabs-io/veescrow/units"
)

const (
	DaoTokenName     = "Cortex DAO Token"
	DaoTokenSymbol   = "CXD"
	DaoTokenDecimals = 18

	// SchemaVersion is the layout version written by Initialize
	SchemaVersion uint64 = 1

	initialSupplyCapWhole = 271828182
)

var (
	MinterRole   = access.RoleID("MINTER_ROLE")
	ProtocolRole = access.RoleID("PROTOCOL_ROLE")
)

var (
	ErrSupplyCapExceeded  = errors.New("SUPPLY_CAP_EXCEEDED")
	ErrZeroSupplyCap      = errors.New("ZERO_SUPPLY_CAP")
	ErrInvalidSupplyCap   = errors.New("INVALID_SUPPLY_CAP")
	ErrAlreadyInitialized = errors.New(
		"Initializable: contract is already initialized",
	)
	ErrNotInitialized = errors.New("Initializable: contract is not initialized")
)

// InitialSupplyCap is the cap set by Initialize, 271,828,182 whole tokens
func InitialSupplyCap() *uint256.Int {
	return units.TokenAmount(initialSupplyCapWhole, DaoTokenDecimals)
}

// DaoToken is the mintable governance token. It follows a construct-then-
// initialize lifecycle: NewDaoToken returns an inert token and Initialize
// installs roles and the supply cap, recording SchemaVersion. Every
// mutating call before Initialize fails with ErrNotInitialized
type DaoToken struct {
	*ERC20
	roles     *access.Control
	supplyCap *uint256.Int
	version   uint64
	mu        sync.RWMutex
}

func NewDaoToken() *DaoToken {
	return &DaoToken{
		ERC20:     NewERC20(DaoTokenName, DaoTokenSymbol, DaoTokenDecimals),
		roles:     access.NewControl(),
		supplyCap: new(uint256.Int),
	}
}

// Initialize grants admin, minter and protocol roles to admin and sets the
// initial supply cap. It may only run once
func (d *DaoToken) Initialize(ctx context.Context, admin common.Address) error {
	d.mu.Lock()
	if d.version != 0 {
		d.mu.Unlock()
		return ErrAlreadyInitialized
	}
	d.version = SchemaVersion
	prevCap := d.supplyCap
	d.supplyCap = InitialSupplyCap()
	d.mu.Unlock()
	txn.Record(ctx, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.version = 0
		d.supplyCap = prevCap
	})
	d.roles.Setup(ctx, access.DefaultAdminRole, admin)
	d.roles.Setup(ctx, MinterRole, admin)
	d.roles.Setup(ctx, ProtocolRole, admin)
	return nil
}

// Version returns the initialized schema version, or 0 before Initialize
func (d *DaoToken) Version() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

func (d *DaoToken) checkInitialized() error {
	if d.Version() == 0 {
		return ErrNotInitialized
	}
	return nil
}

func (d *DaoToken) SupplyCap() *uint256.Int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.supplyCap.Clone()
}

// Mint creates tokens for to. The caller needs MINTER_ROLE and the new total
// supply may not exceed the cap
func (d *DaoToken) Mint(
	ctx context.Context,
	caller common.Address,
	to common.Address,
	amount *uint256.Int,
) error {
	if err := d.checkInitialized(); err != nil {
		return err
	}
	if err := d.roles.CheckRole(MinterRole, caller); err != nil {
		return err
	}
	newSupply, overflow := new(uint256.Int).AddOverflow(d.TotalSupply(), amount)
	if overflow || newSupply.Gt(d.SupplyCap()) {
		return ErrSupplyCapExceeded
	}
	return d.Issue(ctx, to, amount)
}

// SetSupplyCap changes the cap. The caller needs PROTOCOL_ROLE; the cap must
// be nonzero and at least the current total supply
func (d *DaoToken) SetSupplyCap(
	ctx context.Context,
	caller common.Address,
	supplyCap *uint256.Int,
) error {
	if err := d.checkInitialized(); err != nil {
		return err
	}
	if err := d.roles.CheckRole(ProtocolRole, caller); err != nil {
		return err
	}
	if supplyCap.IsZero() {
		return ErrZeroSupplyCap
	}
	if supplyCap.Lt(d.TotalSupply()) {
		return ErrInvalidSupplyCap
	}
	d.mu.Lock()
	prev := d.supplyCap
	d.supplyCap = supplyCap.Clone()
	d.mu.Unlock()
	txn.Record(ctx, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.supplyCap = prev
	})
	return nil
}

func (d *DaoToken) HasRole(role access.Role, account common.Address) bool {
	return d.roles.HasRole(role, account)
}

func (d *DaoToken) GrantRole(
	ctx context.Context,
	caller common.Address,
	role access.Role,
	account common.Address,
) error {
	if err := d.checkInitialized(); err != nil {
		return err
	}
	return d.roles.GrantRole(ctx, caller, role, account)
}

func (d *DaoToken) RevokeRole(
	ctx context.Context,
	caller common.Address,
	role access.Role,
	account common.Address,
) error {
	if err := d.checkInitialized(); err != nil {
		return err
	}
	return d.roles.RevokeRole(ctx, caller, role, account)
}
