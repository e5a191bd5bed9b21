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

// Package access implements caller-identity capability checks. Every
// permissioned operation in this module takes the caller's address as an
// explicit argument and asks a Control or Ownable whether that caller holds
// the needed capability; there is no ambient authority.
package access

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/blinklabs-io/veescrow/txn"
)

// Role identifies a capability. Roles other than DefaultAdminRole are the
// keccak256 hash of their name
type Role = common.Hash

// DefaultAdminRole administers every role that has no explicit admin
var DefaultAdminRole = Role{}

var (
	ErrCanOnlyRenounceSelf = errors.New(
		"AccessControl: can only renounce roles for self",
	)
	ErrNotOwner     = errors.New("Ownable: caller is not the owner")
	ErrZeroNewOwner = errors.New("Ownable: new owner is the zero address")
)

// RoleID derives a role identifier from its name
func RoleID(name string) Role {
	return crypto.Keccak256Hash([]byte(name))
}

// MissingRoleError is returned when an account lacks a required role
type MissingRoleError struct {
	Account common.Address
	Role    Role
}

func (e *MissingRoleError) Error() string {
	return fmt.Sprintf(
		"AccessControl: account %s is missing role %s",
		strings.ToLower(e.Account.Hex()),
		e.Role.Hex(),
	)
}

// Control tracks role membership
type Control struct {
	members map[Role]map[common.Address]struct{}
	admins  map[Role]Role
	mu      sync.RWMutex
}

func NewControl() *Control {
	return &Control{
		members: make(map[Role]map[common.Address]struct{}),
		admins:  make(map[Role]Role),
	}
}

func (c *Control) HasRole(role Role, account common.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasRole(role, account)
}

func (c *Control) hasRole(role Role, account common.Address) bool {
	_, ok := c.members[role][account]
	return ok
}

// CheckRole returns a *MissingRoleError if account does not hold role
func (c *Control) CheckRole(role Role, account common.Address) error {
	if !c.HasRole(role, account) {
		return &MissingRoleError{Account: account, Role: role}
	}
	return nil
}

// RoleAdmin returns the role whose members may grant and revoke role
func (c *Control) RoleAdmin(role Role) Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.admins[role]
}

// SetRoleAdmin changes the admin role of role. It performs no caller check
// and is meant for initialization code
func (c *Control) SetRoleAdmin(ctx context.Context, role Role, admin Role) {
	c.mu.Lock()
	prev, hadPrev := c.admins[role]
	c.admins[role] = admin
	c.mu.Unlock()
	txn.Record(ctx, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if hadPrev {
			c.admins[role] = prev
		} else {
			delete(c.admins, role)
		}
	})
}

// Setup grants role without a caller check. It is meant for initialization
// code
func (c *Control) Setup(ctx context.Context, role Role, account common.Address) {
	c.grant(ctx, role, account)
}

// GrantRole gives account the role. The caller must hold the role's admin
// role
func (c *Control) GrantRole(
	ctx context.Context,
	caller common.Address,
	role Role,
	account common.Address,
) error {
	if err := c.CheckRole(c.RoleAdmin(role), caller); err != nil {
		return err
	}
	c.grant(ctx, role, account)
	return nil
}

// RevokeRole removes the role from account. The caller must hold the role's
// admin role
func (c *Control) RevokeRole(
	ctx context.Context,
	caller common.Address,
	role Role,
	account common.Address,
) error {
	if err := c.CheckRole(c.RoleAdmin(role), caller); err != nil {
		return err
	}
	c.revoke(ctx, role, account)
	return nil
}

// RenounceRole lets an account drop one of its own roles
func (c *Control) RenounceRole(
	ctx context.Context,
	caller common.Address,
	role Role,
	account common.Address,
) error {
	if caller != account {
		return ErrCanOnlyRenounceSelf
	}
	c.revoke(ctx, role, account)
	return nil
}

func (c *Control) grant(ctx context.Context, role Role, account common.Address) {
	c.mu.Lock()
	if c.hasRole(role, account) {
		c.mu.Unlock()
		return
	}
	if c.members[role] == nil {
		c.members[role] = make(map[common.Address]struct{})
	}
	c.members[role][account] = struct{}{}
	c.mu.Unlock()
	txn.Record(ctx, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.members[role], account)
	})
}

func (c *Control) revoke(ctx context.Context, role Role, account common.Address) {
	c.mu.Lock()
	if !c.hasRole(role, account) {
		c.mu.Unlock()
		return
	}
	delete(c.members[role], account)
	c.mu.Unlock()
	txn.Record(ctx, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.members[role][account] = struct{}{}
	})
}

// Ownable is a single-owner capability
type Ownable struct {
	owner common.Address
	mu    sync.RWMutex
}

func NewOwnable(owner common.Address) *Ownable {
	return &Ownable{owner: owner}
}

func (o *Ownable) Owner() common.Address {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.owner
}

func (o *Ownable) CheckOwner(caller common.Address) error {
	if caller != o.Owner() {
		return ErrNotOwner
	}
	return nil
}

func (o *Ownable) TransferOwnership(
	ctx context.Context,
	caller common.Address,
	newOwner common.Address,
) error {
	if err := o.CheckOwner(caller); err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return ErrZeroNewOwner
	}
	o.mu.Lock()
	prev := o.owner
	o.owner = newOwner
	o.mu.Unlock()
	txn.Record(ctx, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.owner = prev
	})
	return nil
}
