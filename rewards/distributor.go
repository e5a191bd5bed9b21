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

// Package rewards pays out signed reward claims from a funded balance.
package rewards

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/blinklabs-io/veescrow/access"
	"github.com/blinklabs-io/veescrow/event"
	"github.com/blinklabs-io/veescrow/txn"
)

var (
	ErrNonceMismatch     = errors.New("Nonce Mismatch")
	ErrInvalidSignature  = errors.New("Invalid Signature")
	ErrInsufficientFunds = errors.New("Insufficient Funds")
	ErrZeroSigner        = errors.New("Invalid signer address")
)

// Asset is the token the distributor pays claims in
type Asset interface {
	BalanceOf(account common.Address) *uint256.Int
	Transfer(
		ctx context.Context,
		from common.Address,
		to common.Address,
		amount *uint256.Int,
	) error
}

type Config struct {
	Token        Asset
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	EventBus     *event.EventBus
	Address      common.Address
	Owner        common.Address
	Signer       common.Address
	ChainID      uint64
}

// Distributor pays each wallet the amounts signed by the configured signer.
// Every claim carries the wallet's next nonce, so a signature can be used
// only once
type Distributor struct {
	config  Config
	owner   *access.Ownable
	domain  Domain
	nonces  map[common.Address]*uint256.Int
	signer  common.Address
	logger  *slog.Logger
	metrics struct {
		claims       prometheus.Counter
		claimsFailed prometheus.Counter
	}
	mu sync.Mutex
}

func New(cfg Config) (*Distributor, error) {
	if cfg.Token == nil {
		return nil, errors.New("reward token not configured")
	}
	if cfg.Address == (common.Address{}) {
		return nil, errors.New("distributor address not configured")
	}
	d := &Distributor{
		config: cfg,
		owner:  access.NewOwnable(cfg.Owner),
		domain: Domain{
			ChainID:           cfg.ChainID,
			VerifyingContract: cfg.Address,
		},
		nonces: make(map[common.Address]*uint256.Int),
		signer: cfg.Signer,
	}
	if cfg.Logger == nil {
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		d.logger = cfg.Logger
	}
	factory := promauto.With(cfg.PromRegistry)
	d.metrics.claims = factory.NewCounter(prometheus.CounterOpts{
		Name: "veescrow_reward_claims_total",
		Help: "reward claims paid out",
	})
	d.metrics.claimsFailed = factory.NewCounter(prometheus.CounterOpts{
		Name: "veescrow_reward_claims_failed_total",
		Help: "reward claims rejected",
	})
	return d, nil
}

func (d *Distributor) Address() common.Address {
	return d.config.Address
}

func (d *Distributor) Owner() common.Address {
	return d.owner.Owner()
}

func (d *Distributor) Domain() Domain {
	return d.domain
}

func (d *Distributor) Signer() common.Address {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.signer
}

// SetSigner replaces the address whose signatures are honored. Owner only
func (d *Distributor) SetSigner(
	ctx context.Context,
	caller common.Address,
	signer common.Address,
) error {
	if err := d.owner.CheckOwner(caller); err != nil {
		return err
	}
	if signer == (common.Address{}) {
		return ErrZeroSigner
	}
	d.mu.Lock()
	prev := d.signer
	d.signer = signer
	d.mu.Unlock()
	txn.Record(ctx, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.signer = prev
	})
	d.logger.Info(
		"reward signer updated",
		"component", "rewards",
		"signer", signer.Hex(),
	)
	return nil
}

// Nonce returns the nonce the next claim for wallet must carry
func (d *Distributor) Nonce(wallet common.Address) *uint256.Int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nonce(wallet).Clone()
}

func (d *Distributor) nonce(wallet common.Address) *uint256.Int {
	if n, ok := d.nonces[wallet]; ok {
		return n
	}
	return new(uint256.Int)
}

// Claim verifies the signature over recipient and pays recipient.Amount to
// recipient.Wallet. Anyone may submit a claim on the wallet's behalf
func (d *Distributor) Claim(
	ctx context.Context,
	recipient Recipient,
	sig Signature,
) error {
	err := txn.Do(ctx, func(ctx context.Context) error {
		return d.claim(ctx, recipient, sig)
	})
	if err != nil {
		d.metrics.claimsFailed.Inc()
		return err
	}
	d.metrics.claims.Inc()
	return nil
}

func (d *Distributor) claim(
	ctx context.Context,
	recipient Recipient,
	sig Signature,
) error {
	amount := uintOrZero(recipient.Amount)
	d.mu.Lock()
	current := d.nonce(recipient.Wallet)
	signer := d.signer
	d.mu.Unlock()
	if !uintOrZero(recipient.Nonce).Eq(current) {
		return ErrNonceMismatch
	}
	recovered, err := recoverSigner(d.domain, recipient, sig)
	if err != nil {
		return err
	}
	if recovered != signer {
		return ErrInvalidSignature
	}
	if d.config.Token.BalanceOf(d.config.Address).Lt(amount) {
		return ErrInsufficientFunds
	}
	d.mu.Lock()
	d.nonces[recipient.Wallet] = new(uint256.Int).AddUint64(current, 1)
	d.mu.Unlock()
	txn.Record(ctx, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if current.IsZero() {
			delete(d.nonces, recipient.Wallet)
		} else {
			d.nonces[recipient.Wallet] = current
		}
	})
	if err := d.config.Token.Transfer(
		ctx,
		d.config.Address,
		recipient.Wallet,
		amount,
	); err != nil {
		return err
	}
	d.logger.Debug(
		"reward claimed",
		"component", "rewards",
		"wallet", recipient.Wallet.Hex(),
		"amount", amount.Dec(),
		"nonce", current.Dec(),
	)
	if d.config.EventBus != nil {
		evt := event.NewEvent(
			event.RewardClaimedEventType,
			event.RewardClaimedEvent{
				Distributor: d.config.Address,
				Wallet:      recipient.Wallet,
				Amount:      amount.Clone(),
				Nonce:       current.Clone(),
			},
		)
		txn.OnCommit(ctx, func() {
			d.config.EventBus.Publish(event.RewardClaimedEventType, evt)
		})
	}
	return nil
}
