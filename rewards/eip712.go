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

package rewards

import (
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

const (
	DomainName    = "APY Distribution"
	DomainVersion = "1"
)

var (
	domainTypeHash = crypto.Keccak256(
		[]byte(
			"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
		),
	)
	recipientTypeHash = crypto.Keccak256(
		[]byte("Recipient(uint256 nonce,address wallet,uint256 amount)"),
	)
)

// Recipient is the signed claim payload
type Recipient struct {
	Nonce  *uint256.Int
	Wallet common.Address
	Amount *uint256.Int
}

// Signature is a secp256k1 signature split the way the claim call takes it.
// V is 27 or 28
type Signature struct {
	R common.Hash
	S common.Hash
	V uint8
}

// Bytes returns the 65-byte [R || S || V] form with V normalized to 0 or 1
func (s Signature) Bytes() []byte {
	ret := make([]byte, 0, crypto.SignatureLength)
	ret = append(ret, s.R.Bytes()...)
	ret = append(ret, s.S.Bytes()...)
	v := s.V
	if v >= 27 {
		v -= 27
	}
	return append(ret, v)
}

// Domain identifies the distributor instance a signature is bound to
type Domain struct {
	ChainID           uint64
	VerifyingContract common.Address
}

// Separator returns the EIP-712 domain separator
func (d Domain) Separator() common.Hash {
	chainID := uint256.NewInt(d.ChainID).Bytes32()
	return common.BytesToHash(crypto.Keccak256(
		domainTypeHash,
		crypto.Keccak256([]byte(DomainName)),
		crypto.Keccak256([]byte(DomainVersion)),
		chainID[:],
		common.LeftPadBytes(d.VerifyingContract.Bytes(), 32),
	))
}

func (r Recipient) structHash() []byte {
	nonce := uintOrZero(r.Nonce).Bytes32()
	amount := uintOrZero(r.Amount).Bytes32()
	return crypto.Keccak256(
		recipientTypeHash,
		nonce[:],
		common.LeftPadBytes(r.Wallet.Bytes(), 32),
		amount[:],
	)
}

// Digest returns the typed data hash that is signed for recipient
func (d Domain) Digest(recipient Recipient) common.Hash {
	sep := d.Separator()
	return common.BytesToHash(crypto.Keccak256(
		[]byte{0x19, 0x01},
		sep.Bytes(),
		recipient.structHash(),
	))
}

// Sign produces a claim signature for recipient with key. It is used by
// off-line signing tools and tests
func Sign(
	key *ecdsa.PrivateKey,
	domain Domain,
	recipient Recipient,
) (Signature, error) {
	if key == nil {
		return Signature{}, errors.New("missing signing key")
	}
	digest := domain.Digest(recipient)
	raw, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return Signature{}, err
	}
	return Signature{
		R: common.BytesToHash(raw[0:32]),
		S: common.BytesToHash(raw[32:64]),
		V: raw[64] + 27,
	}, nil
}

// recoverSigner returns the address that produced sig over recipient
func recoverSigner(
	domain Domain,
	recipient Recipient,
	sig Signature,
) (common.Address, error) {
	if sig.V != 27 && sig.V != 28 {
		return common.Address{}, ErrInvalidSignature
	}
	r := new(big.Int).SetBytes(sig.R.Bytes())
	s := new(big.Int).SetBytes(sig.S.Bytes())
	if !crypto.ValidateSignatureValues(sig.V-27, r, s, true) {
		return common.Address{}, ErrInvalidSignature
	}
	digest := domain.Digest(recipient)
	pub, err := crypto.SigToPub(digest.Bytes(), sig.Bytes())
	if err != nil {
		return common.Address{}, ErrInvalidSignature
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func uintOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
