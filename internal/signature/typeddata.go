// Package signature builds and verifies the EIP-712 typed-data
// authorizations users sign client-side. The domain and message schema are
// a bit-exact interop contract with the frontend signing code and the fund
// contract: any change to field order, naming, or the domain name/version
// breaks recovery for every outstanding authorization.
package signature

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/bloomfund/relayer/internal/models"
)

// SignatureLength is the only accepted signature size: 65 bytes of r||s||v.
const SignatureLength = 65

// PrimaryType is the EIP-712 primary type of a premium authorization.
const PrimaryType = "PaymentAuthorization"

var (
	ErrSignatureLength = errors.New("signature must be exactly 65 bytes")
	ErrRecoveryID      = errors.New("signature recovery id must be 0/1 or 27/28")
	ErrSignerMismatch  = errors.New("recovered signer does not match authorization user")
	ErrExpired         = errors.New("authorization deadline has passed")
)

var paymentTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	PrimaryType: {
		{Name: "user", Type: "address"},
		{Name: "tier", Type: "uint256"},
		{Name: "amount", Type: "uint256"},
		{Name: "period", Type: "uint256"},
		{Name: "validUntil", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
	},
}

// Validator verifies that an authorization's signature recovers to its
// claimed owner under the fixed signing domain.
type Validator struct {
	domain apitypes.TypedDataDomain
}

// NewValidator creates a Validator bound to the given domain. The chain id
// must be the id of the endpoint currently targeted, never a cached value
// from another environment.
func NewValidator(domainName, domainVersion string, chainID *big.Int, contract common.Address) *Validator {
	return &Validator{
		domain: apitypes.TypedDataDomain{
			Name:              domainName,
			Version:           domainVersion,
			ChainId:           (*math.HexOrDecimal256)(chainID),
			VerifyingContract: contract.Hex(),
		},
	}
}

// TypedData builds the full typed-data structure for one authorization.
func (v *Validator) TypedData(a *models.Authorization) (apitypes.TypedData, error) {
	amount, err := a.AmountBig()
	if err != nil {
		return apitypes.TypedData{}, err
	}
	return apitypes.TypedData{
		Types:       paymentTypes,
		PrimaryType: PrimaryType,
		Domain:      v.domain,
		Message: apitypes.TypedDataMessage{
			"user":       common.HexToAddress(a.UserAddress).Hex(),
			"tier":       (*math.HexOrDecimal256)(new(big.Int).SetUint64(a.Tier)),
			"amount":     (*math.HexOrDecimal256)(amount),
			"period":     (*math.HexOrDecimal256)(big.NewInt(a.Period)),
			"validUntil": (*math.HexOrDecimal256)(big.NewInt(a.ValidUntil)),
			"nonce":      (*math.HexOrDecimal256)(new(big.Int).SetUint64(a.Nonce)),
		},
	}, nil
}

// Digest computes the EIP-712 digest the user signed.
func (v *Validator) Digest(a *models.Authorization) ([]byte, error) {
	typedData, err := v.TypedData(a)
	if err != nil {
		return nil, err
	}
	digest, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return digest, nil
}

// Recover returns the address that signed the authorization's digest.
func (v *Validator) Recover(a *models.Authorization) (common.Address, error) {
	sig, err := a.SignatureBytes()
	if err != nil {
		return common.Address{}, err
	}
	if len(sig) != SignatureLength {
		return common.Address{}, ErrSignatureLength
	}

	digest, err := v.Digest(a)
	if err != nil {
		return common.Address{}, err
	}

	// Wallets return v as 27/28, crypto.SigToPub wants 0/1.
	recoverable := make([]byte, SignatureLength)
	copy(recoverable, sig)
	if recoverable[64] >= 27 {
		recoverable[64] -= 27
	}
	if recoverable[64] > 1 {
		return common.Address{}, ErrRecoveryID
	}

	pub, err := crypto.SigToPub(digest, recoverable)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature recovery failed: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify applies the per-candidate signature rules in order: signature
// form, recovered signer, deadline. Each failure is a hard rejection for
// the candidate. Domain-level rules (chain id match, contract code
// presence) are checked once per run by the relayer, not here.
func (v *Validator) Verify(a *models.Authorization, now int64) error {
	recovered, err := v.Recover(a)
	if err != nil {
		return err
	}
	if recovered != common.HexToAddress(a.UserAddress) {
		return ErrSignerMismatch
	}
	if a.ValidUntil <= now {
		return ErrExpired
	}
	return nil
}
