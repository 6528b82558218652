package models

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// User represents a policy holder in the system.
type User struct {
	// ID is the unique identifier for the user.
	ID int64 `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	// Address is the wallet address owning the policy.
	Address string `json:"address" gorm:"column:address;unique;not null"`
	// Active indicates whether the user participates in relayer runs.
	Active bool `json:"active" gorm:"column:active;default:true;index"`
	// CreatedAt is the Unix timestamp when the user was created.
	CreatedAt int64 `json:"created_at" gorm:"column:created_at"`
}

// Authorization is a signed, off-chain consent to a single premium charge.
// Rows are append-only: a re-signed tier selection deactivates the old row
// and inserts a new one, preserving auditability.
type Authorization struct {
	// ID is the unique identifier for the authorization.
	ID int64 `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	// UserAddress is the wallet address the signature must recover to.
	UserAddress string `json:"user_address" gorm:"column:user_address;index;not null"`
	// Tier is the insurance tier the user signed up for.
	Tier uint64 `json:"tier" gorm:"column:tier"`
	// Amount is the premium amount in wei, stored as a decimal string to
	// keep the full uint256 range.
	Amount string `json:"amount" gorm:"column:amount;not null"`
	// Period is the payment period in seconds.
	Period int64 `json:"period" gorm:"column:period"`
	// ValidUntil is the Unix timestamp after which the authorization is dead.
	ValidUntil int64 `json:"valid_until" gorm:"column:valid_until"`
	// Nonce must equal the user's on-chain nonce at submission time.
	Nonce uint64 `json:"nonce" gorm:"column:nonce"`
	// Signature is the 65-byte r||s||v signature as a 0x hex string.
	Signature string `json:"signature" gorm:"column:signature;not null"`
	// IsActive is cleared when the authorization is superseded.
	IsActive bool `json:"is_active" gorm:"column:is_active;default:true;index"`
	// CreatedAt is the Unix timestamp when the authorization was signed.
	CreatedAt int64 `json:"created_at" gorm:"column:created_at;index"`
}

// AmountBig parses the stored premium amount into a 256-bit-safe integer.
func (a *Authorization) AmountBig() (*big.Int, error) {
	amount, ok := new(big.Int).SetString(a.Amount, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid authorization amount: %q", a.Amount)
	}
	return amount, nil
}

// SignatureBytes decodes the stored signature hex into raw bytes.
func (a *Authorization) SignatureBytes() ([]byte, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(a.Signature, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signature hex: %w", err)
	}
	return sig, nil
}
