package models

// PolicyMirror is the off-chain copy of a user's on-chain policy state.
// It is eventually consistent: rows only change strictly after a batch
// transaction confirms, so the mirror can lag the chain but never lead it.
type PolicyMirror struct {
	// UserAddress is the wallet address owning the policy.
	UserAddress string `json:"user_address" gorm:"column:user_address;primaryKey"`
	// Tier is the active insurance tier.
	Tier uint64 `json:"tier" gorm:"column:tier"`
	// LastPaidAt is the Unix timestamp of the last confirmed premium payment.
	LastPaidAt int64 `json:"last_paid_at" gorm:"column:last_paid_at"`
	// TotalPaid is the cumulative premium paid in wei, as a decimal string.
	TotalPaid string `json:"total_paid" gorm:"column:total_paid;default:0"`
	// Active indicates whether the policy is in force.
	Active bool `json:"active" gorm:"column:active"`
	// UpdatedAt is the Unix timestamp of the last mirror update.
	UpdatedAt int64 `json:"updated_at" gorm:"column:updated_at"`
}
