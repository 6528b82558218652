package models

import "time"

type Repository interface {
	// ActiveAuthorizations returns the newest active authorization per
	// active user, one candidate per user.
	ActiveAuthorizations() ([]*Authorization, error)
	// DeactivateAuthorizations clears all active authorizations of a user,
	// forcing a re-sign.
	DeactivateAuthorizations(userAddress string) (int64, error)

	PolicyMirror(userAddress string) (*PolicyMirror, error)
	// ApplyPayment advances the mirror after a confirmed on-chain payment:
	// sets last_paid_at and adds the amount to total_paid.
	ApplyPayment(userAddress string, tier uint64, amountWei string, paidAt int64) error

	AcquireRunLock(instanceID string, ttl time.Duration) (bool, error)
	ReleaseRunLock(instanceID string) error

	Close() error
}
