package models

// RunLock serializes relayer runs through the database.
// Two overlapping runs would both observe the same payment-due state and
// burn gas on a batch whose nonces can only match for one of them.
type RunLock struct {
	LockName   string `gorm:"primaryKey;size:255"`
	InstanceID string `gorm:"size:255;not null"`
	AcquiredAt int64  `gorm:"not null;index"`
	ExpiresAt  int64  `gorm:"not null;index"`
}

// TableName specifies the table name for GORM
func (RunLock) TableName() string {
	return "run_locks"
}
