package repository

import (
	"fmt"
	"log"
	"math/big"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/bloomfund/relayer/internal/models"
	"github.com/bloomfund/relayer/pkg/logger"
	"github.com/bloomfund/relayer/pkg/validation"
)

// runLockName is the single row serializing relayer runs.
const runLockName = "relayer_run"

type PostgresDB struct {
	logger *logger.Logger

	Conn *gorm.DB
}

func NewPostgresDB(user, password, dbname, host string, port int, logger *logger.Logger) (models.Repository, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)

	// Configure GORM logger to suppress "record not found" messages
	gormLogger := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // Use standard logger
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond, // Log queries slower than this
			LogLevel:                  gormLogger.Warn,        // Only log warnings or errors
			IgnoreRecordNotFoundError: true,                   // Suppress "record not found" errors
			Colorful:                  true,                   // Enable colorful logs
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %s", err)
	}

	if err := db.AutoMigrate(&models.User{}, &models.Authorization{}, &models.PolicyMirror{}, &models.RunLock{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %s", err)
	}
	logger.Info("Successfully connected to PostgreSQL!")
	return &PostgresDB{Conn: db, logger: logger}, nil
}

func (db *PostgresDB) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %s", err)
	}
	return sqlDB.Close()
}

// ActiveAuthorizations returns the newest active authorization of every
// active user, exactly one candidate per user per run.
func (db *PostgresDB) ActiveAuthorizations() ([]*models.Authorization, error) {
	var auths []*models.Authorization
	if err := db.Conn.
		Joins("JOIN users ON users.address = authorizations.user_address").
		Where("authorizations.is_active = ? AND users.active = ?", true, true).
		Order("authorizations.user_address, authorizations.created_at DESC, authorizations.id DESC").
		Find(&auths).Error; err != nil {
		return nil, fmt.Errorf("failed to get active authorizations: %s", err)
	}

	// Rows are ordered newest-first within each user; keep the first.
	seen := make(map[string]bool, len(auths))
	candidates := make([]*models.Authorization, 0, len(auths))
	for _, auth := range auths {
		key := strings.ToLower(auth.UserAddress)
		if seen[key] {
			continue
		}
		seen[key] = true
		candidates = append(candidates, auth)
	}
	return candidates, nil
}

// DeactivateAuthorizations clears every active authorization of a user.
// Rows are never deleted, superseding keeps the audit trail intact.
func (db *PostgresDB) DeactivateAuthorizations(userAddress string) (int64, error) {
	result := db.Conn.Model(&models.Authorization{}).
		Where("lower(user_address) = ? AND is_active = ?", strings.ToLower(userAddress), true).
		Update("is_active", false)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to deactivate authorizations: %s", result.Error)
	}
	return result.RowsAffected, nil
}

func (db *PostgresDB) PolicyMirror(userAddress string) (*models.PolicyMirror, error) {
	var mirror models.PolicyMirror
	if err := db.Conn.Where("user_address = ?", validation.NormalizeAddress(userAddress)).First(&mirror).Error; err != nil {
		return nil, fmt.Errorf("failed to get policy mirror: %s", err)
	}
	return &mirror, nil
}

// ApplyPayment advances the off-chain mirror after a confirmed payment.
// Called strictly after on-chain confirmation; last_paid_at never moves
// backwards.
func (db *PostgresDB) ApplyPayment(userAddress string, tier uint64, amountWei string, paidAt int64) error {
	amount, ok := new(big.Int).SetString(amountWei, 10)
	if !ok {
		return fmt.Errorf("invalid payment amount: %q", amountWei)
	}
	address := validation.NormalizeAddress(userAddress)

	return db.Conn.Transaction(func(tx *gorm.DB) error {
		var mirror models.PolicyMirror
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_address = ?", address).First(&mirror).Error
		if err == gorm.ErrRecordNotFound {
			mirror = models.PolicyMirror{UserAddress: address, TotalPaid: "0"}
		} else if err != nil {
			return fmt.Errorf("failed to get policy mirror: %s", err)
		}

		total, ok := new(big.Int).SetString(mirror.TotalPaid, 10)
		if !ok {
			total = new(big.Int)
		}
		mirror.TotalPaid = new(big.Int).Add(total, amount).String()
		if paidAt > mirror.LastPaidAt {
			mirror.LastPaidAt = paidAt
		}
		mirror.Tier = tier
		mirror.Active = true
		mirror.UpdatedAt = time.Now().Unix()

		if err := tx.Save(&mirror).Error; err != nil {
			return fmt.Errorf("failed to update policy mirror: %s", err)
		}
		return nil
	})
}

// AcquireRunLock takes the single relayer run lock. An expired lock is
// stealable so a crashed instance cannot block runs forever.
func (db *PostgresDB) AcquireRunLock(instanceID string, ttl time.Duration) (bool, error) {
	now := time.Now().Unix()
	acquired := false

	err := db.Conn.Transaction(func(tx *gorm.DB) error {
		var lock models.RunLock
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("lock_name = ?", runLockName).First(&lock).Error
		if err == gorm.ErrRecordNotFound {
			lock = models.RunLock{
				LockName:   runLockName,
				InstanceID: instanceID,
				AcquiredAt: now,
				ExpiresAt:  now + int64(ttl.Seconds()),
			}
			if err := tx.Create(&lock).Error; err != nil {
				return fmt.Errorf("failed to create run lock: %s", err)
			}
			acquired = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get run lock: %s", err)
		}

		if lock.ExpiresAt > now && lock.InstanceID != instanceID {
			return nil // held by a live instance
		}

		lock.InstanceID = instanceID
		lock.AcquiredAt = now
		lock.ExpiresAt = now + int64(ttl.Seconds())
		if err := tx.Save(&lock).Error; err != nil {
			return fmt.Errorf("failed to update run lock: %s", err)
		}
		acquired = true
		return nil
	})

	return acquired, err
}

func (db *PostgresDB) ReleaseRunLock(instanceID string) error {
	if err := db.Conn.
		Where("lock_name = ? AND instance_id = ?", runLockName, instanceID).
		Delete(&models.RunLock{}).Error; err != nil {
		return fmt.Errorf("failed to release run lock: %s", err)
	}
	return nil
}
