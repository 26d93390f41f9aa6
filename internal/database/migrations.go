package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/campusduka/storefront/internal/cart"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationPurgeNonPositiveCartRows = "2026-09-20_purge_nonpositive_cart_rows"
	migrationStripProviderPrefix      = "2026-09-28_strip_user_id_provider_prefix"
)

const legacyProviderPrefix = "google:"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationPurgeNonPositiveCartRows, apply: purgeNonPositiveCartRows},
		{name: migrationStripProviderPrefix, apply: stripProviderPrefix},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.Transaction(migration.apply); err != nil {
			return fmt.Errorf("migration %s: %w", migration.name, err)
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// purgeNonPositiveCartRows drops rows that older builds could leave behind with
// a zero or negative quantity.
func purgeNonPositiveCartRows(db *gorm.DB) error {
	return db.Where("quantity <= 0").Delete(&cart.LineItem{}).Error
}

// stripProviderPrefix rewrites user ids persisted before canonical resolution
// dropped the identity provider prefix.
func stripProviderPrefix(db *gorm.DB) error {
	start := len(legacyProviderPrefix) + 1
	for _, table := range []string{"cart_items", "orders"} {
		statement := fmt.Sprintf("UPDATE %s SET user_id = substr(user_id, %d) WHERE user_id LIKE '%s%%';", table, start, legacyProviderPrefix)
		if err := db.Exec(statement).Error; err != nil {
			return err
		}
	}
	return nil
}
