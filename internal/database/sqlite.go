package database

import (
	"fmt"
	"strings"

	"github.com/campusduka/storefront/internal/cart"
	"github.com/campusduka/storefront/internal/catalog"
	"github.com/campusduka/storefront/internal/orders"
	"github.com/campusduka/storefront/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Models lists every table owned by the storefront schema.
func Models() []interface{} {
	return []interface{}{
		&catalog.Category{},
		&catalog.Product{},
		&cart.LineItem{},
		&orders.Order{},
		&orders.OrderItem{},
		&users.Identity{},
		&migrationRecord{},
	}
}

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(withPragmas(path)), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

// withPragmas enables WAL and a busy timeout so checkout transactions wait for
// concurrent cart writes instead of failing with SQLITE_BUSY.
func withPragmas(path string) string {
	if strings.Contains(path, "mode=memory") || strings.Contains(path, "_pragma=") || path == ":memory:" {
		return path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return path + separator + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}
