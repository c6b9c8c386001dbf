// Package database opens the gorm connection used by the repositories.
package database

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/joshsymonds/inboxledger/internal/gmail"
	"github.com/joshsymonds/inboxledger/internal/models"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Connection pool configuration
const (
	DefaultMaxIdleConns    = 5
	DefaultMaxOpenConns    = 20
	DefaultConnMaxLifetime = time.Hour
)

// Open connects to dsn with the named driver. Constraint violations are
// translated to gorm errors.
func Open(driver, dsn string, log *slog.Logger) (*gorm.DB, error) {
	if log == nil {
		log = slog.Default()
	}
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case DriverPostgres, "postgresql", "pgx":
		dialector = postgres.Open(dsn)
	case DriverSQLite, "sqlite3":
		dialector = sqlite.Open(dsn)
	default:
		return nil, gmail.Errorf(gmail.ErrConfig, "open database", "unsupported driver %q", driver)
	}
	if dsn == "" {
		return nil, gmail.Errorf(gmail.ErrConfig, "open database", "empty dsn")
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := configureConnectionPool(db, driver); err != nil {
		return nil, err
	}
	log.Info("connected to database", slog.String("driver", driver))
	return db, nil
}

func configureConnectionPool(db *gorm.DB, driver string) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get underlying sql.DB: %w", err)
	}
	if strings.HasPrefix(strings.ToLower(driver), DriverSQLite) {
		// a second connection to :memory: would see an empty database
		sqlDB.SetMaxOpenConns(1)
		return nil
	}
	sqlDB.SetMaxIdleConns(DefaultMaxIdleConns)
	sqlDB.SetMaxOpenConns(DefaultMaxOpenConns)
	sqlDB.SetConnMaxLifetime(DefaultConnMaxLifetime)
	return nil
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	log.Info("running database migrations")
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close closes the database connection
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}
