package sqlstore

import (
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/printquota/server/internal/storage"
)

func init() {
	storage.RegisterBackend("postgresql", func(dsn string) (storage.Backend, error) {
		return Open(postgres.Open(dsn))
	})
	storage.RegisterBackend("sqlite", func(dsn string) (storage.Backend, error) {
		return Open(sqlite.Open(dsn))
	})
}

// Pool defaults. The engine holds few connections; quota checks are short
// point queries.
const (
	maxOpenConns    = 16
	maxIdleConns    = 4
	connMaxLifetime = time.Hour
	connMaxIdleTime = 10 * time.Minute
)

// Open connects to the quota database through the given dialector.
func Open(dialector gorm.Dialector) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return &Store{
		db:      db,
		breaker: newBreaker(),
	}, nil
}

func newBreaker() *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "quota-database",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

// AutoMigrate creates or updates the schema. Meant for tests and small
// single-host installs; production schemas are managed with migrations.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(allRows()...)
}
