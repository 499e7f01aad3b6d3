package database

import (
	"fmt"

	"unimarket-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open opens a GORM DB for the configured driver. Postgres uses PreferSimpleProtocol
// so pooled connections (PgBouncer, Supabase) don't hit 42P05 on cached prepared statements.
func Open(driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case "", "postgres":
		return gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), &gorm.Config{})
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", driver)
	}
}

// Models lists every persisted entity, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&domain.User{},
		&domain.Listing{},
		&domain.Auction{},
		&domain.Bid{},
		&domain.PricePoint{},
		&domain.Order{},
		&domain.OrderEvent{},
		&domain.Rating{},
		&domain.Dispute{},
		&domain.VirtualWallet{},
		&domain.VirtualCard{},
	}
}

// AutoMigrate creates or updates the marketplace schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
