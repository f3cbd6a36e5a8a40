package db

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"parking-access-backend/config"
	"parking-access-backend/internal/model"
)

// Models lists every table managed by the service, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&model.SlotType{},
		&model.ParkingArea{},
		&model.ParkingSlot{},
		&model.Gate{},
		&model.Customer{},
		&model.Vehicle{},
		&model.Payment{},
		&model.Contract{},
		&model.Movement{},
		&model.OccasionalTicket{},
	}
}

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	level := logger.Warn
	if cfg.Debug {
		level = logger.Info
	}
	// Lookups that find nothing are business outcomes, not errors.
	gormLogger := logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// One writer at a time; also keeps ":memory:" on a single connection.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	log.Println("Running database migrations...")
	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("automigrate failed: %w", err)
	}

	if cfg.EnableOverlapConstraint {
		if cfg.Driver != "postgres" {
			log.Printf("Overlap constraint requires PostgreSQL; skipping for driver %q", cfg.Driver)
		} else {
			log.Println("Applying contract overlap exclusion constraint...")
			if err := applyOverlapDDL(db); err != nil {
				log.Printf("Warning: failed to apply overlap DDL: %v. Continuing with row locks only.", err)
			}
		}
	}

	log.Println("Database initialization complete.")
	return db, nil
}

// applyOverlapDDL backs the slot reservation lock with a database-level
// guarantee: two contracts on the same slot cannot have overlapping periods.
func applyOverlapDDL(db *gorm.DB) error {
	ddls := []string{
		"CREATE EXTENSION IF NOT EXISTS btree_gist;",

		"ALTER TABLE contracts DROP CONSTRAINT IF EXISTS contracts_period_valid;",
		"ALTER TABLE contracts ADD CONSTRAINT contracts_period_valid CHECK (valid_from < valid_to);",

		"ALTER TABLE contracts DROP CONSTRAINT IF EXISTS contracts_slot_no_overlap;",
		"ALTER TABLE contracts ADD CONSTRAINT contracts_slot_no_overlap " +
			"EXCLUDE USING GIST (slot_id WITH =, tstzrange(valid_from, valid_to, '[)') WITH &&) " +
			"WHERE (slot_id IS NOT NULL);",

		"CREATE UNIQUE INDEX IF NOT EXISTS idx_movements_one_open ON movements (contract_id) WHERE exit_time IS NULL;",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
