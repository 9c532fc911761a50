package database

import (
	"github.com/google/uuid"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Kaviyasree25/FinClear-Engine/internal/types"
)

// NewDatabase opens the sqlite audit store at path and migrates the schema.
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&types.NetObligation{},
		&types.CancelledPair{},
		&types.SettlementRecord{},
		&types.StateTransition{},
		&types.BatchReport{},
	); err != nil {
		return nil, err
	}

	return db, nil
}

// NewTestDatabase opens a private in-memory store for tests and simulations.
// Each call gets its own database; the shared cache keeps every pooled
// connection pointed at the same one.
func NewTestDatabase() (*gorm.DB, error) {
	return NewDatabase("file:" + uuid.New().String() + "?mode=memory&cache=shared")
}
