package pipeline

import (
	"gorm.io/gorm"

	"github.com/Kaviyasree25/FinClear-Engine/internal/netting"
	"github.com/Kaviyasree25/FinClear-Engine/internal/types"
)

// Database persists netting results and batch reports for the audit trail.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// SaveNettingResult stores the obligations and cancelled-pair markers of one
// batch in a single transaction.
func (d *Database) SaveNettingResult(result *netting.Result) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		for i := range result.Obligations {
			if err := tx.Create(&result.Obligations[i]).Error; err != nil {
				return err
			}
		}
		for i := range result.CancelledPairs {
			if err := tx.Create(&result.CancelledPairs[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *Database) SaveReport(report *types.BatchReport) error {
	return d.db.Create(report).Error
}

// GetReport loads a batch report and reattaches its persisted obligations
// and cancelled pairs.
func (d *Database) GetReport(batchID string) (*types.BatchReport, error) {
	var report types.BatchReport
	if err := d.db.Where("batch_id = ?", batchID).First(&report).Error; err != nil {
		return nil, err
	}
	if err := d.db.Where("batch_id = ?", batchID).Order("obligation_id ASC").
		Find(&report.Obligations).Error; err != nil {
		return nil, err
	}
	if err := d.db.Where("batch_id = ?", batchID).
		Find(&report.CancelledPairs).Error; err != nil {
		return nil, err
	}
	return &report, nil
}
