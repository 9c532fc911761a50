package settlement

import (
	"time"

	"gorm.io/gorm"

	"github.com/Kaviyasree25/FinClear-Engine/internal/types"
)

// Database is a thin persistence wrapper for settlement records and their
// append-only transition history.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateRecord(record *types.SettlementRecord) error {
	return d.db.Create(record).Error
}

// SaveTransition persists the record's new state together with its history
// entry in one transaction, so the audit trail can never lag the record.
func (d *Database) SaveTransition(record *types.SettlementRecord, entry *types.StateTransition) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		return tx.Model(&types.SettlementRecord{}).
			Where("record_id = ?", record.RecordID).
			Updates(map[string]interface{}{
				"state":       record.State,
				"retry_count": record.RetryCount,
				"updated_at":  time.Now(),
			}).Error
	})
}

func (d *Database) GetRecord(recordID string) (*types.SettlementRecord, error) {
	var record types.SettlementRecord
	if err := d.db.Where("record_id = ?", recordID).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (d *Database) GetHistory(recordID string) ([]types.StateTransition, error) {
	var history []types.StateTransition
	if err := d.db.Where("record_id = ?", recordID).Order("id ASC").Find(&history).Error; err != nil {
		return nil, err
	}
	return history, nil
}

// GetCounterpartyRecords lists records where the counterparty appears on
// either leg, newest first.
func (d *Database) GetCounterpartyRecords(counterparty string) ([]types.SettlementRecord, error) {
	var records []types.SettlementRecord
	if err := d.db.Where("payer = ? OR payee = ?", counterparty, counterparty).
		Order("created_at DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (d *Database) GetBatchRecords(batchID string) ([]types.SettlementRecord, error) {
	var records []types.SettlementRecord
	if err := d.db.Where("batch_id = ?", batchID).Order("record_id ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
