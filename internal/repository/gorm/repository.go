package gormrepository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"coinkiosk/internal/models"
	"coinkiosk/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- slots -------------------------------------------------------------------

func (s *Store) GetSlotByNumber(ctx context.Context, slotNumber int) (*models.CoinSlot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	return getSlotByNumber(s.db.WithContext(ctx), slotNumber)
}

func (s *Store) GetSlotByNumberTx(ctx context.Context, tx *gorm.DB, slotNumber int) (*models.CoinSlot, error) {
	if tx == nil {
		return s.GetSlotByNumber(ctx, slotNumber)
	}
	return getSlotByNumber(tx.WithContext(ctx), slotNumber)
}

func getSlotByNumber(q *gorm.DB, slotNumber int) (*models.CoinSlot, error) {
	var item models.CoinSlot
	err := q.Where("slot_number = ?", slotNumber).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetSlotByClaimantTx(ctx context.Context, tx *gorm.DB, identity string) (*models.CoinSlot, error) {
	if tx == nil {
		tx = s.db
	}
	if tx == nil {
		return nil, nil
	}
	var item models.CoinSlot
	err := tx.WithContext(ctx).
		Where("status = ?", models.SlotStatusClaimed).
		Where("claimant = ?", identity).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSlots(ctx context.Context) ([]models.CoinSlot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.CoinSlot
	if err := s.db.WithContext(ctx).
		Order("slot_number asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ClaimSlotTx performs the available->claimed transition as one conditional
// update. The status predicate makes concurrent claims race on the row: the
// loser's update matches zero rows and it gets claimed=false, never a stale
// read.
func (s *Store) ClaimSlotTx(ctx context.Context, tx *gorm.DB, slotNumber int, identity string, claimedAt, expiresAt time.Time) (bool, error) {
	if tx == nil {
		tx = s.db
	}
	if tx == nil {
		return false, nil
	}
	res := tx.WithContext(ctx).
		Model(&models.CoinSlot{}).
		Where("slot_number = ?", slotNumber).
		Where("status = ?", models.SlotStatusAvailable).
		Updates(map[string]any{
			"status":     models.SlotStatusClaimed,
			"claimant":   identity,
			"claimed_at": claimedAt,
			"expires_at": expiresAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) ReleaseSlotTx(ctx context.Context, tx *gorm.DB, slotID uint64) (bool, error) {
	if tx == nil {
		tx = s.db
	}
	if tx == nil {
		return false, nil
	}
	res := tx.WithContext(ctx).
		Model(&models.CoinSlot{}).
		Where("id = ?", slotID).
		Where("status = ?", models.SlotStatusClaimed).
		Updates(map[string]any{
			"status":     models.SlotStatusAvailable,
			"claimant":   nil,
			"claimed_at": nil,
			"expires_at": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) ListExpiredSlots(ctx context.Context, now time.Time) ([]models.CoinSlot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.CoinSlot
	err := s.db.WithContext(ctx).
		Where("status = ?", models.SlotStatusClaimed).
		Where("expires_at IS NOT NULL").
		Where("expires_at < ?", now).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- queue entries -----------------------------------------------------------

func (s *Store) InsertQueueEntryTx(ctx context.Context, tx *gorm.DB, item *models.QueueEntry) error {
	if tx == nil {
		tx = s.db
	}
	if tx == nil || item == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(item).Error
}

func (s *Store) DetachQueuedEntriesTx(ctx context.Context, tx *gorm.DB, slotID uint64, identity string) (int64, error) {
	if tx == nil {
		tx = s.db
	}
	if tx == nil {
		return 0, nil
	}
	res := tx.WithContext(ctx).
		Model(&models.QueueEntry{}).
		Where("slot_id = ?", slotID).
		Where("identity = ?", identity).
		Where("status = ?", models.QueueStatusQueued).
		Update("slot_id", nil)
	return res.RowsAffected, res.Error
}

func (s *Store) ReattachQueuedEntriesTx(ctx context.Context, tx *gorm.DB, identity string, slotID uint64) (int64, error) {
	if tx == nil {
		tx = s.db
	}
	if tx == nil {
		return 0, nil
	}
	res := tx.WithContext(ctx).
		Model(&models.QueueEntry{}).
		Where("identity = ?", identity).
		Where("slot_id IS NULL").
		Where("status = ?", models.QueueStatusQueued).
		Update("slot_id", slotID)
	return res.RowsAffected, res.Error
}

func (s *Store) QueueTotals(ctx context.Context, identity string) (repository.QueueTotals, error) {
	if s == nil || s.db == nil {
		return repository.QueueTotals{TotalValue: decimal.Zero}, nil
	}
	return queueTotals(s.db.WithContext(ctx), identity)
}

func (s *Store) QueueTotalsTx(ctx context.Context, tx *gorm.DB, identity string) (repository.QueueTotals, error) {
	if tx == nil {
		return s.QueueTotals(ctx, identity)
	}
	return queueTotals(tx.WithContext(ctx), identity)
}

type totalsRow struct {
	EntryCount int64
	CoinCount  int64
	TotalValue decimal.Decimal
}

func queueTotals(q *gorm.DB, identity string) (repository.QueueTotals, error) {
	var row totalsRow
	err := q.Model(&models.QueueEntry{}).
		Select("COUNT(*) AS entry_count, COALESCE(SUM(coin_count), 0) AS coin_count, COALESCE(SUM(total_value), 0) AS total_value").
		Where("identity = ?", identity).
		Where("status = ?", models.QueueStatusQueued).
		Scan(&row).Error
	if err != nil {
		return repository.QueueTotals{TotalValue: decimal.Zero}, err
	}
	return repository.QueueTotals{
		EntryCount: row.EntryCount,
		CoinCount:  row.CoinCount,
		TotalValue: row.TotalValue,
	}, nil
}

func (s *Store) MarkEntriesRedeemedTx(ctx context.Context, tx *gorm.DB, identity string, at time.Time) (int64, error) {
	if tx == nil {
		tx = s.db
	}
	if tx == nil {
		return 0, nil
	}
	res := tx.WithContext(ctx).
		Model(&models.QueueEntry{}).
		Where("identity = ?", identity).
		Where("status = ?", models.QueueStatusQueued).
		Updates(map[string]any{
			"status":      models.QueueStatusRedeemed,
			"redeemed_at": at,
		})
	return res.RowsAffected, res.Error
}

// RedeemedTotalsTx aggregates the entries a redemption just transitioned,
// keyed by the redeemed_at stamp written in the same transaction.
func (s *Store) RedeemedTotalsTx(ctx context.Context, tx *gorm.DB, identity string, at time.Time) (repository.QueueTotals, error) {
	if tx == nil {
		tx = s.db
	}
	if tx == nil {
		return repository.QueueTotals{TotalValue: decimal.Zero}, nil
	}
	var row totalsRow
	err := tx.WithContext(ctx).
		Model(&models.QueueEntry{}).
		Select("COUNT(*) AS entry_count, COALESCE(SUM(coin_count), 0) AS coin_count, COALESCE(SUM(total_value), 0) AS total_value").
		Where("identity = ?", identity).
		Where("status = ?", models.QueueStatusRedeemed).
		Where("redeemed_at = ?", at).
		Scan(&row).Error
	if err != nil {
		return repository.QueueTotals{TotalValue: decimal.Zero}, err
	}
	return repository.QueueTotals{
		EntryCount: row.EntryCount,
		CoinCount:  row.CoinCount,
		TotalValue: row.TotalValue,
	}, nil
}

func (s *Store) ExpireStaleEntries(ctx context.Context, before time.Time, at time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.QueueEntry{}).
		Where("status = ?", models.QueueStatusQueued).
		Where("created_at < ?", before).
		Updates(map[string]any{
			"status":     models.QueueStatusExpired,
			"expired_at": at,
		})
	return res.RowsAffected, res.Error
}

type slotSummaryRow struct {
	SlotID     uint64
	EntryCount int64
	CoinCount  int64
	TotalValue decimal.Decimal
}

func (s *Store) SlotQueueSummaries(ctx context.Context) (map[uint64]repository.QueueTotals, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var rows []slotSummaryRow
	err := s.db.WithContext(ctx).
		Model(&models.QueueEntry{}).
		Select("slot_id, COUNT(*) AS entry_count, COALESCE(SUM(coin_count), 0) AS coin_count, COALESCE(SUM(total_value), 0) AS total_value").
		Where("slot_id IS NOT NULL").
		Where("status = ?", models.QueueStatusQueued).
		Group("slot_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint64]repository.QueueTotals, len(rows))
	for _, r := range rows {
		out[r.SlotID] = repository.QueueTotals{
			EntryCount: r.EntryCount,
			CoinCount:  r.CoinCount,
			TotalValue: r.TotalValue,
		}
	}
	return out, nil
}

// --- calibration -------------------------------------------------------------

func (s *Store) GetActiveRuleByPulseCount(ctx context.Context, pulseCount int) (*models.CalibrationRule, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	return getActiveRule(s.db.WithContext(ctx), pulseCount)
}

func (s *Store) GetActiveRuleByPulseCountTx(ctx context.Context, tx *gorm.DB, pulseCount int) (*models.CalibrationRule, error) {
	if tx == nil {
		return s.GetActiveRuleByPulseCount(ctx, pulseCount)
	}
	return getActiveRule(tx.WithContext(ctx), pulseCount)
}

func getActiveRule(q *gorm.DB, pulseCount int) (*models.CalibrationRule, error) {
	var item models.CalibrationRule
	err := q.Where("pulse_count = ?", pulseCount).
		Where("is_active = ?", true).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetCalibrationRuleByIDTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.CalibrationRule, error) {
	if tx == nil {
		tx = s.db
	}
	if tx == nil {
		return nil, nil
	}
	var item models.CalibrationRule
	err := tx.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) InsertCalibrationRuleTx(ctx context.Context, tx *gorm.DB, item *models.CalibrationRule) error {
	if tx == nil {
		tx = s.db
	}
	if tx == nil || item == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(item).Error
}

func (s *Store) ListCalibrationRules(ctx context.Context) ([]models.CalibrationRule, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.CalibrationRule
	if err := s.db.WithContext(ctx).
		Order("pulse_count asc, created_at desc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) SetCalibrationRuleActiveTx(ctx context.Context, tx *gorm.DB, id uint64, active bool) (bool, error) {
	if tx == nil {
		tx = s.db
	}
	if tx == nil {
		return false, nil
	}
	res := tx.WithContext(ctx).
		Model(&models.CalibrationRule{}).
		Where("id = ?", id).
		Update("is_active", active)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// --- notification audit ------------------------------------------------------

func (s *Store) InsertEventRecord(ctx context.Context, item *models.EventRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}
