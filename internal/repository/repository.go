package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"coinkiosk/internal/models"
)

// Repository is the store contract shared by the lease manager, the queue
// accumulator and the pulse interpreter. Multi-step operations run inside
// InTx with the *gorm.DB-taking Tx variants so that each API operation is a
// single transaction: it fully commits or has no effect.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Slots. ClaimSlotTx and ReleaseSlotTx are predicate-guarded single
	// updates; under concurrent claims on one available slot exactly one
	// caller observes claimed=true.
	GetSlotByNumber(ctx context.Context, slotNumber int) (*models.CoinSlot, error)
	GetSlotByNumberTx(ctx context.Context, tx *gorm.DB, slotNumber int) (*models.CoinSlot, error)
	GetSlotByClaimantTx(ctx context.Context, tx *gorm.DB, identity string) (*models.CoinSlot, error)
	ListSlots(ctx context.Context) ([]models.CoinSlot, error)
	ClaimSlotTx(ctx context.Context, tx *gorm.DB, slotNumber int, identity string, claimedAt, expiresAt time.Time) (bool, error)
	ReleaseSlotTx(ctx context.Context, tx *gorm.DB, slotID uint64) (bool, error)
	ListExpiredSlots(ctx context.Context, now time.Time) ([]models.CoinSlot, error)

	// Queue entries.
	InsertQueueEntryTx(ctx context.Context, tx *gorm.DB, item *models.QueueEntry) error
	DetachQueuedEntriesTx(ctx context.Context, tx *gorm.DB, slotID uint64, identity string) (int64, error)
	ReattachQueuedEntriesTx(ctx context.Context, tx *gorm.DB, identity string, slotID uint64) (int64, error)
	QueueTotals(ctx context.Context, identity string) (QueueTotals, error)
	QueueTotalsTx(ctx context.Context, tx *gorm.DB, identity string) (QueueTotals, error)
	MarkEntriesRedeemedTx(ctx context.Context, tx *gorm.DB, identity string, at time.Time) (int64, error)
	RedeemedTotalsTx(ctx context.Context, tx *gorm.DB, identity string, at time.Time) (QueueTotals, error)
	ExpireStaleEntries(ctx context.Context, before time.Time, at time.Time) (int64, error)
	SlotQueueSummaries(ctx context.Context) (map[uint64]QueueTotals, error)

	// Calibration.
	GetActiveRuleByPulseCount(ctx context.Context, pulseCount int) (*models.CalibrationRule, error)
	GetActiveRuleByPulseCountTx(ctx context.Context, tx *gorm.DB, pulseCount int) (*models.CalibrationRule, error)
	GetCalibrationRuleByIDTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.CalibrationRule, error)
	InsertCalibrationRuleTx(ctx context.Context, tx *gorm.DB, item *models.CalibrationRule) error
	ListCalibrationRules(ctx context.Context) ([]models.CalibrationRule, error)
	SetCalibrationRuleActiveTx(ctx context.Context, tx *gorm.DB, id uint64, active bool) (bool, error)

	// Notification audit.
	InsertEventRecord(ctx context.Context, item *models.EventRecord) error
}

// QueueTotals aggregates an identity's Queued entries regardless of which
// slot, if any, they are currently attached to.
type QueueTotals struct {
	EntryCount int64           `json:"entry_count"`
	CoinCount  int64           `json:"coin_count"`
	TotalValue decimal.Decimal `json:"total_value"`
}
