package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	QueueStatusQueued   = "queued"
	QueueStatusRedeemed = "redeemed"
	QueueStatusExpired  = "expired"
)

// QueueEntry records one accepted coin event. TotalValue is fixed at creation
// and the status only ever moves queued -> redeemed or queued -> expired.
// SlotID is nil while the entry is detached from any slot; Identity, not
// SlotID, is the durable key that ties a client's value together.
type QueueEntry struct {
	ID     uint64  `gorm:"primaryKey;autoIncrement"`
	SlotID *uint64 `gorm:"index"`

	Identity string `gorm:"type:varchar(100);not null;index"`

	CoinValue  decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	CoinCount  int             `gorm:"not null"`
	TotalValue decimal.Decimal `gorm:"type:numeric(12,2);not null"`

	Status string `gorm:"type:varchar(20);not null;default:'queued';index"`

	RedeemedAt *time.Time `gorm:"type:timestamptz"`
	ExpiredAt  *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (QueueEntry) TableName() string {
	return "queue_entries"
}
