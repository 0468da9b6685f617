package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CalibrationRule maps an exact observed pulse count to an authoritative coin
// value, overriding the linear pulses-per-coin formula. Rules encode known
// hardware defects for specific denominations. At most one active rule may
// exist per pulse count; deactivated rules are kept as history.
type CalibrationRule struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	PulseCount  int             `gorm:"not null;index"`
	ActualValue decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Note        string          `gorm:"type:text"`
	IsActive    bool            `gorm:"not null;default:true;index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (CalibrationRule) TableName() string {
	return "calibration_rules"
}
