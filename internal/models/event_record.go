package models

import (
	"time"

	"gorm.io/datatypes"
)

// EventRecord is the audit row written for every published notification,
// including unattributed coin drops. Retained indefinitely.
type EventRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	EventID  string `gorm:"type:varchar(36);uniqueIndex;not null"`
	Type     string `gorm:"type:varchar(40);not null;index"`
	Identity string `gorm:"type:varchar(100);index"`

	Payload datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (EventRecord) TableName() string {
	return "event_records"
}
