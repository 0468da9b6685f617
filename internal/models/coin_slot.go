package models

import (
	"time"
)

const (
	SlotStatusAvailable = "available"
	SlotStatusClaimed   = "claimed"
)

// CoinSlot models one physical coin acceptor. A slot is created once at init
// for each configured acceptor and is only ever mutated by the lease manager.
type CoinSlot struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	SlotNumber int    `gorm:"uniqueIndex;not null"`

	Status   string  `gorm:"type:varchar(20);not null;default:'available';index"`
	Claimant *string `gorm:"type:varchar(100);index"`

	ClaimedAt *time.Time `gorm:"type:timestamptz"`
	ExpiresAt *time.Time `gorm:"type:timestamptz;index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (CoinSlot) TableName() string {
	return "coin_slots"
}

// Claimed reports whether the slot currently carries a lease, expired or not.
func (s *CoinSlot) Claimed() bool {
	return s != nil && s.Status == SlotStatusClaimed && s.Claimant != nil
}

// ExpiredAt reports whether the slot's lease has lapsed at the given instant.
func (s *CoinSlot) ExpiredAt(now time.Time) bool {
	return s.Claimed() && s.ExpiresAt != nil && s.ExpiresAt.Before(now)
}
