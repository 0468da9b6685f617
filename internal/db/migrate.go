package db

import (
	"coinkiosk/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.CoinSlot{},
		&models.QueueEntry{},
		&models.CalibrationRule{},
		&models.EventRecord{},
	)
}

// SeedSlots creates one coin_slots row per configured acceptor if it does not
// exist yet. Existing rows keep their current lease state across restarts.
func SeedSlots(db *DB, slotNumbers []int) error {
	if db == nil || db.Gorm == nil {
		return nil
	}
	for _, n := range slotNumbers {
		if n <= 0 {
			continue
		}
		slot := models.CoinSlot{
			SlotNumber: n,
			Status:     models.SlotStatusAvailable,
		}
		err := db.Gorm.
			Where(models.CoinSlot{SlotNumber: n}).
			FirstOrCreate(&slot).Error
		if err != nil {
			return err
		}
	}
	return nil
}
