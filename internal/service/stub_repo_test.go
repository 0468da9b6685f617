package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"coinkiosk/internal/models"
	"coinkiosk/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// ClaimSlotTx performs the same predicate-guarded compare-and-set as the real
// store, under a mutex, so concurrency properties are exercised for real.
type stubRepo struct {
	mu      sync.Mutex
	nextID  uint64
	slots   map[int]*models.CoinSlot
	entries []*models.QueueEntry
	rules   []*models.CalibrationRule
	events  []*models.EventRecord
}

func newStubRepo(slotNumbers ...int) *stubRepo {
	s := &stubRepo{slots: map[int]*models.CoinSlot{}}
	for _, n := range slotNumbers {
		s.nextID++
		s.slots[n] = &models.CoinSlot{
			ID:         s.nextID,
			SlotNumber: n,
			Status:     models.SlotStatusAvailable,
		}
	}
	return s
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func (s *stubRepo) GetSlotByNumber(ctx context.Context, slotNumber int) (*models.CoinSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[slotNumber]
	if !ok {
		return nil, nil
	}
	cp := *slot
	return &cp, nil
}

func (s *stubRepo) GetSlotByNumberTx(ctx context.Context, tx *gorm.DB, slotNumber int) (*models.CoinSlot, error) {
	return s.GetSlotByNumber(ctx, slotNumber)
}

func (s *stubRepo) GetSlotByClaimantTx(ctx context.Context, tx *gorm.DB, identity string) (*models.CoinSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, slot := range s.slots {
		if slot.Status == models.SlotStatusClaimed && slot.Claimant != nil && *slot.Claimant == identity {
			cp := *slot
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) ListSlots(ctx context.Context) ([]models.CoinSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CoinSlot, 0, len(s.slots))
	for _, slot := range s.slots {
		out = append(out, *slot)
	}
	return out, nil
}

func (s *stubRepo) ClaimSlotTx(ctx context.Context, tx *gorm.DB, slotNumber int, identity string, claimedAt, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[slotNumber]
	if !ok || slot.Status != models.SlotStatusAvailable {
		return false, nil
	}
	slot.Status = models.SlotStatusClaimed
	slot.Claimant = &identity
	slot.ClaimedAt = &claimedAt
	slot.ExpiresAt = &expiresAt
	return true, nil
}

func (s *stubRepo) ReleaseSlotTx(ctx context.Context, tx *gorm.DB, slotID uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, slot := range s.slots {
		if slot.ID == slotID && slot.Status == models.SlotStatusClaimed {
			slot.Status = models.SlotStatusAvailable
			slot.Claimant = nil
			slot.ClaimedAt = nil
			slot.ExpiresAt = nil
			return true, nil
		}
	}
	return false, nil
}

func (s *stubRepo) ListExpiredSlots(ctx context.Context, now time.Time) ([]models.CoinSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CoinSlot
	for _, slot := range s.slots {
		if slot.Status == models.SlotStatusClaimed && slot.ExpiresAt != nil && slot.ExpiresAt.Before(now) {
			out = append(out, *slot)
		}
	}
	return out, nil
}

func (s *stubRepo) InsertQueueEntryTx(ctx context.Context, tx *gorm.DB, item *models.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	item.ID = s.nextID
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	cp := *item
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *stubRepo) DetachQueuedEntriesTx(ctx context.Context, tx *gorm.DB, slotID uint64, identity string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.entries {
		if e.SlotID != nil && *e.SlotID == slotID && e.Identity == identity && e.Status == models.QueueStatusQueued {
			e.SlotID = nil
			n++
		}
	}
	return n, nil
}

func (s *stubRepo) ReattachQueuedEntriesTx(ctx context.Context, tx *gorm.DB, identity string, slotID uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.entries {
		if e.SlotID == nil && e.Identity == identity && e.Status == models.QueueStatusQueued {
			id := slotID
			e.SlotID = &id
			n++
		}
	}
	return n, nil
}

func (s *stubRepo) QueueTotals(ctx context.Context, identity string) (repository.QueueTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalsLocked(identity), nil
}

func (s *stubRepo) QueueTotalsTx(ctx context.Context, tx *gorm.DB, identity string) (repository.QueueTotals, error) {
	return s.QueueTotals(ctx, identity)
}

func (s *stubRepo) totalsLocked(identity string) repository.QueueTotals {
	totals := repository.QueueTotals{TotalValue: decimal.Zero}
	for _, e := range s.entries {
		if e.Identity == identity && e.Status == models.QueueStatusQueued {
			totals.EntryCount++
			totals.CoinCount += int64(e.CoinCount)
			totals.TotalValue = totals.TotalValue.Add(e.TotalValue)
		}
	}
	return totals
}

func (s *stubRepo) MarkEntriesRedeemedTx(ctx context.Context, tx *gorm.DB, identity string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.entries {
		if e.Identity == identity && e.Status == models.QueueStatusQueued {
			e.Status = models.QueueStatusRedeemed
			t := at
			e.RedeemedAt = &t
			n++
		}
	}
	return n, nil
}

func (s *stubRepo) RedeemedTotalsTx(ctx context.Context, tx *gorm.DB, identity string, at time.Time) (repository.QueueTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	totals := repository.QueueTotals{TotalValue: decimal.Zero}
	for _, e := range s.entries {
		if e.Identity == identity && e.Status == models.QueueStatusRedeemed && e.RedeemedAt != nil && e.RedeemedAt.Equal(at) {
			totals.EntryCount++
			totals.CoinCount += int64(e.CoinCount)
			totals.TotalValue = totals.TotalValue.Add(e.TotalValue)
		}
	}
	return totals, nil
}

func (s *stubRepo) ExpireStaleEntries(ctx context.Context, before time.Time, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.entries {
		if e.Status == models.QueueStatusQueued && e.CreatedAt.Before(before) {
			e.Status = models.QueueStatusExpired
			t := at
			e.ExpiredAt = &t
			n++
		}
	}
	return n, nil
}

func (s *stubRepo) SlotQueueSummaries(ctx context.Context) (map[uint64]repository.QueueTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[uint64]repository.QueueTotals{}
	for _, e := range s.entries {
		if e.SlotID == nil || e.Status != models.QueueStatusQueued {
			continue
		}
		sum, ok := out[*e.SlotID]
		if !ok {
			sum = repository.QueueTotals{TotalValue: decimal.Zero}
		}
		sum.EntryCount++
		sum.CoinCount += int64(e.CoinCount)
		sum.TotalValue = sum.TotalValue.Add(e.TotalValue)
		out[*e.SlotID] = sum
	}
	return out, nil
}

func (s *stubRepo) GetActiveRuleByPulseCount(ctx context.Context, pulseCount int) (*models.CalibrationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules {
		if r.IsActive && r.PulseCount == pulseCount {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) GetActiveRuleByPulseCountTx(ctx context.Context, tx *gorm.DB, pulseCount int) (*models.CalibrationRule, error) {
	return s.GetActiveRuleByPulseCount(ctx, pulseCount)
}

func (s *stubRepo) InsertCalibrationRuleTx(ctx context.Context, tx *gorm.DB, item *models.CalibrationRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	item.ID = s.nextID
	cp := *item
	s.rules = append(s.rules, &cp)
	return nil
}

func (s *stubRepo) ListCalibrationRules(ctx context.Context) ([]models.CalibrationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CalibrationRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, *r)
	}
	return out, nil
}

func (s *stubRepo) GetCalibrationRuleByIDTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.CalibrationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) SetCalibrationRuleActiveTx(ctx context.Context, tx *gorm.DB, id uint64, active bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules {
		if r.ID == id {
			r.IsActive = active
			return true, nil
		}
	}
	return false, nil
}

func (s *stubRepo) InsertEventRecord(ctx context.Context, item *models.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	item.ID = s.nextID
	cp := *item
	s.events = append(s.events, &cp)
	return nil
}

// expireLease rewinds a claimed slot's expiry so sweep paths can be tested
// without sleeping.
func (s *stubRepo) expireLease(slotNumber int, ago time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot, ok := s.slots[slotNumber]; ok && slot.ExpiresAt != nil {
		past := time.Now().UTC().Add(-ago)
		slot.ExpiresAt = &past
	}
}

// backdateEntry rewinds an entry's creation time for retention tests.
func (s *stubRepo) backdateEntry(id uint64, ago time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ID == id {
			e.CreatedAt = time.Now().UTC().Add(-ago)
		}
	}
}
