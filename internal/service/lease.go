package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"coinkiosk/internal/models"
	"coinkiosk/internal/notify"
	"coinkiosk/internal/repository"
)

// LeaseService owns the exclusive-assignment state machine of the coin slots:
// Available --claim--> Claimed --release|expire--> Available. Coin events are
// only attributable to a client while it holds the slot's lease.
type LeaseService struct {
	Repo      repository.Repository
	Publisher notify.Publisher
	Logger    *zap.Logger

	DefaultLeaseSeconds int
	MaxLeaseSeconds     int
}

// Claim grants the lease on an available slot. The transition is a single
// predicate-guarded update, so of any number of concurrent claimants exactly
// one succeeds and the rest get ErrSlotUnavailable; the update and the
// returned snapshot share one transaction. Expired leases are swept
// opportunistically first, so a lapsed slot is claimable without waiting for
// the cron sweep.
func (s *LeaseService) Claim(ctx context.Context, slotNumber int, identity string, leaseSeconds int) (*models.CoinSlot, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, ErrInvalidIdentity
	}
	if leaseSeconds <= 0 {
		leaseSeconds = s.DefaultLeaseSeconds
	}
	if s.MaxLeaseSeconds > 0 && leaseSeconds > s.MaxLeaseSeconds {
		leaseSeconds = s.MaxLeaseSeconds
	}

	if _, err := s.SweepExpired(ctx); err != nil && s.Logger != nil {
		s.Logger.Warn("expiry sweep before claim failed", zap.Error(err))
	}

	now := time.Now().UTC()
	expiresAt := now.Add(time.Duration(leaseSeconds) * time.Second)
	var slot *models.CoinSlot
	err := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		cur, err := s.Repo.GetSlotByNumberTx(ctx, tx, slotNumber)
		if err != nil {
			return err
		}
		if cur == nil {
			return ErrSlotNotFound
		}
		claimed, err := s.Repo.ClaimSlotTx(ctx, tx, slotNumber, identity, now, expiresAt)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrSlotUnavailable
		}
		slot, err = s.Repo.GetSlotByNumberTx(ctx, tx, slotNumber)
		return err
	})
	if err != nil {
		return nil, err
	}

	ev := notify.NewEvent(notify.EventSlotClaimed, identity)
	ev.Slot = notify.SlotSnapshot(slot)
	s.publish(ctx, ev)

	if s.Logger != nil {
		s.Logger.Info("slot claimed",
			zap.Int("slot", slotNumber),
			zap.String("identity", identity),
			zap.Int("lease_seconds", leaseSeconds),
		)
	}
	return slot, nil
}

// Release returns a claimed slot to the pool. The caller must be the current
// claimant unless admin is set. With preserveQueue the claimant's queued
// entries are detached (slot_id cleared, value kept) so a later claim under
// the same identity, on any slot, picks them back up.
func (s *LeaseService) Release(ctx context.Context, slotNumber int, identity string, preserveQueue, admin bool) (*models.CoinSlot, error) {
	identity = strings.TrimSpace(identity)

	var released *models.CoinSlot
	var owner string
	err := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		slot, err := s.Repo.GetSlotByNumberTx(ctx, tx, slotNumber)
		if err != nil {
			return err
		}
		if slot == nil {
			return ErrSlotNotFound
		}
		if !slot.Claimed() {
			if admin {
				released = slot
				return nil
			}
			return ErrForbidden
		}
		if !admin && (identity == "" || *slot.Claimant != identity) {
			return ErrForbidden
		}
		owner = *slot.Claimant
		if preserveQueue {
			if _, err := s.Repo.DetachQueuedEntriesTx(ctx, tx, slot.ID, owner); err != nil {
				return err
			}
		}
		if _, err := s.Repo.ReleaseSlotTx(ctx, tx, slot.ID); err != nil {
			return err
		}
		slot.Status = models.SlotStatusAvailable
		slot.Claimant = nil
		slot.ClaimedAt = nil
		slot.ExpiresAt = nil
		released = slot
		return nil
	})
	if err != nil {
		return nil, err
	}
	if owner == "" {
		// Admin release of an already-available slot: nothing happened.
		return released, nil
	}

	ev := notify.NewEvent(notify.EventSlotReleased, owner)
	ev.Slot = notify.SlotSnapshot(released)
	s.publish(ctx, ev)

	if s.Logger != nil {
		s.Logger.Info("slot released",
			zap.Int("slot", slotNumber),
			zap.String("identity", owner),
			zap.Bool("preserve_queue", preserveQueue),
		)
	}
	return released, nil
}

// SweepExpired force-releases every slot whose lease has lapsed, always with
// preserve semantics: a vanished claimant never forfeits inserted value.
func (s *LeaseService) SweepExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	expired, err := s.Repo.ListExpiredSlots(ctx, now)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, slot := range expired {
		slot := slot
		swept := false
		err := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
			cur, err := s.Repo.GetSlotByNumberTx(ctx, tx, slot.SlotNumber)
			if err != nil {
				return err
			}
			// Someone may have released or re-claimed since the listing.
			if cur == nil || !cur.ExpiredAt(now) {
				return nil
			}
			if _, err := s.Repo.DetachQueuedEntriesTx(ctx, tx, cur.ID, *cur.Claimant); err != nil {
				return err
			}
			ok, err := s.Repo.ReleaseSlotTx(ctx, tx, cur.ID)
			if err != nil {
				return err
			}
			swept = ok
			return nil
		})
		if err != nil {
			return released, err
		}
		if !swept {
			continue
		}
		released++

		ev := notify.NewEvent(notify.EventSlotReleased, claimantOf(&slot))
		ev.Reason = "expired"
		ev.Slot = &notify.SlotPayload{
			SlotNumber: slot.SlotNumber,
			Status:     models.SlotStatusAvailable,
		}
		s.publish(ctx, ev)

		if s.Logger != nil {
			s.Logger.Info("expired lease swept",
				zap.Int("slot", slot.SlotNumber),
				zap.String("identity", claimantOf(&slot)),
			)
		}
	}
	return released, nil
}

func (s *LeaseService) publish(ctx context.Context, ev notify.Event) {
	if s.Publisher != nil {
		s.Publisher.Publish(ctx, ev)
	}
}

func claimantOf(slot *models.CoinSlot) string {
	if slot == nil || slot.Claimant == nil {
		return ""
	}
	return *slot.Claimant
}
