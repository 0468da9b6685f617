package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"coinkiosk/internal/models"
	"coinkiosk/internal/notify"
	"coinkiosk/internal/repository"
)

// QueueService durably records every attributed coin event against a client
// identity and converts accumulated value into a redemption on demand.
// Entries survive disconnects, slot hand-offs and lease expirations; only
// redemption or the retention sweep ever changes their status.
type QueueService struct {
	Repo      repository.Repository
	Publisher notify.Publisher
	Logger    *zap.Logger

	Leases    *LeaseService
	Retention time.Duration
}

// RedemptionResult is the aggregate handed to the downstream session manager.
type RedemptionResult struct {
	Identity     string          `json:"identity"`
	EntryCount   int64           `json:"entry_count"`
	CoinCount    int64           `json:"coin_count"`
	TotalValue   decimal.Decimal `json:"total_value"`
	ReleasedSlot *int            `json:"released_slot,omitempty"`
	RedeemedAt   time.Time       `json:"redeemed_at"`
}

type CleanupResult struct {
	ReleasedSlots  int   `json:"released_slots"`
	ExpiredEntries int64 `json:"expired_entries"`
}

// AddCoin attributes a coin event to the identity currently leasing the slot.
// One transaction: re-attach any detached queued entries of the identity
// (value carried over from an earlier release-and-reclaim cycle, possibly on
// a different slot), insert the new entry, and report the running totals.
func (s *QueueService) AddCoin(ctx context.Context, slotNumber int, identity string, coinValue decimal.Decimal, coinCount int) (repository.QueueTotals, error) {
	identity = strings.TrimSpace(identity)
	zero := repository.QueueTotals{TotalValue: decimal.Zero}
	if identity == "" {
		return zero, ErrInvalidIdentity
	}
	if !coinValue.IsPositive() {
		return zero, ErrInvalidCoinValue
	}
	if coinCount <= 0 {
		return zero, ErrInvalidCoinCount
	}

	var totals repository.QueueTotals
	var slot *models.CoinSlot
	err := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		var err error
		slot, err = s.Repo.GetSlotByNumberTx(ctx, tx, slotNumber)
		if err != nil {
			return err
		}
		if slot == nil {
			return ErrSlotNotFound
		}
		if !slot.Claimed() || *slot.Claimant != identity {
			return ErrForbidden
		}

		if _, err := s.Repo.ReattachQueuedEntriesTx(ctx, tx, identity, slot.ID); err != nil {
			return err
		}

		entry := &models.QueueEntry{
			SlotID:     &slot.ID,
			Identity:   identity,
			CoinValue:  coinValue,
			CoinCount:  coinCount,
			TotalValue: coinValue.Mul(decimal.NewFromInt(int64(coinCount))),
			Status:     models.QueueStatusQueued,
		}
		if err := s.Repo.InsertQueueEntryTx(ctx, tx, entry); err != nil {
			return err
		}

		totals, err = s.Repo.QueueTotalsTx(ctx, tx, identity)
		return err
	})
	if err != nil {
		return zero, err
	}

	ev := notify.NewEvent(notify.EventCoinAdded, identity)
	ev.Slot = notify.SlotSnapshot(slot)
	ev.Totals = notify.TotalsSnapshot(identity, totals)
	s.publish(ctx, ev)

	if s.Logger != nil {
		s.Logger.Info("coin added",
			zap.Int("slot", slotNumber),
			zap.String("identity", identity),
			zap.String("coin_value", coinValue.String()),
			zap.Int("coin_count", coinCount),
			zap.String("total_value", totals.TotalValue.String()),
		)
	}
	return totals, nil
}

// Totals reports the identity's current queued aggregate, attached or not.
func (s *QueueService) Totals(ctx context.Context, identity string) (repository.QueueTotals, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return repository.QueueTotals{TotalValue: decimal.Zero}, ErrInvalidIdentity
	}
	return s.Repo.QueueTotals(ctx, identity)
}

// Redeem atomically transitions every queued entry of the identity to
// redeemed, aggregates exactly those entries, and fully releases any slot the
// identity still holds. The second of two back-to-back calls gets
// ErrNothingToRedeem; nothing is ever double-counted.
func (s *QueueService) Redeem(ctx context.Context, identity string) (RedemptionResult, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return RedemptionResult{TotalValue: decimal.Zero}, ErrInvalidIdentity
	}

	now := time.Now().UTC()
	result := RedemptionResult{
		Identity:   identity,
		TotalValue: decimal.Zero,
		RedeemedAt: now,
	}
	err := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		// Mark first, then aggregate over exactly the rows this update
		// transitioned. An entry committed after the update stays queued and
		// is excluded from both the mark and the aggregate, so credited value
		// always equals redeemed value.
		marked, err := s.Repo.MarkEntriesRedeemedTx(ctx, tx, identity, now)
		if err != nil {
			return err
		}
		if marked == 0 {
			return ErrNothingToRedeem
		}

		totals, err := s.Repo.RedeemedTotalsTx(ctx, tx, identity, now)
		if err != nil {
			return err
		}

		// The obligation is cleared; any lease still held is released
		// outright, with nothing left queued to preserve.
		slot, err := s.Repo.GetSlotByClaimantTx(ctx, tx, identity)
		if err != nil {
			return err
		}
		if slot != nil {
			if _, err := s.Repo.ReleaseSlotTx(ctx, tx, slot.ID); err != nil {
				return err
			}
			n := slot.SlotNumber
			result.ReleasedSlot = &n
		}

		result.EntryCount = totals.EntryCount
		result.CoinCount = totals.CoinCount
		result.TotalValue = totals.TotalValue
		return nil
	})
	if err != nil {
		return RedemptionResult{Identity: identity, TotalValue: decimal.Zero, RedeemedAt: now}, err
	}

	ev := notify.NewEvent(notify.EventCoinsRedeemed, identity)
	ev.Totals = &notify.TotalsPayload{
		Identity:   identity,
		EntryCount: result.EntryCount,
		CoinCount:  result.CoinCount,
		TotalValue: result.TotalValue,
	}
	s.publish(ctx, ev)

	if s.Logger != nil {
		s.Logger.Info("coins redeemed",
			zap.String("identity", identity),
			zap.Int64("entries", result.EntryCount),
			zap.String("total_value", result.TotalValue.String()),
		)
	}
	return result, nil
}

// Cleanup combines the lease expiry sweep with expiration of queued entries
// older than the retention window. Expired entries are terminal and excluded
// from any later redemption.
func (s *QueueService) Cleanup(ctx context.Context) (CleanupResult, error) {
	var out CleanupResult

	if s.Leases != nil {
		released, err := s.Leases.SweepExpired(ctx)
		if err != nil {
			return out, err
		}
		out.ReleasedSlots = released
	}

	retention := s.Retention
	if retention <= 0 {
		retention = time.Hour
	}
	now := time.Now().UTC()
	expired, err := s.Repo.ExpireStaleEntries(ctx, now.Add(-retention), now)
	if err != nil {
		return out, err
	}
	out.ExpiredEntries = expired

	if expired > 0 && s.Logger != nil {
		s.Logger.Info("stale queue entries expired", zap.Int64("count", expired))
	}
	return out, nil
}

func (s *QueueService) publish(ctx context.Context, ev notify.Event) {
	if s.Publisher != nil {
		s.Publisher.Publish(ctx, ev)
	}
}
