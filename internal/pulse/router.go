package pulse

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coinkiosk/internal/models"
	"coinkiosk/internal/notify"
	"coinkiosk/internal/repository"
)

// SlotSource is the read-only slot lookup the router needs.
type SlotSource interface {
	GetSlotByNumber(ctx context.Context, slotNumber int) (*models.CoinSlot, error)
}

// CoinAdder attributes a resolved coin event to the slot's lease holder.
type CoinAdder interface {
	AddCoin(ctx context.Context, slotNumber int, identity string, coinValue decimal.Decimal, coinCount int) (repository.QueueTotals, error)
}

// Router forwards a resolved coin event to whichever client holds the source
// slot's lease. A coin inserted while no lease is held has no destination;
// the hardware already swallowed it, so the event is preserved as an
// unattributed audit record for manual reconciliation instead of minting
// credit for an unknown identity.
type Router struct {
	Repo      SlotSource
	Queue     CoinAdder
	Publisher notify.Publisher
	Logger    *zap.Logger
}

func (r *Router) AcceptCoin(ctx context.Context, slotNumber int, coinValue decimal.Decimal, coinCount int) {
	slot, err := r.Repo.GetSlotByNumber(ctx, slotNumber)
	if err != nil {
		if r.Logger != nil {
			r.Logger.Error("slot lookup for coin event failed",
				zap.Int("slot", slotNumber),
				zap.Error(err),
			)
		}
		return
	}
	if slot == nil || !slot.Claimed() {
		r.unattributed(ctx, slot, slotNumber, coinValue, coinCount)
		return
	}

	if _, err := r.Queue.AddCoin(ctx, slotNumber, *slot.Claimant, coinValue, coinCount); err != nil {
		if r.Logger != nil {
			r.Logger.Error("coin attribution failed",
				zap.Int("slot", slotNumber),
				zap.String("identity", *slot.Claimant),
				zap.Error(err),
			)
		}
	}
}

func (r *Router) unattributed(ctx context.Context, slot *models.CoinSlot, slotNumber int, coinValue decimal.Decimal, coinCount int) {
	if r.Logger != nil {
		r.Logger.Warn("coin accepted with no lease held",
			zap.Int("slot", slotNumber),
			zap.String("coin_value", coinValue.String()),
			zap.Int("coin_count", coinCount),
		)
	}
	if r.Publisher == nil {
		return
	}
	ev := notify.NewEvent(notify.EventUnattributedCoin, "")
	// Carry the slot state as observed; an unknown slot gets only its number.
	ev.Slot = notify.SlotSnapshot(slot)
	if ev.Slot == nil {
		ev.Slot = &notify.SlotPayload{SlotNumber: slotNumber}
	}
	ev.Totals = &notify.TotalsPayload{
		EntryCount: 1,
		CoinCount:  int64(coinCount),
		TotalValue: coinValue.Mul(decimal.NewFromInt(int64(coinCount))),
	}
	r.Publisher.Publish(ctx, ev)
}
