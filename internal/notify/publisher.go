package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"coinkiosk/internal/models"
	"coinkiosk/internal/repository"
)

const (
	EventSlotClaimed      = "slot-claimed"
	EventSlotReleased     = "slot-released"
	EventCoinAdded        = "coin-added"
	EventCoinsRedeemed    = "coins-redeemed"
	EventUnattributedCoin = "unattributed-coin"
)

// Event is the payload-only notification contract. Transport is whatever
// Publisher implementation is injected; business logic never touches a
// broadcaster directly.
type Event struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Identity string         `json:"identity,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Slot     *SlotPayload   `json:"slot,omitempty"`
	Totals   *TotalsPayload `json:"totals,omitempty"`
	At       time.Time      `json:"at"`
}

type SlotPayload struct {
	SlotNumber int        `json:"slot_number"`
	Status     string     `json:"status"`
	Claimant   *string    `json:"claimant,omitempty"`
	ClaimedAt  *time.Time `json:"claimed_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

type TotalsPayload struct {
	Identity   string          `json:"identity"`
	EntryCount int64           `json:"entry_count"`
	CoinCount  int64           `json:"coin_count"`
	TotalValue decimal.Decimal `json:"total_value"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// NewEvent stamps id and timestamp; callers fill the rest.
func NewEvent(eventType, identity string) Event {
	return Event{
		ID:       uuid.NewString(),
		Type:     eventType,
		Identity: identity,
		At:       time.Now().UTC(),
	}
}

func SlotSnapshot(slot *models.CoinSlot) *SlotPayload {
	if slot == nil {
		return nil
	}
	return &SlotPayload{
		SlotNumber: slot.SlotNumber,
		Status:     slot.Status,
		Claimant:   slot.Claimant,
		ClaimedAt:  slot.ClaimedAt,
		ExpiresAt:  slot.ExpiresAt,
	}
}

func TotalsSnapshot(identity string, totals repository.QueueTotals) *TotalsPayload {
	return &TotalsPayload{
		Identity:   identity,
		EntryCount: totals.EntryCount,
		CoinCount:  totals.CoinCount,
		TotalValue: totals.TotalValue,
	}
}

// Fanout delivers each event to every sink. Sinks are expected to be
// non-blocking; a slow transport must buffer or drop on its own.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev Event) {
	for _, p := range f {
		if p != nil {
			p.Publish(ctx, ev)
		}
	}
}

// Discard is used where no notification transport is configured.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}
