package pulse

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"coinkiosk/internal/models"
	"coinkiosk/internal/notify"
	"coinkiosk/internal/repository"
)

type slotMap map[int]*models.CoinSlot

func (m slotMap) GetSlotByNumber(_ context.Context, slotNumber int) (*models.CoinSlot, error) {
	return m[slotNumber], nil
}

type addCall struct {
	slot     int
	identity string
	value    decimal.Decimal
	count    int
}

type addRecorder struct {
	calls []addCall
}

func (a *addRecorder) AddCoin(_ context.Context, slotNumber int, identity string, coinValue decimal.Decimal, coinCount int) (repository.QueueTotals, error) {
	a.calls = append(a.calls, addCall{slot: slotNumber, identity: identity, value: coinValue, count: coinCount})
	return repository.QueueTotals{
		EntryCount: 1,
		CoinCount:  int64(coinCount),
		TotalValue: coinValue.Mul(decimal.NewFromInt(int64(coinCount))),
	}, nil
}

type eventRecorder struct {
	events []notify.Event
}

func (r *eventRecorder) Publish(_ context.Context, ev notify.Event) {
	r.events = append(r.events, ev)
}

func TestRouterForwardsToLeaseHolder(t *testing.T) {
	claimant := "client-a"
	now := time.Now().UTC()
	slots := slotMap{1: {
		ID:         1,
		SlotNumber: 1,
		Status:     models.SlotStatusClaimed,
		Claimant:   &claimant,
		ClaimedAt:  &now,
	}}
	adder := &addRecorder{}
	pub := &eventRecorder{}
	r := &Router{Repo: slots, Queue: adder, Publisher: pub}

	r.AcceptCoin(context.Background(), 1, decimal.RequireFromString("5.00"), 2)

	if len(adder.calls) != 1 {
		t.Fatalf("add calls = %d, want 1", len(adder.calls))
	}
	call := adder.calls[0]
	if call.slot != 1 || call.identity != "client-a" || call.count != 2 {
		t.Fatalf("call = %+v, want slot 1 attributed to client-a", call)
	}
	if len(pub.events) != 0 {
		t.Fatalf("events = %d, want no unattributed event for a held lease", len(pub.events))
	}
}

func TestRouterUnattributedOnUnclaimedSlot(t *testing.T) {
	slots := slotMap{1: {
		ID:         1,
		SlotNumber: 1,
		Status:     models.SlotStatusAvailable,
	}}
	adder := &addRecorder{}
	pub := &eventRecorder{}
	r := &Router{Repo: slots, Queue: adder, Publisher: pub}

	r.AcceptCoin(context.Background(), 1, decimal.RequireFromString("5.00"), 1)

	if len(adder.calls) != 0 {
		t.Fatal("no credit may be minted without a lease holder")
	}
	if len(pub.events) != 1 || pub.events[0].Type != notify.EventUnattributedCoin {
		t.Fatalf("events = %+v, want one unattributed-coin event", pub.events)
	}
	ev := pub.events[0]
	if ev.Slot == nil || ev.Slot.SlotNumber != 1 || ev.Slot.Status != models.SlotStatusAvailable {
		t.Fatalf("slot payload = %+v, want observed available state", ev.Slot)
	}
	if ev.Totals == nil || !ev.Totals.TotalValue.Equal(decimal.RequireFromString("5.00")) {
		t.Fatalf("totals payload = %+v, want swallowed value recorded", ev.Totals)
	}
}

func TestRouterUnattributedOnUnknownSlot(t *testing.T) {
	adder := &addRecorder{}
	pub := &eventRecorder{}
	r := &Router{Repo: slotMap{}, Queue: adder, Publisher: pub}

	r.AcceptCoin(context.Background(), 9, decimal.RequireFromString("5.00"), 1)

	if len(adder.calls) != 0 {
		t.Fatal("unknown slot must not mint credit")
	}
	if len(pub.events) != 1 {
		t.Fatalf("events = %d, want 1", len(pub.events))
	}
	ev := pub.events[0]
	if ev.Slot == nil || ev.Slot.SlotNumber != 9 {
		t.Fatalf("slot payload = %+v, want slot number carried", ev.Slot)
	}
	// No observed state exists for an unknown slot, so none is asserted.
	if ev.Slot.Status != "" {
		t.Fatalf("status = %q, want empty for unknown slot", ev.Slot.Status)
	}
}
