package pulse

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coinkiosk/internal/models"
)

// Edge is one digital edge from a coin acceptor. A non-nil Err marks a
// hardware read failure; it aborts the slot's open train without emitting a
// partial coin event.
type Edge struct {
	Slot int
	At   time.Time
	Err  error
}

// RuleSource is the read-only calibration lookup. The gorm store satisfies it
// directly.
type RuleSource interface {
	GetActiveRuleByPulseCount(ctx context.Context, pulseCount int) (*models.CalibrationRule, error)
}

// CoinSink receives resolved coin events; the router forwards them to the
// current lease holder of the originating slot.
type CoinSink interface {
	AcceptCoin(ctx context.Context, slotNumber int, coinValue decimal.Decimal, coinCount int)
}

// Acknowledger drives the feedback indicator after an accepted coin.
type Acknowledger interface {
	Acknowledge(slotNumber int)
}

type Config struct {
	DebounceTime  time.Duration
	PulseDuration time.Duration
	IdleFactor    int
	PulsesPerCoin int
	CoinValue     decimal.Decimal
}

// Interpreter turns the raw edge stream into discrete coin events: debounce,
// group edges into per-slot trains, close a train after the idle window, and
// resolve its pulse count through the calibration table with the linear
// formula as fallback.
type Interpreter struct {
	Rules  RuleSource
	Sink   CoinSink
	Ack    Acknowledger
	Logger *zap.Logger
	Config Config

	trains map[int]*train
}

type train struct {
	pulseCount int
	lastEdge   time.Time
}

func (i *Interpreter) idleWindow() time.Duration {
	factor := i.Config.IdleFactor
	if factor <= 0 {
		factor = 3
	}
	d := i.Config.PulseDuration
	if d <= 0 {
		d = 50 * time.Millisecond
	}
	return time.Duration(factor) * d
}

// Run consumes edges until the context ends. It is the only long-lived
// goroutine of the ingestion path, decoupled from the request handlers.
func (i *Interpreter) Run(ctx context.Context, edges <-chan Edge) error {
	if i.trains == nil {
		i.trains = map[int]*train{}
	}

	tick := time.NewTicker(i.idleWindow() / 2)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-edges:
			if !ok {
				return nil
			}
			i.offer(ctx, e)
		case <-tick.C:
			i.flush(ctx, time.Now().UTC())
		}
	}
}

func (i *Interpreter) offer(ctx context.Context, e Edge) {
	if i.trains == nil {
		i.trains = map[int]*train{}
	}
	if e.Err != nil {
		// Read failure: drop the open train, committed entries are untouched.
		delete(i.trains, e.Slot)
		if i.Logger != nil {
			i.Logger.Warn("acceptor read failed, train aborted",
				zap.Int("slot", e.Slot),
				zap.Error(e.Err),
			)
		}
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	t := i.trains[e.Slot]
	if t == nil {
		i.trains[e.Slot] = &train{pulseCount: 1, lastEdge: e.At}
		return
	}

	gap := e.At.Sub(t.lastEdge)
	if gap >= i.idleWindow() {
		// The previous train was already idle; close it before starting anew.
		i.emit(ctx, e.Slot, t.pulseCount)
		i.trains[e.Slot] = &train{pulseCount: 1, lastEdge: e.At}
		return
	}
	if gap < i.Config.DebounceTime {
		// Within debounce of the last counted edge: contact bounce, discard.
		return
	}
	t.pulseCount++
	t.lastEdge = e.At
}

func (i *Interpreter) flush(ctx context.Context, now time.Time) {
	for slot, t := range i.trains {
		if now.Sub(t.lastEdge) >= i.idleWindow() {
			delete(i.trains, slot)
			i.emit(ctx, slot, t.pulseCount)
		}
	}
}

func (i *Interpreter) emit(ctx context.Context, slot, pulseCount int) {
	value, count, err := i.resolve(ctx, pulseCount)
	if err != nil {
		if i.Logger != nil {
			i.Logger.Warn("calibration lookup failed, train dropped",
				zap.Int("slot", slot),
				zap.Int("pulse_count", pulseCount),
				zap.Error(err),
			)
		}
		return
	}
	if count <= 0 {
		if i.Logger != nil {
			i.Logger.Debug("train resolved to zero coins, discarded as noise",
				zap.Int("slot", slot),
				zap.Int("pulse_count", pulseCount),
			)
		}
		return
	}

	if i.Ack != nil {
		i.Ack.Acknowledge(slot)
	}
	if i.Sink != nil {
		i.Sink.AcceptCoin(ctx, slot, value, count)
	}
	if i.Logger != nil {
		i.Logger.Info("coin train resolved",
			zap.Int("slot", slot),
			zap.Int("pulse_count", pulseCount),
			zap.String("coin_value", value.String()),
			zap.Int("coin_count", count),
		)
	}
}

// resolve maps a closed train's pulse count to (coinValue, coinCount). An
// active calibration rule with the exact count always wins; otherwise the
// linear formula applies. coinCount <= 0 marks the train as noise.
func (i *Interpreter) resolve(ctx context.Context, pulseCount int) (decimal.Decimal, int, error) {
	if i.Rules != nil {
		rule, err := i.Rules.GetActiveRuleByPulseCount(ctx, pulseCount)
		if err != nil {
			return decimal.Zero, 0, err
		}
		if rule != nil {
			return rule.ActualValue, 1, nil
		}
	}

	per := i.Config.PulsesPerCoin
	if per <= 0 {
		per = 1
	}
	count := int(math.Round(float64(pulseCount) / float64(per)))
	return i.Config.CoinValue, count, nil
}
