package notify

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"coinkiosk/internal/models"
	"coinkiosk/internal/repository"
)

// StorePublisher writes every event to the event_records audit table. Audit
// failures are logged, never surfaced to the operation that emitted the event.
type StorePublisher struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (p *StorePublisher) Publish(ctx context.Context, ev Event) {
	if p == nil || p.Repo == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		if p.Logger != nil {
			p.Logger.Warn("event payload marshal failed", zap.Error(err))
		}
		return
	}
	rec := &models.EventRecord{
		EventID:  ev.ID,
		Type:     ev.Type,
		Identity: ev.Identity,
		Payload:  payload,
	}
	if err := p.Repo.InsertEventRecord(ctx, rec); err != nil && p.Logger != nil {
		p.Logger.Warn("event audit insert failed",
			zap.String("event_id", ev.ID),
			zap.String("type", ev.Type),
			zap.Error(err),
		)
	}
}
