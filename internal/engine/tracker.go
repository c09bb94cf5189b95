package engine

import (
	"boxbot/internal/logger"
	"boxbot/internal/models"
	"boxbot/internal/store"
	"context"
	"time"

	"github.com/google/uuid"
)

// Tracker — аудит исполнения: вехи, ошибки, наблюдения и ордера пишутся
// во внешнее хранилище fire-and-forget; сбой записи только логируется.
type Tracker struct {
	st       store.Store
	log      *logger.Logger
	strategy string
}

func NewTracker(st store.Store, log *logger.Logger, strategy string) *Tracker {
	return &Tracker{st: st, log: log, strategy: strategy}
}

func (t *Tracker) publish(ctx context.Context, kind, stage string, payload map[string]interface{}) {
	rec := models.TrackRecord{
		ID:       uuid.New().String(),
		Strategy: t.strategy,
		Kind:     kind,
		Stage:    stage,
		Payload:  payload,
		At:       time.Now(),
	}
	if err := t.st.PublishExecution(ctx, rec); err != nil {
		t.log.WithComponent("tracker").WithError(err).Debug("Не удалось записать событие аудита.")
	}
}

func (t *Tracker) Milestone(ctx context.Context, stage string, payload map[string]interface{}) {
	t.publish(ctx, "milestone", stage, payload)
}

func (t *Tracker) Error(ctx context.Context, stage string, err error) {
	t.publish(ctx, "error", stage, map[string]interface{}{"error": err.Error()})
}

func (t *Tracker) Observation(ctx context.Context, pair models.PairKey, res models.ObservationResult) {
	t.publish(ctx, "observation", string(pair), map[string]interface{}{
		"first":  res.FirstLeg,
		"second": res.SecondLeg,
		"action": res.Action,
		"reason": res.Reason,
	})
}

func (t *Tracker) Order(ctx context.Context, intent models.OrderIntent, rec models.OrderRecord) {
	t.publish(ctx, "order", intent.LegKey, map[string]interface{}{
		"user_id":      intent.UserID,
		"order_id":     intent.OrderID,
		"action":       intent.Action,
		"qty":          intent.SliceQuantity,
		"limit_price":  intent.LimitPrice,
		"filled_qty":   rec.FilledQty,
		"filled_price": rec.FilledPrice,
		"status":       rec.Status,
	})
}
