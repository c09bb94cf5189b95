package engine

import (
	"boxbot/internal/models"
	"boxbot/internal/pricing"
	"context"
	"time"
)

type ModifyResult struct {
	FilledQty   int
	FilledPrice float64
	Complete    bool
}

// modifyUntilFilled гонится за ценой: лимитный ордер ставится один раз и
// перевыставляется по свежей цене, пока не исполнится целиком или не
// кончится бюджет попыток. Если цена не изменилась, вызов Modify
// пропускается. Исполненный объём фиксируется в леджере перед возвратом.
func (e *Engine) modifyUntilFilled(ctx context.Context, intent models.OrderIntent, leg models.LegDefinition, target int, isExit bool) ModifyResult {
	p := e.snapshot()

	intent.OrderType = models.OrderTypeLimit
	intent.Duration = models.OrderDurationDay
	intent.SliceQuantity = target
	lastPrice := pricing.FormatLimitPrice(e.pricer.LegPrice(ctx, leg, isExit))
	intent.LimitPrice = lastPrice

	placed, err := e.gateway.Place(ctx, intent)
	if err != nil || placed.OrderID == "" {
		return ModifyResult{}
	}
	intent = placed
	e.registerOpenOrder(intent)

	var rec models.OrderRecord
	for attempt := 0; attempt < p.ModifyAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return e.finishModify(ctx, intent, rec, target, isExit)
		case <-time.After(p.ModifyInterval()):
		}

		got, err := e.gateway.Status(ctx, intent.UserID, intent.Remark, intent.OrderID)
		if err != nil {
			continue
		}
		rec = got
		if rec.FilledQty >= target {
			return e.finishModify(ctx, intent, rec, target, isExit)
		}

		fresh := pricing.FormatLimitPrice(e.pricer.LegPrice(ctx, leg, isExit))
		if fresh <= 0 || fresh == lastPrice {
			continue
		}
		intent.LimitPrice = fresh
		if err := e.gateway.Modify(ctx, intent); err == nil {
			lastPrice = fresh
		}
	}

	e.logEntry().WithFields(map[string]interface{}{
		"user_id": intent.UserID,
		"leg":     intent.LegKey,
		"filled":  rec.FilledQty,
		"target":  target,
	}).Warn("Бюджет попыток исчерпан, ордер исполнен частично.")
	return e.finishModify(ctx, intent, rec, target, isExit)
}

func (e *Engine) finishModify(ctx context.Context, intent models.OrderIntent, rec models.OrderRecord, target int, isExit bool) ModifyResult {
	if rec.FilledQty < target {
		// Живой недоисполненный ордер нельзя оставлять: следующий цикл
		// поставит новый на остаток.
		e.gateway.Cancel(ctx, intent)
		if got, err := e.gateway.Status(ctx, intent.UserID, intent.Remark, intent.OrderID); err == nil && got.FilledQty > rec.FilledQty {
			rec = got
		}
	}
	e.clearOpenOrder(intent)
	if isExit {
		e.ledger.CommitExit(intent.UserID, intent.LegKey, rec.FilledQty)
	} else {
		e.ledger.CommitEntry(intent.UserID, intent.LegKey, rec.FilledQty)
	}
	e.tracker.Order(ctx, intent, rec)
	return ModifyResult{
		FilledQty:   rec.FilledQty,
		FilledPrice: rec.FilledPrice,
		Complete:    rec.FilledQty >= target,
	}
}
