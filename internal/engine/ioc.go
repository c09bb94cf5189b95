package engine

import (
	"boxbot/internal/models"
	"context"
	"sync"
	"time"
)

type IOCResult struct {
	Success     bool
	FilledQty   int
	FilledPrice float64
	BaseOrders  []models.OrderIntent
	Reason      string
}

// executeIOC ставит торгуемую ногу с Duration=IOC и разносит базовые ноги
// строго по фактически исполненному объёму: на каждый прирост fQty
// немедленно уходят базовые ордера на дельту. По таймауту ордер отменяется,
// после отмены выполняется контрольное чтение — исполнение может прийти
// одновременно с отменой.
func (e *Engine) executeIOC(ctx context.Context, bidding models.OrderIntent, baseLegs []models.OrderIntent, target int, isExit bool) IOCResult {
	p := e.snapshot()

	bidding.Duration = models.OrderDurationIOC
	bidding.SliceQuantity = target

	placed, err := e.gateway.Place(ctx, bidding)
	if err != nil || placed.OrderID == "" {
		return IOCResult{Reason: "постановка торгуемой ноги не удалась"}
	}
	bidding = placed

	result := IOCResult{}
	lastFilled := 0
	deadline := time.Now().Add(p.IOCTimeout())
	ticker := time.NewTicker(p.PollInterval())
	defer ticker.Stop()

	for time.Now().Before(deadline) && lastFilled < target {
		select {
		case <-ctx.Done():
			result.Reason = "контекст отменён"
			return result
		case <-ticker.C:
			rec, err := e.gateway.Status(ctx, bidding.UserID, bidding.Remark, bidding.OrderID)
			if err != nil {
				// Нет данных на этом тике — не ошибка.
				continue
			}
			if rec.FilledQty > lastFilled {
				delta := rec.FilledQty - lastFilled
				result.BaseOrders = append(result.BaseOrders, e.fanOutBase(ctx, baseLegs, delta, p.FanOutMode)...)
				lastFilled = rec.FilledQty
				result.FilledPrice = rec.FilledPrice
			}
		}
	}

	if lastFilled < target {
		e.gateway.Cancel(ctx, bidding)

		// Контрольное чтение после отмены.
		rec, err := e.gateway.Status(ctx, bidding.UserID, bidding.Remark, bidding.OrderID)
		if err == nil && rec.FilledQty > lastFilled {
			delta := rec.FilledQty - lastFilled
			result.BaseOrders = append(result.BaseOrders, e.fanOutBase(ctx, baseLegs, delta, p.FanOutMode)...)
			lastFilled = rec.FilledQty
			result.FilledPrice = rec.FilledPrice
		}
	}

	result.FilledQty = lastFilled
	result.Success = lastFilled >= target
	if !result.Success && result.Reason == "" {
		result.Reason = "торгуемая нога исполнена не полностью"
	}

	e.commitIOCFills(ctx, bidding, result, isExit)
	e.tracker.Order(ctx, bidding, models.OrderRecord{
		OrderID:     bidding.OrderID,
		FilledQty:   result.FilledQty,
		FilledPrice: result.FilledPrice,
	})
	return result
}

// fanOutBase ставит базовые ордера на дельту исполнения: либо корзиной
// (последовательно одним пакетом), либо параллельно через ограниченный пул.
func (e *Engine) fanOutBase(ctx context.Context, baseLegs []models.OrderIntent, qty int, mode models.FanOutMode) []models.OrderIntent {
	if qty <= 0 || len(baseLegs) == 0 {
		return nil
	}

	if mode == models.FanOutBasket {
		placed := make([]models.OrderIntent, 0, len(baseLegs))
		for _, leg := range baseLegs {
			leg.SliceQuantity = qty
			out, err := e.gateway.Place(ctx, leg)
			if err != nil || out.OrderID == "" {
				continue
			}
			e.registerOpenOrder(out)
			placed = append(placed, out)
		}
		return placed
	}

	workers := len(baseLegs)
	if workers > 8 {
		workers = 8
	}
	jobs := make(chan models.OrderIntent, len(baseLegs))
	results := make(chan models.OrderIntent, len(baseLegs))
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for leg := range jobs {
			if ctx.Err() != nil {
				return
			}
			leg.SliceQuantity = qty
			out, err := e.gateway.Place(ctx, leg)
			if err != nil || out.OrderID == "" {
				continue
			}
			e.registerOpenOrder(out)
			results <- out
		}
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker()
	}
	for _, leg := range baseLegs {
		jobs <- leg
	}
	close(jobs)
	wg.Wait()
	close(results)

	placed := make([]models.OrderIntent, 0, len(baseLegs))
	for out := range results {
		placed = append(placed, out)
	}
	return placed
}

// baseRecordRetries — бюджет повторных чтений записи базового ордера,
// которая могла ещё не дойти до хранилища.
const baseRecordRetries = 3

// commitIOCFills фиксирует в леджере исполнение торгуемой ноги и каждого
// базового ордера. Зачитывается только объём, подтверждённый записью
// хранилища: недобранный живой остаток снимается, его доберёт следующий
// цикл по ненулевому Remaining.
func (e *Engine) commitIOCFills(ctx context.Context, bidding models.OrderIntent, result IOCResult, isExit bool) {
	p := e.snapshot()
	commit := e.ledger.CommitEntry
	if isExit {
		commit = e.ledger.CommitExit
	}

	commit(bidding.UserID, bidding.LegKey, result.FilledQty)

	for _, base := range result.BaseOrders {
		rec, err := e.gateway.Status(ctx, base.UserID, base.Remark, base.OrderID)
		for try := 0; err != nil && try < baseRecordRetries && ctx.Err() == nil; try++ {
			select {
			case <-ctx.Done():
			case <-time.After(p.PollInterval()):
			}
			rec, err = e.gateway.Status(ctx, base.UserID, base.Remark, base.OrderID)
		}
		if err != nil {
			// Записи так и нет — исполнение не подтверждено, объём не
			// зачитывается. Живой ордер снимет resetStaleOrders.
			e.logUser(base.UserID).WithField("order_id", base.OrderID).Warn("Запись базового ордера недоступна, объём не зачтён.")
			continue
		}
		if rec.FilledQty < base.SliceQuantity &&
			rec.Status != models.OrderStatusFilled &&
			rec.Status != models.OrderStatusCanceled &&
			rec.Status != models.OrderStatusRejected {
			e.gateway.Cancel(ctx, base)
			if got, err := e.gateway.Status(ctx, base.UserID, base.Remark, base.OrderID); err == nil && got.FilledQty > rec.FilledQty {
				rec = got
			}
		}
		commit(base.UserID, base.LegKey, rec.FilledQty)
		e.clearOpenOrder(base)
		e.tracker.Order(ctx, base, rec)
	}
}
