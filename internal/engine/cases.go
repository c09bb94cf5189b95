package engine

import (
	"boxbot/internal/models"
	"boxbot/internal/pricing"
	"context"
	"time"
)

// executeCaseA: BUY-пара стабильна — сначала добирается SELL-пара
// лимитниками, затем BUY-пара ждёт спред в бюджете и исполняется IOC.
func (e *Engine) executeCaseA(ctx context.Context, user string) error {
	st := e.userState(user)
	_, sellPair := e.currentPairs()

	if !st.pair1Executed {
		st.phase = phaseFirstPair
		seq, ok := e.pairSequence(models.PairSell, sellPair)
		if !ok {
			e.logUser(user).Debug("SELL-пара сейчас неблагоприятна, ждём следующий цикл.")
			return nil
		}
		prices, complete, err := e.executePairModify(ctx, user, seq, false)
		if err != nil {
			return err
		}
		if !complete {
			return nil
		}
		st.pair1ExecutedSpread = pricing.Spread(sellPair[:], prices)
		st.pair1Executed = true
		st.phase = phaseFirstDone
		e.tracker.Milestone(ctx, "sell_pair_done", map[string]interface{}{
			"user_id": user,
			"spread":  st.pair1ExecutedSpread,
		})
	}

	return e.monitorAfterSell(ctx, user)
}

// monitorAfterSell ждёт, пока BUY-спред войдёт в бюджет
// desired + sellExecutedSpread, параллельно следя за прибылью SELL-пары:
// при достижении порога прибыль реализуется досрочным выходом, BUY-нога
// в этом цикле не добирается.
func (e *Engine) monitorAfterSell(ctx context.Context, user string) error {
	st := e.userState(user)
	st.phase = phaseMonitoring

	lastReload := time.Now()
	for {
		// Главный цикл ждёт воркеров, поэтому параметры (и run_state)
		// перечитываются прямо здесь.
		if time.Since(lastReload) >= cycleInterval {
			if fresh, err := e.loadParams(ctx); err == nil {
				e.applyParams(fresh)
			}
			lastReload = time.Now()
		}
		p := e.snapshot()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.RunState != models.RunStateRunning {
			return nil
		}

		buyPair, sellPair := e.currentPairs()
		budget := p.DesiredSpread + st.pair1ExecutedSpread

		buyPrices := e.pricer.PairPrices(ctx, buyPair[:], false)
		if !anyZero(buyPrices) {
			buySpread := pricing.Spread(buyPair[:], buyPrices)
			if buySpread <= budget {
				st.phase = phaseSecondPair
				complete, err := e.executePairIOC(ctx, user, models.PairBuy, buyPair, false, budget)
				if err != nil {
					return err
				}
				if complete {
					e.markAllExecuted(ctx, user, st)
					return nil
				}
				st.phase = phaseMonitoring
			}
		}

		exitPrices := e.pricer.PairPrices(ctx, sellPair[:], true)
		if !anyZero(exitPrices) {
			currentSellSpread := pricing.Spread(sellPair[:], exitPrices)
			profit := st.pair1ExecutedSpread - currentSellSpread
			if profit >= p.ProfitThreshold {
				e.logUser(user).WithFields(map[string]interface{}{
					"profit":    profit,
					"threshold": p.ProfitThreshold,
				}).Info("Порог прибыли SELL-пары достигнут, досрочный выход.")
				e.tracker.Milestone(ctx, "sell_profit_exit", map[string]interface{}{
					"user_id": user,
					"profit":  profit,
				})
				if _, err := e.executePairIOC(ctx, user, models.PairSell, sellPair, true, 0); err != nil {
					return err
				}
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.ObserveInterval()):
		}
	}
}

// executeCaseB: BUY-пара движется — сначала добирается BUY-пара в порядке
// решения, затем SELL-пара ждёт спред не ниже бюджета
// buyExecutedSpread − desired. Если к моменту исполнения BUY-пара
// стабилизировалась, ветка откатывается на CASE A.
func (e *Engine) executeCaseB(ctx context.Context, user string) error {
	st := e.userState(user)
	buyPair, _ := e.currentPairs()

	if !st.pair1Executed {
		if res, ok := e.hub.Result(models.PairBuy); ok && bothStable(res) {
			e.logUser(user).Info("BUY-пара стабилизировалась, откат на CASE A.")
			st.decision.CaseB = false
			return e.executeCaseA(ctx, user)
		}

		st.phase = phaseFirstPair
		seq := buyPair
		if first, ok1 := e.legByKey(st.decision.FirstLeg); ok1 {
			if second, ok2 := e.legByKey(st.decision.SecondLeg); ok2 {
				seq = [2]models.LegDefinition{first, second}
			}
		}
		prices, complete, err := e.executePairModify(ctx, user, seq, false)
		if err != nil {
			return err
		}
		if !complete {
			return nil
		}
		st.pair1ExecutedSpread = pricing.Spread(buyPair[:], prices)
		st.pair1Executed = true
		st.phase = phaseFirstDone
		e.tracker.Milestone(ctx, "buy_pair_done", map[string]interface{}{
			"user_id": user,
			"spread":  st.pair1ExecutedSpread,
		})
	}

	return e.monitorAfterBuy(ctx, user)
}

// monitorAfterBuy — зеркало monitorAfterSell: ждём SELL-спред не ниже
// бюджета, следим за прибылью BUY-пары.
func (e *Engine) monitorAfterBuy(ctx context.Context, user string) error {
	st := e.userState(user)
	st.phase = phaseMonitoring

	lastReload := time.Now()
	for {
		if time.Since(lastReload) >= cycleInterval {
			if fresh, err := e.loadParams(ctx); err == nil {
				e.applyParams(fresh)
			}
			lastReload = time.Now()
		}
		p := e.snapshot()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.RunState != models.RunStateRunning {
			return nil
		}

		buyPair, sellPair := e.currentPairs()
		budget := st.pair1ExecutedSpread - p.DesiredSpread

		sellPrices := e.pricer.PairPrices(ctx, sellPair[:], false)
		if !anyZero(sellPrices) {
			sellSpread := pricing.Spread(sellPair[:], sellPrices)
			if sellSpread >= budget {
				st.phase = phaseSecondPair
				complete, err := e.executePairIOC(ctx, user, models.PairSell, sellPair, false, budget)
				if err != nil {
					return err
				}
				if complete {
					e.markAllExecuted(ctx, user, st)
					return nil
				}
				st.phase = phaseMonitoring
			}
		}

		exitPrices := e.pricer.PairPrices(ctx, buyPair[:], true)
		if !anyZero(exitPrices) {
			currentBuySpread := pricing.Spread(buyPair[:], exitPrices)
			profit := currentBuySpread - st.pair1ExecutedSpread
			if profit >= p.ProfitThreshold {
				e.logUser(user).WithFields(map[string]interface{}{
					"profit":    profit,
					"threshold": p.ProfitThreshold,
				}).Info("Порог прибыли BUY-пары достигнут, досрочный выход.")
				e.tracker.Milestone(ctx, "buy_profit_exit", map[string]interface{}{
					"user_id": user,
					"profit":  profit,
				})
				if _, err := e.executePairIOC(ctx, user, models.PairBuy, buyPair, true, 0); err != nil {
					return err
				}
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.ObserveInterval()):
		}
	}
}

// executePairIOC исполняет пару протоколом IOC: первая нога в решённом
// порядке — торгуемая, вторая идёт базовой на фактические дельты. Ненулевой
// budget ограничивает цену торгуемой ноги решением под спред пары.
func (e *Engine) executePairIOC(ctx context.Context, user string, key models.PairKey, pair [2]models.LegDefinition, isExit bool, budget float64) (bool, error) {
	var seq [2]models.LegDefinition
	var ok bool
	if isExit {
		seq, ok = e.exitSequence(ctx, key, pair)
	} else {
		seq, ok = e.pairSequence(key, pair)
	}
	if !ok {
		return false, nil
	}
	bidding, base := seq[0], seq[1]

	for retry := 0; retry < iocRetries; retry++ {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		target := e.ledger.Remaining(user, bidding.Key, isExit)
		if target == 0 {
			break
		}

		price := e.pricer.LegPrice(ctx, bidding, isExit)
		basePrice := e.pricer.LegPrice(ctx, base, isExit)
		if price <= 0 || basePrice <= 0 {
			return false, nil
		}
		// Покупка доплачивает тик вверх, продажа уступает тик вниз.
		sellSide := bidding.Action == models.OrderSideSell
		if isExit {
			sellSide = !sellSide
		}
		tick := pricing.MinTick
		if sellSide {
			tick = -pricing.MinTick
		}
		limit := price + tick
		if !isExit && budget > 0 {
			// Бюджет пары задаёт предельную цену торгуемой ноги: покупка не
			// дороже решённой цены, продажа не дешевле.
			guard := pricing.BidLegPrice(budget, basePrice, bidding.Action)
			if bidding.Action == models.OrderSideBuy && limit > guard {
				limit = guard
			}
			if bidding.Action == models.OrderSideSell && limit < guard {
				limit = guard
			}
		}

		biddingIntent, okT := e.template(user, bidding.Key, isExit)
		if !okT {
			return false, nil
		}
		biddingIntent.LimitPrice = pricing.FormatLimitPrice(limit)

		baseIntent, okB := e.template(user, base.Key, isExit)
		if !okB {
			return false, nil
		}
		baseIntent.LimitPrice = pricing.FormatLimitPrice(basePrice)

		result := e.executeIOC(ctx, biddingIntent, []models.OrderIntent{baseIntent}, target, isExit)
		if result.Success {
			break
		}
		if result.Reason != "" {
			e.logUser(user).WithField("leg", bidding.Key).WithField("reason", result.Reason).Debug("IOC не добрал объём, повтор.")
		}
	}

	// Базовая нога могла отстать от торгуемой из-за отказов постановки.
	if rem := e.ledger.Remaining(user, base.Key, isExit); rem > 0 {
		placedForBidding := e.ledger.Remaining(user, bidding.Key, isExit) == 0
		if placedForBidding {
			intent, okT := e.template(user, base.Key, isExit)
			if okT {
				e.modifyUntilFilled(ctx, intent, base, rem, isExit)
			}
		}
	}

	biddingDone := e.ledger.Remaining(user, bidding.Key, isExit) == 0
	baseDone := e.ledger.Remaining(user, base.Key, isExit) == 0
	return biddingDone && baseDone, nil
}

func (e *Engine) markAllExecuted(ctx context.Context, user string, st *userState) {
	st.pair2Executed = true
	st.allLegsExecuted = true
	st.phase = phaseAllExecuted
	e.tracker.Milestone(ctx, "all_executed", map[string]interface{}{"user_id": user})
	e.logUser(user).Info("Обе пары пользователя исполнены.")
}

func bothStable(res models.ObservationResult) bool {
	if len(res.Trends) == 0 {
		return false
	}
	for _, trend := range res.Trends {
		if trend != models.TrendStable {
			return false
		}
	}
	return true
}

func anyZero(prices map[string]float64) bool {
	for _, price := range prices {
		if price <= 0 {
			return true
		}
	}
	return len(prices) == 0
}
