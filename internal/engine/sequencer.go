package engine

import (
	"boxbot/internal/models"
	"context"
	"fmt"
)

type phase string

const (
	phaseNotStarted  phase = "NOT_STARTED"
	phaseCaseDecided phase = "CASE_DECIDED"
	phaseFirstPair   phase = "FIRST_PAIR_EXECUTING"
	phaseFirstDone   phase = "FIRST_PAIR_DONE"
	phaseMonitoring  phase = "MONITORING_OPPOSITE"
	phaseSecondPair  phase = "SECOND_PAIR_EXECUTING"
	phaseAllExecuted phase = "ALL_EXECUTED"
)

// minCaseSamples — минимум различных валидных выборок для решения CASE A/B.
const minCaseSamples = 10

// iocRetries — бюджет повторов IOC на остаток объёма пары.
const iocRetries = 20

// userState мутируется только воркером, обрабатывающим этого пользователя;
// циклы пользователей не перекрываются.
type userState struct {
	phase               phase
	decision            models.CaseDecision
	pair1Executed       bool
	pair2Executed       bool
	allLegsExecuted     bool
	pair1ExecutedSpread float64
}

func (e *Engine) userState(user string) *userState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[user]
	if !ok {
		st = &userState{phase: phaseNotStarted}
		e.states[user] = st
	}
	return st
}

func (e *Engine) processUserEntry(ctx context.Context, user string) error {
	p := e.snapshot()
	buyPair, _ := e.currentPairs()
	st := e.userState(user)

	legs := e.currentLegs()
	keys := make([]string, 0, len(legs))
	for _, leg := range legs {
		keys = append(keys, leg.Key)
	}
	if _, complete := e.ledger.FirstShortLeg(user, keys, false); complete {
		if !st.allLegsExecuted {
			st.pair1Executed = true
			st.pair2Executed = true
			st.allLegsExecuted = true
			st.phase = phaseAllExecuted
			e.tracker.Milestone(ctx, "all_executed", map[string]interface{}{"user_id": user})
			e.logUser(user).Info("Все ноги пользователя добраны.")
		}
		return nil
	}

	if st.phase == phaseNotStarted {
		decision, err := e.obs.CaseDecision(ctx, buyPair[0], buyPair[1], p.CaseWindow(), p.ObserveInterval(), minCaseSamples, e.atmRef)
		if err != nil {
			return err
		}
		st.decision = decision
		st.phase = phaseCaseDecided
		e.tracker.Milestone(ctx, "case_decided", map[string]interface{}{
			"user_id": user,
			"case_b":  decision.CaseB,
			"samples": decision.Samples,
		})
		e.logUser(user).WithFields(map[string]interface{}{
			"case_b":  decision.CaseB,
			"first":   decision.FirstLeg,
			"samples": decision.Samples,
		}).Info("Решение по ветке исполнения принято.")
	}

	if st.decision.CaseB {
		return e.executeCaseB(ctx, user)
	}
	return e.executeCaseA(ctx, user)
}

// pairSequence — порядок исполнения пары по последнему решению хаба;
// решения ещё нет — исходный порядок. Второй результат false — пара
// сейчас неблагоприятна (SKIP).
func (e *Engine) pairSequence(key models.PairKey, pair [2]models.LegDefinition) ([2]models.LegDefinition, bool) {
	res, ok := e.hub.Result(key)
	if !ok {
		return pair, true
	}
	if res.Action == models.ObservationSkip {
		return pair, false
	}
	first, ok1 := e.legByKey(res.FirstLeg)
	second, ok2 := e.legByKey(res.SecondLeg)
	if !ok1 || !ok2 {
		// Решение принято по ногам до смены ATM.
		return pair, true
	}
	return [2]models.LegDefinition{first, second}, true
}

// exitSequence — порядок выхода из пары: короткое наблюдение по
// зеркальной таблице правил.
func (e *Engine) exitSequence(ctx context.Context, key models.PairKey, pair [2]models.LegDefinition) ([2]models.LegDefinition, bool) {
	p := e.snapshot()
	res, err := e.obs.ObservePair(ctx, key, pair[0], pair[1], p.ObserveWindow(), p.ObserveInterval(), true)
	if err != nil {
		return pair, true
	}
	if res.Action == models.ObservationSkip {
		return pair, false
	}
	first, ok1 := e.legByKey(res.FirstLeg)
	second, ok2 := e.legByKey(res.SecondLeg)
	if !ok1 || !ok2 {
		return pair, true
	}
	return [2]models.LegDefinition{first, second}, true
}

// executePairModify добирает пару лимитниками с погоней за ценой в заданном
// порядке. Возвращает цены исполнения и признак полного исполнения пары.
// Нога с нулевым остатком оценивается по текущему рынку — её вклад в спред
// пары нужен даже без новой сделки.
func (e *Engine) executePairModify(ctx context.Context, user string, seq [2]models.LegDefinition, isExit bool) (map[string]float64, bool, error) {
	prices := make(map[string]float64, 2)
	for _, leg := range seq {
		target := e.ledger.Remaining(user, leg.Key, isExit)
		if target == 0 {
			prices[leg.Key] = e.pricer.LegPrice(ctx, leg, isExit)
			continue
		}
		intent, ok := e.template(user, leg.Key, isExit)
		if !ok {
			return nil, false, fmt.Errorf("Нет шаблона ордера для %s/%s.", user, leg.Key)
		}
		res := e.modifyUntilFilled(ctx, intent, leg, target, isExit)
		if !res.Complete {
			return nil, false, nil
		}
		prices[leg.Key] = res.FilledPrice
		if prices[leg.Key] == 0 {
			prices[leg.Key] = e.pricer.LegPrice(ctx, leg, isExit)
		}
	}
	return prices, true, nil
}

func (e *Engine) processUserExit(ctx context.Context, user string) error {
	legs := e.currentLegs()
	keys := make([]string, 0, len(legs))
	for _, leg := range legs {
		keys = append(keys, leg.Key)
	}
	if _, flat := e.ledger.FirstShortLeg(user, keys, true); flat {
		return nil
	}

	e.logUser(user).Info("Запрошен полный выход, разбор позиций.")

	buyPair, sellPair := e.currentPairs()
	for _, pair := range [][2]models.LegDefinition{sellPair, buyPair} {
		key := models.PairSell
		if pair == buyPair {
			key = models.PairBuy
		}
		seq, ok := e.exitSequence(ctx, key, pair)
		if !ok {
			seq = pair
		}
		if _, complete, err := e.executePairModify(ctx, user, seq, true); err != nil {
			return err
		} else if !complete {
			return nil
		}
	}

	e.tracker.Milestone(ctx, "full_exit", map[string]interface{}{"user_id": user})
	return nil
}
