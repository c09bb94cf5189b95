package observer

import (
	"boxbot/internal/models"
	"context"
	"math"
	"time"
)

const caseDecisionRetries = 5

// CaseDecision — длинное наблюдение BUY-пары, выбирающее ветку исполнения.
// CASE A (false) только если обе ноги стабильны на всём окне; любое движение
// даёт CASE B с порядком «сильнее изменившаяся нога первой» (на выходе
// наоборот). Смена опорного ATM-страйка обрывает окно и начинает заново.
// Недостаток валидных выборок трактуется консервативно как CASE A.
func (o *Observer) CaseDecision(ctx context.Context, first, second models.LegDefinition, window, interval time.Duration, minSamples int, atmRef func() float64) (models.CaseDecision, error) {
	for attempt := 0; attempt < caseDecisionRetries; attempt++ {
		decision, restart, err := o.caseDecisionOnce(ctx, first, second, window, interval, minSamples, atmRef)
		if err != nil {
			return models.CaseDecision{}, err
		}
		if restart {
			o.log.WithComponent("observer").Warn("ATM-страйк сменился во время наблюдения, окно перезапущено.")
			continue
		}
		return decision, nil
	}
	o.log.WithComponent("observer").Warn("Наблюдение не дало решения, консервативно выбран CASE A.")
	return conservativeCaseA(first, second), nil
}

func (o *Observer) caseDecisionOnce(ctx context.Context, first, second models.LegDefinition, window, interval time.Duration, minSamples int, atmRef func() float64) (models.CaseDecision, bool, error) {
	startATM := 0.0
	if atmRef != nil {
		startATM = atmRef()
	}

	firstSamples := make([]float64, 0, 64)
	secondSamples := make([]float64, 0, 64)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.Now().Add(window)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return models.CaseDecision{}, false, ctx.Err()
		case <-ticker.C:
			if atmRef != nil && atmRef() != startATM {
				return models.CaseDecision{}, true, nil
			}
			p1 := o.pricer.LegPrice(ctx, first, false)
			p2 := o.pricer.LegPrice(ctx, second, false)
			// Подряд повторяющаяся цена не несёт информации о движении.
			if p1 > 0 && (len(firstSamples) == 0 || firstSamples[len(firstSamples)-1] != p1) {
				firstSamples = append(firstSamples, p1)
			}
			if p2 > 0 && (len(secondSamples) == 0 || secondSamples[len(secondSamples)-1] != p2) {
				secondSamples = append(secondSamples, p2)
			}
		}
	}

	samples := len(firstSamples)
	if len(secondSamples) < samples {
		samples = len(secondSamples)
	}
	if samples < minSamples {
		o.log.WithComponent("observer").WithFields(map[string]interface{}{
			"first_samples":  len(firstSamples),
			"second_samples": len(secondSamples),
			"min":            minSamples,
		}).Info("Недостаточно валидных выборок, консервативно CASE A.")
		decision := conservativeCaseA(first, second)
		decision.Samples = samples
		return decision, false, nil
	}

	t1, c1 := ClassifyTrend(firstSamples)
	t2, c2 := ClassifyTrend(secondSamples)

	decision := models.CaseDecision{
		Changes: map[string]float64{first.Key: c1, second.Key: c2},
		Samples: samples,
	}

	if t1 == models.TrendStable && t2 == models.TrendStable {
		decision.CaseB = false
		decision.FirstLeg, decision.SecondLeg = first.Key, second.Key
		decision.ExitFirstLeg, decision.ExitSecondLeg = first.Key, second.Key
		return decision, false, nil
	}

	decision.CaseB = true
	if math.Abs(c2) > math.Abs(c1) {
		decision.FirstLeg, decision.SecondLeg = second.Key, first.Key
		decision.ExitFirstLeg, decision.ExitSecondLeg = first.Key, second.Key
	} else {
		decision.FirstLeg, decision.SecondLeg = first.Key, second.Key
		decision.ExitFirstLeg, decision.ExitSecondLeg = second.Key, first.Key
	}
	return decision, false, nil
}

func conservativeCaseA(first, second models.LegDefinition) models.CaseDecision {
	return models.CaseDecision{
		CaseB:         false,
		FirstLeg:      first.Key,
		SecondLeg:     second.Key,
		ExitFirstLeg:  first.Key,
		ExitSecondLeg: second.Key,
		Changes:       map[string]float64{},
	}
}
