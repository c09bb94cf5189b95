package observer

import (
	"boxbot/internal/logger"
	"boxbot/internal/models"
	"boxbot/internal/pricing"
	"context"
	"math"
	"time"
)

// trendThreshold — порог взвешенного изменения цены для классификации тренда.
const trendThreshold = 0.02

type Observer struct {
	pricer *pricing.Engine
	log    *logger.Logger
}

func New(pricer *pricing.Engine, log *logger.Logger) *Observer {
	return &Observer{pricer: pricer, log: log}
}

// ClassifyTrend — взвешенное среднее последовательных дельт, поздние дельты
// весят больше (вес = индекс выборки). Отсекает одиночные выбросы, которые
// ломает сравнение «конец минус начало».
func ClassifyTrend(samples []float64) (models.Trend, float64) {
	if len(samples) < 2 {
		return models.TrendStable, 0
	}
	var weighted, totalWeight float64
	for i := 1; i < len(samples); i++ {
		weight := float64(i)
		weighted += weight * (samples[i] - samples[i-1])
		totalWeight += weight
	}
	change := weighted / totalWeight
	switch {
	case change > trendThreshold:
		return models.TrendIncreasing, change
	case change < -trendThreshold:
		return models.TrendDecreasing, change
	default:
		return models.TrendStable, change
	}
}

// ObservePair сэмплирует цены пары ног и возвращает решение о порядке
// исполнения по таблицам правил. Выборки с неположительной ценой
// отбрасываются как «цены нет».
func (o *Observer) ObservePair(ctx context.Context, pair models.PairKey, first, second models.LegDefinition, window, interval time.Duration, isExit bool) (models.ObservationResult, error) {
	firstSamples := make([]float64, 0, 16)
	secondSamples := make([]float64, 0, 16)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.Now().Add(window)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return models.ObservationResult{}, ctx.Err()
		case <-ticker.C:
			p1 := o.pricer.LegPrice(ctx, first, isExit)
			p2 := o.pricer.LegPrice(ctx, second, isExit)
			if p1 > 0 {
				firstSamples = append(firstSamples, p1)
			}
			if p2 > 0 {
				secondSamples = append(secondSamples, p2)
			}
		}
	}

	t1, c1 := ClassifyTrend(firstSamples)
	t2, c2 := ClassifyTrend(secondSamples)

	buyTable := pair == models.PairBuy
	if isExit {
		// Выход зеркалит вход: таблицы меняются местами.
		buyTable = !buyTable
	}

	result := decidePair(buyTable, first.Key, second.Key, t1, t2, c1, c2)
	result.Trends = map[string]models.Trend{first.Key: t1, second.Key: t2}
	result.Changes = map[string]float64{first.Key: c1, second.Key: c2}
	result.FinalPrices = map[string]float64{}
	if n := len(firstSamples); n > 0 {
		result.FinalPrices[first.Key] = firstSamples[n-1]
	}
	if n := len(secondSamples); n > 0 {
		result.FinalPrices[second.Key] = secondSamples[n-1]
	}
	result.ObservedAt = time.Now()

	o.log.WithComponent("observer").WithFields(map[string]interface{}{
		"pair":   pair,
		"first":  result.FirstLeg,
		"second": result.SecondLeg,
		"action": result.Action,
		"reason": result.Reason,
	}).Debug("Наблюдение пары завершено.")
	return result, nil
}

func decidePair(buyTable bool, first, second string, t1, t2 models.Trend, c1, c2 float64) models.ObservationResult {
	execute := func(firstKey, secondKey, reason string) models.ObservationResult {
		return models.ObservationResult{
			FirstLeg:  firstKey,
			SecondLeg: secondKey,
			Action:    models.ObservationExecute,
			Reason:    reason,
		}
	}
	skip := func(reason string) models.ObservationResult {
		return models.ObservationResult{
			FirstLeg:  first,
			SecondLeg: second,
			Action:    models.ObservationSkip,
			Reason:    reason,
		}
	}
	strongerFirst := func(reason string) models.ObservationResult {
		if math.Abs(c2) > math.Abs(c1) {
			return execute(second, first, reason)
		}
		return execute(first, second, reason)
	}
	// Нога с нужным трендом исполняется первой.
	withTrend := func(trend models.Trend, reason string) models.ObservationResult {
		if t1 == trend {
			return execute(first, second, reason)
		}
		return execute(second, first, reason)
	}

	stable := t1 == models.TrendStable && t2 == models.TrendStable
	bothUp := t1 == models.TrendIncreasing && t2 == models.TrendIncreasing
	bothDown := t1 == models.TrendDecreasing && t2 == models.TrendDecreasing
	hasUp := t1 == models.TrendIncreasing || t2 == models.TrendIncreasing
	hasDown := t1 == models.TrendDecreasing || t2 == models.TrendDecreasing
	hasStable := t1 == models.TrendStable || t2 == models.TrendStable

	if buyTable {
		switch {
		case stable:
			return execute(first, second, "обе ноги стабильны")
		case bothUp:
			return skip("обе ноги растут, покупка невыгодна")
		case bothDown:
			return strongerFirst("обе ноги падают, первой сильнее падающая")
		case hasUp && hasStable:
			return skip("растущая нога при стабильной, покупка невыгодна")
		case hasDown && hasStable:
			return withTrend(models.TrendStable, "стабильная нога первой")
		default:
			return withTrend(models.TrendIncreasing, "растущая нога первой")
		}
	}

	switch {
	case stable:
		return execute(first, second, "обе ноги стабильны")
	case bothUp:
		return strongerFirst("обе ноги растут, первой сильнее растущая")
	case bothDown:
		return skip("обе ноги падают, продажа невыгодна")
	case hasUp && hasStable:
		return withTrend(models.TrendStable, "стабильная нога первой")
	case hasDown && hasStable:
		return skip("падающая нога при стабильной, продажа невыгодна")
	default:
		return withTrend(models.TrendDecreasing, "падающая нога первой")
	}
}
