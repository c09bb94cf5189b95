package engine

import (
	"boxbot/internal/config"
	"boxbot/internal/models"
	"context"
	"fmt"
	"math"
	"time"
)

const atmRefreshInterval = 2 * time.Second

func atmStrike(spot, step float64) float64 {
	if step <= 0 || spot <= 0 {
		return 0
	}
	return math.Round(spot/step) * step
}

// buildLegs собирает четыре ноги коробки от ATM-страйка: покупаемые ITM
// колл и пут, продаваемые OTM колл и пут. Ключ ноги включает страйк, чтобы
// леджер не смешивал контракты после смены ATM.
func buildLegs(p *config.Params, atm float64) []models.LegDefinition {
	itm := float64(p.ITMSteps) * p.StrikeStep
	otm := float64(p.OTMSteps) * p.StrikeStep

	mk := func(strike float64, opt models.OptionType, action models.OrderSide) models.LegDefinition {
		return models.LegDefinition{
			Key:          fmt.Sprintf("%s_%s_%.0f", action, opt, strike),
			Symbol:       p.Symbol,
			Strike:       strike,
			OptionType:   opt,
			Expiry:       p.Expiry,
			Action:       action,
			Quantity:     1,
			StreamingKey: fmt.Sprintf("%s_%.1f_%s-%d", p.Symbol, strike, opt, p.Expiry),
		}
	}

	return []models.LegDefinition{
		mk(atm-itm, models.OptionTypeCall, models.OrderSideBuy),
		mk(atm+itm, models.OptionTypePut, models.OrderSideBuy),
		mk(atm+otm, models.OptionTypeCall, models.OrderSideSell),
		mk(atm-otm, models.OptionTypePut, models.OrderSideSell),
	}
}

// atmRef — опорный ATM для длинного наблюдения: его смена обрывает окно.
func (e *Engine) atmRef() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.atmStrike
}

// atmRefresher следит за спотом и перестраивает ноги при смене ATM-страйка.
func (e *Engine) atmRefresher(ctx context.Context) {
	ticker := time.NewTicker(atmRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		p := e.snapshot()
		spot, err := e.st.UnderlyingPrice(ctx, p.Symbol)
		if err != nil {
			continue
		}
		newATM := atmStrike(spot, p.StrikeStep)
		if newATM == 0 || newATM == e.atmRef() {
			continue
		}

		e.logEntry().WithFields(map[string]interface{}{
			"old_atm": e.atmRef(),
			"new_atm": newATM,
			"spot":    spot,
		}).Info("ATM-страйк сменился, перестройка ног.")

		if err := e.rebuildInstance(ctx, p, newATM); err != nil {
			e.logEntry().WithError(err).Warn("Не удалось перестроить ноги после смены ATM.")
			continue
		}
		e.tracker.Milestone(ctx, "atm_change", map[string]interface{}{"atm": newATM, "spot": spot})
	}
}
