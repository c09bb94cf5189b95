package engine

import (
	"boxbot/internal/config"
	"boxbot/internal/models"
	"context"
	"fmt"
)

type templateKey struct {
	user string
	leg  string
	exit bool
}

// rebuildInstance строит ноги, шаблоны ордеров и целевые объёмы для
// текущего ATM. Отсутствие маппинга символа или лотности фатально только
// здесь, на создании инстанса.
func (e *Engine) rebuildInstance(ctx context.Context, p *config.Params, atm float64) error {
	legs := buildLegs(p, atm)

	lot, err := e.st.LotSize(ctx, p.Symbol)
	if err != nil {
		return fmt.Errorf("Нет лотности для %s: %w", p.Symbol, err)
	}

	templates := make(map[templateKey]models.OrderIntent, len(legs)*len(p.Users)*2)
	for _, leg := range legs {
		trading, err := e.st.ResolveTradingSymbol(ctx, leg.StreamingKey)
		if err != nil {
			return fmt.Errorf("Нет торгового символа для %s: %w", leg.StreamingKey, err)
		}
		for _, user := range p.Users {
			qty := leg.Quantity * lot * p.Multiplier(user)

			entry := models.OrderIntent{
				UserID:          user,
				LegKey:          leg.Key,
				TradingSymbol:   trading,
				StreamingSymbol: leg.StreamingKey,
				Exchange:        p.Exchange,
				Action:          leg.Action,
				OrderType:       models.OrderTypeLimit,
				Duration:        models.OrderDurationDay,
				Quantity:        qty,
				SliceQuantity:   qty,
				ProductCode:     "NRML",
				Remark:          e.remark,
			}
			exit := entry
			exit.Action = oppositeSide(leg.Action)

			templates[templateKey{user, leg.Key, false}] = entry
			templates[templateKey{user, leg.Key, true}] = exit
			e.ledger.SetDesired(user, leg.Key, qty)
		}
	}

	e.mu.Lock()
	e.legs = legs
	e.buyPair = [2]models.LegDefinition{legs[0], legs[1]}
	e.sellPair = [2]models.LegDefinition{legs[2], legs[3]}
	e.atmStrike = atm
	e.templates = templates
	e.mu.Unlock()

	e.hub.SetPair(models.PairBuy, legs[0], legs[1])
	e.hub.SetPair(models.PairSell, legs[2], legs[3])

	if e.keysSink != nil {
		keys := make([]string, 0, len(legs))
		for _, leg := range legs {
			keys = append(keys, leg.StreamingKey)
		}
		e.keysSink(keys)
	}

	e.logEntry().WithFields(map[string]interface{}{
		"atm":  atm,
		"legs": len(legs),
		"lot":  lot,
	}).Info("Инстанс стратегии построен.")
	return nil
}

// template возвращает копию шаблона; шаблоны после построения неизменяемы.
func (e *Engine) template(user, leg string, exit bool) (models.OrderIntent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	intent, ok := e.templates[templateKey{user, leg, exit}]
	return intent, ok
}

func (e *Engine) currentPairs() ([2]models.LegDefinition, [2]models.LegDefinition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buyPair, e.sellPair
}

func (e *Engine) currentLegs() []models.LegDefinition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.LegDefinition(nil), e.legs...)
}

func (e *Engine) legByKey(key string) (models.LegDefinition, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, leg := range e.legs {
		if leg.Key == key {
			return leg, true
		}
	}
	return models.LegDefinition{}, false
}

func oppositeSide(side models.OrderSide) models.OrderSide {
	if side == models.OrderSideBuy {
		return models.OrderSideSell
	}
	return models.OrderSideBuy
}
