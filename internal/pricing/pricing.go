package pricing

import (
	"boxbot/internal/models"
	"context"
	"math"
	"sync"

	"boxbot/internal/logger"
)

// MinTick — минимальный шаг цены опциона.
const MinTick = 0.05

type QuoteSide string

const (
	QuoteBid QuoteSide = "bid"
	QuoteAsk QuoteSide = "ask"
)

type DepthSource interface {
	LegLadder(ctx context.Context, streamingKey string) (models.DepthLadder, error)
}

type Engine struct {
	src DepthSource
	log *logger.Logger

	mu         sync.RWMutex
	method     string
	depthIndex int
	avgLevels  int
}

func New(src DepthSource, log *logger.Logger) *Engine {
	return &Engine{
		src:        src,
		log:        log,
		method:     "top",
		depthIndex: 1,
		avgLevels:  3,
	}
}

// Configure подменяет метод ценообразования при перезагрузке параметров.
func (e *Engine) Configure(method string, depthIndex, avgLevels int) {
	e.mu.Lock()
	e.method = method
	if depthIndex > 0 {
		e.depthIndex = depthIndex
	}
	if avgLevels > 0 {
		e.avgLevels = avgLevels
	}
	e.mu.Unlock()
}

// Price возвращает цену ноги по текущему стакану. Пустой или недоступный
// стакан даёт 0.0 — для вызывающего это «цены нет, не торговать».
func (e *Engine) Price(ctx context.Context, streamingKey string, side QuoteSide) float64 {
	ladder, err := e.src.LegLadder(ctx, streamingKey)
	if err != nil {
		e.log.WithComponent("pricing").WithError(err).Debug("Стакан недоступен.")
		return 0
	}

	levels := ladder.Asks
	if side == QuoteBid {
		levels = ladder.Bids
	}
	if len(levels) == 0 {
		return 0
	}

	e.mu.RLock()
	method := e.method
	depthIndex := e.depthIndex
	avgLevels := e.avgLevels
	e.mu.RUnlock()

	switch method {
	case "depth":
		idx := depthIndex
		if idx >= len(levels) {
			idx = len(levels) - 1
		}
		return levels[idx].Price
	case "average":
		n := avgLevels
		if n > len(levels) {
			n = len(levels)
		}
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += levels[i].Price
		}
		return sum / float64(n)
	default:
		return levels[0].Price
	}
}

// LegPrice — цена ноги с учётом направления: вход BUY читает ask, вход SELL
// читает bid; на выходе сторона переворачивается относительно действия
// самой ноги.
func (e *Engine) LegPrice(ctx context.Context, leg models.LegDefinition, isExit bool) float64 {
	side := QuoteAsk
	if leg.Action == models.OrderSideSell {
		side = QuoteBid
	}
	if isExit {
		if side == QuoteAsk {
			side = QuoteBid
		} else {
			side = QuoteAsk
		}
	}
	return e.Price(ctx, leg.StreamingKey, side)
}

// PairPrices снимает цены набора ног одним проходом.
func (e *Engine) PairPrices(ctx context.Context, legs []models.LegDefinition, isExit bool) map[string]float64 {
	prices := make(map[string]float64, len(legs))
	for _, leg := range legs {
		prices[leg.Key] = e.LegPrice(ctx, leg, isExit)
	}
	return prices
}

// Spread — знаковая сумма цен ног (BUY прибавляет, SELL вычитает),
// результат по модулю. Единая конвенция для входа, выхода и прибыли.
func Spread(legs []models.LegDefinition, prices map[string]float64) float64 {
	sum := 0.0
	for _, leg := range legs {
		price := prices[leg.Key]
		if leg.Action == models.OrderSideSell {
			sum -= price
		} else {
			sum += price
		}
	}
	return math.Abs(sum)
}

// BidLegPrice решает цену торгуемой ноги под целевой спред при текущих
// ценах остальных ног.
func BidLegPrice(desired, othersSum float64, action models.OrderSide) float64 {
	var price float64
	if action == models.OrderSideBuy {
		price = desired - othersSum
	} else {
		price = othersSum - desired
	}
	price = math.Abs(price)
	if price < MinTick {
		price = MinTick
	}
	return price
}

// FormatLimitPrice приводит цену к сетке тиков 0.05.
func FormatLimitPrice(price float64) float64 {
	price = math.Abs(price)
	if price < MinTick {
		price = MinTick
	}
	return math.Round(price*20) / 20
}
