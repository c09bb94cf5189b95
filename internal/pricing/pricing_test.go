package pricing

import (
	"boxbot/internal/logger"
	"boxbot/internal/models"
	"context"
	"fmt"
	"math"
	"testing"
)

type fakeSource struct {
	ladders map[string]models.DepthLadder
}

func (f *fakeSource) LegLadder(_ context.Context, key string) (models.DepthLadder, error) {
	ladder, ok := f.ladders[key]
	if !ok {
		return models.DepthLadder{}, fmt.Errorf("нет стакана %s", key)
	}
	return ladder, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error"})
}

func ladder(bids, asks []float64) models.DepthLadder {
	out := models.DepthLadder{}
	for _, p := range bids {
		out.Bids = append(out.Bids, models.DepthLevel{Price: p, Qty: 100})
	}
	for _, p := range asks {
		out.Asks = append(out.Asks, models.DepthLevel{Price: p, Qty: 100})
	}
	return out
}

func TestPriceMethods(t *testing.T) {
	src := &fakeSource{ladders: map[string]models.DepthLadder{
		"NIFTY_20000.0_CE-1": ladder([]float64{99.5, 99.0, 98.5}, []float64{100.0, 100.5, 101.0}),
	}}
	eng := New(src, testLogger())
	ctx := context.Background()

	cases := []struct {
		method string
		idx    int
		avg    int
		side   QuoteSide
		want   float64
	}{
		{"top", 1, 3, QuoteAsk, 100.0},
		{"top", 1, 3, QuoteBid, 99.5},
		{"depth", 1, 3, QuoteAsk, 100.5},
		{"depth", 2, 3, QuoteBid, 98.5},
		{"depth", 9, 3, QuoteAsk, 101.0}, // индекс глубже стакана прижимается к последнему уровню
		{"average", 1, 2, QuoteAsk, 100.25},
		{"average", 1, 10, QuoteBid, 99.0},
	}
	for _, tc := range cases {
		eng.Configure(tc.method, tc.idx, tc.avg)
		got := eng.Price(ctx, "NIFTY_20000.0_CE-1", tc.side)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("%s/%d/%d %s: got %f, want %f", tc.method, tc.idx, tc.avg, tc.side, got, tc.want)
		}
	}
}

func TestPriceMissingLadder(t *testing.T) {
	eng := New(&fakeSource{ladders: map[string]models.DepthLadder{}}, testLogger())
	if got := eng.Price(context.Background(), "missing", QuoteAsk); got != 0 {
		t.Errorf("недоступный стакан должен давать 0, получили %f", got)
	}
}

func TestPriceEmptySide(t *testing.T) {
	src := &fakeSource{ladders: map[string]models.DepthLadder{
		"k": ladder(nil, []float64{10}),
	}}
	eng := New(src, testLogger())
	if got := eng.Price(context.Background(), "k", QuoteBid); got != 0 {
		t.Errorf("пустая сторона стакана должна давать 0, получили %f", got)
	}
}

func TestLegPriceSides(t *testing.T) {
	src := &fakeSource{ladders: map[string]models.DepthLadder{
		"k": ladder([]float64{99.0}, []float64{101.0}),
	}}
	eng := New(src, testLogger())
	eng.Configure("top", 1, 3)
	ctx := context.Background()

	buy := models.LegDefinition{Key: "b", StreamingKey: "k", Action: models.OrderSideBuy}
	sell := models.LegDefinition{Key: "s", StreamingKey: "k", Action: models.OrderSideSell}

	if got := eng.LegPrice(ctx, buy, false); got != 101.0 {
		t.Errorf("вход BUY читает ask: got %f", got)
	}
	if got := eng.LegPrice(ctx, sell, false); got != 99.0 {
		t.Errorf("вход SELL читает bid: got %f", got)
	}
	if got := eng.LegPrice(ctx, buy, true); got != 99.0 {
		t.Errorf("выход BUY читает bid: got %f", got)
	}
	if got := eng.LegPrice(ctx, sell, true); got != 101.0 {
		t.Errorf("выход SELL читает ask: got %f", got)
	}
}

func TestSpread(t *testing.T) {
	buyLegs := []models.LegDefinition{
		{Key: "b1", Action: models.OrderSideBuy},
		{Key: "b2", Action: models.OrderSideBuy},
	}
	sellLegs := []models.LegDefinition{
		{Key: "s1", Action: models.OrderSideSell},
		{Key: "s2", Action: models.OrderSideSell},
	}

	if got := Spread(buyLegs, map[string]float64{"b1": 150, "b2": 205}); got != 355 {
		t.Errorf("BUY-спред: got %f, want 355", got)
	}
	// SELL-пара даёт отрицательную сумму, конвенция берёт модуль.
	if got := Spread(sellLegs, map[string]float64{"s1": 28, "s2": 31}); got != 59 {
		t.Errorf("SELL-спред: got %f, want 59", got)
	}
}

func TestBidLegPrice(t *testing.T) {
	cases := []struct {
		desired float64
		others  float64
		action  models.OrderSide
		want    float64
	}{
		{405, 355, models.OrderSideBuy, 50},
		{405, 464, models.OrderSideBuy, 59},  // отрицательный результат по модулю
		{59, 464, models.OrderSideSell, 405},
		{405, 405, models.OrderSideBuy, MinTick}, // нулевая цена прижимается к тику
	}
	for _, tc := range cases {
		got := BidLegPrice(tc.desired, tc.others, tc.action)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("BidLegPrice(%f, %f, %s): got %f, want %f", tc.desired, tc.others, tc.action, got, tc.want)
		}
	}
}

func TestFormatLimitPrice(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{100.02, 100.0},
		{100.03, 100.05},
		{100.08, 100.1},
		{-3.12, 3.1},
		{0.01, MinTick},
		{0, MinTick},
	}
	for _, tc := range cases {
		if got := FormatLimitPrice(tc.in); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("FormatLimitPrice(%f): got %f, want %f", tc.in, got, tc.want)
		}
	}
}
