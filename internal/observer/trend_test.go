package observer

import (
	"boxbot/internal/logger"
	"boxbot/internal/models"
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"boxbot/internal/pricing"
)

// stepSource отдаёт для каждого ключа последовательность цен, по одной на
// запрос; после исчерпания повторяет последнюю.
type stepSource struct {
	mu    sync.Mutex
	steps map[string][]float64
	pos   map[string]int
}

func newStepSource() *stepSource {
	return &stepSource{steps: map[string][]float64{}, pos: map[string]int{}}
}

func (s *stepSource) set(key string, prices ...float64) {
	s.mu.Lock()
	s.steps[key] = prices
	s.pos[key] = 0
	s.mu.Unlock()
}

func (s *stepSource) LegLadder(_ context.Context, key string) (models.DepthLadder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prices, ok := s.steps[key]
	if !ok || len(prices) == 0 {
		return models.DepthLadder{}, fmt.Errorf("нет стакана %s", key)
	}
	i := s.pos[key]
	if i >= len(prices) {
		i = len(prices) - 1
	} else {
		s.pos[key]++
	}
	price := prices[i]
	return models.DepthLadder{
		Bids: []models.DepthLevel{{Price: price, Qty: 100}},
		Asks: []models.DepthLevel{{Price: price, Qty: 100}},
	}, nil
}

func testObserver(src *stepSource) *Observer {
	log := logger.New(logger.Config{Level: "error"})
	pricer := pricing.New(src, log)
	pricer.Configure("top", 1, 3)
	return New(pricer, log)
}

func TestClassifyTrend(t *testing.T) {
	cases := []struct {
		name    string
		samples []float64
		want    models.Trend
	}{
		{"константа", []float64{100, 100, 100, 100}, models.TrendStable},
		{"рост", []float64{100, 100.1, 100.2, 100.3}, models.TrendIncreasing},
		{"падение", []float64{100, 99.9, 99.8, 99.7}, models.TrendDecreasing},
		{"мало выборок", []float64{100}, models.TrendStable},
		{"дрожание в пороге", []float64{100, 100.01, 100, 100.01}, models.TrendStable},
	}
	for _, tc := range cases {
		got, _ := ClassifyTrend(tc.samples)
		if got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestClassifyTrendRecencyWeighting(t *testing.T) {
	_, early := ClassifyTrend([]float64{100, 101, 101, 101, 101})
	_, late := ClassifyTrend([]float64{100, 100, 100, 100, 101})
	if math.Abs(late) <= math.Abs(early) {
		t.Errorf("поздняя дельта должна весить больше ранней: early=%f late=%f", early, late)
	}
}

func TestDecidePairBuyTable(t *testing.T) {
	cases := []struct {
		name       string
		t1, t2     models.Trend
		c1, c2     float64
		wantAction models.ObservationAction
		wantFirst  string
	}{
		{"обе стабильны", models.TrendStable, models.TrendStable, 0, 0, models.ObservationExecute, "a"},
		{"рост и стабильность", models.TrendIncreasing, models.TrendStable, 0.1, 0, models.ObservationSkip, "a"},
		{"стабильность и падение", models.TrendStable, models.TrendDecreasing, 0, -0.1, models.ObservationExecute, "a"},
		{"падение и стабильность", models.TrendDecreasing, models.TrendStable, -0.1, 0, models.ObservationExecute, "b"},
		{"рост и падение", models.TrendIncreasing, models.TrendDecreasing, 0.1, -0.1, models.ObservationExecute, "a"},
		{"падение и рост", models.TrendDecreasing, models.TrendIncreasing, -0.1, 0.1, models.ObservationExecute, "b"},
		{"обе растут", models.TrendIncreasing, models.TrendIncreasing, 0.1, 0.2, models.ObservationSkip, "a"},
		{"обе падают, сильнее вторая", models.TrendDecreasing, models.TrendDecreasing, -0.1, -0.3, models.ObservationExecute, "b"},
		{"обе падают, сильнее первая", models.TrendDecreasing, models.TrendDecreasing, -0.3, -0.1, models.ObservationExecute, "a"},
	}
	for _, tc := range cases {
		got := decidePair(true, "a", "b", tc.t1, tc.t2, tc.c1, tc.c2)
		if got.Action != tc.wantAction {
			t.Errorf("%s: action got %s, want %s", tc.name, got.Action, tc.wantAction)
			continue
		}
		if got.FirstLeg != tc.wantFirst {
			t.Errorf("%s: first got %s, want %s", tc.name, got.FirstLeg, tc.wantFirst)
		}
	}
}

func TestDecidePairSellTable(t *testing.T) {
	cases := []struct {
		name       string
		t1, t2     models.Trend
		c1, c2     float64
		wantAction models.ObservationAction
		wantFirst  string
	}{
		{"обе стабильны", models.TrendStable, models.TrendStable, 0, 0, models.ObservationExecute, "a"},
		{"обе растут, сильнее первая", models.TrendIncreasing, models.TrendIncreasing, 0.3, 0.1, models.ObservationExecute, "a"},
		{"обе падают", models.TrendDecreasing, models.TrendDecreasing, -0.1, -0.2, models.ObservationSkip, "a"},
		{"рост и стабильность", models.TrendIncreasing, models.TrendStable, 0.1, 0, models.ObservationExecute, "b"},
		{"падение и стабильность", models.TrendDecreasing, models.TrendStable, -0.1, 0, models.ObservationSkip, "a"},
		{"рост и падение", models.TrendIncreasing, models.TrendDecreasing, 0.1, -0.1, models.ObservationExecute, "b"},
	}
	for _, tc := range cases {
		got := decidePair(false, "a", "b", tc.t1, tc.t2, tc.c1, tc.c2)
		if got.Action != tc.wantAction {
			t.Errorf("%s: action got %s, want %s", tc.name, got.Action, tc.wantAction)
			continue
		}
		if got.FirstLeg != tc.wantFirst {
			t.Errorf("%s: first got %s, want %s", tc.name, got.FirstLeg, tc.wantFirst)
		}
	}
}

func TestObservePairStableExecutes(t *testing.T) {
	src := newStepSource()
	src.set("k1", 150)
	src.set("k2", 205)
	obs := testObserver(src)

	first := models.LegDefinition{Key: "a", StreamingKey: "k1", Action: models.OrderSideBuy}
	second := models.LegDefinition{Key: "b", StreamingKey: "k2", Action: models.OrderSideBuy}

	res, err := obs.ObservePair(context.Background(), models.PairBuy, first, second, 100*time.Millisecond, 10*time.Millisecond, false)
	if err != nil {
		t.Fatalf("наблюдение завершилось с ошибкой: %v", err)
	}
	if res.Action != models.ObservationExecute {
		t.Fatalf("action got %s, want EXECUTE", res.Action)
	}
	if res.FirstLeg != "a" || res.SecondLeg != "b" {
		t.Errorf("порядок got %s/%s, want a/b", res.FirstLeg, res.SecondLeg)
	}
	if res.Trends["a"] != models.TrendStable || res.Trends["b"] != models.TrendStable {
		t.Errorf("тренды got %v, want STABLE/STABLE", res.Trends)
	}
	if res.FinalPrices["a"] != 150 || res.FinalPrices["b"] != 205 {
		t.Errorf("финальные цены got %v", res.FinalPrices)
	}
}

func TestObservePairDiscardsMissingPrices(t *testing.T) {
	src := newStepSource()
	src.set("k1", 150)
	obs := testObserver(src)

	first := models.LegDefinition{Key: "a", StreamingKey: "k1", Action: models.OrderSideBuy}
	second := models.LegDefinition{Key: "b", StreamingKey: "missing", Action: models.OrderSideBuy}

	res, err := obs.ObservePair(context.Background(), models.PairBuy, first, second, 60*time.Millisecond, 10*time.Millisecond, false)
	if err != nil {
		t.Fatalf("наблюдение завершилось с ошибкой: %v", err)
	}
	if _, ok := res.FinalPrices["b"]; ok {
		t.Errorf("нога без цены не должна попадать в финальные цены: %v", res.FinalPrices)
	}
}

func TestObservePairCancelled(t *testing.T) {
	src := newStepSource()
	src.set("k1", 150)
	src.set("k2", 205)
	obs := testObserver(src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	first := models.LegDefinition{Key: "a", StreamingKey: "k1", Action: models.OrderSideBuy}
	second := models.LegDefinition{Key: "b", StreamingKey: "k2", Action: models.OrderSideBuy}

	if _, err := obs.ObservePair(ctx, models.PairBuy, first, second, time.Second, 10*time.Millisecond, false); err == nil {
		t.Fatal("отменённый контекст должен давать ошибку")
	}
}
