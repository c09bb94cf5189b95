package engine

import (
	"boxbot/internal/broker"
	"boxbot/internal/config"
	"boxbot/internal/logger"
	"boxbot/internal/models"
	"boxbot/internal/store"
	"context"
	"fmt"
	"sync"
	"testing"
)

// fakeWorld изображает внешнее хранилище и брокера в одном лице: постановка
// ордера создаёт запись, политика исполнения решает, что вернёт чтение
// статуса на n-м запросе.
type fakeWorld struct {
	mu          sync.Mutex
	ladders     map[string]models.DepthLadder
	orders      map[string]models.OrderIntent
	statusCalls map[string]int
	placed      []models.OrderIntent
	modified    []models.OrderIntent
	cancelled   []string
	seq         int

	lot    int
	spot   float64
	params []byte

	// fill решает исполнение ордера по номеру чтения статуса; nil — полное
	// исполнение по лимитной цене с первого чтения.
	fill func(intent models.OrderIntent, statusCall int) models.OrderRecord
}

var _ store.Store = (*fakeWorld)(nil)
var _ broker.Client = (*fakeWorld)(nil)

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		ladders:     map[string]models.DepthLadder{},
		orders:      map[string]models.OrderIntent{},
		statusCalls: map[string]int{},
		lot:         25,
		spot:        20250,
	}
}

func (w *fakeWorld) setQuote(streamingKey string, bid, ask float64) {
	w.mu.Lock()
	w.ladders[streamingKey] = models.DepthLadder{
		Bids: []models.DepthLevel{{Price: bid, Qty: 1000}},
		Asks: []models.DepthLevel{{Price: ask, Qty: 1000}},
	}
	w.mu.Unlock()
}

func (w *fakeWorld) placedQty(legKey string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	total := 0
	for _, intent := range w.placed {
		if intent.LegKey == legKey {
			total += intent.SliceQuantity
		}
	}
	return total
}

func (w *fakeWorld) LegLadder(_ context.Context, key string) (models.DepthLadder, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ladder, ok := w.ladders[key]
	if !ok {
		return models.DepthLadder{}, store.ErrNotFound
	}
	return ladder, nil
}

func (w *fakeWorld) SetLegLadder(_ context.Context, key string, ladder models.DepthLadder) error {
	w.mu.Lock()
	w.ladders[key] = ladder
	w.mu.Unlock()
	return nil
}

func (w *fakeWorld) OrderRecord(_ context.Context, _, _, orderID string) (models.OrderRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	intent, ok := w.orders[orderID]
	if !ok {
		return models.OrderRecord{}, store.ErrNotFound
	}
	w.statusCalls[orderID]++
	if w.fill != nil {
		return w.fill(intent, w.statusCalls[orderID]), nil
	}
	return models.OrderRecord{
		OrderID:     orderID,
		FilledQty:   intent.SliceQuantity,
		FilledPrice: intent.LimitPrice,
		Status:      models.OrderStatusFilled,
	}, nil
}

func (w *fakeWorld) ResolveTradingSymbol(_ context.Context, streamingSymbol string) (string, error) {
	return streamingSymbol + "-TRD", nil
}

func (w *fakeWorld) LotSize(_ context.Context, _ string) (int, error) {
	return w.lot, nil
}

func (w *fakeWorld) UserIDs(_ context.Context) ([]string, error) {
	return []string{"u1"}, nil
}

func (w *fakeWorld) UserAPIKey(_ context.Context, userID string) (string, error) {
	return "key-" + userID, nil
}

func (w *fakeWorld) ParamsRaw(_ context.Context, _ string) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.params) == 0 {
		return nil, store.ErrNotFound
	}
	return w.params, nil
}

func (w *fakeWorld) UnderlyingPrice(_ context.Context, _ string) (float64, error) {
	return w.spot, nil
}

func (w *fakeWorld) PublishExecution(_ context.Context, _ models.TrackRecord) error {
	return nil
}

func (w *fakeWorld) PlaceOrder(_ context.Context, intent models.OrderIntent) (broker.PlaceAck, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seq++
	id := fmt.Sprintf("ord-%d", w.seq)
	intent.OrderID = id
	w.orders[id] = intent
	w.placed = append(w.placed, intent)
	return broker.PlaceAck{OrderID: id}, nil
}

func (w *fakeWorld) ModifyOrder(_ context.Context, intent models.OrderIntent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.orders[intent.OrderID] = intent
	w.modified = append(w.modified, intent)
	return nil
}

func (w *fakeWorld) CancelOrder(_ context.Context, intent models.OrderIntent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancelled = append(w.cancelled, intent.OrderID)
	return nil
}

const testParams = `{
	"symbol": "NIFTY",
	"expiry": 1,
	"users": ["u1"],
	"desired_spread": 405,
	"exit_desired_spread": 400,
	"itm_steps": 2,
	"otm_steps": 4,
	"fanout_mode": "basket",
	"ioc_timeout": 0.2,
	"poll_interval_ms": 5,
	"modify_attempts": 5,
	"modify_interval": 0.01,
	"observe_window": 0.05,
	"observe_interval_ms": 10,
	"case_window": 0.1,
	"run_state": 0
}`

func newTestEngine(t *testing.T, w *fakeWorld) *Engine {
	t.Helper()
	cfg := &config.Config{}
	cfg.Strategy.ID = "box-test"
	cfg.Strategy.Remark = "boxbot"

	log := logger.New(logger.Config{Level: "error"})
	eng := New(cfg, w, w, log)

	w.mu.Lock()
	w.params = []byte(testParams)
	w.mu.Unlock()

	p, err := config.ParseParams([]byte(testParams))
	if err != nil {
		t.Fatalf("разбор тестовых параметров: %v", err)
	}
	eng.applyParams(p)
	return eng
}
