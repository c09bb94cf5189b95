package observer

import (
	"boxbot/internal/logger"
	"boxbot/internal/models"
	"context"
	"sync"
	"testing"
	"time"
)

func TestHubLifecycle(t *testing.T) {
	src := newStepSource()
	src.set("k1", 150)
	src.set("k2", 205)
	src.set("k3", 28)
	src.set("k4", 31)
	obs := testObserver(src)
	hub := NewHub(obs, logger.New(logger.Config{Level: "error"}))
	hub.Configure(40*time.Millisecond, 10*time.Millisecond, 10*time.Millisecond)

	hub.SetPair(models.PairBuy,
		models.LegDefinition{Key: "b1", StreamingKey: "k1", Action: models.OrderSideBuy},
		models.LegDefinition{Key: "b2", StreamingKey: "k2", Action: models.OrderSideBuy})
	hub.SetPair(models.PairSell,
		models.LegDefinition{Key: "s1", StreamingKey: "k3", Action: models.OrderSideSell},
		models.LegDefinition{Key: "s2", StreamingKey: "k4", Action: models.OrderSideSell})

	ctx := context.Background()
	hub.Start(ctx)
	hub.Start(ctx) // повторный запуск — no-op
	defer hub.Stop()

	deadline := time.Now().Add(2 * time.Second)
	var res models.ObservationResult
	var ok bool
	for time.Now().Before(deadline) {
		if res, ok = hub.Result(models.PairBuy); ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !ok {
		t.Fatal("решение по BUY-паре так и не появилось")
	}
	if res.Action != models.ObservationExecute {
		t.Errorf("стабильная пара: action got %s, want EXECUTE", res.Action)
	}

	hub.Stop()
	hub.Stop() // повторная остановка безопасна
}

func TestHubPublishesDecisions(t *testing.T) {
	src := newStepSource()
	src.set("k1", 150)
	src.set("k2", 205)
	obs := testObserver(src)
	hub := NewHub(obs, logger.New(logger.Config{Level: "error"}))
	hub.Configure(40*time.Millisecond, 10*time.Millisecond, 10*time.Millisecond)

	var mu sync.Mutex
	var got []models.ObservationResult
	hub.SetSink(func(_ context.Context, key models.PairKey, res models.ObservationResult) {
		if key != models.PairBuy {
			return
		}
		mu.Lock()
		got = append(got, res)
		mu.Unlock()
	})

	hub.SetPair(models.PairBuy,
		models.LegDefinition{Key: "b1", StreamingKey: "k1", Action: models.OrderSideBuy},
		models.LegDefinition{Key: "b2", StreamingKey: "k2", Action: models.OrderSideBuy})

	hub.Start(context.Background())
	defer hub.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) == 0 {
		t.Fatal("решение наблюдателя не дошло до получателя")
	}
	if got[0].Action != models.ObservationExecute {
		t.Errorf("стабильная пара: action got %s, want EXECUTE", got[0].Action)
	}
}

func TestHubResultMissing(t *testing.T) {
	src := newStepSource()
	obs := testObserver(src)
	hub := NewHub(obs, logger.New(logger.Config{Level: "error"}))

	if _, ok := hub.Result(models.PairBuy); ok {
		t.Fatal("до первого наблюдения решения быть не должно")
	}
}
