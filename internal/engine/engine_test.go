package engine

import (
	"boxbot/internal/models"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestStartTeardownOnExitState(t *testing.T) {
	w := boxWorld()
	e := newTestEngine(t, w)

	w.mu.Lock()
	w.params = []byte(strings.Replace(testParams, `"run_state": 0`, `"run_state": 2`, 1))
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Позиций нет, все пользователи плоские: первый же цикл с run_state 2
	// завершает работу без ордеров.
	if err := e.Start(ctx); err != nil {
		t.Fatalf("teardown должен завершаться без ошибки: %v", err)
	}
	if len(w.placed) != 0 {
		t.Errorf("плоский teardown не должен торговать: %d ордеров", len(w.placed))
	}
}

func TestStartCancelled(t *testing.T) {
	w := boxWorld()
	e := newTestEngine(t, w)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	err := e.Start(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ожидалась отмена контекста, получили %v", err)
	}
}

func TestResetStaleOrdersCancelsLive(t *testing.T) {
	w := boxWorld()
	e := newTestEngine(t, w)

	// Зависший с прошлого цикла живой ордер: статус NEW, исполнения нет.
	w.fill = func(in models.OrderIntent, _ int) models.OrderRecord {
		return models.OrderRecord{OrderID: in.OrderID, FilledQty: 0, Status: models.OrderStatusNew}
	}

	intent, _ := iocIntents()
	placed, err := e.gateway.Place(context.Background(), intent)
	if err != nil {
		t.Fatalf("постановка: %v", err)
	}
	e.registerOpenOrder(placed)

	e.resetStaleOrders(context.Background(), "u1")

	if len(w.cancelled) != 1 {
		t.Fatalf("живой зависший ордер должен отменяться: %v", w.cancelled)
	}
	e.openMu.Lock()
	open := len(e.open)
	e.openMu.Unlock()
	if open != 0 {
		t.Errorf("реестр живых ордеров не очищен: %d", open)
	}
}
