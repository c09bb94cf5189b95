package observer

import (
	"boxbot/internal/logger"
	"boxbot/internal/models"
	"context"
	"sync"
	"time"
)

// Hub держит по одному постоянному наблюдателю на пару ног и отдаёт
// последнее решение из слота под мьютексом. Писатель на ключ ровно один,
// читатели писателя не блокируют.
type Hub struct {
	obs *Observer
	log *logger.Logger

	mu      sync.Mutex
	slots   map[models.PairKey]models.ObservationResult
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	sink func(context.Context, models.PairKey, models.ObservationResult)

	pairMu   sync.Mutex
	pairs    map[models.PairKey][2]models.LegDefinition
	observe  time.Duration
	sleep    time.Duration
	interval time.Duration
}

func NewHub(obs *Observer, log *logger.Logger) *Hub {
	return &Hub{
		obs:      obs,
		log:      log,
		slots:    map[models.PairKey]models.ObservationResult{},
		pairs:    map[models.PairKey][2]models.LegDefinition{},
		observe:  2 * time.Second,
		sleep:    500 * time.Millisecond,
		interval: 200 * time.Millisecond,
	}
}

// Configure подменяет интервалы наблюдения при перезагрузке параметров.
func (h *Hub) Configure(observe, sleep, interval time.Duration) {
	h.pairMu.Lock()
	if observe > 0 {
		h.observe = observe
	}
	if sleep > 0 {
		h.sleep = sleep
	}
	if interval > 0 {
		h.interval = interval
	}
	h.pairMu.Unlock()
}

// SetSink подключает получателя решений наблюдателей (аудит); вызывается
// до Start.
func (h *Hub) SetSink(sink func(context.Context, models.PairKey, models.ObservationResult)) {
	h.sink = sink
}

// SetPair подменяет ноги пары; рабочий цикл подхватит их на следующем круге.
func (h *Hub) SetPair(key models.PairKey, first, second models.LegDefinition) {
	h.pairMu.Lock()
	h.pairs[key] = [2]models.LegDefinition{first, second}
	h.pairMu.Unlock()
}

// Start идемпотентен: повторный запуск — no-op с предупреждением.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		h.log.WithComponent("hub").Warn("Повторный запуск наблюдателей, пропуск.")
		return
	}
	h.running = true
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.mu.Unlock()

	for _, key := range []models.PairKey{models.PairBuy, models.PairSell} {
		h.wg.Add(1)
		go h.worker(runCtx, key)
	}
	h.log.WithComponent("hub").Info("Наблюдатели пар запущены.")
}

func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	cancel := h.cancel
	h.mu.Unlock()

	cancel()
	h.wg.Wait()
	h.log.WithComponent("hub").Info("Наблюдатели пар остановлены.")
}

func (h *Hub) worker(ctx context.Context, key models.PairKey) {
	defer h.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}

		h.pairMu.Lock()
		pair, ok := h.pairs[key]
		observe := h.observe
		sleep := h.sleep
		interval := h.interval
		h.pairMu.Unlock()

		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(sleep):
			}
			continue
		}

		result, err := h.obs.ObservePair(ctx, key, pair[0], pair[1], observe, interval, false)
		if err == nil {
			h.mu.Lock()
			h.slots[key] = result
			h.mu.Unlock()
			if h.sink != nil {
				h.sink(ctx, key, result)
			}
		} else if ctx.Err() == nil {
			h.log.WithComponent("hub").WithError(err).Warn("Цикл наблюдения пары завершился с ошибкой.")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

// Result возвращает последнее решение по ключу; false — решения ещё нет,
// вызывающий исполняет ноги в исходном порядке.
func (h *Hub) Result(key models.PairKey) (models.ObservationResult, bool) {
	h.mu.Lock()
	result, ok := h.slots[key]
	h.mu.Unlock()
	if !ok {
		h.log.WithComponent("hub").WithField("pair", key).Debug("Решение по паре ещё не готово.")
	}
	return result, ok
}
