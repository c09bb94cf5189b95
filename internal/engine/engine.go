package engine

import (
	"boxbot/internal/broker"
	"boxbot/internal/config"
	"boxbot/internal/logger"
	"boxbot/internal/models"
	"boxbot/internal/observer"
	"boxbot/internal/pricing"
	"boxbot/internal/store"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	cycleInterval = 1 * time.Second
	userWorkers   = 4
)

type Engine struct {
	cfg     *config.Config
	st      store.Store
	gateway *Gateway
	log     *logger.Logger
	pricer  *pricing.Engine
	obs     *observer.Observer
	hub     *observer.Hub
	ledger  *Ledger
	tracker *Tracker
	remark  string

	params   atomic.Pointer[config.Params]
	keysSink func([]string)

	mu        sync.Mutex
	legs      []models.LegDefinition
	buyPair   [2]models.LegDefinition
	sellPair  [2]models.LegDefinition
	atmStrike float64
	templates map[templateKey]models.OrderIntent
	states    map[string]*userState

	openMu sync.Mutex
	open   map[string]models.OrderIntent
}

func New(cfg *config.Config, st store.Store, brk broker.Client, log *logger.Logger) *Engine {
	pricer := pricing.New(st, log)
	obs := observer.New(pricer, log)
	e := &Engine{
		cfg:       cfg,
		st:        st,
		gateway:   NewGateway(brk, st, log),
		log:       log,
		pricer:    pricer,
		obs:       obs,
		hub:       observer.NewHub(obs, log),
		ledger:    NewLedger(),
		tracker:   NewTracker(st, log, cfg.Strategy.ID),
		remark:    cfg.Strategy.Remark,
		templates: map[templateKey]models.OrderIntent{},
		states:    map[string]*userState{},
		open:      map[string]models.OrderIntent{},
	}
	// Решения наблюдателей уходят в аудит исполнения.
	e.hub.SetSink(e.tracker.Observation)
	return e
}

// SetKeysSink передаёт получателя списка стриминговых ключей (фид глубины);
// вызывается до Run.
func (e *Engine) SetKeysSink(sink func([]string)) {
	e.keysSink = sink
}

// Ledger открыт для чтения внешним проверкам состояния.
func (e *Engine) Ledger() *Ledger {
	return e.ledger
}

func (e *Engine) snapshot() *config.Params {
	return e.params.Load()
}

func (e *Engine) Start(ctx context.Context) error {
	p, err := e.loadParams(ctx)
	if err != nil {
		return err
	}
	e.applyParams(p)

	spot, err := e.st.UnderlyingPrice(ctx, p.Symbol)
	if err != nil {
		return err
	}
	if err := e.rebuildInstance(ctx, p, atmStrike(spot, p.StrikeStep)); err != nil {
		return err
	}

	e.hub.Start(ctx)
	defer e.hub.Stop()
	go e.atmRefresher(ctx)

	e.tracker.Milestone(ctx, "start", map[string]interface{}{"symbol": p.Symbol, "users": len(p.Users)})
	e.logEntry().WithField("users", len(p.Users)).Info("Движок запущен.")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cycleInterval):
		}

		if fresh, err := e.loadParams(ctx); err != nil {
			e.logEntry().WithError(err).Warn("Не удалось перечитать параметры, работаем на старом снимке.")
		} else {
			e.applyParams(fresh)
			p = fresh
		}

		switch p.RunState {
		case models.RunStatePaused:
			continue
		case models.RunStateExit:
			e.processUsers(ctx, p, true)
			if e.allFlat(p) {
				e.tracker.Milestone(ctx, "teardown", nil)
				e.logEntry().Info("Все пользователи закрыты, движок завершает работу.")
				return nil
			}
		default:
			e.processUsers(ctx, p, false)
		}
	}
}

// loadParams читает и валидирует параметры стратегии из хранилища.
func (e *Engine) loadParams(ctx context.Context) (*config.Params, error) {
	raw, err := e.withRetryBytes(ctx, func() ([]byte, error) {
		return e.st.ParamsRaw(ctx, e.cfg.Strategy.ParamsKey)
	})
	if err != nil {
		return nil, err
	}
	return config.ParseParams(raw)
}

// applyParams атомарно подменяет снимок параметров и перенастраивает
// зависимые компоненты.
func (e *Engine) applyParams(p *config.Params) {
	e.params.Store(p)
	e.pricer.Configure(p.PricingMethod, p.DepthIndex, p.AvgLevels)
	e.hub.Configure(p.HubObserve(), p.HubSleep(), p.ObserveInterval())
}

// processUsers раскидывает пользователей по ограниченному пулу. Ошибка
// одного пользователя не прерывает цикл остальных.
func (e *Engine) processUsers(ctx context.Context, p *config.Params, isExit bool) {
	users := p.Users
	if len(users) == 0 {
		return
	}

	workers := userWorkers
	if workers > len(users) {
		workers = len(users)
	}
	jobs := make(chan string, len(users))
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for user := range jobs {
			if ctx.Err() != nil {
				return
			}
			e.resetStaleOrders(ctx, user)
			var err error
			if isExit {
				err = e.processUserExit(ctx, user)
			} else {
				err = e.processUserEntry(ctx, user)
			}
			if err != nil && ctx.Err() == nil {
				e.logUser(user).WithError(err).Warn("Цикл пользователя завершился с ошибкой.")
				e.tracker.Error(ctx, "user_cycle", err)
			}
		}
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker()
	}
	for _, user := range users {
		jobs <- user
	}
	close(jobs)
	wg.Wait()
}

// allFlat: суммарный вход равен суммарному выходу у каждого пользователя.
func (e *Engine) allFlat(p *config.Params) bool {
	legs := e.currentLegs()
	keys := make([]string, 0, len(legs))
	for _, leg := range legs {
		keys = append(keys, leg.Key)
	}
	for _, user := range p.Users {
		entry, exit := e.ledger.Totals(user, keys)
		if entry != exit {
			return false
		}
	}
	return true
}

func (e *Engine) registerOpenOrder(intent models.OrderIntent) {
	if intent.OrderID == "" {
		return
	}
	e.openMu.Lock()
	e.open[intent.OrderID] = intent
	e.openMu.Unlock()
}

func (e *Engine) clearOpenOrder(intent models.OrderIntent) {
	if intent.OrderID == "" {
		return
	}
	e.openMu.Lock()
	delete(e.open, intent.OrderID)
	e.openMu.Unlock()
}

// resetStaleOrders снимает зависшие ордера пользователя с прошлых циклов,
// чтобы ни один пользователь не застрял на мёртвом ордере.
func (e *Engine) resetStaleOrders(ctx context.Context, user string) {
	e.openMu.Lock()
	stale := make([]models.OrderIntent, 0)
	for _, intent := range e.open {
		if intent.UserID == user {
			stale = append(stale, intent)
		}
	}
	e.openMu.Unlock()

	for _, intent := range stale {
		rec, err := e.gateway.Status(ctx, intent.UserID, intent.Remark, intent.OrderID)
		if err == nil && rec.Status != models.OrderStatusCanceled && rec.Status != models.OrderStatusFilled && rec.Status != models.OrderStatusRejected {
			e.gateway.Cancel(ctx, intent)
		}
		e.clearOpenOrder(intent)
		e.logUser(user).WithField("order_id", intent.OrderID).Debug("Сброшен зависший ордер.")
	}
}
