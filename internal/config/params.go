package config

import (
	"boxbot/internal/models"
	"encoding/json"
	"fmt"
	"time"
)

// Params — торговые параметры стратегии из внешнего хранилища.
// Снимок неизменяем после валидации, перезагрузка подменяет указатель целиком.
type Params struct {
	Symbol            string             `json:"symbol"`
	Exchange          string             `json:"exchange"`
	Expiry            int                `json:"expiry"`
	Users             []string           `json:"users"`
	QtyMultiplier     map[string]int     `json:"quantity_multiplier"`
	DesiredSpread     float64            `json:"desired_spread"`
	ExitDesiredSpread float64            `json:"exit_desired_spread"`
	ProfitThreshold   float64            `json:"profit_threshold"`
	ITMSteps          int                `json:"itm_steps"`
	OTMSteps          int                `json:"otm_steps"`
	StrikeStep        float64            `json:"strike_step"`
	PricingMethod     string             `json:"pricing_method"`
	DepthIndex        int                `json:"depth_index"`
	AvgLevels         int                `json:"no_of_bidask_average"`
	FanOutMode        models.FanOutMode  `json:"fanout_mode"`
	IOCTimeoutSec     float64            `json:"ioc_timeout"`
	PollIntervalMs    int                `json:"poll_interval_ms"`
	ModifyAttempts    int                `json:"modify_attempts"`
	ModifyIntervalSec float64            `json:"modify_interval"`
	ObserveWindowSec  float64            `json:"observe_window"`
	ObserveIntervalMs int                `json:"observe_interval_ms"`
	CaseWindowSec     float64            `json:"case_window"`
	HubObserveSec     float64            `json:"hub_observe"`
	HubSleepSec       float64            `json:"hub_sleep"`
	RunState          models.RunState    `json:"run_state"`
}

func ParseParams(raw []byte) (*Params, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("Пустые параметры стратегии.")
	}
	p := &Params{}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("Не удалось разобрать параметры стратегии: %w", err)
	}
	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Params) applyDefaults() {
	if p.Exchange == "" {
		p.Exchange = "NFO"
	}
	if p.StrikeStep <= 0 {
		p.StrikeStep = 50
	}
	if p.PricingMethod == "" {
		p.PricingMethod = "depth"
	}
	if p.DepthIndex <= 0 {
		p.DepthIndex = 1
	}
	if p.AvgLevels <= 0 {
		p.AvgLevels = 3
	}
	if p.FanOutMode == "" {
		p.FanOutMode = models.FanOutParallel
	}
	if p.IOCTimeoutSec <= 0 {
		p.IOCTimeoutSec = 0.5
	}
	if p.PollIntervalMs <= 0 {
		p.PollIntervalMs = 10
	}
	if p.ModifyAttempts <= 0 {
		p.ModifyAttempts = 30
	}
	if p.ModifyIntervalSec <= 0 {
		p.ModifyIntervalSec = 0.3
	}
	if p.ObserveWindowSec <= 0 {
		p.ObserveWindowSec = 2
	}
	if p.ObserveIntervalMs <= 0 {
		p.ObserveIntervalMs = 200
	}
	if p.CaseWindowSec <= 0 {
		p.CaseWindowSec = 60
	}
	if p.HubObserveSec <= 0 {
		p.HubObserveSec = 2
	}
	if p.HubSleepSec <= 0 {
		p.HubSleepSec = 0.5
	}
	if p.ProfitThreshold <= 0 {
		p.ProfitThreshold = 10
	}
	if p.QtyMultiplier == nil {
		p.QtyMultiplier = map[string]int{}
	}
}

func (p *Params) Validate() error {
	if p.Symbol == "" {
		return fmt.Errorf("Не задан символ стратегии.")
	}
	if len(p.Users) == 0 {
		return fmt.Errorf("Не задан список пользователей.")
	}
	if p.DesiredSpread <= 0 {
		return fmt.Errorf("Некорректный целевой спред: %f", p.DesiredSpread)
	}
	if p.ITMSteps < 0 || p.OTMSteps < 0 {
		return fmt.Errorf("Некорректные шаги страйков: itm=%d otm=%d", p.ITMSteps, p.OTMSteps)
	}
	switch p.PricingMethod {
	case "top", "average", "depth":
	default:
		return fmt.Errorf("Неизвестный метод ценообразования: %s", p.PricingMethod)
	}
	switch p.FanOutMode {
	case models.FanOutBasket, models.FanOutParallel:
	default:
		return fmt.Errorf("Неизвестный режим разнесения базовых ног: %s", p.FanOutMode)
	}
	if p.RunState < models.RunStateRunning || p.RunState > models.RunStateExit {
		return fmt.Errorf("Некорректный run_state: %d", p.RunState)
	}
	return nil
}

func (p *Params) Multiplier(userID string) int {
	if m, ok := p.QtyMultiplier[userID]; ok && m > 0 {
		return m
	}
	return 1
}

func secs(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func (p *Params) IOCTimeout() time.Duration     { return secs(p.IOCTimeoutSec) }
func (p *Params) PollInterval() time.Duration   { return time.Duration(p.PollIntervalMs) * time.Millisecond }
func (p *Params) ModifyInterval() time.Duration { return secs(p.ModifyIntervalSec) }
func (p *Params) ObserveWindow() time.Duration  { return secs(p.ObserveWindowSec) }
func (p *Params) ObserveInterval() time.Duration {
	return time.Duration(p.ObserveIntervalMs) * time.Millisecond
}
func (p *Params) CaseWindow() time.Duration { return secs(p.CaseWindowSec) }
func (p *Params) HubObserve() time.Duration { return secs(p.HubObserveSec) }
func (p *Params) HubSleep() time.Duration   { return secs(p.HubSleepSec) }
