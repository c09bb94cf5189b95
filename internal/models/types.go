package models

import "time"

type OrderSide string
type OrderType string
type OrderDuration string
type OrderStatus string
type OptionType string
type Trend string
type ObservationAction string
type PairKey string
type FanOutMode string
type RunState int

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"

	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"

	OrderDurationDay OrderDuration = "DAY"
	OrderDurationIOC OrderDuration = "IOC"

	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"

	OptionTypeCall OptionType = "CE"
	OptionTypePut  OptionType = "PE"

	TrendStable     Trend = "STABLE"
	TrendIncreasing Trend = "INCREASING"
	TrendDecreasing Trend = "DECREASING"

	ObservationExecute ObservationAction = "EXECUTE"
	ObservationSkip    ObservationAction = "SKIP"

	PairBuy  PairKey = "BUY_PAIR"
	PairSell PairKey = "SELL_PAIR"

	FanOutBasket   FanOutMode = "basket"
	FanOutParallel FanOutMode = "parallel"

	RunStateRunning RunState = 0
	RunStatePaused  RunState = 1
	RunStateExit    RunState = 2
)

type LegDefinition struct {
	Key          string     `json:"key"`
	Symbol       string     `json:"symbol"`
	Strike       float64    `json:"strike"`
	OptionType   OptionType `json:"option_type"`
	Expiry       int        `json:"expiry"`
	Action       OrderSide  `json:"action"`
	Quantity     int        `json:"quantity"`
	StreamingKey string     `json:"streaming_key"`
}

type DepthLevel struct {
	Price float64 `json:"price"`
	Qty   int     `json:"qty"`
}

type DepthLadder struct {
	Bids []DepthLevel `json:"bids"`
	Asks []DepthLevel `json:"asks"`
}

type OrderIntent struct {
	UserID            string        `json:"user_id"`
	LegKey            string        `json:"leg_key"`
	TradingSymbol     string        `json:"trading_symbol"`
	StreamingSymbol   string        `json:"streaming_symbol"`
	Exchange          string        `json:"exchange"`
	Action            OrderSide     `json:"action"`
	OrderType         OrderType     `json:"order_type"`
	Duration          OrderDuration `json:"duration"`
	Quantity          int           `json:"quantity"`
	SliceQuantity     int           `json:"slice_quantity"`
	LimitPrice        float64       `json:"limit_price"`
	TriggerPrice      float64       `json:"trigger_price"`
	DisclosedQuantity int           `json:"disclosed_quantity"`
	ProductCode       string        `json:"product_code"`
	Remark            string        `json:"remark"`
	OrderID           string        `json:"order_id"`
	PlacedAt          time.Time     `json:"placed_at"`
}

type OrderRecord struct {
	OrderID     string      `json:"order_id"`
	FilledQty   int         `json:"filled_qty"`
	FilledPrice float64     `json:"filled_price"`
	Status      OrderStatus `json:"status"`
}

type ObservationResult struct {
	FirstLeg    string             `json:"first_leg"`
	SecondLeg   string             `json:"second_leg"`
	Trends      map[string]Trend   `json:"trends"`
	Changes     map[string]float64 `json:"changes"`
	Action      ObservationAction  `json:"action"`
	Reason      string             `json:"reason"`
	FinalPrices map[string]float64 `json:"final_prices"`
	ObservedAt  time.Time          `json:"observed_at"`
}

type CaseDecision struct {
	CaseB         bool               `json:"case_b"`
	FirstLeg      string             `json:"first_leg"`
	SecondLeg     string             `json:"second_leg"`
	ExitFirstLeg  string             `json:"exit_first_leg"`
	ExitSecondLeg string             `json:"exit_second_leg"`
	Changes       map[string]float64 `json:"changes"`
	Samples       int                `json:"samples"`
}

type TrackRecord struct {
	ID       string                 `json:"id"`
	Strategy string                 `json:"strategy"`
	Kind     string                 `json:"kind"`
	Stage    string                 `json:"stage"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
	At       time.Time              `json:"at"`
}
