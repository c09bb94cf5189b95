package nuvama

import (
	"boxbot/internal/broker"
	"boxbot/internal/models"
	"context"
	"fmt"
	"net/http"
)

func formatPrice(price float64) string {
	return fmt.Sprintf("%.2f", price)
}

func (c *Client) PlaceOrder(ctx context.Context, intent models.OrderIntent) (broker.PlaceAck, error) {
	body := map[string]any{
		"trading_symbol":     intent.TradingSymbol,
		"streaming_symbol":   intent.StreamingSymbol,
		"exchange":           intent.Exchange,
		"action":             intent.Action,
		"duration":           intent.Duration,
		"order_type":         intent.OrderType,
		"quantity":           intent.SliceQuantity,
		"limit_price":        formatPrice(intent.LimitPrice),
		"trigger_price":      formatPrice(intent.TriggerPrice),
		"disclosed_quantity": intent.DisclosedQuantity,
		"product_code":       intent.ProductCode,
		"remark":             intent.Remark,
	}

	var data struct {
		OrderID string `json:"oid"`
	}
	env, err := c.doRequest(ctx, http.MethodPost, "/orders/place", intent.UserID, body, &data)
	if err != nil {
		return broker.PlaceAck{}, err
	}
	if data.OrderID == "" {
		return broker.PlaceAck{}, fmt.Errorf("Брокер не вернул идентификатор ордера.")
	}
	return broker.PlaceAck{OrderID: data.OrderID, ServerTime: env.SrvTime}, nil
}

func (c *Client) ModifyOrder(ctx context.Context, intent models.OrderIntent) error {
	body := map[string]any{
		"order_id":       intent.OrderID,
		"trading_symbol": intent.TradingSymbol,
		"exchange":       intent.Exchange,
		"action":         intent.Action,
		"order_type":     intent.OrderType,
		"quantity":       intent.SliceQuantity,
		"limit_price":    formatPrice(intent.LimitPrice),
		"product_code":   intent.ProductCode,
	}
	_, err := c.doRequest(ctx, http.MethodPut, "/orders/modify", intent.UserID, body, nil)
	return err
}

func (c *Client) CancelOrder(ctx context.Context, intent models.OrderIntent) error {
	body := map[string]any{
		"order_id":       intent.OrderID,
		"trading_symbol": intent.TradingSymbol,
		"exchange":       intent.Exchange,
		"action":         intent.Action,
		"order_type":     intent.OrderType,
		"product_code":   intent.ProductCode,
	}
	_, err := c.doRequest(ctx, http.MethodPost, "/orders/cancel", intent.UserID, body, nil)
	return err
}
