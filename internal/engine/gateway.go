package engine

import (
	"boxbot/internal/broker"
	"boxbot/internal/logger"
	"boxbot/internal/models"
	"boxbot/internal/store"
	"context"
	"time"
)

// Gateway — единая точка работы с брокером и записями ордеров. Состояние
// исполнений не кэшируется: каждый запрос статуса перечитывает хранилище.
type Gateway struct {
	brk broker.Client
	st  store.Store
	log *logger.Logger
}

func NewGateway(brk broker.Client, st store.Store, log *logger.Logger) *Gateway {
	return &Gateway{brk: brk, st: st, log: log}
}

// Place ставит ордер. При ошибке возвращает намерение с пустым OrderID
// вместе с ошибкой — вызывающий обязан проверить идентификатор.
func (g *Gateway) Place(ctx context.Context, intent models.OrderIntent) (models.OrderIntent, error) {
	ack, err := g.brk.PlaceOrder(ctx, intent)
	if err != nil {
		g.log.WithComponent("gateway").WithField("user_id", intent.UserID).WithError(err).Warn("Не удалось поставить ордер.")
		intent.OrderID = ""
		return intent, err
	}
	intent.OrderID = ack.OrderID
	intent.PlacedAt = time.Now()
	g.log.WithComponent("gateway").WithFields(map[string]interface{}{
		"user_id":  intent.UserID,
		"leg":      intent.LegKey,
		"order_id": intent.OrderID,
		"action":   intent.Action,
		"qty":      intent.SliceQuantity,
		"price":    intent.LimitPrice,
	}).Info("Ордер поставлен.")
	return intent, nil
}

// Cancel — best effort: ошибка логируется и возвращается, но не повторяется.
func (g *Gateway) Cancel(ctx context.Context, intent models.OrderIntent) error {
	if err := g.brk.CancelOrder(ctx, intent); err != nil {
		g.log.WithComponent("gateway").WithField("order_id", intent.OrderID).WithError(err).Warn("Не удалось отменить ордер.")
		return err
	}
	g.log.WithComponent("gateway").WithField("order_id", intent.OrderID).Debug("Ордер отменён.")
	return nil
}

func (g *Gateway) Modify(ctx context.Context, intent models.OrderIntent) error {
	if err := g.brk.ModifyOrder(ctx, intent); err != nil {
		g.log.WithComponent("gateway").WithField("order_id", intent.OrderID).WithError(err).Warn("Не удалось изменить ордер.")
		return err
	}
	return nil
}

// Status всегда перечитывает запись ордера из хранилища.
func (g *Gateway) Status(ctx context.Context, userID, remark, orderID string) (models.OrderRecord, error) {
	return g.st.OrderRecord(ctx, userID, remark, orderID)
}
