package broker

import (
	"boxbot/internal/models"
	"context"
)

type PlaceAck struct {
	OrderID    string
	ServerTime string
}

// Client — брокерский шлюз: постановка, модификация и отмена ордеров.
// Исполнения сюда не приходят, их единственный источник — запись ордера
// во внешнем хранилище.
type Client interface {
	PlaceOrder(ctx context.Context, intent models.OrderIntent) (PlaceAck, error)
	ModifyOrder(ctx context.Context, intent models.OrderIntent) error
	CancelOrder(ctx context.Context, intent models.OrderIntent) error
}

// Credentials выдаёт API-ключ пользователя из внешнего хранилища.
type Credentials interface {
	UserAPIKey(ctx context.Context, userID string) (string, error)
}
