package store

import (
	"boxbot/internal/models"
	"context"
	"errors"
)

var ErrNotFound = errors.New("Запись не найдена в хранилище.")

// Store — внешнее хранилище: стаканы, записи ордеров, параметры,
// справочники и аудит исполнения.
type Store interface {
	LegLadder(ctx context.Context, streamingKey string) (models.DepthLadder, error)
	SetLegLadder(ctx context.Context, streamingKey string, ladder models.DepthLadder) error
	OrderRecord(ctx context.Context, userID, remark, orderID string) (models.OrderRecord, error)
	ResolveTradingSymbol(ctx context.Context, streamingSymbol string) (string, error)
	LotSize(ctx context.Context, symbol string) (int, error)
	UserIDs(ctx context.Context) ([]string, error)
	UserAPIKey(ctx context.Context, userID string) (string, error)
	ParamsRaw(ctx context.Context, key string) ([]byte, error)
	UnderlyingPrice(ctx context.Context, symbol string) (float64, error)
	PublishExecution(ctx context.Context, rec models.TrackRecord) error
}
