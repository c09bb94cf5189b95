package store

import (
	"boxbot/internal/models"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const trackerTTL = 7 * 24 * time.Hour

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr, password string, db int) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: rdb}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func depthKey(streamingKey string) string { return "depth:" + streamingKey }

func (s *RedisStore) LegLadder(ctx context.Context, streamingKey string) (models.DepthLadder, error) {
	b, err := s.client.Get(ctx, depthKey(streamingKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.DepthLadder{}, ErrNotFound
	}
	if err != nil {
		return models.DepthLadder{}, err
	}
	var ladder models.DepthLadder
	if err := json.Unmarshal(b, &ladder); err != nil {
		return models.DepthLadder{}, err
	}
	return ladder, nil
}

func (s *RedisStore) SetLegLadder(ctx context.Context, streamingKey string, ladder models.DepthLadder) error {
	b, err := json.Marshal(ladder)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, depthKey(streamingKey), b, 0).Err()
}

// orderEnvelope — формат записи ордера, который пишет фид брокера.
type orderEnvelope struct {
	Response struct {
		Data struct {
			OrderID     string      `json:"oid"`
			FilledQty   json.Number `json:"fQty"`
			FilledPrice json.Number `json:"avgPrc"`
			Status      string      `json:"sts"`
		} `json:"data"`
	} `json:"response"`
}

func (s *RedisStore) OrderRecord(ctx context.Context, userID, remark, orderID string) (models.OrderRecord, error) {
	key := fmt.Sprintf("order:%s%s%s", userID, remark, orderID)
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.OrderRecord{}, ErrNotFound
	}
	if err != nil {
		return models.OrderRecord{}, err
	}
	var env orderEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return models.OrderRecord{}, err
	}
	rec := models.OrderRecord{OrderID: orderID}
	if env.Response.Data.OrderID != "" {
		rec.OrderID = env.Response.Data.OrderID
	}
	if qty, err := env.Response.Data.FilledQty.Int64(); err == nil {
		rec.FilledQty = int(qty)
	}
	if price, err := env.Response.Data.FilledPrice.Float64(); err == nil {
		rec.FilledPrice = price
	}
	rec.Status = normalizeStatus(env.Response.Data.Status)
	return rec, nil
}

func normalizeStatus(raw string) models.OrderStatus {
	switch raw {
	case "complete", "COMPLETE", "filled", "FILLED":
		return models.OrderStatusFilled
	case "cancelled", "CANCELLED", "canceled", "CANCELED":
		return models.OrderStatusCanceled
	case "rejected", "REJECTED":
		return models.OrderStatusRejected
	case "partial", "PARTIALLY_FILLED":
		return models.OrderStatusPartiallyFilled
	default:
		return models.OrderStatusNew
	}
}

func (s *RedisStore) ResolveTradingSymbol(ctx context.Context, streamingSymbol string) (string, error) {
	val, err := s.client.HGet(ctx, "option_mapper", streamingSymbol).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return val, err
}

func (s *RedisStore) LotSize(ctx context.Context, symbol string) (int, error) {
	val, err := s.client.HGet(ctx, "lotsizes", symbol).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(val)
}

func (s *RedisStore) UserIDs(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, "users").Result()
}

func (s *RedisStore) UserAPIKey(ctx context.Context, userID string) (string, error) {
	b, err := s.client.Get(ctx, "user:"+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	var user struct {
		APIKey string `json:"apikey"`
	}
	if err := json.Unmarshal(b, &user); err != nil {
		return "", err
	}
	if user.APIKey == "" {
		return "", ErrNotFound
	}
	return user.APIKey, nil
}

func (s *RedisStore) ParamsRaw(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *RedisStore) UnderlyingPrice(ctx context.Context, symbol string) (float64, error) {
	val, err := s.client.Get(ctx, "ltp:"+symbol).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(val, 64)
}

func (s *RedisStore) PublishExecution(ctx context.Context, rec models.TrackRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("execution-tracker:%s:%s", rec.Strategy, rec.ID)
	return s.client.Set(ctx, key, b, trackerTTL).Err()
}
