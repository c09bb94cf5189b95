package feed

import (
	"boxbot/internal/logger"
	"boxbot/internal/models"
	"boxbot/internal/store"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Ingester подписывается на поток глубины по списку ключей и кладёт
// свежие снимки стаканов во внешнее хранилище, откуда их читает движок.
type Ingester struct {
	url   string
	store store.Store
	log   *logger.Logger

	mu   sync.Mutex
	keys []string
	conn *websocket.Conn

	reconnectMin time.Duration
	reconnectMax time.Duration
}

func New(url string, st store.Store, log *logger.Logger) *Ingester {
	return &Ingester{
		url:          url,
		store:        st,
		log:          log,
		reconnectMin: 1 * time.Second,
		reconnectMax: 30 * time.Second,
	}
}

func (f *Ingester) logEntry() *logrus.Entry {
	return f.log.WithComponent("feed")
}

// SetKeys подменяет набор подписок; применяется при следующем подключении.
func (f *Ingester) SetKeys(keys []string) {
	f.mu.Lock()
	f.keys = append([]string(nil), keys...)
	f.mu.Unlock()
}

type depthMessage struct {
	Key  string              `json:"key"`
	Bids []models.DepthLevel `json:"bids"`
	Asks []models.DepthLevel `json:"asks"`
}

type subscribeRequest struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

func (f *Ingester) Run(ctx context.Context) {
	backoff := f.reconnectMin
	for {
		if ctx.Err() != nil {
			return
		}
		if err := f.connect(ctx); err != nil {
			f.logEntry().WithError(err).Warn("Не удалось подключиться к фиду глубины.")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = f.nextBackoff(backoff)
			continue
		}
		backoff = f.reconnectMin
		f.readLoop(ctx)
	}
}

func (f *Ingester) connect(ctx context.Context) error {
	f.logEntry().WithField("url", f.url).Info("Подключение к фиду глубины.")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("Не удалось подключиться к WS: %w", err)
	}
	conn.SetReadLimit(2 << 20)

	f.mu.Lock()
	f.conn = conn
	keys := append([]string(nil), f.keys...)
	f.mu.Unlock()

	if len(keys) > 0 {
		if err := conn.WriteJSON(subscribeRequest{Op: "subscribe", Args: keys}); err != nil {
			conn.Close()
			return fmt.Errorf("Не удалось подписаться на глубину: %w", err)
		}
	}

	f.logEntry().WithField("keys", len(keys)).Info("Фид глубины подключён.")
	return nil
}

func (f *Ingester) readLoop(ctx context.Context) {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				f.logEntry().WithError(err).Warn("Ошибка чтения фида глубины.")
			}
			return
		}

		var msg depthMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			f.logEntry().WithError(err).Warn("Не удалось разобрать сообщение фида.")
			continue
		}
		if msg.Key == "" {
			continue
		}

		ladder := models.DepthLadder{Bids: msg.Bids, Asks: msg.Asks}
		if err := f.store.SetLegLadder(ctx, msg.Key, ladder); err != nil && ctx.Err() == nil {
			f.logEntry().WithError(err).Warn("Не удалось сохранить стакан.")
		}
	}
}

func (f *Ingester) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > f.reconnectMax {
		return f.reconnectMax
	}
	return next
}
