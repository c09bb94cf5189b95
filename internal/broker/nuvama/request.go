package nuvama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type envelope struct {
	Status  string          `json:"stat"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	SrvTime string          `json:"srvTm"`
}

func (c *Client) doRequest(ctx context.Context, method, path, userID string, body any, out any) (envelope, error) {
	apiKey, err := c.creds.UserAPIKey(ctx, userID)
	if err != nil {
		return envelope{}, fmt.Errorf("Нет API-ключа пользователя %s: %w", userID, err)
	}

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return envelope{}, fmt.Errorf("Не удалось подготовить тело запроса: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return envelope{}, fmt.Errorf("Не удалось создать запрос: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return envelope{}, fmt.Errorf("Ошибка запроса: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope{}, fmt.Errorf("Не удалось прочитать ответ: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("Не удалось разобрать ответ: %w", err)
	}

	if resp.StatusCode >= 400 {
		return env, fmt.Errorf("Неуспешный статус: %s (%s)", resp.Status, env.Message)
	}
	if env.Status != "" && env.Status != "Ok" && env.Status != "ok" {
		return env, fmt.Errorf("Ошибка брокера: %s", env.Message)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return env, fmt.Errorf("Не удалось разобрать данные ответа: %w", err)
		}
	}
	return env, nil
}
