package nuvama

import (
	"boxbot/internal/broker"
	"boxbot/internal/logger"
	"net/http"
	"time"
)

type Client struct {
	baseURL    string
	creds      broker.Credentials
	httpClient *http.Client
	log        *logger.Logger
}

func New(baseURL string, creds broker.Credentials, timeout time.Duration, log *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		creds:   creds,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}
