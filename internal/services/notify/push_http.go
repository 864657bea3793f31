package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/quickgig/quickgig/pkg/logger"
)

// HTTPPusher delivers pushes through an HTTP gateway endpoint.
type HTTPPusher struct {
	client   *http.Client
	endpoint *url.URL
	apiKey   string
	log      *logger.Logger
}

// NewHTTPPusher constructs a pusher for the given gateway endpoint.
func NewHTTPPusher(client *http.Client, endpoint, apiKey string, log *logger.Logger) (*HTTPPusher, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("push endpoint required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse push endpoint: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("push-http")
	}
	return &HTTPPusher{
		client:   client,
		endpoint: parsed,
		apiKey:   strings.TrimSpace(apiKey),
		log:      log,
	}, nil
}

// Send posts one message to the gateway and returns its message id.
func (p *HTTPPusher) Send(ctx context.Context, deviceToken, title, body string, data map[string]string) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"token": deviceToken,
		"title": title,
		"body":  body,
		"data":  data,
	})
	if err != nil {
		return "", fmt.Errorf("encode push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("push request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("read push response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("push gateway status %d", resp.StatusCode)
	}

	// Gateways differ on the field naming; accept the common spellings.
	for _, field := range []string{"message_id", "messageId", "name", "id"} {
		if id := gjson.GetBytes(raw, field); id.Exists() {
			return id.String(), nil
		}
	}
	return "", nil
}
