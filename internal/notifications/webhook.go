package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketsettle/pkg/config"
	"github.com/angelmondragon/marketsettle/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle/pkg/errors"
	"github.com/angelmondragon/marketsettle/pkg/outbox"
)

const responseBodyReadLimit int64 = 512

// Notification is the body posted to the webhook. Template rendering and
// recipient lookup happen on the receiving side.
type Notification struct {
	EventID       string                    `json:"eventId"`
	EventType     enums.OutboxEventType     `json:"eventType"`
	AggregateType enums.OutboxAggregateType `json:"aggregateType"`
	AggregateID   uuid.UUID                 `json:"aggregateId"`
	OccurredAt    time.Time                 `json:"occurredAt"`
	Actor         *outbox.ActorRef          `json:"actor,omitempty"`
	Data          any                       `json:"data"`
}

// WebhookNotifier posts notifications as JSON. A 4xx response other than
// 408 or 429 is reported as a validation error and is not retried.
type WebhookNotifier struct {
	url        string
	token      string
	httpClient *http.Client
}

func NewWebhookNotifier(cfg config.NotifyConfig, httpClient *http.Client) (*WebhookNotifier, error) {
	if strings.TrimSpace(cfg.WebhookURL) == "" {
		return nil, fmt.Errorf("notification webhook url required")
	}
	client := &http.Client{}
	if httpClient != nil {
		clone := *httpClient
		client = &clone
	}
	timeout := cfg.TimeoutSeconds
	if timeout < 1 {
		timeout = 1
	}
	client.Timeout = time.Duration(timeout) * time.Second
	return &WebhookNotifier{url: cfg.WebhookURL, token: cfg.Token, httpClient: client}, nil
}

func (w *WebhookNotifier) Notify(ctx context.Context, n Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "marshal notification")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(raw))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "build notification request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", string(n.EventType))
	req.Header.Set("Idempotency-Key", n.EventID)
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deliver notification")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	cause := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, fmt.Sprintf("notification rejected with status %d", resp.StatusCode))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, fmt.Sprintf("notification webhook returned status %d", resp.StatusCode))
}
