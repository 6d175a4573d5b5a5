package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/angelmondragon/marketsettle/pkg/config"
	pkgerrors "github.com/angelmondragon/marketsettle/pkg/errors"
)

const responseBodyReadLimit int64 = 1024

// Client talks to a courier provider's HTTP JSON API.
type Client struct {
	httpClient *http.Client
	cfg        config.CourierConfig
	limiter    *rate.Limiter
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client. Its timeout is replaced
// by the configured courier timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			clone := *client
			c.httpClient = &clone
		}
	}
}

// WithLimiter shares a request pacer across clients.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = limiter
	}
}

// NewLimiter paces outbound calls at rps requests per second. A
// non-positive rps disables pacing.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func NewClient(cfg config.CourierConfig, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "courier base url not configured")
	}
	client := &Client{cfg: cfg, httpClient: &http.Client{}}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	client.httpClient.Timeout = cfg.Timeout()
	if client.limiter == nil {
		client.limiter = NewLimiter(cfg.RequestsPerSecond)
	}
	return client, nil
}

// ConsignmentRequest is the order data a provider needs to book a pickup.
type ConsignmentRequest struct {
	Invoice          string  `json:"invoice"`
	RecipientName    string  `json:"recipient_name"`
	RecipientPhone   string  `json:"recipient_phone"`
	RecipientAddress string  `json:"recipient_address"`
	CODAmount        float64 `json:"cod_amount"`
	ItemCount        int     `json:"item_count"`
	Note             string  `json:"note,omitempty"`
}

// Consignment is what the provider reported for a new booking.
type Consignment struct {
	ConsignmentID  string
	TrackingNumber string
	TrackingURL    string
	LabelURL       string
	Status         string
}

// Tracking is the provider's current view of a consignment.
type Tracking struct {
	Status string
	Events []Event
	Raw    map[string]any
}

// Event is one tracking history row.
type Event struct {
	Status   string
	Message  string
	Location string
	At       string
	Raw      map[string]any
}

// CreateConsignment books a consignment. A response without a consignment
// id is an error.
func (c *Client) CreateConsignment(ctx context.Context, req ConsignmentRequest) (*Consignment, error) {
	body, err := c.do(ctx, http.MethodPost, c.endpoint(c.cfg.ConsignmentPath), req)
	if err != nil {
		return nil, err
	}
	out := &Consignment{
		ConsignmentID:  firstString(body, consignmentIDCandidates),
		TrackingNumber: firstString(body, trackingNumberCandidates),
		TrackingURL:    firstString(body, trackingURLCandidates),
		LabelURL:       firstString(body, labelURLCandidates),
		Status:         firstString(body, statusCandidates),
	}
	if out.ConsignmentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "courier response missing consignment id")
	}
	return out, nil
}

// Track fetches the tracking state for a consignment id or tracking code.
func (c *Client) Track(ctx context.Context, reference string) (*Tracking, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "consignment reference is required")
	}
	body, err := c.do(ctx, http.MethodGet, c.trackingURL(reference), nil)
	if err != nil {
		return nil, err
	}
	tracking := &Tracking{Status: firstString(body, statusCandidates), Raw: body}
	for _, raw := range firstList(body, eventsCandidates) {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		tracking.Events = append(tracking.Events, Event{
			Status:   stringField(m, "status", "delivery_status", "state"),
			Message:  stringField(m, "message", "description", "note"),
			Location: stringField(m, "location", "hub", "city"),
			At:       stringField(m, "at", "time", "timestamp", "created_at", "updated_at"),
			Raw:      m,
		})
	}
	return tracking, nil
}

func (c *Client) endpoint(path string) string {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	if path == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(path, "/")
}

// trackingURL fills a {id} or :id placeholder, or appends the reference as
// a consignment_id query parameter.
func (c *Client) trackingURL(reference string) string {
	path := c.cfg.TrackingPath
	escaped := url.PathEscape(reference)
	switch {
	case strings.Contains(path, "{id}"):
		return c.endpoint(strings.ReplaceAll(path, "{id}", escaped))
	case strings.Contains(path, ":id"):
		return c.endpoint(strings.ReplaceAll(path, ":id", escaped))
	default:
		target := c.endpoint(path)
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		return target + sep + "consignment_id=" + url.QueryEscape(reference)
	}
}

func (c *Client) do(ctx context.Context, method, target string, payload any) (map[string]any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "courier request not sent")
	}

	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal courier request")
		}
		reader = bytes.NewReader(raw)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build courier request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.BearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)
	}
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Api-Key", c.cfg.APIKey)
	}
	if c.cfg.SecretKey != "" {
		httpReq.Header.Set("Secret-Key", c.cfg.SecretKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute courier request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"courier request failed")
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode courier response")
	}
	return body, nil
}
