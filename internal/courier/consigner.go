package courier

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/angelmondragon/marketsettle/internal/settings"
	"github.com/angelmondragon/marketsettle/pkg/db/models"
	"github.com/angelmondragon/marketsettle/pkg/enums"
	"github.com/angelmondragon/marketsettle/pkg/logger"
	"github.com/angelmondragon/marketsettle/pkg/metrics"
)

const (
	localProvider   = "local"
	codPaymentCode  = "cod"
	createdStatus   = "created"
	localIDSuffixSz = 6
)

// Consigner books consignments and never fails: when the courier API is
// disabled, misconfigured or unreachable it returns a locally generated
// consignment carrying a warning.
type Consigner struct {
	settings   settings.Provider
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *metrics.SettlementMetrics
	logg       *logger.Logger
	now        func() time.Time
}

// ConsignerParams groups dependencies for the consigner.
type ConsignerParams struct {
	Settings          settings.Provider
	HTTPClient        *http.Client
	RequestsPerSecond float64
	Metrics           *metrics.SettlementMetrics
	Logger            *logger.Logger
}

func NewConsigner(params ConsignerParams) *Consigner {
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Consigner{
		settings:   params.Settings,
		httpClient: params.HTTPClient,
		limiter:    NewLimiter(params.RequestsPerSecond),
		metrics:    params.Metrics,
		logg:       logg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// client builds an API client from the current courier settings and
// returns the provider name. When the API must not be used the client is
// nil and the label is a fallback reason with problem describing it.
func (c *Consigner) client(ctx context.Context) (client *Client, label string, problem string) {
	if c.settings == nil {
		return nil, "unconfigured", "courier settings unavailable"
	}
	cfg, err := c.settings.Courier(ctx)
	if err != nil {
		return nil, "settings_error", "courier settings unavailable: " + err.Error()
	}
	if !cfg.Enabled {
		return nil, "disabled", "courier integration disabled"
	}
	client, err = NewClient(cfg, WithHTTPClient(c.httpClient), WithLimiter(c.limiter))
	if err != nil {
		return nil, "unconfigured", err.Error()
	}
	return client, cfg.Provider, ""
}

func (c *Consigner) Consign(ctx context.Context, order *models.Order) models.CourierState {
	ctx = c.logg.WithOrderID(ctx, order.ID.String())
	client, label, problem := c.client(ctx)
	if client == nil {
		return c.local(ctx, order, label, problem)
	}
	provider := label

	booked, err := client.CreateConsignment(ctx, consignmentRequest(order))
	if err != nil {
		return c.local(ctx, order, "api_error", "courier API unavailable: "+err.Error())
	}

	now := c.now()
	status := booked.Status
	if status == "" {
		status = createdStatus
	}
	c.logg.Info(c.logg.WithField(ctx, "consignment_id", booked.ConsignmentID), "courier consignment created")
	return models.CourierState{
		Provider:       provider,
		ConsignmentID:  booked.ConsignmentID,
		TrackingNumber: booked.TrackingNumber,
		TrackingURL:    booked.TrackingURL,
		LabelURL:       booked.LabelURL,
		Status:         status,
		SyncedFromAPI:  true,
		GeneratedBy:    models.CourierGeneratedByAPI,
		CreatedAt:      &now,
		UpdatedAt:      &now,
	}
}

func (c *Consigner) local(ctx context.Context, order *models.Order, reason, warning string) models.CourierState {
	c.metrics.IncCourierFallback(reason)
	c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
		"reason":  reason,
		"warning": warning,
	}), "courier consignment generated locally")

	now := c.now()
	id := ulid.Make().String()
	return models.CourierState{
		Provider:      localProvider,
		ConsignmentID: order.OrderNumber + "-" + id[len(id)-localIDSuffixSz:],
		Status:        createdStatus,
		GeneratedBy:   models.CourierGeneratedByLocal,
		Warning:       warning,
		CreatedAt:     &now,
		UpdatedAt:     &now,
	}
}

func consignmentRequest(order *models.Order) ConsignmentRequest {
	addr := order.ShippingAddress
	name := addr.Name
	if name == "" {
		name = order.CustomerName
	}
	phone := addr.Phone
	if phone == "" && order.CustomerPhone != nil {
		phone = *order.CustomerPhone
	}
	req := ConsignmentRequest{
		Invoice:          order.OrderNumber,
		RecipientName:    name,
		RecipientPhone:   phone,
		RecipientAddress: addr.SingleLine(),
		Note:             "order " + order.OrderNumber,
	}
	for _, item := range order.Items {
		req.ItemCount += item.Quantity
	}
	if strings.EqualFold(order.PaymentMethod, codPaymentCode) && order.PaymentStatus != enums.PaymentStatusCompleted {
		req.CODAmount = order.Total.InexactFloat64()
	}
	return req
}
