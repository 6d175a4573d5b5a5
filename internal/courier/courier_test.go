package courier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketsettle/internal/inventory"
	"github.com/angelmondragon/marketsettle/internal/orders"
	"github.com/angelmondragon/marketsettle/internal/settings"
	"github.com/angelmondragon/marketsettle/pkg/config"
	"github.com/angelmondragon/marketsettle/pkg/db/dbtest"
	"github.com/angelmondragon/marketsettle/pkg/db/models"
	"github.com/angelmondragon/marketsettle/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle/pkg/errors"
	"github.com/angelmondragon/marketsettle/pkg/outbox"
	"github.com/angelmondragon/marketsettle/pkg/types"
)

func courierConfig(baseURL string) config.CourierConfig {
	return config.CourierConfig{
		Enabled:         true,
		Provider:        "steadfast",
		BaseURL:         baseURL,
		ConsignmentPath: "/create_order",
		TrackingPath:    "/status_by_cid/{id}",
		APIKey:          "key-1",
		SecretKey:       "secret-1",
		BearerToken:     "token-1",
		TimeoutSeconds:  2,
	}
}

func sampleOrder() *models.Order {
	phone := "01712345678"
	return &models.Order{
		OrderNumber:   "ORD-20260510-ABC123",
		CustomerName:  "Rahim",
		CustomerPhone: &phone,
		PaymentMethod: "cod",
		PaymentStatus: enums.PaymentStatusPending,
		Total:         decimal.RequireFromString("230.00"),
		ShippingAddress: types.Address{
			Name: "Rahim", Phone: phone, Line1: "House 4, Road 2", City: "Dhaka", Area: "Banani",
		},
		Items: []models.OrderItem{{Quantity: 2}, {Quantity: 1}},
	}
}

func TestMapStatus(t *testing.T) {
	cases := map[string]enums.OrderStatus{
		"created":          enums.OrderStatusConfirmed,
		"Confirmed":        enums.OrderStatusConfirmed,
		"pending":          enums.OrderStatusPending,
		"picked-up":        enums.OrderStatusProcessing,
		"assigned":         enums.OrderStatusProcessing,
		"In Transit":       enums.OrderStatusShipped,
		"out_for_delivery": enums.OrderStatusShipped,
		"delivered":        enums.OrderStatusDelivered,
		"returned":         enums.OrderStatusReturned,
		"canceled":         enums.OrderStatusCancelled,
		"failed":           enums.OrderStatusCancelled,
	}
	for raw, want := range cases {
		got, ok := MapStatus(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	_, ok := MapStatus("hold")
	assert.False(t, ok)
}

func TestFirstStringWalksCandidates(t *testing.T) {
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"status": 200,
		"data": {"consignment": {"consignment_id": 1424107, "tracking_code": "15BAEB8A"}}
	}`), &body))

	assert.Equal(t, "1424107", firstString(body, consignmentIDCandidates))
	assert.Equal(t, "15BAEB8A", firstString(body, trackingNumberCandidates))
	assert.Equal(t, "200", firstString(body, statusCandidates))
	assert.Empty(t, firstString(body, labelURLCandidates))

	body = nil
	require.NoError(t, json.Unmarshal([]byte(`{"result": {"consignment_id": "C-9", "status": "in_transit"}}`), &body))
	assert.Equal(t, "C-9", firstString(body, consignmentIDCandidates))
	assert.Equal(t, "in_transit", firstString(body, statusCandidates))
}

func TestTrackingURL(t *testing.T) {
	cfg := courierConfig("http://courier.test/api/")
	client, err := NewClient(cfg)
	require.NoError(t, err)
	assert.Equal(t, "http://courier.test/api/status_by_cid/C%2F1", client.trackingURL("C/1"))

	cfg.TrackingPath = "/track/:id/status"
	client, err = NewClient(cfg)
	require.NoError(t, err)
	assert.Equal(t, "http://courier.test/api/track/C1/status", client.trackingURL("C1"))

	cfg.TrackingPath = "/track?format=json"
	client, err = NewClient(cfg)
	require.NoError(t, err)
	assert.Equal(t, "http://courier.test/api/track?format=json&consignment_id=C+1", client.trackingURL("C 1"))

	cfg.TrackingPath = "/track"
	client, err = NewClient(cfg)
	require.NoError(t, err)
	assert.Equal(t, "http://courier.test/api/track?consignment_id=C1", client.trackingURL("C1"))
}

func TestNewClientTimeout(t *testing.T) {
	cfg := courierConfig("http://courier.test")
	cfg.TimeoutSeconds = 0
	client, err := NewClient(cfg)
	require.NoError(t, err)
	assert.Equal(t, "12s", client.httpClient.Timeout.String())

	cfg.TimeoutSeconds = -5
	client, err = NewClient(cfg)
	require.NoError(t, err)
	assert.Equal(t, "1s", client.httpClient.Timeout.String())

	_, err = NewClient(config.CourierConfig{})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeDependency))
}

func TestCreateConsignmentSendsHeadersAndPayload(t *testing.T) {
	var headers http.Header
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/create_order", r.URL.Path)
		headers = r.Header.Clone()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		_, _ = w.Write([]byte(`{"status":200,"consignment":{"consignment_id":77,"tracking_code":"TRK77","status":"in_review"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(courierConfig(srv.URL))
	require.NoError(t, err)
	booked, err := client.CreateConsignment(context.Background(), consignmentRequest(sampleOrder()))
	require.NoError(t, err)

	assert.Equal(t, "77", booked.ConsignmentID)
	assert.Equal(t, "TRK77", booked.TrackingNumber)
	assert.Equal(t, "in_review", booked.Status)
	assert.Equal(t, "Bearer token-1", headers.Get("Authorization"))
	assert.Equal(t, "key-1", headers.Get("Api-Key"))
	assert.Equal(t, "secret-1", headers.Get("Secret-Key"))
	assert.Equal(t, "ORD-20260510-ABC123", payload["invoice"])
	assert.Equal(t, 230.0, payload["cod_amount"])
	assert.Equal(t, 3.0, payload["item_count"])
	assert.Equal(t, "House 4, Road 2, Banani, Dhaka", payload["recipient_address"])
}

func TestCreateConsignmentErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "broken") {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
			return
		}
		_, _ = w.Write([]byte(`{"status":200,"message":"ok"}`))
	}))
	defer srv.Close()

	cfg := courierConfig(srv.URL)
	cfg.ConsignmentPath = "/broken"
	client, err := NewClient(cfg)
	require.NoError(t, err)
	_, err = client.CreateConsignment(context.Background(), ConsignmentRequest{})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeDependency))
	assert.Contains(t, err.Error(), "502")

	cfg.ConsignmentPath = "/ok"
	client, err = NewClient(cfg)
	require.NoError(t, err)
	_, err = client.CreateConsignment(context.Background(), ConsignmentRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing consignment id")
}

func TestConsignerFallsBackWhenAPIUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	consigner := NewConsigner(ConsignerParams{Settings: settings.Static{CourierConfig: courierConfig(url)}})
	order := sampleOrder()
	state := consigner.Consign(context.Background(), order)

	assert.Equal(t, models.CourierGeneratedByLocal, state.GeneratedBy)
	assert.True(t, strings.HasPrefix(state.ConsignmentID, order.OrderNumber+"-"))
	assert.Len(t, state.ConsignmentID, len(order.OrderNumber)+1+localIDSuffixSz)
	assert.Contains(t, state.Warning, "courier API unavailable")
	assert.False(t, state.SyncedFromAPI)
}

func TestConsignerFallsBackWhenDisabled(t *testing.T) {
	cfg := courierConfig("http://courier.test")
	cfg.Enabled = false
	consigner := NewConsigner(ConsignerParams{Settings: settings.Static{CourierConfig: cfg}})

	state := consigner.Consign(context.Background(), sampleOrder())
	assert.Equal(t, models.CourierGeneratedByLocal, state.GeneratedBy)
	assert.Contains(t, state.Warning, "disabled")
}

func TestConsignmentRequestSkipsCODWhenPaid(t *testing.T) {
	order := sampleOrder()
	order.PaymentStatus = enums.PaymentStatusCompleted
	assert.Zero(t, consignmentRequest(order).CODAmount)

	order = sampleOrder()
	order.PaymentMethod = "bkash"
	assert.Zero(t, consignmentRequest(order).CODAmount)
}

type courierHarness struct {
	svc    *Service
	repo   orders.Repository
	outbox *outbox.Repository
}

func newCourierHarness(t *testing.T, cfg config.CourierConfig) *courierHarness {
	t.Helper()
	client := dbtest.Client(t)
	repo := orders.NewRepository(client.DB())
	outboxRepo := outbox.NewRepository(client.DB())
	consigner := NewConsigner(ConsignerParams{Settings: settings.Static{CourierConfig: cfg}})
	ordersSvc, err := orders.NewService(repo, client, inventory.NewLedger(nil, nil), consigner, outbox.NewService(outboxRepo, nil), nil)
	require.NoError(t, err)
	svc, err := NewService(consigner, ordersSvc, repo, nil)
	require.NoError(t, err)
	return &courierHarness{svc: svc, repo: repo, outbox: outboxRepo}
}

func (h *courierHarness) seed(t *testing.T, status enums.OrderStatus, courier models.CourierState) *models.Order {
	t.Helper()
	return h.seedAt(t, status, courier, time.Time{})
}

// seedAt pins created_at; a zero time leaves it to the database.
func (h *courierHarness) seedAt(t *testing.T, status enums.OrderStatus, courier models.CourierState, createdAt time.Time) *models.Order {
	t.Helper()
	order := sampleOrder()
	order.CreatedAt = createdAt
	order.OrderNumber = orders.NewNumber("ORD", time.Now())
	order.OrderStatus = status
	order.ShippingMeta.Courier = courier
	order.Items = nil
	require.NoError(t, h.repo.Create(context.Background(), order))
	return order
}

func TestGeneratePersistsConsignment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"consignment":{"consignment_id":"C-501","tracking_code":"T-501"}}`))
	}))
	defer srv.Close()

	h := newCourierHarness(t, courierConfig(srv.URL))
	order := h.seed(t, enums.OrderStatusProcessing, models.CourierState{})

	updated, err := h.svc.Generate(context.Background(), order.ID, "admin-1", false)
	require.NoError(t, err)
	assert.Equal(t, "C-501", updated.ShippingMeta.Courier.ConsignmentID)
	assert.Equal(t, models.CourierGeneratedByAPI, updated.ShippingMeta.Courier.GeneratedBy)
	assert.Equal(t, enums.OrderStatusProcessing, updated.OrderStatus)

	stored, err := h.repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "T-501", stored.ShippingMeta.Courier.TrackingNumber)

	events, err := h.outbox.ListByAggregate(context.Background(), enums.AggregateOrder, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventConsignmentGenerated, events[0].EventType)

	_, err = h.svc.Generate(context.Background(), order.ID, "admin-1", false)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict))
}

func TestGenerateRejectsTerminalOrders(t *testing.T) {
	h := newCourierHarness(t, courierConfig("http://courier.test"))
	order := h.seed(t, enums.OrderStatusCancelled, models.CourierState{})
	_, err := h.svc.Generate(context.Background(), order.ID, "admin-1", false)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestSyncAppliesMappedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status_by_cid/C-9", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"delivery_status":"delivered","events":[
			{"status":"in_transit","at":"2026-05-09T10:00:00Z","message":"left hub"},
			{"status":"delivered","at":"2026-05-10T08:00:00Z","message":"handed over"}
		]}}`))
	}))
	defer srv.Close()

	h := newCourierHarness(t, courierConfig(srv.URL))
	order := h.seed(t, enums.OrderStatusShipped, models.CourierState{
		ConsignmentID: "C-9",
		GeneratedBy:   models.CourierGeneratedByAPI,
		Events:        []models.CourierEvent{{Status: "in_transit", At: "2026-05-09T10:00:00Z", Message: "left hub"}},
	})

	res, err := h.svc.Sync(context.Background(), order.ID, "courier-sync")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	require.NotNil(t, res.MappedStatus)
	assert.Equal(t, enums.OrderStatusDelivered, *res.MappedStatus)

	stored, err := h.repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, stored.OrderStatus)
	assert.Equal(t, enums.PaymentStatusCompleted, stored.PaymentStatus)
	assert.Equal(t, "delivered", stored.ShippingMeta.Courier.Status)
	assert.True(t, stored.ShippingMeta.Courier.SyncedFromAPI)
	assert.NotNil(t, stored.ShippingMeta.Courier.LastSyncedAt)
	assert.Len(t, stored.ShippingMeta.Courier.Events, 2)
}

func TestSyncSkipsIllegalTransition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"pending"}`))
	}))
	defer srv.Close()

	h := newCourierHarness(t, courierConfig(srv.URL))
	order := h.seed(t, enums.OrderStatusShipped, models.CourierState{ConsignmentID: "C-10", GeneratedBy: models.CourierGeneratedByAPI})

	res, err := h.svc.Sync(context.Background(), order.ID, "courier-sync")
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.NotEmpty(t, res.Skipped)
	assert.Equal(t, enums.OrderStatusShipped, res.Order.OrderStatus)
	assert.Equal(t, "pending", res.Order.ShippingMeta.Courier.Status)
}

func TestSyncRejectsLocalConsignments(t *testing.T) {
	h := newCourierHarness(t, courierConfig("http://courier.test"))
	local := h.seed(t, enums.OrderStatusShipped, models.CourierState{ConsignmentID: "L-1", GeneratedBy: models.CourierGeneratedByLocal})
	none := h.seed(t, enums.OrderStatusProcessing, models.CourierState{})

	_, err := h.svc.Sync(context.Background(), local.ID, "admin")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	_, err = h.svc.Sync(context.Background(), none.ID, "admin")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestSyncActiveCountsOutcomes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/A"):
			_, _ = w.Write([]byte(`{"status":"delivered"}`))
		case strings.HasSuffix(r.URL.Path, "/B"):
			_, _ = w.Write([]byte(`{"status":"hold"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	h := newCourierHarness(t, courierConfig(srv.URL))
	h.seed(t, enums.OrderStatusShipped, models.CourierState{ConsignmentID: "A", GeneratedBy: models.CourierGeneratedByAPI})
	h.seed(t, enums.OrderStatusShipped, models.CourierState{ConsignmentID: "B", GeneratedBy: models.CourierGeneratedByAPI})
	h.seed(t, enums.OrderStatusShipped, models.CourierState{ConsignmentID: "C", GeneratedBy: models.CourierGeneratedByAPI})
	h.seed(t, enums.OrderStatusShipped, models.CourierState{ConsignmentID: "L", GeneratedBy: models.CourierGeneratedByLocal})

	summary, err := h.svc.SyncActive(context.Background(), "courier-sync", 10)
	require.Error(t, err)
	assert.Equal(t, SyncSummary{Checked: 3, Applied: 1, Skipped: 1, Failed: 1}, summary)
}

func TestSyncActiveIgnoresOrdersWithoutTrackableConsignment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"delivered"}`))
	}))
	defer srv.Close()

	h := newCourierHarness(t, courierConfig(srv.URL))
	old := time.Now().UTC().Add(-48 * time.Hour)
	for i := 0; i < 3; i++ {
		h.seedAt(t, enums.OrderStatusConfirmed, models.CourierState{}, old.Add(time.Duration(i)*time.Minute))
	}
	h.seedAt(t, enums.OrderStatusProcessing, models.CourierState{ConsignmentID: "L-7", GeneratedBy: models.CourierGeneratedByLocal}, old)
	tracked := h.seed(t, enums.OrderStatusShipped, models.CourierState{ConsignmentID: "D-1", GeneratedBy: models.CourierGeneratedByAPI})

	summary, err := h.svc.SyncActive(context.Background(), "courier-sync", 3)
	require.NoError(t, err)
	assert.Equal(t, SyncSummary{Checked: 1, Applied: 1}, summary)

	stored, err := h.repo.FindByID(context.Background(), tracked.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, stored.OrderStatus)
}

func TestSyncActiveRotatesPastFailingOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/BAD") {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"status":"delivered"}`))
	}))
	defer srv.Close()

	h := newCourierHarness(t, courierConfig(srv.URL))
	old := time.Now().UTC().Add(-time.Hour)
	bad := h.seedAt(t, enums.OrderStatusShipped, models.CourierState{ConsignmentID: "BAD", GeneratedBy: models.CourierGeneratedByAPI}, old)
	good := h.seedAt(t, enums.OrderStatusShipped, models.CourierState{ConsignmentID: "GOOD", GeneratedBy: models.CourierGeneratedByAPI}, old.Add(time.Minute))

	first, err := h.svc.SyncActive(context.Background(), "courier-sync", 1)
	require.Error(t, err)
	assert.Equal(t, SyncSummary{Checked: 1, Failed: 1}, first)

	stored, err := h.repo.FindByID(context.Background(), bad.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CourierCheckedAt)

	second, err := h.svc.SyncActive(context.Background(), "courier-sync", 1)
	require.NoError(t, err)
	assert.Equal(t, SyncSummary{Checked: 1, Applied: 1}, second)

	stored, err = h.repo.FindByID(context.Background(), good.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, stored.OrderStatus)
}
