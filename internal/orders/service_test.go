package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle/internal/inventory"
	"github.com/angelmondragon/marketsettle/pkg/db"
	"github.com/angelmondragon/marketsettle/pkg/db/dbtest"
	"github.com/angelmondragon/marketsettle/pkg/db/models"
	"github.com/angelmondragon/marketsettle/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle/pkg/errors"
	"github.com/angelmondragon/marketsettle/pkg/outbox"
)

type stubConsigner struct {
	calls int
	state models.CourierState
}

func (s *stubConsigner) Consign(context.Context, *models.Order) models.CourierState {
	s.calls++
	return s.state
}

type failingEmitter struct{}

func (failingEmitter) Emit(context.Context, *gorm.DB, outbox.DomainEvent) error {
	return errors.New("outbox unavailable")
}

type fixture struct {
	client   *db.Client
	repo     Repository
	svc      Service
	consign  *stubConsigner
	outbox   *outbox.Repository
	product  *models.Product
	ordersDB *gorm.DB
}

func newFixture(t *testing.T, emitter outbox.Emitter) *fixture {
	t.Helper()
	client := dbtest.Client(t)
	repo := NewRepository(client.DB())
	outboxRepo := outbox.NewRepository(client.DB())
	if emitter == nil {
		emitter = outbox.NewService(outboxRepo, nil)
	}
	consign := &stubConsigner{state: models.CourierState{
		Provider:      "steadfast",
		ConsignmentID: "C-100",
		Status:        "created",
		GeneratedBy:   models.CourierGeneratedByAPI,
	}}
	svc, err := NewService(repo, client, inventory.NewLedger(nil, nil), consign, emitter, nil)
	require.NoError(t, err)

	product := &models.Product{Name: "Tea", Stock: 3, IsActive: true, RegularPrice: decimal.NewFromInt(100)}
	require.NoError(t, client.DB().Create(product).Error)

	return &fixture{client: client, repo: repo, svc: svc, consign: consign, outbox: outboxRepo, product: product, ordersDB: client.DB()}
}

// seedOrder stores an order that already reserved two units of the fixture product.
func (f *fixture) seedOrder(t *testing.T, status enums.OrderStatus) *models.Order {
	t.Helper()
	now := time.Now().UTC()
	order := &models.Order{
		OrderNumber:   "MS-" + uuid.NewString()[:8],
		CustomerName:  "Rahim",
		PaymentMethod: "cod",
		OrderStatus:   status,
		PaymentStatus: enums.PaymentStatusPending,
		Subtotal:      decimal.NewFromInt(200),
		Total:         decimal.NewFromInt(200),
		Items: []models.OrderItem{{
			LineKey:   "L001",
			ProductID: f.product.ID,
			Name:      f.product.Name,
			Quantity:  2,
			UnitPrice: decimal.NewFromInt(100),
			LineTotal: decimal.NewFromInt(200),
		}},
	}
	inventory.MarkDeducted(order, []models.InventoryAdjustment{{ProductID: f.product.ID, Quantity: 2, Applied: true}}, now)
	require.NoError(t, f.repo.Create(context.Background(), order))
	return order
}

func (f *fixture) stock(t *testing.T) int {
	t.Helper()
	var p models.Product
	require.NoError(t, f.ordersDB.First(&p, "id = ?", f.product.ID).Error)
	return p.Stock
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	client := dbtest.Client(t)
	repo := NewRepository(client.DB())
	emitter := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	ledger := inventory.NewLedger(nil, nil)

	_, err := NewService(nil, client, ledger, nil, emitter, nil)
	assert.Error(t, err)
	_, err = NewService(repo, nil, ledger, nil, emitter, nil)
	assert.Error(t, err)
	_, err = NewService(repo, client, nil, nil, emitter, nil)
	assert.Error(t, err)
	_, err = NewService(repo, client, ledger, nil, nil, nil)
	assert.Error(t, err)
	_, err = NewService(repo, client, ledger, nil, emitter, nil)
	assert.NoError(t, err)
}

func TestUpdateStatusConfirmSettlesPayment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := f.seedOrder(t, enums.OrderStatusPending)

	updated, err := f.svc.UpdateStatus(ctx, UpdateStatusInput{
		OrderID: order.ID, Status: enums.OrderStatusConfirmed, Note: "called customer", Actor: "admin-1", ActorRole: "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, updated.OrderStatus)
	assert.Equal(t, enums.PaymentStatusCompleted, updated.PaymentStatus)

	stored, err := f.repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, stored.OrderStatus)
	assert.Equal(t, enums.PaymentStatusCompleted, stored.PaymentStatus)
	require.Len(t, stored.StatusTimeline, 1)
	assert.Equal(t, "called customer", stored.StatusTimeline[0].Note)
	assert.Equal(t, "admin-1", stored.StatusTimeline[0].Actor)
	assert.Equal(t, "200.00", stored.Total.StringFixed(2))

	events, err := f.outbox.ListByAggregate(ctx, enums.AggregateOrder, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderStatusChanged, events[0].EventType)
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	f := newFixture(t, nil)
	order := f.seedOrder(t, enums.OrderStatusShipped)

	_, err := f.svc.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID: order.ID, Status: enums.OrderStatusCancelled, Actor: "admin-1",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []enums.OrderStatus{enums.OrderStatusDelivered, enums.OrderStatusReturned}, details["allowed"])

	stored, err := f.repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusShipped, stored.OrderStatus)
	assert.Empty(t, stored.StatusTimeline)
}

func TestUpdateStatusValidatesInput(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.UpdateStatus(context.Background(), UpdateStatusInput{Status: enums.OrderStatusConfirmed, Actor: "a"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = f.svc.UpdateStatus(context.Background(), UpdateStatusInput{OrderID: uuid.New(), Status: "lost", Actor: "a"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = f.svc.UpdateStatus(context.Background(), UpdateStatusInput{OrderID: uuid.New(), Status: enums.OrderStatusConfirmed, Actor: "a"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestCancelRestoresInventoryOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := f.seedOrder(t, enums.OrderStatusPending)

	updated, err := f.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: enums.OrderStatusCancelled, Actor: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusFailed, updated.PaymentStatus)
	assert.Equal(t, 5, f.stock(t))

	_, err = f.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: enums.OrderStatusCancelled, Note: "again", Actor: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, 5, f.stock(t))

	stored, err := f.repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, stored.ShippingMeta.Inventory.Restored)
	assert.Equal(t, "cancelled", stored.ShippingMeta.Inventory.RestoredReason)
	assert.Len(t, stored.StatusTimeline, 2)
}

func TestReturnAfterDeliveryRestoresInventory(t *testing.T) {
	f := newFixture(t, nil)
	order := f.seedOrder(t, enums.OrderStatusDelivered)
	order.PaymentStatus = enums.PaymentStatusCompleted
	require.NoError(t, f.repo.SaveState(context.Background(), order))

	updated, err := f.svc.UpdateStatus(context.Background(), UpdateStatusInput{OrderID: order.ID, Status: enums.OrderStatusReturned, Actor: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusFailed, updated.PaymentStatus)
	assert.Equal(t, 5, f.stock(t))
}

func TestShippingGeneratesConsignment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := f.seedOrder(t, enums.OrderStatusProcessing)

	updated, err := f.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: enums.OrderStatusShipped, Actor: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.consign.calls)
	assert.Equal(t, "C-100", updated.ShippingMeta.Courier.ConsignmentID)

	stored, err := f.repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "C-100", stored.ShippingMeta.Courier.ConsignmentID)
	assert.True(t, stored.ShippingMeta.Inventory.Deducted)

	events, err := f.outbox.ListByAggregate(ctx, enums.AggregateOrder, order.ID)
	require.NoError(t, err)
	types := make([]enums.OutboxEventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.EventType)
	}
	assert.ElementsMatch(t, []enums.OutboxEventType{enums.EventOrderStatusChanged, enums.EventConsignmentGenerated}, types)
}

func TestShippingKeepsExistingConsignment(t *testing.T) {
	f := newFixture(t, nil)
	order := f.seedOrder(t, enums.OrderStatusProcessing)
	order.ShippingMeta.Courier = models.CourierState{ConsignmentID: "EXISTING"}
	require.NoError(t, f.repo.SaveState(context.Background(), order))

	updated, err := f.svc.UpdateStatus(context.Background(), UpdateStatusInput{OrderID: order.ID, Status: enums.OrderStatusShipped, Actor: "admin-1"})
	require.NoError(t, err)
	assert.Zero(t, f.consign.calls)
	assert.Equal(t, "EXISTING", updated.ShippingMeta.Courier.ConsignmentID)
}

func TestOutboxFailureDoesNotFailStatusChange(t *testing.T) {
	f := newFixture(t, failingEmitter{})
	order := f.seedOrder(t, enums.OrderStatusPending)

	updated, err := f.svc.UpdateStatus(context.Background(), UpdateStatusInput{OrderID: order.ID, Status: enums.OrderStatusConfirmed, Actor: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, updated.OrderStatus)
}

func TestApplyCourierUpdate(t *testing.T) {
	delivered := enums.OrderStatusDelivered
	pending := enums.OrderStatusPending

	t.Run("applies legal mapped status", func(t *testing.T) {
		f := newFixture(t, nil)
		order := f.seedOrder(t, enums.OrderStatusShipped)
		res, err := f.svc.ApplyCourierUpdate(context.Background(), CourierUpdateInput{
			OrderID:       order.ID,
			Courier:       models.CourierState{ConsignmentID: "C-1", Status: "delivered"},
			CourierStatus: "delivered",
			Status:        &delivered,
			Actor:         "courier-sync",
		})
		require.NoError(t, err)
		assert.True(t, res.Applied)
		assert.Equal(t, enums.OrderStatusDelivered, res.Order.OrderStatus)
		assert.Equal(t, enums.PaymentStatusCompleted, res.Order.PaymentStatus)
		require.Len(t, res.Order.StatusTimeline, 1)
		assert.Equal(t, courierActorRole, res.Order.StatusTimeline[0].ActorRole)
	})

	t.Run("skips illegal transition but keeps tracking data", func(t *testing.T) {
		f := newFixture(t, nil)
		order := f.seedOrder(t, enums.OrderStatusShipped)
		res, err := f.svc.ApplyCourierUpdate(context.Background(), CourierUpdateInput{
			OrderID:       order.ID,
			Courier:       models.CourierState{ConsignmentID: "C-1", Status: "pending"},
			CourierStatus: "pending",
			Status:        &pending,
		})
		require.NoError(t, err)
		assert.False(t, res.Applied)
		assert.NotEmpty(t, res.SkipReason)

		stored, err := f.repo.FindByID(context.Background(), order.ID)
		require.NoError(t, err)
		assert.Equal(t, enums.OrderStatusShipped, stored.OrderStatus)
		assert.Equal(t, "pending", stored.ShippingMeta.Courier.Status)
	})

	t.Run("skips unmapped status", func(t *testing.T) {
		f := newFixture(t, nil)
		order := f.seedOrder(t, enums.OrderStatusShipped)
		res, err := f.svc.ApplyCourierUpdate(context.Background(), CourierUpdateInput{
			OrderID:       order.ID,
			Courier:       models.CourierState{ConsignmentID: "C-1", Status: "hold"},
			CourierStatus: "hold",
		})
		require.NoError(t, err)
		assert.False(t, res.Applied)
		assert.Contains(t, res.SkipReason, "hold")
	})
}
