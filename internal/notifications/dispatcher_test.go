package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle/pkg/db"
	"github.com/angelmondragon/marketsettle/pkg/db/dbtest"
	"github.com/angelmondragon/marketsettle/pkg/db/models"
	"github.com/angelmondragon/marketsettle/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle/pkg/errors"
	"github.com/angelmondragon/marketsettle/pkg/logger"
	"github.com/angelmondragon/marketsettle/pkg/outbox"
	"github.com/angelmondragon/marketsettle/pkg/outbox/payloads"
)

var deliveredAt = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

type stubNotifier struct {
	err  error
	sent []Notification
}

func (s *stubNotifier) Notify(_ context.Context, n Notification) error {
	s.sent = append(s.sent, n)
	return s.err
}

type dispatchFixture struct {
	conn       *gorm.DB
	repo       *outbox.Repository
	notifier   *stubNotifier
	dispatcher *Dispatcher
}

func newDispatchFixture(t *testing.T, maxAttempts int) dispatchFixture {
	t.Helper()
	conn := dbtest.Open(t)
	repo := outbox.NewRepository(conn)
	notifier := &stubNotifier{}
	dispatcher, err := NewDispatcher(DispatcherParams{
		Logger:            logger.Nop(),
		TransactionRunner: db.FromConn(conn),
		Store:             repo,
		Notifier:          notifier,
		MaxAttempts:       maxAttempts,
		Now:               func() time.Time { return deliveredAt },
	})
	require.NoError(t, err)
	return dispatchFixture{conn: conn, repo: repo, notifier: notifier, dispatcher: dispatcher}
}

func (f dispatchFixture) emitOrderCreated(t *testing.T) uuid.UUID {
	t.Helper()
	orderID := uuid.New()
	err := outbox.NewService(f.repo, logger.Nop()).Emit(context.Background(), f.conn, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         outbox.SystemActor,
		Data: payloads.OrderCreatedEvent{
			OrderID:       orderID,
			OrderNumber:   "MS-20260304-0001",
			Total:         decimal.RequireFromString("230.00"),
			PaymentMethod: "cod",
		},
	})
	require.NoError(t, err)
	return orderID
}

func (f dispatchFixture) event(t *testing.T, aggregateID uuid.UUID) models.OutboxEvent {
	t.Helper()
	rows, err := f.repo.ListByAggregate(context.Background(), enums.AggregateOrder, aggregateID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	return rows[0]
}

func TestNewDispatcherRequiresDependencies(t *testing.T) {
	_, err := NewDispatcher(DispatcherParams{})
	require.Error(t, err)
	_, err = NewDispatcher(DispatcherParams{Logger: logger.Nop(), TransactionRunner: db.FromConn(nil), Store: outbox.NewRepository(nil)})
	require.EqualError(t, err, "notifier required")
}

func TestDispatchBatchDeliversDecodedEvent(t *testing.T) {
	f := newDispatchFixture(t, 3)
	orderID := f.emitOrderCreated(t)

	summary, err := f.dispatcher.DispatchBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, DispatchSummary{Fetched: 1, Delivered: 1}, summary)

	require.Len(t, f.notifier.sent, 1)
	sent := f.notifier.sent[0]
	assert.Equal(t, enums.EventOrderCreated, sent.EventType)
	assert.Equal(t, orderID, sent.AggregateID)
	assert.NotEmpty(t, sent.EventID)
	require.NotNil(t, sent.Actor)
	assert.Equal(t, "system", sent.Actor.Actor)
	created, ok := sent.Data.(payloads.OrderCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, "MS-20260304-0001", created.OrderNumber)

	row := f.event(t, orderID)
	require.NotNil(t, row.PublishedAt)
	assert.True(t, row.PublishedAt.Equal(deliveredAt))

	summary, err = f.dispatcher.DispatchBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, summary.Fetched)
	assert.Len(t, f.notifier.sent, 1)
}

func TestDispatchBatchRetriesDependencyFailures(t *testing.T) {
	f := newDispatchFixture(t, 2)
	f.notifier.err = pkgerrors.New(pkgerrors.CodeDependency, "webhook down")
	orderID := f.emitOrderCreated(t)

	summary, err := f.dispatcher.DispatchBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, DispatchSummary{Fetched: 1, Failed: 1}, summary)
	row := f.event(t, orderID)
	assert.Equal(t, 1, row.AttemptCount)
	assert.Nil(t, row.PublishedAt)
	require.NotNil(t, row.LastError)
	assert.Contains(t, *row.LastError, "webhook down")

	summary, err = f.dispatcher.DispatchBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, DispatchSummary{Fetched: 1, Parked: 1}, summary)
	assert.Equal(t, 2, f.event(t, orderID).AttemptCount)

	summary, err = f.dispatcher.DispatchBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, summary.Fetched)
}

func TestDispatchBatchParksRejectedEvents(t *testing.T) {
	f := newDispatchFixture(t, 5)
	f.notifier.err = pkgerrors.New(pkgerrors.CodeValidation, "unknown template")
	orderID := f.emitOrderCreated(t)

	summary, err := f.dispatcher.DispatchBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Parked)
	assert.Equal(t, 5, f.event(t, orderID).AttemptCount)
}

func TestDispatchBatchParksUndecodableRows(t *testing.T) {
	f := newDispatchFixture(t, 5)
	aggregateID := uuid.New()
	require.NoError(t, f.conn.Create(&models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   aggregateID,
		Payload:       json.RawMessage(`{"version":9,"data":{}}`),
	}).Error)

	summary, err := f.dispatcher.DispatchBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, DispatchSummary{Fetched: 1, Parked: 1}, summary)
	assert.Empty(t, f.notifier.sent)
	assert.Equal(t, 5, f.event(t, aggregateID).AttemptCount)
}

type failingStore struct{ *outbox.Repository }

func (failingStore) FetchUnpublished(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return nil, errors.New("connection reset")
}

func TestDispatchBatchReportsFetchErrors(t *testing.T) {
	conn := dbtest.Open(t)
	dispatcher, err := NewDispatcher(DispatcherParams{
		Logger:            logger.Nop(),
		TransactionRunner: db.FromConn(conn),
		Store:             failingStore{outbox.NewRepository(conn)},
		Notifier:          &stubNotifier{},
	})
	require.NoError(t, err)

	_, err = dispatcher.DispatchBatch(context.Background(), 10)
	require.ErrorContains(t, err, "connection reset")
}
