// Package courier books consignments with the configured courier provider
// and keeps order shipping data in step with its tracking API.
package courier

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketsettle/internal/orders"
	"github.com/angelmondragon/marketsettle/pkg/db/models"
	"github.com/angelmondragon/marketsettle/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle/pkg/errors"
	"github.com/angelmondragon/marketsettle/pkg/logger"
)

// syncableStatuses are the order statuses whose consignments still move.
var syncableStatuses = []enums.OrderStatus{
	enums.OrderStatusConfirmed,
	enums.OrderStatusProcessing,
	enums.OrderStatusShipped,
}

// SyncResult reports one tracking sync.
type SyncResult struct {
	Order         *models.Order
	CourierStatus string
	MappedStatus  *enums.OrderStatus
	Applied       bool
	Skipped       string
}

// SyncSummary aggregates a batch sync.
type SyncSummary struct {
	Checked int
	Applied int
	Skipped int
	Failed  int
}

// Service persists consignments and tracking updates on orders.
type Service struct {
	consigner *Consigner
	orders    orders.Service
	repo      orders.Repository
	logg      *logger.Logger
}

func NewService(consigner *Consigner, ordersSvc orders.Service, repo orders.Repository, logg *logger.Logger) (*Service, error) {
	if consigner == nil {
		return nil, fmt.Errorf("consigner required")
	}
	if ordersSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{consigner: consigner, orders: ordersSvc, repo: repo, logg: logg}, nil
}

// Generate books a consignment for an order. An existing consignment is
// only replaced when force is set.
func (s *Service) Generate(ctx context.Context, orderID uuid.UUID, actor string, force bool) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.OrderStatus.IsTerminal() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "cannot book a consignment for a %s order", order.OrderStatus)
	}
	if order.ShippingMeta.Courier.HasConsignment() && !force {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already has a consignment").
			WithDetails(map[string]any{"consignment_id": order.ShippingMeta.Courier.ConsignmentID})
	}

	state := s.consigner.Consign(ctx, order)
	res, err := s.orders.ApplyCourierUpdate(ctx, orders.CourierUpdateInput{
		OrderID:   order.ID,
		Courier:   state,
		Generated: true,
		Actor:     actor,
	})
	if err != nil {
		return nil, err
	}
	return res.Order, nil
}

// Sync pulls tracking for an API-booked consignment, merges it into the
// order and applies the mapped order status when the transition is legal.
func (s *Service) Sync(ctx context.Context, orderID uuid.UUID, actor string) (*SyncResult, error) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	current := order.ShippingMeta.Courier
	if !current.HasConsignment() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order has no consignment")
	}
	if current.GeneratedBy == models.CourierGeneratedByLocal {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "locally generated consignments cannot be tracked")
	}

	if err := s.repo.MarkCourierChecked(ctx, order.ID, s.consigner.now()); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "stamp courier check")
	}
	client, _, problem := s.consigner.client(ctx)
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, problem)
	}
	tracking, err := client.Track(ctx, current.ConsignmentID)
	if err != nil {
		return nil, err
	}

	merged := mergeTracking(current, tracking, s.consigner.now())
	in := orders.CourierUpdateInput{
		OrderID:       order.ID,
		Courier:       merged,
		CourierStatus: tracking.Status,
		Actor:         actor,
	}
	var mapped *enums.OrderStatus
	if status, ok := MapStatus(tracking.Status); ok {
		mapped = &status
		in.Status = mapped
	}
	res, err := s.orders.ApplyCourierUpdate(ctx, in)
	if err != nil {
		return nil, err
	}
	return &SyncResult{
		Order:         res.Order,
		CourierStatus: tracking.Status,
		MappedStatus:  mapped,
		Applied:       res.Applied,
		Skipped:       res.SkipReason,
	}, nil
}

// SyncActive syncs up to limit in-flight orders with API consignments,
// least recently checked first. Every attempt stamps the order, so failing
// orders rotate to the back. Failures are counted and combined.
func (s *Service) SyncActive(ctx context.Context, actor string, limit int) (SyncSummary, error) {
	var summary SyncSummary
	candidates, err := s.repo.ListTrackable(ctx, syncableStatuses, limit)
	if err != nil {
		return summary, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders for courier sync")
	}
	var errs error
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return summary, multierr.Append(errs, err)
		}
		summary.Checked++
		res, err := s.Sync(ctx, candidates[i].ID, actor)
		if err != nil {
			summary.Failed++
			errs = multierr.Append(errs, fmt.Errorf("sync order %s: %w", candidates[i].OrderNumber, err))
			continue
		}
		if res.Applied {
			summary.Applied++
		} else if res.Skipped != "" {
			summary.Skipped++
		}
	}
	return summary, errs
}

func mergeTracking(current models.CourierState, tracking *Tracking, now time.Time) models.CourierState {
	out := current
	if tracking.Status != "" {
		out.Status = NormalizeStatus(tracking.Status)
	}
	if v := firstString(tracking.Raw, trackingNumberCandidates); v != "" {
		out.TrackingNumber = v
	}
	if v := firstString(tracking.Raw, trackingURLCandidates); v != "" {
		out.TrackingURL = v
	}
	out.SyncedFromAPI = true
	out.LastSyncedAt = &now
	out.UpdatedAt = &now

	seen := make(map[string]struct{}, len(current.Events)+len(tracking.Events))
	events := make([]models.CourierEvent, 0, len(current.Events)+len(tracking.Events))
	for _, e := range current.Events {
		seen[eventKey(e.Status, e.At, e.Message)] = struct{}{}
		events = append(events, e)
	}
	for _, e := range tracking.Events {
		key := eventKey(e.Status, e.At, e.Message)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		events = append(events, models.CourierEvent{
			Status:   e.Status,
			Message:  e.Message,
			Location: e.Location,
			At:       e.At,
			Raw:      e.Raw,
		})
	}
	out.Events = events
	return out
}

func eventKey(status, at, message string) string {
	return status + "|" + at + "|" + message
}
