package courier

import (
	"strings"

	"github.com/angelmondragon/marketsettle/pkg/enums"
)

var statusMap = map[string]enums.OrderStatus{
	"created":          enums.OrderStatusConfirmed,
	"confirmed":        enums.OrderStatusConfirmed,
	"pending":          enums.OrderStatusPending,
	"assigned":         enums.OrderStatusProcessing,
	"processing":       enums.OrderStatusProcessing,
	"picked":           enums.OrderStatusProcessing,
	"picked_up":        enums.OrderStatusProcessing,
	"in_transit":       enums.OrderStatusShipped,
	"shipped":          enums.OrderStatusShipped,
	"out_for_delivery": enums.OrderStatusShipped,
	"delivered":        enums.OrderStatusDelivered,
	"returned":         enums.OrderStatusReturned,
	"cancelled":        enums.OrderStatusCancelled,
	"failed":           enums.OrderStatusCancelled,
}

// NormalizeStatus lowercases a courier status and joins words with
// underscores, so "Out for Delivery" and "out-for-delivery" compare equal.
func NormalizeStatus(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	if s == "canceled" {
		s = "cancelled"
	}
	return s
}

// MapStatus translates a courier status to an order status.
func MapStatus(raw string) (enums.OrderStatus, bool) {
	status, ok := statusMap[NormalizeStatus(raw)]
	return status, ok
}
