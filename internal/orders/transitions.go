package orders

import "github.com/angelmondragon/marketsettle/pkg/enums"

var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusConfirmed, enums.OrderStatusCancelled},
	enums.OrderStatusConfirmed:  {enums.OrderStatusProcessing, enums.OrderStatusCancelled},
	enums.OrderStatusProcessing: {enums.OrderStatusShipped, enums.OrderStatusCancelled},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered, enums.OrderStatusReturned},
	enums.OrderStatusDelivered:  {enums.OrderStatusReturned},
	enums.OrderStatusCancelled:  nil,
	enums.OrderStatusReturned:   nil,
}

// AllowedNext lists the statuses reachable from from, excluding from itself.
func AllowedNext(from enums.OrderStatus) []enums.OrderStatus {
	next := allowedTransitions[from]
	out := make([]enums.OrderStatus, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether from may move to to. Staying in the same
// status is always allowed and records a note only.
func CanTransition(from, to enums.OrderStatus) bool {
	if !to.IsValid() {
		return false
	}
	if from == to {
		return true
	}
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
