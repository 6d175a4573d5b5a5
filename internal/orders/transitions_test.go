package orders

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/marketsettle/pkg/enums"
)

var everyStatus = []enums.OrderStatus{
	enums.OrderStatusPending,
	enums.OrderStatusConfirmed,
	enums.OrderStatusProcessing,
	enums.OrderStatusShipped,
	enums.OrderStatusDelivered,
	enums.OrderStatusCancelled,
	enums.OrderStatusReturned,
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to enums.OrderStatus
		want     bool
	}{
		{enums.OrderStatusPending, enums.OrderStatusConfirmed, true},
		{enums.OrderStatusPending, enums.OrderStatusShipped, false},
		{enums.OrderStatusConfirmed, enums.OrderStatusProcessing, true},
		{enums.OrderStatusProcessing, enums.OrderStatusShipped, true},
		{enums.OrderStatusShipped, enums.OrderStatusCancelled, false},
		{enums.OrderStatusShipped, enums.OrderStatusReturned, true},
		{enums.OrderStatusDelivered, enums.OrderStatusReturned, true},
		{enums.OrderStatusDelivered, enums.OrderStatusPending, false},
		{enums.OrderStatusCancelled, enums.OrderStatusPending, false},
		{enums.OrderStatusCancelled, enums.OrderStatusCancelled, true},
		{enums.OrderStatusPending, enums.OrderStatus("lost"), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestAllowedNextReturnsCopy(t *testing.T) {
	next := AllowedNext(enums.OrderStatusPending)
	assert.Equal(t, []enums.OrderStatus{enums.OrderStatusConfirmed, enums.OrderStatusCancelled}, next)
	next[0] = enums.OrderStatusReturned
	assert.Equal(t, enums.OrderStatusConfirmed, AllowedNext(enums.OrderStatusPending)[0])
	assert.Empty(t, AllowedNext(enums.OrderStatusReturned))
}

func TestTerminalStatusesHaveNoExit(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	statuses := make([]interface{}, len(everyStatus))
	for i, s := range everyStatus {
		statuses[i] = s
	}

	properties.Property("terminal statuses only accept themselves", prop.ForAll(
		func(from, to enums.OrderStatus) bool {
			if !from.IsTerminal() {
				return true
			}
			return CanTransition(from, to) == (from == to)
		},
		gen.OneConstOf(statuses...),
		gen.OneConstOf(statuses...),
	))

	properties.Property("allowed transitions agree with AllowedNext", prop.ForAll(
		func(from, to enums.OrderStatus) bool {
			if from == to {
				return CanTransition(from, to)
			}
			listed := false
			for _, s := range AllowedNext(from) {
				if s == to {
					listed = true
				}
			}
			return listed == CanTransition(from, to)
		},
		gen.OneConstOf(statuses...),
		gen.OneConstOf(statuses...),
	))

	properties.TestingRun(t)
}
