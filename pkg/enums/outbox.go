package enums

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder        OutboxAggregateType = "order"
	AggregateSubscription OutboxAggregateType = "subscription"
)

var aggregateTypes = enumOf("aggregate type", AggregateOrder, AggregateSubscription)

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse(value)
}

// OutboxEventType identifies the notification-bearing domain events.
type OutboxEventType string

const (
	EventOrderCreated          OutboxEventType = "order_created"
	EventOrderStatusChanged    OutboxEventType = "order_status_changed"
	EventConsignmentGenerated  OutboxEventType = "consignment_generated"
	EventSubscriptionRenewed   OutboxEventType = "subscription_renewed"
	EventSubscriptionCompleted OutboxEventType = "subscription_completed"
)

var outboxEventTypes = enumOf("outbox event type",
	EventOrderCreated, EventOrderStatusChanged, EventConsignmentGenerated,
	EventSubscriptionRenewed, EventSubscriptionCompleted,
)

func (e OutboxEventType) IsValid() bool { return outboxEventTypes.has(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return outboxEventTypes.parse(value)
}
