package enums

// OrderStatus tracks the fulfilment lifecycle of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusReturned   OrderStatus = "returned"
)

var orderStatuses = enumOf("order status",
	OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped,
	OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturned,
)

func (o OrderStatus) String() string { return string(o) }
func (o OrderStatus) IsValid() bool  { return orderStatuses.has(o) }

func ParseOrderStatus(value string) (OrderStatus, error) { return orderStatuses.parse(value) }

// IsTerminal reports whether no further transition may leave this status.
func (o OrderStatus) IsTerminal() bool {
	return o == OrderStatusCancelled || o == OrderStatusReturned
}

// SettlesPayment reports whether entering this status marks a pending
// payment completed.
func (o OrderStatus) SettlesPayment() bool {
	switch o {
	case OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered:
		return true
	}
	return false
}

// ReleasesInventory reports whether entering this status fails the payment
// and restores stock.
func (o OrderStatus) ReleasesInventory() bool {
	return o.IsTerminal()
}

// PaymentStatus tracks whether an order has been paid.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

var paymentStatuses = enumOf("payment status", PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed)

func (p PaymentStatus) String() string { return string(p) }
func (p PaymentStatus) IsValid() bool  { return paymentStatuses.has(p) }

func ParsePaymentStatus(value string) (PaymentStatus, error) { return paymentStatuses.parse(value) }
