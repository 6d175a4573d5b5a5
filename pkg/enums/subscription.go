package enums

// BillingInterval defines the renewal cadence of a subscription.
type BillingInterval string

const (
	BillingIntervalWeekly    BillingInterval = "weekly"
	BillingIntervalMonthly   BillingInterval = "monthly"
	BillingIntervalQuarterly BillingInterval = "quarterly"
	BillingIntervalYearly    BillingInterval = "yearly"
)

var billingIntervals = enumOf("billing interval",
	BillingIntervalWeekly, BillingIntervalMonthly, BillingIntervalQuarterly, BillingIntervalYearly,
)

func (b BillingInterval) String() string { return string(b) }
func (b BillingInterval) IsValid() bool  { return billingIntervals.has(b) }

func ParseBillingInterval(value string) (BillingInterval, error) { return billingIntervals.parse(value) }

// SubscriptionStatus tracks the lifecycle of a recurring product subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusCompleted SubscriptionStatus = "completed"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

var subscriptionStatuses = enumOf("subscription status",
	SubscriptionStatusActive, SubscriptionStatusPaused, SubscriptionStatusCancelled,
	SubscriptionStatusCompleted, SubscriptionStatusExpired,
)

func (s SubscriptionStatus) String() string { return string(s) }
func (s SubscriptionStatus) IsValid() bool  { return subscriptionStatuses.has(s) }

func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	return subscriptionStatuses.parse(value)
}

// RenewalStatus records the outcome of one billing attempt.
type RenewalStatus string

const (
	RenewalStatusCreated RenewalStatus = "created"
	RenewalStatusSkipped RenewalStatus = "skipped"
	RenewalStatusFailed  RenewalStatus = "failed"
)

var renewalStatuses = enumOf("renewal status", RenewalStatusCreated, RenewalStatusSkipped, RenewalStatusFailed)

func (r RenewalStatus) String() string { return string(r) }
func (r RenewalStatus) IsValid() bool  { return renewalStatuses.has(r) }

func ParseRenewalStatus(value string) (RenewalStatus, error) { return renewalStatuses.parse(value) }
