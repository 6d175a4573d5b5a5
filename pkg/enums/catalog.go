package enums

// PriceType controls how a product's base price is chosen.
type PriceType string

const (
	PriceTypeFixed PriceType = "fixed"
	PriceTypeBest  PriceType = "best"
	PriceTypeTBA   PriceType = "tba"
)

var priceTypes = enumOf("price type", PriceTypeFixed, PriceTypeBest, PriceTypeTBA)

func (p PriceType) String() string { return string(p) }
func (p PriceType) IsValid() bool  { return priceTypes.has(p) }

func ParsePriceType(value string) (PriceType, error) { return priceTypes.parse(value) }

// MarketplaceType describes how a product is sold.
type MarketplaceType string

const (
	MarketplaceTypeSimple   MarketplaceType = "simple"
	MarketplaceTypeVariable MarketplaceType = "variable"
	MarketplaceTypeGrouped  MarketplaceType = "grouped"
)

var marketplaceTypes = enumOf("marketplace type", MarketplaceTypeSimple, MarketplaceTypeVariable, MarketplaceTypeGrouped)

func (m MarketplaceType) String() string { return string(m) }
func (m MarketplaceType) IsValid() bool  { return marketplaceTypes.has(m) }

func ParseMarketplaceType(value string) (MarketplaceType, error) { return marketplaceTypes.parse(value) }

// ApprovalStatus tracks moderation of a product listing.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

var approvalStatuses = enumOf("approval status", ApprovalStatusPending, ApprovalStatusApproved, ApprovalStatusRejected)

func (a ApprovalStatus) String() string { return string(a) }
func (a ApprovalStatus) IsValid() bool  { return approvalStatuses.has(a) }

func ParseApprovalStatus(value string) (ApprovalStatus, error) { return approvalStatuses.parse(value) }

// VendorStatus tracks vendor onboarding.
type VendorStatus string

const (
	VendorStatusPending   VendorStatus = "pending"
	VendorStatusApproved  VendorStatus = "approved"
	VendorStatusSuspended VendorStatus = "suspended"
)

var vendorStatuses = enumOf("vendor status", VendorStatusPending, VendorStatusApproved, VendorStatusSuspended)

func (v VendorStatus) String() string { return string(v) }
func (v VendorStatus) IsValid() bool  { return vendorStatuses.has(v) }

func ParseVendorStatus(value string) (VendorStatus, error) { return vendorStatuses.parse(value) }
