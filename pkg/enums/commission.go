package enums

// CommissionType selects how a commission rule is evaluated.
type CommissionType string

const (
	CommissionTypeInherit    CommissionType = "inherit"
	CommissionTypePercentage CommissionType = "percentage"
	CommissionTypeFixed      CommissionType = "fixed"
	CommissionTypeHybrid     CommissionType = "hybrid"
)

var commissionTypes = enumOf("commission type",
	CommissionTypeInherit, CommissionTypePercentage, CommissionTypeFixed, CommissionTypeHybrid,
)

func (c CommissionType) String() string { return string(c) }
func (c CommissionType) IsValid() bool  { return commissionTypes.has(c) }

func ParseCommissionType(value string) (CommissionType, error) { return commissionTypes.parse(value) }

// CommissionSource names the tier a commission rule was resolved from.
type CommissionSource string

const (
	CommissionSourceProduct  CommissionSource = "product"
	CommissionSourceCategory CommissionSource = "category"
	CommissionSourceVendor   CommissionSource = "vendor"
	CommissionSourceGlobal   CommissionSource = "global"
	CommissionSourceNone     CommissionSource = "none"
)

var commissionSources = enumOf("commission source",
	CommissionSourceProduct, CommissionSourceCategory, CommissionSourceVendor,
	CommissionSourceGlobal, CommissionSourceNone,
)

func (c CommissionSource) String() string { return string(c) }
func (c CommissionSource) IsValid() bool  { return commissionSources.has(c) }

func ParseCommissionSource(value string) (CommissionSource, error) {
	return commissionSources.parse(value)
}

// RiskTier classifies a customer by historical delivery success.
type RiskTier string

const (
	RiskTierNew         RiskTier = "new"
	RiskTierTrusted     RiskTier = "trusted"
	RiskTierMedium      RiskTier = "medium"
	RiskTierHigh        RiskTier = "high"
	RiskTierBlacklisted RiskTier = "blacklisted"
)

var riskTiers = enumOf("risk tier", RiskTierNew, RiskTierTrusted, RiskTierMedium, RiskTierHigh, RiskTierBlacklisted)

func (r RiskTier) String() string { return string(r) }
func (r RiskTier) IsValid() bool  { return riskTiers.has(r) }

func ParseRiskTier(value string) (RiskTier, error) { return riskTiers.parse(value) }
