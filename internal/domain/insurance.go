package domain

type InsuranceKey string

const (
	InsuranceBasic    InsuranceKey = "basic"
	InsuranceStandard InsuranceKey = "standard"
	InsurancePremium  InsuranceKey = "premium"
)

// Valid reports whether k names one of the fixed tiers
func (k InsuranceKey) Valid() bool {
	switch k {
	case InsuranceBasic, InsuranceStandard, InsurancePremium:
		return true
	}
	return false
}

type InsuranceTier struct {
	Key         InsuranceKey `json:"key"`
	PricePerDay Money        `json:"price_per_day"`
	Deductible  Money        `json:"deductible"`
	Coverages   []string     `json:"coverages"`
}

// InsuranceCatalog is the immutable tier table
type InsuranceCatalog map[InsuranceKey]InsuranceTier

// Lookup returns the tier for key, falling back to basic for unknown or empty keys
func (c InsuranceCatalog) Lookup(key InsuranceKey) InsuranceTier {
	if t, ok := c[key]; ok {
		return t
	}
	if t, ok := c[InsuranceBasic]; ok {
		return t
	}
	return InsuranceTier{Key: InsuranceBasic, PricePerDay: Zero, Deductible: Zero}
}
