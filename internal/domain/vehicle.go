package domain

type VehicleStatus string

const (
	VehicleStatusActive   VehicleStatus = "ACTIVE"
	VehicleStatusInactive VehicleStatus = "INACTIVE"
)

type Vehicle struct {
	ID            int32         `json:"id"`
	OwnerID       int32         `json:"owner_id"`
	Name          string        `json:"name"`
	DailyRate     Money         `json:"daily_rate"`
	CleaningFee   Money         `json:"cleaning_fee"`
	Deposit       Money         `json:"deposit"`
	MinRentalDays int           `json:"min_rental_days"`
	Status        VehicleStatus `json:"status"`
}

// RateCard is the read-only pricing input derived from a vehicle and the fee policy
type RateCard struct {
	DailyRate      Money `json:"daily_rate"`
	CleaningFee    Money `json:"cleaning_fee"`
	ServiceFeeRate Money `json:"service_fee_rate"`
	TaxRate        Money `json:"tax_rate"`
	Deposit        Money `json:"deposit"`
}
