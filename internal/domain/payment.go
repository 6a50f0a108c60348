package domain

import "time"

type PaymentOption string

const (
	PaymentOptionFull  PaymentOption = "full"
	PaymentOptionSplit PaymentOption = "split"
)

func (o PaymentOption) Valid() bool {
	return o == PaymentOptionFull || o == PaymentOptionSplit
}

type PaymentStatus string

const (
	PaymentStatusRequiresAction PaymentStatus = "requires_action"
	PaymentStatusSucceeded      PaymentStatus = "succeeded"
	PaymentStatusFailed         PaymentStatus = "failed"
	// Canceled marks an intent superseded by a newer one or released with its booking
	PaymentStatusCanceled PaymentStatus = "canceled"
)

// PaymentIntentRef tracks one provider-side charge attempt for a booking
type PaymentIntentRef struct {
	ID             int32         `json:"id"`
	BookingID      int32         `json:"booking_id"`
	ExternalID     string        `json:"external_id"`
	ClientSecret   string        `json:"client_secret"`
	Amount         Money         `json:"amount"`
	Currency       string        `json:"currency"`
	Status         PaymentStatus `json:"status"`
	IdempotencyKey string        `json:"-"`
	CreatedOn      time.Time     `json:"created_on"`
	UpdatedOn      time.Time     `json:"updated_on"`
}
