package model

import (
	"time"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusConfirmed OrderStatus = "CONFIRMED"
	StatusPreparing OrderStatus = "PREPARING"
	StatusReady     OrderStatus = "READY"
	StatusDelivered OrderStatus = "DELIVERED"
	StatusCancelled OrderStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

type PaymentMethod string

const (
	MethodCash    PaymentMethod = "CASH"
	MethodCard    PaymentMethod = "CARD"
	MethodPayPal  PaymentMethod = "PAYPAL"
	MethodStripe  PaymentMethod = "STRIPE"
	MethodPayTabs PaymentMethod = "PAYTABS"
)

// Order monetary fields are fixed-point cents, never floats.
type Order struct {
	ID               string        `json:"id"`
	RestaurantID     string        `json:"restaurant_id"`
	TableNumber      *int          `json:"table_number,omitempty"` // nil for takeaway/delivery
	Status           OrderStatus   `json:"status"`
	PaymentStatus    PaymentStatus `json:"payment_status"`
	PaymentMethod    PaymentMethod `json:"payment_method,omitempty"`
	PaymentIntentRef string        `json:"payment_intent_ref,omitempty"`
	SubtotalCents    int64         `json:"subtotal_cents"`
	TaxCents         int64         `json:"tax_cents"`
	TipCents         int64         `json:"tip_cents"`
	TotalCents       int64         `json:"total_cents"`
	ConfirmedAt      *time.Time    `json:"confirmed_at,omitempty"`
	PreparedAt       *time.Time    `json:"prepared_at,omitempty"`
	ReadyAt          *time.Time    `json:"ready_at,omitempty"`
	DeliveredAt      *time.Time    `json:"delivered_at,omitempty"`
	CancelledAt      *time.Time    `json:"cancelled_at,omitempty"`
	PaidAt           *time.Time    `json:"paid_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

// Terminal reports whether no further status transition is defined.
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}
