package models

import "time"

// FulfillmentStatus is an order's position in its delivery lifecycle.
type FulfillmentStatus string

const (
	StatusPending   FulfillmentStatus = "pending"
	StatusConfirmed FulfillmentStatus = "confirmed"
	StatusShipping  FulfillmentStatus = "shipping"
	StatusDelivered FulfillmentStatus = "delivered"
	StatusCancelled FulfillmentStatus = "cancelled"
)

// CancelReason is the customer-supplied reason for a cancellation. Only the
// enumerated values are accepted.
type CancelReason string

const (
	ReasonChangedMind      CancelReason = "changed_mind"
	ReasonOrderedWrongItem CancelReason = "ordered_wrong_item"
	ReasonWrongSizeColor   CancelReason = "wrong_size_color"
	ReasonFoundBetterPrice CancelReason = "found_better_price"
	ReasonDeliveryTooSlow  CancelReason = "delivery_too_slow"
	ReasonPaymentIssue     CancelReason = "payment_issue"
	ReasonDuplicateOrder   CancelReason = "duplicate_order"
	ReasonOther            CancelReason = "other"
)

// ValidCancelReason reports whether r is a member of the cancel reason enum.
func ValidCancelReason(r CancelReason) bool {
	switch r {
	case ReasonChangedMind, ReasonOrderedWrongItem, ReasonWrongSizeColor,
		ReasonFoundBetterPrice, ReasonDeliveryTooSlow, ReasonPaymentIssue,
		ReasonDuplicateOrder, ReasonOther:
		return true
	}
	return false
}

// Order is a customer order as reported by the commerce backend.
type Order struct {
	ID                int64             `json:"id"`
	CustomerID        int64             `json:"customer_id"`
	FulfillmentStatus FulfillmentStatus `json:"fulfillment_status"`
	Total             float64           `json:"total"`
	CancelReason      *CancelReason     `json:"cancel_reason,omitempty"`
	TrackingNumber    *string           `json:"tracking_number,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	CancelledAt       *time.Time        `json:"cancelled_at,omitempty"`
}
