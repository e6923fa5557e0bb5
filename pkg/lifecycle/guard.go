// Package lifecycle enforces which order mutations a customer may trigger.
// The transition table lives here and nowhere else: "can this order be
// cancelled" is answered in exactly one place.
package lifecycle

import (
	"context"
	"errors"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/commerce"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var (
	// ErrOrderNotFound is returned when the order does not exist.
	ErrOrderNotFound = errors.New("order not found")

	// ErrUnauthorized is returned when the order exists but belongs to a
	// different customer. Never collapsed into ErrOrderNotFound internally;
	// the presentation layer renders both identically to prevent enumeration.
	ErrUnauthorized = errors.New("order belongs to a different customer")

	// ErrInvalidReason is returned when the cancel reason is outside the enum.
	ErrInvalidReason = errors.New("cancel reason is not recognized")
)

// StatusError is a status-specific cancellation denial. Remediation is a fixed
// suggestion the dialogue layer relays verbatim; it is empty only for orders
// that are already cancelled.
type StatusError struct {
	Status      models.FulfillmentStatus
	Remediation string
}

func (e *StatusError) Error() string {
	return "order cannot be cancelled in status " + string(e.Status)
}

// denials is the authoritative table of non-cancellable statuses.
var denials = map[models.FulfillmentStatus]*StatusError{
	models.StatusConfirmed: {
		Status:      models.StatusConfirmed,
		Remediation: "The order is already confirmed and being prepared. Contact support right away and we may still be able to stop it before it ships.",
	},
	models.StatusShipping: {
		Status:      models.StatusShipping,
		Remediation: "The order is already with the carrier. You can refuse the delivery, or request a return after you receive it.",
	},
	models.StatusDelivered: {
		Status:      models.StatusDelivered,
		Remediation: "The order has been delivered. You can request a return or refund under our return policy.",
	},
	models.StatusCancelled: {
		Status: models.StatusCancelled,
	},
}

// OrderStore is the slice of the commerce backend the guard needs: one read
// and one mutation. CancelOrder is invoked at most once per request, and only
// after every check has passed.
type OrderStore interface {
	OrderByID(ctx context.Context, orderID int64) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID int64, customerID int64, reason models.CancelReason) (*models.Order, error)
}

// Guard enforces the order lifecycle state machine.
type Guard struct {
	store  OrderStore
	logger ectologger.Logger
}

// NewGuard creates a new lifecycle guard.
func NewGuard(store OrderStore, logger ectologger.Logger) *Guard {
	return &Guard{store: store, logger: logger}
}

// RequestCancellation attempts the only legal customer-triggered transition,
// pending to cancelled. Checks run in a fixed order: existence, ownership,
// reason, status. No backend mutation happens on any failure path.
func (g *Guard) RequestCancellation(ctx context.Context, orderID int64, customerID int64, reason models.CancelReason) (*models.Order, error) {
	ctx, span := tracing.StartSpan(ctx, "LifecycleGuard.RequestCancellation")
	defer span.End()

	order, err := g.store.OrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, commerce.ErrOrderNotFound) {
			metrics.CancellationsTotal.WithLabelValues("not_found").Inc()
			return nil, ErrOrderNotFound
		}
		metrics.CancellationsTotal.WithLabelValues("backend_error").Inc()
		return nil, err
	}

	// Ownership precedes every other check. The distinct error (and log) keeps
	// cross-customer probing visible even though the user-facing reply is the
	// same as not-found.
	if order.CustomerID != customerID {
		metrics.CancellationsTotal.WithLabelValues("unauthorized").Inc()
		g.logger.WithContext(ctx).WithFields(map[string]any{
			"order_id":    orderID,
			"customer_id": customerID,
			"owner_id":    order.CustomerID,
		}).Warn("cancellation attempt on another customer's order")
		return nil, ErrUnauthorized
	}

	if !models.ValidCancelReason(reason) {
		metrics.CancellationsTotal.WithLabelValues("invalid_reason").Inc()
		return nil, ErrInvalidReason
	}

	if order.FulfillmentStatus != models.StatusPending {
		metrics.CancellationsTotal.WithLabelValues("denied_" + string(order.FulfillmentStatus)).Inc()
		if denial, ok := denials[order.FulfillmentStatus]; ok {
			return nil, denial
		}
		return nil, &StatusError{Status: order.FulfillmentStatus}
	}

	cancelled, err := g.store.CancelOrder(ctx, orderID, customerID, reason)
	if err != nil {
		metrics.CancellationsTotal.WithLabelValues("backend_error").Inc()
		return nil, err
	}

	metrics.CancellationsTotal.WithLabelValues("cancelled").Inc()
	g.logger.WithContext(ctx).WithFields(map[string]any{
		"order_id":    orderID,
		"customer_id": customerID,
		"reason":      string(reason),
	}).Info("order cancelled")

	return cancelled, nil
}
