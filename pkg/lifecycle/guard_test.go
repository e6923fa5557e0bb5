package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/commerce"
	"github.com/Ramsey-B/fern/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type stubStore struct {
	order       *models.Order
	readErr     error
	cancelErr   error
	cancelCalls int
}

func (s *stubStore) OrderByID(ctx context.Context, orderID int64) (*models.Order, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.order, nil
}

func (s *stubStore) CancelOrder(ctx context.Context, orderID int64, customerID int64, reason models.CancelReason) (*models.Order, error) {
	s.cancelCalls++
	if s.cancelErr != nil {
		return nil, s.cancelErr
	}

	cancelled := *s.order
	cancelled.FulfillmentStatus = models.StatusCancelled
	cancelled.CancelReason = &reason
	now := time.Now().UTC()
	cancelled.CancelledAt = &now
	return &cancelled, nil
}

func pendingOrder(customerID int64) *models.Order {
	return &models.Order{
		ID:                50,
		CustomerID:        customerID,
		FulfillmentStatus: models.StatusPending,
		Total:             49.99,
	}
}

func TestRequestCancellationSucceeds(t *testing.T) {
	store := &stubStore{order: pendingOrder(1)}
	g := NewGuard(store, testLogger())

	order, err := g.RequestCancellation(context.Background(), 50, 1, models.ReasonWrongSizeColor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, order.FulfillmentStatus)
	require.NotNil(t, order.CancelReason)
	assert.Equal(t, models.ReasonWrongSizeColor, *order.CancelReason)
	assert.NotNil(t, order.CancelledAt)
	assert.Equal(t, 1, store.cancelCalls)
}

func TestRequestCancellationOrderNotFound(t *testing.T) {
	store := &stubStore{readErr: commerce.ErrOrderNotFound}
	g := NewGuard(store, testLogger())

	_, err := g.RequestCancellation(context.Background(), 50, 1, models.ReasonChangedMind)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Zero(t, store.cancelCalls)
}

func TestRequestCancellationReadOutagePropagates(t *testing.T) {
	store := &stubStore{readErr: commerce.ErrUnavailable}
	g := NewGuard(store, testLogger())

	// A backend outage must not masquerade as a missing order.
	_, err := g.RequestCancellation(context.Background(), 50, 1, models.ReasonChangedMind)
	assert.ErrorIs(t, err, commerce.ErrUnavailable)
	assert.NotErrorIs(t, err, ErrOrderNotFound)
	assert.Zero(t, store.cancelCalls)
}

func TestRequestCancellationUnauthorized(t *testing.T) {
	store := &stubStore{order: pendingOrder(2)}
	g := NewGuard(store, testLogger())

	_, err := g.RequestCancellation(context.Background(), 50, 1, models.ReasonChangedMind)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Zero(t, store.cancelCalls, "no mutation on ownership failure")
}

func TestOwnershipCheckPrecedesStatusCheck(t *testing.T) {
	order := pendingOrder(2)
	order.FulfillmentStatus = models.StatusDelivered
	store := &stubStore{order: order}
	g := NewGuard(store, testLogger())

	// Another customer's order is Unauthorized regardless of status.
	_, err := g.RequestCancellation(context.Background(), 50, 1, models.ReasonChangedMind)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRequestCancellationInvalidReason(t *testing.T) {
	store := &stubStore{order: pendingOrder(1)}
	g := NewGuard(store, testLogger())

	_, err := g.RequestCancellation(context.Background(), 50, 1, "because")
	assert.ErrorIs(t, err, ErrInvalidReason)
	assert.Zero(t, store.cancelCalls)
}

func TestRequestCancellationShippingCarriesRemediation(t *testing.T) {
	tracking := "VN123"
	store := &stubStore{order: &models.Order{
		ID:                50,
		CustomerID:        1,
		FulfillmentStatus: models.StatusShipping,
		TrackingNumber:    &tracking,
	}}
	g := NewGuard(store, testLogger())

	_, err := g.RequestCancellation(context.Background(), 50, 1, models.ReasonChangedMind)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, models.StatusShipping, statusErr.Status)
	assert.Contains(t, statusErr.Remediation, "refuse the delivery")
	assert.Contains(t, statusErr.Remediation, "return")
	assert.Zero(t, store.cancelCalls, "no mutation on status failure")
}

func TestRequestCancellationDeliveredCarriesRemediation(t *testing.T) {
	order := pendingOrder(1)
	order.FulfillmentStatus = models.StatusDelivered
	store := &stubStore{order: order}
	g := NewGuard(store, testLogger())

	_, err := g.RequestCancellation(context.Background(), 50, 1, models.ReasonChangedMind)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, models.StatusDelivered, statusErr.Status)
	assert.Contains(t, statusErr.Remediation, "return or refund")
}

func TestRequestCancellationAlreadyCancelledHasNoRemediation(t *testing.T) {
	order := pendingOrder(1)
	order.FulfillmentStatus = models.StatusCancelled
	store := &stubStore{order: order}
	g := NewGuard(store, testLogger())

	_, err := g.RequestCancellation(context.Background(), 50, 1, models.ReasonChangedMind)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, models.StatusCancelled, statusErr.Status)
	assert.Empty(t, statusErr.Remediation)
}

func TestEveryNonPendingStatusIsDenied(t *testing.T) {
	for _, status := range []models.FulfillmentStatus{
		models.StatusConfirmed,
		models.StatusShipping,
		models.StatusDelivered,
		models.StatusCancelled,
	} {
		order := pendingOrder(1)
		order.FulfillmentStatus = status
		store := &stubStore{order: order}
		g := NewGuard(store, testLogger())

		_, err := g.RequestCancellation(context.Background(), 50, 1, models.ReasonChangedMind)

		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr, "status %s", status)
		assert.Zero(t, store.cancelCalls, "status %s must not mutate", status)
		if status != models.StatusCancelled {
			assert.NotEmpty(t, statusErr.Remediation, "status %s needs a remediation suggestion", status)
		}
	}
}

func TestRequestCancellationBackendErrorPropagates(t *testing.T) {
	store := &stubStore{order: pendingOrder(1), cancelErr: errors.New("backend down")}
	g := NewGuard(store, testLogger())

	_, err := g.RequestCancellation(context.Background(), 50, 1, models.ReasonChangedMind)
	assert.EqualError(t, err, "backend down")
}
