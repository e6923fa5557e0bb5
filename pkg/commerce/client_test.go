package commerce

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := testLogger()
	client := NewClient(httpclient.NewClient(httpclient.DefaultConfig(), logger), server.URL, "test-key", logger)
	return client, server
}

func TestSearchProductsUnwrapsProductsEnvelope(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "/internal/products", r.URL.Path)
		assert.Equal(t, "tee", r.URL.Query().Get("search"))

		json.NewEncoder(w).Encode(map[string]any{
			"products": []map[string]any{{"id": 1, "name": "Basic Tee"}},
		})
	}))

	products, err := client.SearchProducts(context.Background(), "tee", 5)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Basic Tee", products[0].Name)
}

func TestSearchProductsUnwrapsDataEnvelope(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"id": 2, "name": "Hoodie"}},
		})
	}))

	products, err := client.SearchProducts(context.Background(), "hoodie", 5)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Hoodie", products[0].Name)
}

func TestSearchProductsAcceptsBareArray(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{{"id": 3, "name": "Socks"}})
	}))

	products, err := client.SearchProducts(context.Background(), "socks", 5)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Socks", products[0].Name)
}

func TestProductByIDNotFound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.ProductByID(context.Background(), 999)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestOrderByIDServerErrorMapsToUnavailable(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.OrderByID(context.Background(), 50)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCancelOrderClientErrorSurfacesAPIError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte("order is not pending"))
	}))

	_, err := client.CancelOrder(context.Background(), 50, 1, models.ReasonChangedMind)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "not pending")
}

func TestCancelOrderSendsReasonAndNeverRetries(t *testing.T) {
	var calls int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/internal/orders/50/cancel", r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "wrong_size_color", payload["cancel_reason"])

		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"id": 50, "customer_id": 1, "fulfillment_status": "cancelled"},
		})
	}))

	order, err := client.CancelOrder(context.Background(), 50, 1, models.ReasonWrongSizeColor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, order.FulfillmentStatus)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestGetRetriesOnceOnTransportFailure(t *testing.T) {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) == 1 {
			// Kill the connection mid-response to force a transport error.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"id": 50, "customer_id": 1, "fulfillment_status": "pending"},
		})
	}))
	t.Cleanup(server.Close)

	logger := testLogger()
	client := NewClient(httpclient.NewClient(httpclient.DefaultConfig(), logger), server.URL, "test-key", logger)

	start := time.Now()
	order, err := client.OrderByID(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), order.ID)
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
	assert.GreaterOrEqual(t, time.Since(start), readRetryBackoff, "the second attempt must wait out the backoff")
}

func TestAddToCartNotRetriedOnFailure(t *testing.T) {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		conn.Close()
	}))
	t.Cleanup(server.Close)

	logger := testLogger()
	client := NewClient(httpclient.NewClient(httpclient.DefaultConfig(), logger), server.URL, "test-key", logger)

	err := client.AddToCart(context.Background(), 1, 101, 1)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestCreateSupportTicketDefaultsSource(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/support/tickets", r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "assistant_fallback", payload["source"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": 77})
	}))

	ticketID, err := client.CreateSupportTicket(context.Background(), SupportTicket{
		Subject: "Assistant handoff request",
		Message: "Customer needs assistance.",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(77), ticketID)
}

func TestPageContentReturnsBody(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/internal/pages/return-policy", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"title": "Returns", "content": "Returns are accepted within 30 days."},
		})
	}))

	content, err := client.PageContent(context.Background(), "return-policy")
	require.NoError(t, err)
	assert.Contains(t, content, "30 days")
}
