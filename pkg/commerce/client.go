// Package commerce is the HTTP adapter for the store backend. It is the only
// package that talks to the backend; everything above it works with typed
// models and sentinel errors.
package commerce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/expressions"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// listShapeExpr normalizes the backend's list envelopes. Older endpoints
// return {"products": [...]}, newer ones {"data": [...]}, and a few return a
// bare array.
const listShapeExpr = "products || data || @"

// itemShapeExpr unwraps single-entity envelopes.
const itemShapeExpr = "data || @"

// readRetryBackoff is the pause before a failed read's second attempt, long
// enough for a transient blip to clear without stalling the turn.
const readRetryBackoff = 100 * time.Millisecond

// Client calls the commerce backend's internal API.
type Client struct {
	http      *httpclient.Client
	evaluator *expressions.Evaluator
	baseURL   string
	apiKey    string
	logger    ectologger.Logger
}

// NewClient creates a commerce backend client.
func NewClient(http *httpclient.Client, baseURL string, apiKey string, logger ectologger.Logger) *Client {
	return &Client{
		http:      http,
		evaluator: expressions.NewEvaluator(),
		baseURL:   baseURL,
		apiKey:    apiKey,
		logger:    logger,
	}
}

func (c *Client) headers() map[string]string {
	return map[string]string{"x-api-key": c.apiKey}
}

// get performs an idempotent read with a single retry on transport failure.
// Mutations never retry; reads may, because a repeated read cannot double an
// effect.
func (c *Client) get(ctx context.Context, operation string, path string) (*httpclient.Response, error) {
	start := time.Now()
	resp, err := c.http.Get(ctx, c.baseURL+path, c.headers())
	if err != nil && ctx.Err() == nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("retrying backend read: %s", operation)
		select {
		case <-time.After(readRetryBackoff):
		case <-ctx.Done():
		}
		resp, err = c.http.Get(ctx, c.baseURL+path, c.headers())
	}
	c.observe(operation, resp, err, start)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, operation string, path string, payload any) (*httpclient.Response, error) {
	start := time.Now()
	resp, err := c.http.Post(ctx, c.baseURL+path, payload, c.headers())
	c.observe(operation, resp, err, start)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp, nil
}

func (c *Client) observe(operation string, resp *httpclient.Response, err error, start time.Time) {
	code := "transport_error"
	if err == nil && resp != nil {
		code = strconv.Itoa(resp.StatusCode)
	}
	metrics.BackendRequestsTotal.WithLabelValues(operation, code).Inc()
	metrics.BackendRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// decode unwraps the response envelope with shapeExpr and unmarshals the
// result into out.
func (c *Client) decode(resp *httpclient.Response, shapeExpr string, notFound error, out any) error {
	switch {
	case resp.StatusCode == 404:
		return notFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return &APIError{StatusCode: resp.StatusCode, Message: string(resp.Body)}
	}

	var raw any
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return fmt.Errorf("failed to decode backend response: %w", err)
	}

	shaped, err := c.evaluator.Evaluate(shapeExpr, raw)
	if err != nil {
		return err
	}
	if shaped == nil {
		return notFound
	}

	data, err := json.Marshal(shaped)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// SearchProducts searches the catalog by name or description.
func (c *Client) SearchProducts(ctx context.Context, query string, limit int) ([]models.Product, error) {
	ctx, span := tracing.StartSpan(ctx, "Commerce.SearchProducts")
	defer span.End()

	path := fmt.Sprintf("/internal/products?search=%s&limit=%d", url.QueryEscape(query), limit)
	resp, err := c.get(ctx, "search_products", path)
	if err != nil {
		return nil, err
	}

	var products []models.Product
	if err := c.decode(resp, listShapeExpr, ErrProductNotFound, &products); err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return products, nil
}

// ProductByID fetches one product with its full variant list.
func (c *Client) ProductByID(ctx context.Context, productID int64) (*models.Product, error) {
	ctx, span := tracing.StartSpan(ctx, "Commerce.ProductByID")
	defer span.End()

	resp, err := c.get(ctx, "product_by_id", fmt.Sprintf("/internal/products/%d", productID))
	if err != nil {
		return nil, err
	}

	var product models.Product
	if err := c.decode(resp, itemShapeExpr, ErrProductNotFound, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// OrderByID fetches one order.
func (c *Client) OrderByID(ctx context.Context, orderID int64) (*models.Order, error) {
	ctx, span := tracing.StartSpan(ctx, "Commerce.OrderByID")
	defer span.End()

	resp, err := c.get(ctx, "order_by_id", fmt.Sprintf("/internal/orders/%d", orderID))
	if err != nil {
		return nil, err
	}

	var order models.Order
	if err := c.decode(resp, itemShapeExpr, ErrOrderNotFound, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// OrdersByCustomer lists a customer's most recent orders.
func (c *Client) OrdersByCustomer(ctx context.Context, customerID int64, limit int) ([]models.Order, error) {
	ctx, span := tracing.StartSpan(ctx, "Commerce.OrdersByCustomer")
	defer span.End()

	path := fmt.Sprintf("/internal/orders?customer_id=%d&limit=%d", customerID, limit)
	resp, err := c.get(ctx, "orders_by_customer", path)
	if err != nil {
		return nil, err
	}

	var orders []models.Order
	if err := c.decode(resp, listShapeExpr, ErrOrderNotFound, &orders); err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return orders, nil
}

// CancelOrder asks the backend to cancel an order. Never retried.
func (c *Client) CancelOrder(ctx context.Context, orderID int64, customerID int64, reason models.CancelReason) (*models.Order, error) {
	ctx, span := tracing.StartSpan(ctx, "Commerce.CancelOrder")
	defer span.End()

	payload := map[string]any{
		"customer_id":   customerID,
		"cancel_reason": string(reason),
	}
	resp, err := c.post(ctx, "cancel_order", fmt.Sprintf("/internal/orders/%d/cancel", orderID), payload)
	if err != nil {
		return nil, err
	}

	var order models.Order
	if err := c.decode(resp, itemShapeExpr, ErrOrderNotFound, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// AddToCart adds a variant to the customer's cart. Never retried.
func (c *Client) AddToCart(ctx context.Context, customerID int64, variantID int64, quantity int) error {
	ctx, span := tracing.StartSpan(ctx, "Commerce.AddToCart")
	defer span.End()

	payload := map[string]any{
		"customer_id": customerID,
		"variant_id":  variantID,
		"quantity":    quantity,
	}
	resp, err := c.post(ctx, "add_to_cart", "/internal/cart/items", payload)
	if err != nil {
		return err
	}

	var ack map[string]any
	return c.decode(resp, itemShapeExpr, ErrProductNotFound, &ack)
}

// SupportTicket is the payload for escalation to a human agent.
type SupportTicket struct {
	Subject       string              `json:"subject"`
	Message       string              `json:"message"`
	OriginalQuery string              `json:"original_query"`
	History       []map[string]string `json:"conversation_history"`
	Source        string              `json:"source"`
}

// CreateSupportTicket escalates a conversation to a human agent and returns
// the ticket id.
func (c *Client) CreateSupportTicket(ctx context.Context, ticket SupportTicket) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "Commerce.CreateSupportTicket")
	defer span.End()

	if ticket.Source == "" {
		ticket.Source = "assistant_fallback"
	}
	resp, err := c.post(ctx, "create_support_ticket", "/support/tickets", ticket)
	if err != nil {
		return 0, err
	}

	var created struct {
		ID int64 `json:"id"`
	}
	if err := c.decode(resp, itemShapeExpr, ErrUnavailable, &created); err != nil {
		return 0, err
	}
	return created.ID, nil
}

// LogFallback records a turn the assistant could not understand so the
// training data can be improved. Failures are the caller's to ignore.
func (c *Client) LogFallback(ctx context.Context, message string, intent string, confidence float64) error {
	ctx, span := tracing.StartSpan(ctx, "Commerce.LogFallback")
	defer span.End()

	payload := map[string]any{
		"message":    message,
		"intent":     intent,
		"confidence": confidence,
	}
	resp, err := c.post(ctx, "log_fallback", "/internal/chatbot/log-fallback", payload)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Message: string(resp.Body)}
	}
	return nil
}

// PageContent fetches CMS page content by slug (shipping-policy,
// return-policy, warranty-policy, payment-methods).
func (c *Client) PageContent(ctx context.Context, slug string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "Commerce.PageContent")
	defer span.End()

	resp, err := c.get(ctx, "page_content", "/internal/pages/"+url.PathEscape(slug))
	if err != nil {
		return "", err
	}

	var page struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := c.decode(resp, itemShapeExpr, ErrProductNotFound, &page); err != nil {
		return "", err
	}
	return page.Content, nil
}
