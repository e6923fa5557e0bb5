// Package dispatcher routes parsed turns to deterministic business actions or
// the generative fallback path. Dispatch is stateless per turn: no memory of
// which intents were handled before, so any intent can repeat in immediate
// succession.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/audit"
	"github.com/Ramsey-B/fern/pkg/commerce"
	fcontext "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/generative"
	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/safety"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Turn outcomes recorded in metrics, audit events, and the turn log.
const (
	OutcomeAnswered        = "answered"
	OutcomeFallback        = "fallback"
	OutcomeBlocked         = "blocked"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeError           = "error"
)

const signInPrompt = "You need to be signed in for that. Please log in to your account and try again."

const apologyMessage = "Sorry, something went wrong on our side. Please try again in a moment."

// IntentUnrecognized is the NLU engine's marker for a turn it could not classify.
const IntentUnrecognized = "unrecognized"

// IdentityResolver derives the acting customer for a turn.
type IdentityResolver interface {
	Resolve(ctx context.Context, conversationID string, evidence models.IdentityEvidence) (*int64, error)
}

// VariantResolver binds a selection request to exactly one variant.
type VariantResolver interface {
	Resolve(ctx context.Context, product *models.Product, selection models.VariantSelection) (int64, error)
	Options(product *models.Product) []models.VariantOption
}

// LifecycleGuard enforces order state transitions.
type LifecycleGuard interface {
	RequestCancellation(ctx context.Context, orderID int64, customerID int64, reason models.CancelReason) (*models.Order, error)
}

// SafetyFilter gates generative output.
type SafetyFilter interface {
	Validate(ctx context.Context, rawText string, intent string) models.GeneratedResponse
}

// Generator produces free-form replies for the fallback path.
type Generator interface {
	Enabled() bool
	Generate(ctx context.Context, message string, history []generative.HistoryEntry) (string, error)
}

// Backend is the slice of the commerce client the actions use.
type Backend interface {
	SearchProducts(ctx context.Context, query string, limit int) ([]models.Product, error)
	ProductByID(ctx context.Context, productID int64) (*models.Product, error)
	OrderByID(ctx context.Context, orderID int64) (*models.Order, error)
	OrdersByCustomer(ctx context.Context, customerID int64, limit int) ([]models.Order, error)
	AddToCart(ctx context.Context, customerID int64, variantID int64, quantity int) error
	CreateSupportTicket(ctx context.Context, ticket commerce.SupportTicket) (int64, error)
	LogFallback(ctx context.Context, message string, intent string, confidence float64) error
	PageContent(ctx context.Context, slug string) (string, error)
}

// SlotReader reads per-conversation dialogue state.
type SlotReader interface {
	CustomerID(ctx context.Context, conversationID string) (*int64, error)
	Get(ctx context.Context, conversationID string, slot string) (string, error)
	Set(ctx context.Context, conversationID string, slot string, value string) error
}

// AuditPublisher emits turn and blocked-reply events.
type AuditPublisher interface {
	PublishTurn(ctx context.Context, msg *audit.TurnMessage) error
	PublishBlocked(ctx context.Context, msg *audit.BlockedMessage) error
}

// TurnRecorder appends turns to the persistent turn log.
type TurnRecorder interface {
	Create(ctx context.Context, record *models.TurnRecord) error
	GetByConversation(ctx context.Context, conversationID string, limit int) ([]models.TurnRecord, error)
}

// Dispatcher is the per-turn decision tree.
type Dispatcher struct {
	identity  IdentityResolver
	variants  VariantResolver
	lifecycle LifecycleGuard
	filter    SafetyFilter
	generator Generator
	backend   Backend
	slots     SlotReader
	auditor   AuditPublisher
	turnLog   TurnRecorder
	threshold float64
	logger    ectologger.Logger

	routes map[string]route
}

type route struct {
	action       string
	requiresAuth bool
	handle       func(ctx context.Context, turn *models.Turn, customerID *int64) *models.TurnResult
}

// New creates a dispatcher and registers the intent routing table.
func New(
	identityResolver IdentityResolver,
	variantResolver VariantResolver,
	lifecycleGuard LifecycleGuard,
	filter SafetyFilter,
	generator Generator,
	backend Backend,
	slots SlotReader,
	auditor AuditPublisher,
	turnLog TurnRecorder,
	threshold float64,
	logger ectologger.Logger,
) *Dispatcher {
	d := &Dispatcher{
		identity:  identityResolver,
		variants:  variantResolver,
		lifecycle: lifecycleGuard,
		filter:    filter,
		generator: generator,
		backend:   backend,
		slots:     slots,
		auditor:   auditor,
		turnLog:   turnLog,
		threshold: threshold,
		logger:    logger,
	}

	d.routes = map[string]route{
		"search_product":     {action: "search_products", handle: d.searchProducts},
		"product_details":    {action: "product_details", handle: d.productDetails},
		"check_availability": {action: "check_availability", handle: d.checkAvailability},
		"add_to_cart":        {action: "add_to_cart", requiresAuth: true, handle: d.addToCart},
		"cancel_order":       {action: "cancel_order", requiresAuth: true, handle: d.cancelOrder},
		"track_order":        {action: "track_order", requiresAuth: true, handle: d.trackOrder},
		"delivery_status":    {action: "delivery_status", requiresAuth: true, handle: d.deliveryStatus},
		"my_orders":          {action: "my_orders", requiresAuth: true, handle: d.myOrders},
		"shipping_policy":    {action: "page_content", handle: d.pageHandler("shipping-policy")},
		"return_policy":      {action: "page_content", handle: d.pageHandler("return-policy")},
		"warranty_policy":    {action: "page_content", handle: d.pageHandler("warranty-policy")},
		"payment_methods":    {action: "page_content", handle: d.pageHandler("payment-methods")},
		"human_handoff":      {action: "support_ticket", handle: d.createSupportTicket},
	}

	return d
}

// outcomeOf lets action handlers report how the turn ended through the
// result payload without widening every handler signature.
func outcomeOf(result *models.TurnResult) string {
	if result == nil {
		return OutcomeError
	}
	if outcome, ok := result.Payload["outcome"].(string); ok {
		return outcome
	}
	return OutcomeAnswered
}

// Dispatch handles one turn end to end. It always returns a result; failures
// of any collaborator degrade to a user-visible message, never a crash.
func (d *Dispatcher) Dispatch(ctx context.Context, turn *models.Turn) *models.TurnResult {
	ctx, span := tracing.StartSpan(ctx, "Dispatcher.Dispatch")
	defer span.End()

	ctx = fcontext.SetConversationID(ctx, turn.ConversationID)
	ctx = fcontext.SetIntent(ctx, turn.Intent)

	start := time.Now()

	var result *models.TurnResult
	var action string

	customerID := d.resolveIdentity(ctx, turn)

	switch {
	case turn.Intent == "" || turn.Intent == IntentUnrecognized || turn.Confidence < d.threshold:
		action = "generative_fallback"
		result = d.generativeFallback(ctx, turn)
	default:
		r, ok := d.routes[turn.Intent]
		if !ok {
			// Known intent with no scripted action: open-ended knowledge turn.
			action = "generative_fallback"
			result = d.generativeFallback(ctx, turn)
			break
		}

		action = r.action
		if r.requiresAuth && customerID == nil {
			// No backend call is attempted for unauthenticated turns.
			result = &models.TurnResult{
				Text:    signInPrompt,
				Payload: map[string]any{"outcome": OutcomeUnauthenticated, "requires_auth": true},
			}
			break
		}

		result = r.handle(ctx, turn, customerID)
	}

	if result == nil {
		result = &models.TurnResult{Text: apologyMessage, Payload: map[string]any{"outcome": OutcomeError}}
	}

	outcome := outcomeOf(result)
	duration := time.Since(start)

	metrics.TurnsTotal.WithLabelValues(turn.Intent, outcome).Inc()
	metrics.TurnDuration.WithLabelValues(turn.Intent).Observe(duration.Seconds())

	d.record(ctx, turn, customerID, action, outcome, result, duration)

	return result
}

// resolveIdentity builds this turn's evidence bag and resolves it. Provider
// outages degrade to unauthenticated.
func (d *Dispatcher) resolveIdentity(ctx context.Context, turn *models.Turn) *int64 {
	evidence := models.IdentityEvidence{
		ExplicitCustomerID: turn.Metadata.CustomerID,
		BearerToken:        turn.Metadata.BearerToken,
	}

	if turn.ConversationID != "" {
		slotID, err := d.slots.CustomerID(ctx, turn.ConversationID)
		if err != nil {
			d.logger.WithContext(ctx).WithError(err).Warn("failed to read customer id slot")
		} else {
			evidence.SlotCustomerID = slotID
		}
	}

	customerID, err := d.identity.Resolve(ctx, turn.ConversationID, evidence)
	if err != nil {
		if !errors.Is(err, identity.ErrProviderUnavailable) {
			d.logger.WithContext(ctx).WithError(err).Error("identity resolution failed")
		}
		return nil
	}
	return customerID
}

// record publishes the audit event and appends the turn log entry. Both are
// best-effort; the user already has their reply.
func (d *Dispatcher) record(ctx context.Context, turn *models.Turn, customerID *int64, action string, outcome string, result *models.TurnResult, duration time.Duration) {
	if err := d.auditor.PublishTurn(ctx, &audit.TurnMessage{
		ConversationID: turn.ConversationID,
		CustomerID:     customerID,
		Intent:         turn.Intent,
		Confidence:     turn.Confidence,
		Action:         action,
		Outcome:        outcome,
		DurationMs:     duration.Milliseconds(),
	}); err != nil {
		d.logger.WithContext(ctx).WithError(err).Warn("failed to publish turn audit event")
	}

	record := &models.TurnRecord{
		ConversationID: turn.ConversationID,
		CustomerID:     customerID,
		Intent:         turn.Intent,
		Confidence:     turn.Confidence,
		UserText:       turn.RawText,
		Action:         action,
		Outcome:        outcome,
		ReplyText:      result.Text,
		DurationMs:     duration.Milliseconds(),
		TraceID:        tracing.GetTraceID(ctx),
	}
	record.Entities.Data = turn.Entities
	if err := d.turnLog.Create(ctx, record); err != nil {
		d.logger.WithContext(ctx).WithError(err).Warn("failed to append turn log")
	}
}

// generativeFallback handles turns no scripted action covers. The turn always
// terminates with some response: generation failure, timeout, or a blocked
// reply all land on a safe static message.
func (d *Dispatcher) generativeFallback(ctx context.Context, turn *models.Turn) *models.TurnResult {
	ctx, span := tracing.StartSpan(ctx, "Dispatcher.GenerativeFallback")
	defer span.End()

	// Record what we failed to understand so the training data improves.
	if err := d.backend.LogFallback(ctx, turn.RawText, turn.Intent, turn.Confidence); err != nil {
		d.logger.WithContext(ctx).WithError(err).Debugf("failed to log fallback turn")
	}

	if !d.generator.Enabled() {
		return d.staticFallback(OutcomeFallback)
	}

	history := d.conversationHistory(ctx, turn.ConversationID)

	rawText, err := d.generator.Generate(ctx, turn.RawText, history)
	if err != nil {
		d.logger.WithContext(ctx).WithError(err).Warn("generative call failed")
		return d.fallbackEscalation(ctx, turn)
	}

	verdict := d.filter.Validate(ctx, rawText, turn.Intent)
	if !verdict.Validated {
		if err := d.auditor.PublishBlocked(ctx, &audit.BlockedMessage{
			ConversationID: turn.ConversationID,
			Intent:         turn.Intent,
			Category:       verdict.BlockedReason,
			RawText:        verdict.RawText,
		}); err != nil {
			d.logger.WithContext(ctx).WithError(err).Warn("failed to publish blocked-reply event")
		}

		return &models.TurnResult{
			Text: safety.SafeFallbackMessage,
			Payload: map[string]any{
				"outcome":        OutcomeBlocked,
				"blocked_reason": verdict.BlockedReason,
			},
		}
	}

	return &models.TurnResult{
		Text:    verdict.RawText,
		Payload: map[string]any{"outcome": OutcomeFallback, "generative": true},
	}
}

// conversationHistory loads recent turns for generative context. Oldest first.
func (d *Dispatcher) conversationHistory(ctx context.Context, conversationID string) []generative.HistoryEntry {
	if conversationID == "" {
		return nil
	}

	records, err := d.turnLog.GetByConversation(ctx, conversationID, 3)
	if err != nil {
		d.logger.WithContext(ctx).WithError(err).Debugf("failed to load conversation history")
		return nil
	}

	history := make([]generative.HistoryEntry, 0, len(records)*2)
	for i := len(records) - 1; i >= 0; i-- {
		history = append(history,
			generative.HistoryEntry{Role: "user", Text: records[i].UserText},
			generative.HistoryEntry{Role: "assistant", Text: records[i].ReplyText},
		)
	}
	return history
}

// fallbackEscalation opens a support ticket for a turn neither the scripted
// actions nor the generative path could answer. If even the ticket fails, the
// turn still terminates on the static fallback.
func (d *Dispatcher) fallbackEscalation(ctx context.Context, turn *models.Turn) *models.TurnResult {
	ticketID, err := d.backend.CreateSupportTicket(ctx, commerce.SupportTicket{
		Subject:       "Unanswered customer question",
		Message:       fmt.Sprintf("The assistant could not answer: %s", turn.RawText),
		OriginalQuery: turn.RawText,
	})
	if err != nil {
		d.logger.WithContext(ctx).WithError(err).Error("failed to escalate unanswered turn")
		return d.staticFallback(OutcomeFallback)
	}

	return &models.TurnResult{
		Text: fmt.Sprintf("I'm having trouble answering that right now, so I've opened support ticket #%d. "+
			"Our team will follow up shortly.", ticketID),
		Payload: map[string]any{"outcome": OutcomeFallback, "ticket_id": ticketID},
	}
}

func (d *Dispatcher) staticFallback(outcome string) *models.TurnResult {
	return &models.TurnResult{
		Text: "Sorry, I didn't quite get that. I can help you search for products, " +
			"check sizes and colors, track or cancel orders, and answer questions about " +
			"shipping, returns, and payments. What would you like to do?",
		Payload: map[string]any{"outcome": outcome},
	}
}
