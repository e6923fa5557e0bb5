package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	fcontext "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/dispatcher"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repositories"
)

// ConversationStore clears per-conversation dialogue state.
type ConversationStore interface {
	Forget(ctx context.Context, conversationID string) error
}

// WebhookHandler receives parsed turns from the NLU transport and hands them
// to the dispatcher.
type WebhookHandler struct {
	dispatcher    *dispatcher.Dispatcher
	turnLog       *repositories.TurnLogRepository
	conversations ConversationStore
	checker       *health.Checker
	logger        ectologger.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(d *dispatcher.Dispatcher, turnLog *repositories.TurnLogRepository, conversations ConversationStore, checker *health.Checker, logger ectologger.Logger) *WebhookHandler {
	return &WebhookHandler{
		dispatcher:    d,
		turnLog:       turnLog,
		conversations: conversations,
		checker:       checker,
		logger:        logger,
	}
}

// RegisterRoutes registers all webhook routes
func (h *WebhookHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhook", h.HandleTurn)
	e.GET("/turns/:id", h.GetTurn)
	e.GET("/conversations/:id/turns", h.ListTurns)
	e.DELETE("/conversations/:id", h.ForgetConversation)
	e.GET("/fallbacks", h.ListFallbacks)
	e.GET("/health", h.Health)
	e.GET("/ready", h.Health)
}

// turnRequest is the webhook payload from the NLU engine.
type turnRequest struct {
	ConversationID string            `json:"conversation_id"`
	Intent         string            `json:"intent"`
	Confidence     float64           `json:"confidence"`
	Entities       map[string]string `json:"entities"`
	Text           string            `json:"text"`
}

// HandleTurn dispatches one turn and returns the structured result. The
// transport-authenticated customer id and the bearer token ride in on
// headers, never in the body.
func (h *WebhookHandler) HandleTurn(c echo.Context) error {
	var req turnRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid turn payload")
	}

	if req.ConversationID == "" {
		req.ConversationID = c.Request().Header.Get(middleware.HeaderConversationID)
	}
	if req.ConversationID == "" {
		return BadRequest("conversation_id is required")
	}

	turn := &models.Turn{
		ConversationID: req.ConversationID,
		Intent:         req.Intent,
		Confidence:     req.Confidence,
		Entities:       req.Entities,
		RawText:        req.Text,
	}

	ctx := c.Request().Context()

	if customerID := fcontext.GetCustomerID(ctx); customerID != "" {
		id, err := strconv.ParseInt(customerID, 10, 64)
		if err != nil {
			return BadRequest("invalid customer id header")
		}
		turn.Metadata.CustomerID = &id
	}

	if auth := c.Request().Header.Get(echo.HeaderAuthorization); len(auth) > 7 && auth[:7] == "Bearer " {
		turn.Metadata.BearerToken = auth[7:]
	}

	result := h.dispatcher.Dispatch(ctx, turn)
	return SuccessResponse(c, result)
}

// GetTurn returns a single turn log entry by id
func (h *WebhookHandler) GetTurn(c echo.Context) error {
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	record, err := h.turnLog.GetByID(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, record)
}

// ForgetConversation clears a conversation's dialogue slots and turn history
func (h *WebhookHandler) ForgetConversation(c echo.Context) error {
	conversationID := c.Param("id")
	if conversationID == "" {
		return BadRequest("missing conversation id")
	}

	ctx := c.Request().Context()
	if err := h.conversations.Forget(ctx, conversationID); err != nil {
		return err
	}
	if err := h.turnLog.DeleteByConversation(ctx, conversationID); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// ListTurns returns a conversation's recent turns, newest first
func (h *WebhookHandler) ListTurns(c echo.Context) error {
	conversationID := c.Param("id")
	if conversationID == "" {
		return BadRequest("missing conversation id")
	}

	limit := QueryInt(c, "limit", 50)
	records, err := h.turnLog.GetByConversation(c.Request().Context(), conversationID, limit)
	if err != nil {
		return err
	}

	return SuccessResponse(c, records)
}

// ListFallbacks returns the latest turns that fell through to the generative path
func (h *WebhookHandler) ListFallbacks(c echo.Context) error {
	limit := QueryInt(c, "limit", 100)
	records, err := h.turnLog.RecentFallbacks(c.Request().Context(), limit)
	if err != nil {
		return err
	}

	return SuccessResponse(c, records)
}

// Health reports dependency health
func (h *WebhookHandler) Health(c echo.Context) error {
	results, healthy := h.checker.Run(c.Request().Context())
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, results)
}
