// Package generative produces free-form replies for turns the scripted
// actions cannot handle. Every reply it emits is untrusted until the safety
// filter has validated it.
package generative

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"google.golang.org/genai"

	fcontext "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ErrDisabled is returned when no API key was configured at startup.
var ErrDisabled = errors.New("generative client is disabled")

// systemInstruction scopes the model to conversation, never commerce facts.
// Transactional data comes from the backend or not at all.
const systemInstruction = "You are a friendly assistant for an online clothing store. " +
	"Help the customer with general questions about shopping, sizing advice, and styling. " +
	"Never state specific prices, stock levels, discounts, or order details. " +
	"If the customer asks for those, tell them you will look it up in the store system. " +
	"Keep replies short and conversational."

// HistoryEntry is one prior exchange supplied as conversation context.
type HistoryEntry struct {
	Role string
	Text string
}

// Client wraps the Gemini API for open-ended turns.
type Client struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  ectologger.Logger
}

// NewClient creates a Gemini-backed client. An empty API key yields a
// disabled client rather than an error so the service can run without
// generative features.
func NewClient(ctx context.Context, apiKey string, model string, timeout time.Duration, logger ectologger.Logger) (*Client, error) {
	if apiKey == "" {
		logger.Warn("no Gemini API key configured, generative replies disabled")
		return &Client{model: model, timeout: timeout, logger: logger}, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Client{
		client:  client,
		model:   model,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Enabled reports whether the client can produce replies.
func (c *Client) Enabled() bool {
	return c.client != nil
}

// Generate produces a raw reply for the given message with recent history as
// context. The caller must run the result through the safety filter before it
// reaches the customer.
func (c *Client) Generate(ctx context.Context, message string, history []HistoryEntry) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "Generative.Generate")
	defer span.End()

	if c.client == nil {
		return "", ErrDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	contents := make([]*genai.Content, 0, len(history)+1)
	for _, entry := range history {
		var role genai.Role = genai.RoleUser
		if entry.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(entry.Text, role))
	}
	contents = append(contents, genai.NewContentFromText(message, genai.RoleUser))

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.4),
		MaxOutputTokens:   512,
	})
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"conversation_id": fcontext.GetConversationID(ctx),
			"model":           c.model,
		}).Error("gemini request failed")
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	text := result.Text()
	if text == "" {
		return "", errors.New("gemini returned an empty reply")
	}

	return text, nil
}
