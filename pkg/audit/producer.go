// Package audit publishes turn outcomes to Kafka for offline analysis.
// Two topics: one for every completed turn, one for replies the safety
// filter blocked.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Config holds Kafka configuration
type Config struct {
	Brokers      []string
	TurnTopic    string
	BlockedTopic string
}

// ParseConfig parses a comma-separated broker string
func ParseConfig(brokers string, turnTopic string, blockedTopic string) Config {
	brokerList := strings.Split(brokers, ",")
	for i := range brokerList {
		brokerList[i] = strings.TrimSpace(brokerList[i])
	}

	return Config{
		Brokers:      brokerList,
		TurnTopic:    turnTopic,
		BlockedTopic: blockedTopic,
	}
}

// Producer handles producing audit messages to Kafka
type Producer struct {
	writer        *kafka.Writer
	blockedWriter *kafka.Writer
	logger        ectologger.Logger
	turnTopic     string
	blockedTopic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg Config, logger ectologger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TurnTopic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		// Allow Kafka to auto-create the topic in dev environments when it doesn't exist yet.
		// Without this, a first publish may fail with "Unknown Topic Or Partition".
		AllowAutoTopicCreation: true,
	}

	blockedWriter := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.BlockedTopic,
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer:        writer,
		blockedWriter: blockedWriter,
		logger:        logger,
		turnTopic:     cfg.TurnTopic,
		blockedTopic:  cfg.BlockedTopic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	var firstErr error
	if err := p.writer.Close(); err != nil {
		firstErr = err
	}
	if p.blockedWriter != nil {
		if err := p.blockedWriter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// TurnMessage records one completed dialogue turn.
type TurnMessage struct {
	ConversationID string    `json:"conversation_id"`
	CustomerID     *int64    `json:"customer_id,omitempty"`
	Intent         string    `json:"intent"`
	Confidence     float64   `json:"confidence"`
	Action         string    `json:"action"`
	Outcome        string    `json:"outcome"` // "answered", "fallback", "blocked", "error"
	DurationMs     int64     `json:"duration_ms"`
	Timestamp      time.Time `json:"timestamp"`

	// Tracing
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// BlockedMessage records a generated reply the safety filter rejected, with
// the raw text kept off the user path for later review.
type BlockedMessage struct {
	ConversationID string    `json:"conversation_id"`
	Intent         string    `json:"intent"`
	Category       string    `json:"category"`
	RawText        string    `json:"raw_text"`
	Timestamp      time.Time `json:"timestamp"`

	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

func traceHeaders(ctx context.Context, base []kafka.Header) []kafka.Header {
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		base = append(base, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}
	if tracestate := tracing.GetTraceState(ctx); tracestate != "" {
		base = append(base, kafka.Header{Key: "tracestate", Value: []byte(tracestate)})
	}
	return base
}

// PublishTurn publishes a turn outcome. Keyed by conversation so a
// conversation's turns land on one partition in order.
func (p *Producer) PublishTurn(ctx context.Context, msg *TurnMessage) error {
	ctx, span := tracing.StartSpan(ctx, "Audit.PublishTurn")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.turnTopic),
		attribute.String("messaging.operation", "publish"),
		attribute.String("conversation_id", msg.ConversationID),
		attribute.String("intent", msg.Intent),
	)

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	msg.TraceID = tracing.GetTraceID(ctx)
	msg.SpanID = tracing.GetSpanID(ctx)

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal message")
		return fmt.Errorf("failed to marshal turn message: %w", err)
	}

	headers := traceHeaders(ctx, []kafka.Header{
		{Key: "conversation_id", Value: []byte(msg.ConversationID)},
		{Key: "intent", Value: []byte(msg.Intent)},
	})

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(msg.ConversationID),
		Value:   data,
		Headers: headers,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish message")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish to Kafka topic %s", p.turnTopic)
		return err
	}

	span.SetStatus(codes.Ok, "message published")
	return nil
}

// PublishBlocked publishes a blocked-reply record to the review topic.
func (p *Producer) PublishBlocked(ctx context.Context, msg *BlockedMessage) error {
	ctx, span := tracing.StartSpan(ctx, "Audit.PublishBlocked")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.blockedTopic),
		attribute.String("messaging.operation", "publish"),
		attribute.String("conversation_id", msg.ConversationID),
		attribute.String("category", msg.Category),
	)

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	msg.TraceID = tracing.GetTraceID(ctx)
	msg.SpanID = tracing.GetSpanID(ctx)

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal message")
		return fmt.Errorf("failed to marshal blocked message: %w", err)
	}

	headers := traceHeaders(ctx, []kafka.Header{
		{Key: "conversation_id", Value: []byte(msg.ConversationID)},
		{Key: "category", Value: []byte(msg.Category)},
	})

	err = p.blockedWriter.WriteMessages(ctx, kafka.Message{
		Key:     []byte(msg.ConversationID),
		Value:   data,
		Headers: headers,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish message")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish to Kafka topic %s", p.blockedTopic)
		return err
	}

	span.SetStatus(codes.Ok, "message published")
	return nil
}
