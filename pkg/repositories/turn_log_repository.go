package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const turnLogTable = "turn_log"

var turnStruct = database.NewStruct(new(models.TurnRecord))

// TurnLogRepository persists dialogue turns. The table is append-only; rows
// are never updated.
type TurnLogRepository struct {
	*Repository
}

// NewTurnLogRepository creates a new turn log repository
func NewTurnLogRepository(db database.DB, logger ectologger.Logger) *TurnLogRepository {
	return &TurnLogRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create appends one turn record
func (r *TurnLogRepository) Create(ctx context.Context, record *models.TurnRecord) error {
	ctx, span := tracing.StartSpan(ctx, "TurnLogRepository.Create")
	defer span.End()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(turnLogTable).
		Cols("id", "conversation_id", "customer_id", "intent", "confidence", "user_text",
			"action", "outcome", "reply_text", "entities", "duration_ms", "trace_id", "created_at").
		Values(record.ID, record.ConversationID, record.CustomerID, record.Intent, record.Confidence,
			record.UserText, record.Action, record.Outcome, record.ReplyText, record.Entities,
			record.DurationMs, record.TraceID, sqlbuilder.Raw("NOW()")).
		Returning("created_at")

	query, args := ib.Build()
	err := r.DB().QueryRowxContext(ctx, query, args...).Scan(&record.CreatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"conversation_id": record.ConversationID,
			"intent":          record.Intent,
		}).Error("failed to create turn record")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to record turn")
	}

	return nil
}

// GetByConversation returns a conversation's turns, newest first
func (r *TurnLogRepository) GetByConversation(ctx context.Context, conversationID string, limit int) ([]models.TurnRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "TurnLogRepository.GetByConversation")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}

	sb := turnStruct.SelectFrom(turnLogTable)
	sb.Where(sb.Equal("conversation_id", conversationID))
	sb.OrderBy("created_at").Desc()
	sb.Limit(limit)

	query, args := sb.Build()
	var records []models.TurnRecord
	err := r.DB().SelectContext(ctx, &records, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"conversation_id": conversationID,
		}).Error("failed to list turn records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list turns")
	}

	return records, nil
}

// GetByID returns one turn record
func (r *TurnLogRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.TurnRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "TurnLogRepository.GetByID")
	defer span.End()

	sb := turnStruct.SelectFrom(turnLogTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var record models.TurnRecord
	err := r.DB().GetContext(ctx, &record, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("turn %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"turn_id": id,
		}).Error("failed to get turn record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get turn")
	}

	return &record, nil
}

// DeleteByConversation removes a conversation's entire turn history
func (r *TurnLogRepository) DeleteByConversation(ctx context.Context, conversationID string) error {
	ctx, span := tracing.StartSpan(ctx, "TurnLogRepository.DeleteByConversation")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(turnLogTable)
	db.Where(db.Equal("conversation_id", conversationID))

	query, args := db.Build()
	if _, err := r.DB().ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"conversation_id": conversationID,
		}).Error("failed to delete turn records")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete turns")
	}

	return nil
}

// RecentFallbacks returns the latest turns that ended in generative fallback,
// for review of what scripted actions are missing.
func (r *TurnLogRepository) RecentFallbacks(ctx context.Context, limit int) ([]models.TurnRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "TurnLogRepository.RecentFallbacks")
	defer span.End()

	if limit <= 0 {
		limit = 100
	}

	sb := turnStruct.SelectFrom(turnLogTable)
	sb.Where(sb.Equal("outcome", "fallback"))
	sb.OrderBy("created_at").Desc()
	sb.Limit(limit)

	query, args := sb.Build()
	var records []models.TurnRecord
	err := r.DB().SelectContext(ctx, &records, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list fallback turns")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list fallbacks")
	}

	return records, nil
}
