// Package identity resolves the acting customer for a single turn from the
// evidence bag the transport layer hands us. Resolution is re-run every turn;
// nothing here is cached across turns because the evidence can change
// mid-conversation (a token can expire, a user can log out).
package identity

import (
	"context"
	"errors"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ErrProviderUnavailable is returned when the identity provider cannot be
// reached at all. Callers must degrade to "unauthenticated", not fail the turn.
var ErrProviderUnavailable = errors.New("identity provider unavailable")

// VerifiedIdentity is the result of a successful token verification.
type VerifiedIdentity struct {
	CustomerID int64
	Email      string
}

// TokenVerifier checks a bearer token against the identity provider.
// Implementations return ErrProviderUnavailable for infrastructure failures
// and any other error for tokens that are simply invalid.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*VerifiedIdentity, error)
}

// SlotWriter persists a resolved customer id for later turns of the same
// conversation. Persistence is a caching optimization, never a correctness
// requirement, so failures are logged and swallowed.
type SlotWriter interface {
	RememberCustomerID(ctx context.Context, conversationID string, customerID int64) error
}

// Resolver derives one authoritative customer id per turn.
type Resolver struct {
	verifier TokenVerifier
	slots    SlotWriter
	logger   ectologger.Logger
}

// NewResolver creates a new identity resolver.
func NewResolver(verifier TokenVerifier, slots SlotWriter, logger ectologger.Logger) *Resolver {
	return &Resolver{
		verifier: verifier,
		slots:    slots,
		logger:   logger,
	}
}

// Resolve applies the evidence precedence order, short-circuiting on the first
// signal that yields an identity:
//
//  1. explicit customer id attached by the already-authenticated transport
//  2. slot customer id persisted earlier in this conversation
//  3. bearer token, verified against the identity provider
//
// A missing or invalid token is treated identically to no evidence at all and
// never produces an error; only infrastructure failures propagate, and the
// caller must treat those as unauthenticated rather than fatal.
func (r *Resolver) Resolve(ctx context.Context, conversationID string, evidence models.IdentityEvidence) (*int64, error) {
	ctx, span := tracing.StartSpan(ctx, "IdentityResolver.Resolve")
	defer span.End()

	if evidence.ExplicitCustomerID != nil {
		metrics.IdentityResolutionsTotal.WithLabelValues("explicit").Inc()
		return evidence.ExplicitCustomerID, nil
	}

	if evidence.SlotCustomerID != nil {
		metrics.IdentityResolutionsTotal.WithLabelValues("slot").Inc()
		return evidence.SlotCustomerID, nil
	}

	if evidence.BearerToken != "" && r.verifier != nil {
		verified, err := r.verifier.Verify(ctx, evidence.BearerToken)
		if err != nil {
			if errors.Is(err, ErrProviderUnavailable) {
				r.logger.WithContext(ctx).WithError(err).Error("identity provider unreachable")
				return nil, err
			}
			// Invalid, expired, or malformed tokens fall through to "no evidence"
			r.logger.WithContext(ctx).WithError(err).Warn("bearer token failed verification")
			metrics.IdentityResolutionsTotal.WithLabelValues("none").Inc()
			return nil, nil
		}

		metrics.IdentityResolutionsTotal.WithLabelValues("token").Inc()

		if r.slots != nil && conversationID != "" {
			if err := r.slots.RememberCustomerID(ctx, conversationID, verified.CustomerID); err != nil {
				r.logger.WithContext(ctx).WithError(err).Warn("failed to persist customer id slot")
			}
		}

		customerID := verified.CustomerID
		return &customerID, nil
	}

	metrics.IdentityResolutionsTotal.WithLabelValues("none").Inc()
	return nil, nil
}
