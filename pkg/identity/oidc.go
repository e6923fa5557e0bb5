package identity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

// OIDCVerifier verifies bearer tokens against an OIDC identity provider.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
	timeout  time.Duration
	logger   ectologger.Logger
}

type customerClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
}

// NewOIDCVerifier discovers the provider at issuer and builds a verifier for
// the given client id. Discovery is a network call, so this belongs in startup.
func NewOIDCVerifier(ctx context.Context, issuer string, clientID string, timeout time.Duration, logger ectologger.Logger) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc provider discovery failed: %w", err)
	}

	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
		timeout:  timeout,
		logger:   logger,
	}, nil
}

// Verify checks the token signature and expiry and extracts the customer id
// from the subject claim.
func (v *OIDCVerifier) Verify(ctx context.Context, token string) (*VerifiedIdentity, error) {
	ctx, span := tracing.StartSpan(ctx, "OIDCVerifier.Verify")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return nil, fmt.Errorf("token is invalid: %w", err)
	}

	var claims customerClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("cannot parse claims: %w", err)
	}

	customerID, err := strconv.ParseInt(claims.Sub, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("subject claim is not a customer id: %w", err)
	}

	return &VerifiedIdentity{
		CustomerID: customerID,
		Email:      claims.Email,
	}, nil
}
