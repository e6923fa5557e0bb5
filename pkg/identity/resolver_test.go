package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type stubVerifier struct {
	identity *VerifiedIdentity
	err      error
	calls    int
}

func (s *stubVerifier) Verify(ctx context.Context, token string) (*VerifiedIdentity, error) {
	s.calls++
	return s.identity, s.err
}

type stubSlots struct {
	conversationID string
	customerID     int64
	err            error
	calls          int
}

func (s *stubSlots) RememberCustomerID(ctx context.Context, conversationID string, customerID int64) error {
	s.calls++
	s.conversationID = conversationID
	s.customerID = customerID
	return s.err
}

func ptr(v int64) *int64 { return &v }

func TestResolveExplicitWinsOverSlot(t *testing.T) {
	verifier := &stubVerifier{}
	r := NewResolver(verifier, &stubSlots{}, testLogger())

	customerID, err := r.Resolve(context.Background(), "conv-1", models.IdentityEvidence{
		ExplicitCustomerID: ptr(21),
		SlotCustomerID:     ptr(99),
	})
	require.NoError(t, err)
	require.NotNil(t, customerID)
	assert.Equal(t, int64(21), *customerID)
	assert.Zero(t, verifier.calls)
}

func TestResolveSlotWinsOverToken(t *testing.T) {
	verifier := &stubVerifier{identity: &VerifiedIdentity{CustomerID: 5}}
	r := NewResolver(verifier, &stubSlots{}, testLogger())

	customerID, err := r.Resolve(context.Background(), "conv-1", models.IdentityEvidence{
		SlotCustomerID: ptr(42),
		BearerToken:    "some-token",
	})
	require.NoError(t, err)
	require.NotNil(t, customerID)
	assert.Equal(t, int64(42), *customerID)
	assert.Zero(t, verifier.calls, "token must not be verified when a slot identity exists")
}

func TestResolveTokenPersistsSlot(t *testing.T) {
	verifier := &stubVerifier{identity: &VerifiedIdentity{CustomerID: 77, Email: "a@b.c"}}
	slots := &stubSlots{}
	r := NewResolver(verifier, slots, testLogger())

	customerID, err := r.Resolve(context.Background(), "conv-9", models.IdentityEvidence{BearerToken: "valid"})
	require.NoError(t, err)
	require.NotNil(t, customerID)
	assert.Equal(t, int64(77), *customerID)
	assert.Equal(t, 1, slots.calls)
	assert.Equal(t, "conv-9", slots.conversationID)
	assert.Equal(t, int64(77), slots.customerID)
}

func TestResolveInvalidTokenFallsThrough(t *testing.T) {
	verifier := &stubVerifier{err: errors.New("token is expired")}
	r := NewResolver(verifier, &stubSlots{}, testLogger())

	customerID, err := r.Resolve(context.Background(), "conv-1", models.IdentityEvidence{BearerToken: "expired"})
	assert.NoError(t, err)
	assert.Nil(t, customerID)
}

func TestResolveProviderOutagePropagates(t *testing.T) {
	verifier := &stubVerifier{err: ErrProviderUnavailable}
	r := NewResolver(verifier, &stubSlots{}, testLogger())

	customerID, err := r.Resolve(context.Background(), "conv-1", models.IdentityEvidence{BearerToken: "any"})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Nil(t, customerID)
}

func TestResolveSlotWriteFailureIsSwallowed(t *testing.T) {
	verifier := &stubVerifier{identity: &VerifiedIdentity{CustomerID: 3}}
	slots := &stubSlots{err: errors.New("redis down")}
	r := NewResolver(verifier, slots, testLogger())

	customerID, err := r.Resolve(context.Background(), "conv-1", models.IdentityEvidence{BearerToken: "valid"})
	require.NoError(t, err)
	require.NotNil(t, customerID)
	assert.Equal(t, int64(3), *customerID)
}

func TestResolveNoEvidence(t *testing.T) {
	r := NewResolver(&stubVerifier{}, &stubSlots{}, testLogger())

	customerID, err := r.Resolve(context.Background(), "conv-1", models.IdentityEvidence{})
	assert.NoError(t, err)
	assert.Nil(t, customerID)
}
