package models

// Turn is a single parsed user message as delivered by the NLU engine.
type Turn struct {
	ConversationID string            `json:"conversation_id"`
	Intent         string            `json:"intent"`
	Confidence     float64           `json:"confidence"`
	Entities       map[string]string `json:"entities"`
	RawText        string            `json:"raw_text"`
	Metadata       TurnMetadata      `json:"metadata"`
}

// TurnMetadata is out-of-band context attached by the transport layer.
type TurnMetadata struct {
	// CustomerID is set when the transport already authenticated the user.
	CustomerID *int64 `json:"customer_id,omitempty"`
	// BearerToken is an unverified token forwarded from the client.
	BearerToken string `json:"bearer_token,omitempty"`
}

// Entity returns the named entity value, or "" when absent.
func (t *Turn) Entity(name string) string {
	if t.Entities == nil {
		return ""
	}
	return t.Entities[name]
}

// TurnResult is what a dispatched turn hands back to the presentation layer.
type TurnResult struct {
	Text    string         `json:"text"`
	Payload map[string]any `json:"payload,omitempty"`
}

// IdentityEvidence is the bag of optional identity signals available on one turn.
// Each signal is independently sourced; precedence is decided by the resolver,
// never by the order fields happen to be populated in.
type IdentityEvidence struct {
	// ExplicitCustomerID comes from the transport layer, which already
	// authenticated the session.
	ExplicitCustomerID *int64
	// SlotCustomerID was persisted from an earlier turn in this conversation.
	SlotCustomerID *int64
	// BearerToken is an opaque token that still needs verification.
	BearerToken string
}
