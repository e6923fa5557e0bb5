package models

// GeneratedResponse is the generative collaborator's output together with the
// safety filter's verdict. A response with Validated=false must never be shown
// to the user.
type GeneratedResponse struct {
	RawText       string `json:"raw_text"`
	Validated     bool   `json:"validated"`
	BlockedReason string `json:"blocked_reason,omitempty"`
}
