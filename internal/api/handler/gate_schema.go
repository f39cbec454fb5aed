package handler

import "time"

// verifyRequest accepts JSON and form posts. Email is the legacy name of
// Identifier.
type verifyRequest struct {
	Identifier string `json:"identifier" form:"identifier" validate:"max=320"`
	Email      string `json:"email"      form:"email"      validate:"max=320"`
	Proof      string `json:"proof"      form:"proof"      validate:"max=4096"`
	Honeypot   string `json:"honeypot"   form:"honeypot"`
	// ClientTimestamp is the page-load time in Unix milliseconds.
	ClientTimestamp int64 `json:"clientTimestamp" form:"clientTimestamp" validate:"min=0"`
}

type verifyResponse struct {
	Valid         bool      `json:"valid"`
	Message       string    `json:"message"`
	RedemptionURL string    `json:"redemptionUrl"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

type reloadResponse struct {
	Status string `json:"status"`
	Size   int    `json:"size"`
}

type statsResponse struct {
	AllowlistSize     int        `json:"allowlist_size"`
	AllowlistLoadedAt *time.Time `json:"allowlist_loaded_at,omitempty"`
	TokensHeld        int        `json:"tokens_held"`
	ProofBreaker      string     `json:"proof_breaker,omitempty"`
}
