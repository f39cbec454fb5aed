package ports

import (
	"context"
	"time"
)

// VerifyInput is the DTO passed from the transport layer to the gateway.
type VerifyInput struct {
	Identifier string
	Proof      string
	Honeypot   string
	// ClientTimestamp is the page-load time reported by the client; zero
	// means the client did not send one.
	ClientTimestamp time.Time
	RemoteIP        string
	UserAgent       string
	Region          string
	RequestID       string
}

// VerifyResult is returned when a verify request is answered with 200.
type VerifyResult struct {
	Valid         bool
	Message       string
	RedemptionURL string
	ExpiresAt     time.Time
}

// ForwardInput carries a redemption attempt.
type ForwardInput struct {
	Token     string
	RemoteIP  string
	RequestID string
}

// ForwardResult carries the final redirect target.
type ForwardResult struct {
	Location string
}

// GatewayService runs the verify and forward flows.
type GatewayService interface {
	Verify(ctx context.Context, in VerifyInput) (*VerifyResult, error)
	Forward(ctx context.Context, in ForwardInput) (*ForwardResult, error)
}
