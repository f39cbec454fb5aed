package domain

// Outcome is the classification assigned to an inbound verify request.
type Outcome string

const (
	OutcomePass         Outcome = "pass"
	OutcomeAutomated    Outcome = "automated"
	OutcomeDenied       Outcome = "denied"
	OutcomeInvalidInput Outcome = "invalid_input"
)

// Reason codes attached to terminal verdicts. They are recorded in the audit
// trail and metrics but never returned to the client.
const (
	ReasonHoneypot         = "honeypot"
	ReasonBlockedIP        = "blocked_ip"
	ReasonBlockedRegion    = "blocked_region"
	ReasonUserAgent        = "user_agent"
	ReasonEmptyUserAgent   = "empty_user_agent"
	ReasonTooFast          = "interaction_too_fast"
	ReasonIdentifierSyntax = "identifier_syntax"
)

// Verdict is what the classifier hands back: a pass, or the first terminal
// predicate that fired.
type Verdict struct {
	Outcome Outcome
	Reason  string
}

// Passed reports whether no predicate fired.
func (v Verdict) Passed() bool {
	return v.Outcome == OutcomePass
}

// Err converts a terminal verdict into its sentinel error. A pass yields nil.
func (v Verdict) Err() error {
	switch v.Outcome {
	case OutcomeAutomated:
		return ErrAutomatedTraffic
	case OutcomeDenied:
		return ErrPolicyDenied
	case OutcomeInvalidInput:
		return ErrInvalidInput
	default:
		return nil
	}
}

// ProofOutcome is the result of checking a proof-of-humanity token.
type ProofOutcome string

const (
	ProofVerified           ProofOutcome = "verified"
	ProofRejected           ProofOutcome = "rejected"
	ProofServiceUnavailable ProofOutcome = "service_unavailable"
)
