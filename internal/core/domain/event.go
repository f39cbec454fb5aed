package domain

import "time"

// Stage names the point in the pipeline that produced a decision.
type Stage string

const (
	StageClassify  Stage = "classify"
	StageAllowlist Stage = "allowlist"
	StageProof     Stage = "proof"
	StageIssue     Stage = "issue"
	StageRedeem    Stage = "redeem"
)

// DecisionEvent is one audit record for a verify or forward decision.
type DecisionEvent struct {
	At                  time.Time
	Stage               Stage
	Outcome             string
	Reason              string
	IdentityFingerprint string
	RemoteIP            string
	RequestID           string
}
