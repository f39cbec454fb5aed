package ports

import "github.com/mailgate/gate-service/internal/core/domain"

// RequestClassifier runs the heuristic predicate chain on a verify request.
type RequestClassifier interface {
	Classify(in VerifyInput) domain.Verdict
}
