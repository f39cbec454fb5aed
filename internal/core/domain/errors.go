package domain

import (
	"errors"
	"fmt"
)

// ErrRequestBlocked is the shared root of every rejection that must not
// reveal which detection fired. The HTTP layer renders all of them alike.
var ErrRequestBlocked = errors.New("request blocked")

var (
	ErrInvalidInput            = errors.New("invalid input")
	ErrMissingProof            = fmt.Errorf("missing proof: %w", ErrInvalidInput)
	ErrAutomatedTraffic        = fmt.Errorf("automated traffic suspected: %w", ErrRequestBlocked)
	ErrPolicyDenied            = fmt.Errorf("denied by origin policy: %w", ErrRequestBlocked)
	ErrRateLimited             = errors.New("rate limited")
	ErrIdentityNotAuthorized   = errors.New("identity not authorized")
	ErrProofRejected           = errors.New("proof rejected")
	ErrProofServiceUnavailable = errors.New("proof service unavailable")
	ErrTokenNotFound           = errors.New("token not found")
	ErrTokenExpired            = errors.New("token expired")
	ErrAllowlistUnavailable    = errors.New("allow-list unavailable")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrOperatorExists     = errors.New("operator already exists")
	ErrOperatorNotFound   = errors.New("operator not found")
)
