package issuer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/certmint/certmint/acme/resources"
)

// ErrTermsRejected is returned when the authority's terms of service were
// not accepted by the configured policy. Registration cannot proceed until
// an operator acknowledges the terms.
var ErrTermsRejected = errors.New("authority terms of service were not accepted")

// FailureKind classifies why a domain's authorization validation reached
// a terminal failure. None of these kinds are retried within an issuance.
type FailureKind string

const (
	// FailureInvalid: the authority marked the authorization invalid after
	// checking its challenges.
	FailureInvalid FailureKind = "invalid"
	// FailureRevoked: the authorization was revoked server-side.
	FailureRevoked FailureKind = "revoked"
	// FailureExpired: the authorization expired before validation finished.
	FailureExpired FailureKind = "expired"
	// FailureUnexpectedStatus: the authority reported a status outside the
	// known set. Never expected from a conforming server.
	FailureUnexpectedStatus FailureKind = "unexpected-status"
	// FailureTimeout: the authorization stayed pending through every poll
	// attempt.
	FailureTimeout FailureKind = "timeout"
	// FailureMissingChallenge: the authority offered no challenge of a type
	// the issuer was configured to answer.
	FailureMissingChallenge FailureKind = "missing-challenge"
)

// ValidationError is the terminal failure of one domain's authorization
// validation. The message always names the domain and the underlying reason
// so operators can act on it.
type ValidationError struct {
	// Domain is the identifier whose validation failed.
	Domain string
	// Kind classifies the failure.
	Kind FailureKind
	// Status carries the authority-reported status for
	// FailureUnexpectedStatus.
	Status string
	// Attempts is the number of polls performed for FailureTimeout.
	Attempts int
	// Problems aggregates every challenge-level error the authority
	// attached to an invalid authorization.
	Problems []resources.Problem
	// ChallengeType names the missing type for FailureMissingChallenge.
	ChallengeType string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case FailureInvalid:
		return fmt.Sprintf("authorization for %q is invalid: %s",
			e.Domain, joinProblems(e.Problems))
	case FailureRevoked, FailureExpired:
		return fmt.Sprintf("authorization for %q is %s", e.Domain, e.Kind)
	case FailureUnexpectedStatus:
		return fmt.Sprintf("authorization for %q has unexpected status %q",
			e.Domain, e.Status)
	case FailureTimeout:
		return fmt.Sprintf("authorization for %q was still pending after %d poll attempts",
			e.Domain, e.Attempts)
	case FailureMissingChallenge:
		return fmt.Sprintf("authorization for %q offered no %q challenge",
			e.Domain, e.ChallengeType)
	}
	return fmt.Sprintf("authorization for %q failed: %s", e.Domain, e.Kind)
}

func joinProblems(problems []resources.Problem) string {
	if len(problems) == 0 {
		return "no challenge errors reported"
	}
	parts := make([]string, len(problems))
	for i, p := range problems {
		parts[i] = fmt.Sprintf("%s: %s (status %d)", p.Type, p.Detail, p.Status)
	}
	return strings.Join(parts, "; ")
}
