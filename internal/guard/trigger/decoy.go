package trigger

import (
	"crypto/sha256"
	"crypto/subtle"
)

// DecoyOutcome classifies a submitted decoy code.
type DecoyOutcome int

const (
	// DecoyNoop: empty/absent submission, not an action.
	DecoyNoop DecoyOutcome = iota
	// DecoyCancel: exact match, silent cancellation.
	DecoyCancel
	// DecoyDuress: structurally valid but non-matching entry, silent duress.
	DecoyDuress
)

// EvaluateDecoyCode compares an entered code against the owner's secret.
// The comparison runs over fixed-length digests so neither match position
// nor code length leaks via timing: an observer coercing the entry must not
// be able to distinguish the duress path from a normal code check.
func EvaluateDecoyCode(entered, actual string) DecoyOutcome {
	if entered == "" {
		return DecoyNoop
	}

	enteredSum := sha256.Sum256([]byte(entered))
	actualSum := sha256.Sum256([]byte(actual))

	if actual != "" && subtle.ConstantTimeCompare(enteredSum[:], actualSum[:]) == 1 {
		return DecoyCancel
	}
	return DecoyDuress
}
