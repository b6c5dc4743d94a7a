package security

import (
	"errors"
	"fmt"
)

// Violation is the typed error raised whenever the capability surface
// denies a call. The Rule identifies which check refused, so callers can
// tell "blocked by policy" apart from a script bug or a network failure.
type Violation struct {
	Rule   string // e.g. "net.internal", "file.path", "policy.confirmation"
	Detail string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("security violation [%s]: %s", v.Rule, v.Detail)
}

// Violated constructs a Violation for the given rule.
func Violated(rule, format string, args ...interface{}) *Violation {
	return &Violation{Rule: rule, Detail: fmt.Sprintf(format, args...)}
}

// AsViolation unwraps err to a *Violation if one is in its chain.
func AsViolation(err error) (*Violation, bool) {
	var v *Violation
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
