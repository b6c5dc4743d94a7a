package security

import "fmt"

// Level defines the trust tier granted to book-source scripts. Tiers are
// totally ordered by risk: each one is a superset of the capabilities of
// the tier below it.
type Level int

const (
	// LevelStandard allows network GET/POST only. No file access, no raw
	// sockets, no reflection, short timeouts.
	LevelStandard Level = iota
	// LevelCompatible adds sandboxed file I/O and raw sockets for sources
	// that predate the capability surface. Still no reflection.
	LevelCompatible
	// LevelTrusted grants everything, including internal-network access
	// and sandbox escape. Never reachable without explicit confirmation.
	LevelTrusted
)

// String returns the canonical lowercase name of the level.
func (l Level) String() string {
	switch l {
	case LevelStandard:
		return "standard"
	case LevelCompatible:
		return "compatible"
	case LevelTrusted:
		return "trusted"
	default:
		return "unknown"
	}
}

// ParseLevel converts a string to a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "standard":
		return LevelStandard, nil
	case "compatible":
		return LevelCompatible, nil
	case "trusted":
		return LevelTrusted, nil
	default:
		return LevelStandard, fmt.Errorf("unknown security level %q", s)
	}
}

// AtLeast reports whether l grants at least the capabilities of other.
func (l Level) AtLeast(other Level) bool {
	return l >= other
}
