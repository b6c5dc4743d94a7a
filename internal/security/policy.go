package security

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"github.com/papyr-io/papyr/internal/logging"
)

// minConfirmationLen is the shortest confirmation token accepted when
// activating the trusted level.
const minConfirmationLen = 8

// defaultBlockedDomains are refused at every level below trusted. The list
// can be extended through Tunables but never shrunk below this set.
var defaultBlockedDomains = []string{
	"*.gov",
	"*.mil",
	"metadata.google.internal",
	"169.254.169.254",
}

// Policy is the immutable bundle of limits derived from a Level. Once
// constructed a Policy is never mutated; only the holder's reference is
// swapped. Readers therefore need no locking.
type Policy struct {
	Level                Level
	AllowFile            bool
	AllowSocket          bool
	AllowReflection      bool
	AllowInternalNetwork bool
	TimeoutMs            int64
	InstructionCeiling   int64
	MaxHTTPRequests      int64
	MaxFileSize          int64
	SandboxRoot          string
	BlockedDomains       []string
}

// Tunables adjusts the parts of a Policy that come from the embedding
// application rather than the level itself.
type Tunables struct {
	SandboxRoot        string
	BlockedDomains     []string
	MaxResponseSize    int64
	MaxHTTPRequests    int64
	InstructionCeiling int64
}

// PolicyFor derives the concrete Policy for a level.
func PolicyFor(level Level, t Tunables) *Policy {
	if t.MaxResponseSize <= 0 {
		t.MaxResponseSize = 10 * 1024 * 1024
	}
	if t.MaxHTTPRequests <= 0 {
		t.MaxHTTPRequests = 100
	}
	if t.InstructionCeiling <= 0 {
		t.InstructionCeiling = 2_000_000
	}

	p := &Policy{
		Level:              level,
		SandboxRoot:        filepath.Clean(t.SandboxRoot),
		MaxFileSize:        t.MaxResponseSize,
		MaxHTTPRequests:    t.MaxHTTPRequests,
		InstructionCeiling: t.InstructionCeiling,
	}

	switch level {
	case LevelStandard:
		p.TimeoutMs = 30_000
		p.BlockedDomains = append(append([]string{}, defaultBlockedDomains...), t.BlockedDomains...)
	case LevelCompatible:
		p.AllowFile = true
		p.AllowSocket = true
		p.TimeoutMs = 60_000
		p.BlockedDomains = append(append([]string{}, defaultBlockedDomains...), t.BlockedDomains...)
	case LevelTrusted:
		p.AllowFile = true
		p.AllowSocket = true
		p.AllowReflection = true
		p.AllowInternalNetwork = true
		p.TimeoutMs = 120_000
		// Trusted keeps only the application's own blocklist.
		p.BlockedDomains = append([]string{}, t.BlockedDomains...)
	}

	return p
}

// Timeout returns the policy budget as a duration.
func (p *Policy) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// persistedState is the on-disk record of the administrative choice.
type persistedState struct {
	Level     string    `toml:"level"`
	ChangedAt time.Time `toml:"changed_at"`
}

// Manager holds the process-wide active policy behind an atomic reference.
// Swaps are audited and persisted; reads never block.
type Manager struct {
	active    atomic.Pointer[Policy]
	tunables  Tunables
	stateFile string
	logger    *logging.Logger
}

// NewManager creates a manager starting at the standard level, then
// restores a previously persisted non-trusted choice if one exists.
// Trusted is never restored implicitly.
func NewManager(t Tunables, stateFile string, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{tunables: t, stateFile: stateFile, logger: logger}
	m.active.Store(PolicyFor(LevelStandard, t))

	if level, ok := m.restore(); ok && level != LevelTrusted {
		m.active.Store(PolicyFor(level, t))
	}
	return m
}

// Active returns the current policy. The returned value is immutable.
func (m *Manager) Active() *Policy {
	return m.active.Load()
}

// SetLevel atomically replaces the active policy. Activating trusted
// requires a confirmation token of at least eight characters; on a missing
// or short token the active policy is left untouched.
func (m *Manager) SetLevel(level Level, confirmation string) error {
	if level == LevelTrusted && len(confirmation) < minConfirmationLen {
		return Violated("policy.confirmation",
			"trusted level requires a confirmation token of at least %d characters", minConfirmationLen)
	}

	before := m.active.Load()
	next := PolicyFor(level, m.tunables)
	m.active.Store(next)

	m.logger.Info("security policy changed",
		zap.String("before", before.Level.String()),
		zap.String("after", level.String()),
		zap.Bool("allow_file", next.AllowFile),
		zap.Bool("allow_internal_network", next.AllowInternalNetwork),
	)

	if err := m.persist(level); err != nil {
		m.logger.Warn("failed to persist policy choice", zap.Error(err))
	}
	return nil
}

func (m *Manager) persist(level Level) error {
	if m.stateFile == "" {
		return nil
	}
	data, err := toml.Marshal(persistedState{
		Level:     level.String(),
		ChangedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode policy state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.stateFile), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	return os.WriteFile(m.stateFile, data, 0o600)
}

func (m *Manager) restore() (Level, bool) {
	if m.stateFile == "" {
		return LevelStandard, false
	}
	data, err := os.ReadFile(m.stateFile)
	if err != nil {
		return LevelStandard, false
	}
	var state persistedState
	if err := toml.Unmarshal(data, &state); err != nil {
		return LevelStandard, false
	}
	level, err := ParseLevel(state.Level)
	if err != nil {
		return LevelStandard, false
	}
	return level, true
}
