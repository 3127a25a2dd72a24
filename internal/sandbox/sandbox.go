// Package sandbox provides Docker-container-backed isolation for tool
// execution (bash, filesystem) per the agent's sandbox policy.
package sandbox

import (
	"context"
	"errors"
	"time"
)

// Mode controls which sessions get a sandboxed execution environment.
type Mode string

const (
	ModeOff     Mode = "off"      // never sandbox
	ModeNonMain Mode = "non-main" // sandbox everything except the agent's main session
	ModeAll     Mode = "all"      // sandbox every session
)

// Access controls what a sandboxed container can do to the host workspace.
type Access string

const (
	AccessNone Access = "none"
	AccessRO   Access = "ro"
	AccessRW   Access = "rw"
)

// Scope controls how sandbox containers are keyed and reused.
type Scope string

const (
	ScopeSession Scope = "session" // one container per session
	ScopeAgent   Scope = "agent"   // one container shared by all of an agent's sessions
	ScopeShared  Scope = "shared"  // one container shared across all agents
)

// Config mirrors config.SandboxConfig once defaults have been applied.
type Config struct {
	Mode            Mode
	Image           string
	WorkspaceAccess Access
	Scope           Scope
	MemoryMB        int
	CPUs            float64
	TimeoutSec      int
	NetworkEnabled  bool
	ReadOnlyRoot    bool
	SetupCommand    string
	Env             map[string]string
	User            string
	TmpfsSizeMB     int
	MaxOutputBytes  int
	IdleHours        int
	MaxAgeDays       int
	PruneIntervalMin int
}

// DefaultConfig returns the sandbox defaults applied when a field is unset.
func DefaultConfig() Config {
	return Config{
		Mode:             ModeOff,
		Image:            "goclaw-sandbox:bookworm-slim",
		WorkspaceAccess:  AccessRW,
		Scope:            ScopeSession,
		MemoryMB:         512,
		CPUs:             1.0,
		TimeoutSec:       300,
		NetworkEnabled:   false,
		ReadOnlyRoot:     true,
		MaxOutputBytes:   1 << 20,
		IdleHours:        24,
		MaxAgeDays:       7,
		PruneIntervalMin: 5,
	}
}

// ErrSandboxDisabled is returned by Manager.Get when the configured mode is
// ModeOff. Get does not apply the ModeNonMain main-session rule; ShouldSandbox does.
var ErrSandboxDisabled = errors.New("sandbox: disabled for this session")

// ExecResult is the outcome of a command run inside a sandbox container.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Sandbox is a single running container bound to one sandbox key.
type Sandbox interface {
	ID() string
	Exec(ctx context.Context, argv []string, workdir string) (ExecResult, error)
}

// Manager creates and reuses sandbox containers keyed by Scope.
type Manager interface {
	// Get returns (creating if necessary) the sandbox for key, rooted at workingDir.
	// Returns ErrSandboxDisabled if the configured Mode is ModeOff.
	Get(ctx context.Context, key, workingDir string) (Sandbox, error)
	// Prune removes containers idle or aged past the configured thresholds.
	Prune(ctx context.Context) error
	// Close tears down all managed containers.
	Close(ctx context.Context) error
}

// ShouldSandbox reports whether a session identified as main or not should
// be routed through the sandbox, per the configured Mode.
func ShouldSandbox(mode Mode, isMainSession bool) bool {
	switch mode {
	case ModeAll:
		return true
	case ModeNonMain:
		return !isMainSession
	default:
		return false
	}
}

// idleTTL returns how long a container may sit unused before Prune reaps it.
func idleTTL(cfg Config) time.Duration {
	if cfg.IdleHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(cfg.IdleHours) * time.Hour
}

func maxAge(cfg Config) time.Duration {
	if cfg.MaxAgeDays <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(cfg.MaxAgeDays) * 24 * time.Hour
}
