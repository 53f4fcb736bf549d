package etm

import (
	"fmt"
	"io"
	"strings"

	"github.com/bpicori/etmctl/internal/engine"
)

// Engine is the native tracing engine behind a Tracer.
type Engine = engine.Engine

// CString is the NUL-terminated argument form the Engine receives.
type CString = engine.CString

// Scope selects which execution contexts produce trace data.
type Scope int

const (
	// Userspace records ETM data only for userspace.
	Userspace Scope = iota
	// Kernel records ETM data only for the kernel.
	Kernel
	// Both records ETM data for userspace and kernel.
	Both
)

// Scopes lists every Scope value.
var Scopes = []Scope{Userspace, Kernel, Both}

// EventName returns the perf event the engine dispatches on. It panics for
// values outside Scopes.
func (s Scope) EventName() string {
	switch s {
	case Userspace:
		return "cs-etm:u"
	case Kernel:
		return "cs-etm:k"
	case Both:
		return "cs-etm"
	}
	panic(fmt.Sprintf("etm: unknown scope %d", int(s)))
}

func (s Scope) String() string {
	switch s {
	case Userspace:
		return "userspace"
	case Kernel:
		return "kernel"
	case Both:
		return "both"
	}
	return fmt.Sprintf("Scope(%d)", int(s))
}

// ParseScope parses the textual scope names used in configuration.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "userspace", "user", "u":
		return Userspace, nil
	case "kernel", "k":
		return Kernel, nil
	case "both", "all":
		return Both, nil
	default:
		return 0, fmt.Errorf("invalid scope %q (want userspace, kernel or both)", s)
	}
}

// EngineOptions selects and configures the engine opened by Open.
type EngineOptions struct {
	// Backend is "simpleperf", "profcollect" or empty for the platform
	// default.
	Backend string

	// Simpleperf overrides the simpleperf binary location.
	Simpleperf string

	// SysfsRoot overrides where sysfs is mounted.
	SysfsRoot string

	// SandboxInject confines "simpleperf inject" with Landlock and seccomp.
	// The current executable must dispatch the internal inject command to
	// RunInternalInject, or HelperBinaryPath must point at one that does.
	SandboxInject    bool
	HelperBinaryPath string

	// ForwardSignals relays SIGINT/SIGTERM to a running capture.
	ForwardSignals bool

	// LogOutput is where engine diagnostics go while no log file is set.
	// Defaults to stderr.
	LogOutput io.Writer
}
