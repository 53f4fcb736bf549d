package engine

import (
	"fmt"
	"io"
	"runtime"
	"sort"
	"strings"
	"sync"
)

// Backend names accepted by New.
const (
	BackendSimpleperf  = "simpleperf"
	BackendProfcollect = "profcollect"
	BackendUnsupported = "unsupported"
)

// CString is a NUL-terminated byte sequence as expected by the native
// tracing engine. The last byte is always 0 and no other byte is 0.
type CString []byte

// NewCString copies s into a CString. It returns ok=false when s contains
// a NUL byte, in which case no terminated form exists.
func NewCString(s string) (CString, bool) {
	if i := strings.IndexByte(s, 0); i >= 0 {
		return nil, false
	}
	buf := make(CString, len(s)+1)
	copy(buf, s)
	return buf, true
}

// GoString returns the content without the terminator.
func (c CString) GoString() string {
	if len(c) == 0 {
		return ""
	}
	return string(c[:len(c)-1])
}

// Engine is the native tracing engine boundary. Implementations must not
// retain any CString after the call returns.
type Engine interface {
	// HasDriverSupport reports whether the ETM driver is present.
	HasDriverSupport() bool

	// HasDeviceSupport reports whether the ETM device is ready. The device
	// may come up after the driver.
	HasDeviceSupport() bool

	// Record captures a trace for durationSeconds using the perf event
	// eventName and writes it to traceFile.
	Record(eventName, traceFile CString, durationSeconds float32, binaryFilter CString)

	// Inject decodes the trace at tracePath into a profile at profilePath.
	Inject(tracePath, profilePath, binaryFilter CString)

	// SetLogFile sends subsequent engine diagnostics to path.
	SetLogFile(path CString)

	// ResetLogFile restores the default diagnostics destination.
	ResetLogFile()
}

// Options configures engine construction. Fields unused by the selected
// backend are ignored.
type Options struct {
	// Backend selects the implementation. Empty picks the platform default.
	Backend string

	// Simpleperf is the simpleperf binary used by the simpleperf backend.
	Simpleperf string

	// SysfsRoot is where sysfs is mounted (default /sys).
	SysfsRoot string

	// SandboxInject runs "simpleperf inject" behind Landlock and seccomp
	// through the internal trampoline.
	SandboxInject bool

	// HelperBinaryPath is the binary hosting the trampoline entrypoint.
	// Defaults to the current executable.
	HelperBinaryPath string

	// ForwardSignals relays SIGINT/SIGTERM to a running simpleperf child.
	ForwardSignals bool

	// LogOutput is the default diagnostics destination (default stderr).
	LogOutput io.Writer
}

type factory func(Options) (Engine, error)

var (
	backendsMu sync.RWMutex
	backends   = map[string]factory{}
)

func register(name string, f factory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = f
}

// Backends returns the backend names compiled into this binary.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New returns the Engine selected by opts.Backend.
func New(opts Options) (Engine, error) {
	name := opts.Backend
	if name == "" {
		name = defaultBackend
	}

	backendsMu.RLock()
	f, ok := backends[name]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("engine backend %q not available on %s/%s (have %v)",
			name, runtime.GOOS, runtime.GOARCH, Backends())
	}
	return f(opts)
}
