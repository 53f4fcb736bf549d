// Package etm is a safe front end to the simpleperf ETM tracing engine used
// for continuous profiling: capability probes, timed trace capture, trace to
// profile conversion and engine log redirection.
//
// Engine failures are not reported back. They show up in the engine's log
// (see SetLogFile) and as missing output files. Arguments containing a NUL
// byte are programmer errors and panic before the engine is called.
//
// Nothing here is synchronized. Callers that need to overlap calls must
// serialize them, and a Record call blocks for the capture duration.
package etm

import (
	"fmt"
	"sync"
	"time"

	"github.com/bpicori/etmctl/internal/engine"
	"github.com/bpicori/etmctl/internal/log"
)

// Tracer issues requests to one Engine.
type Tracer struct {
	engine Engine
}

// New returns a Tracer on top of e.
func New(e Engine) *Tracer {
	return &Tracer{engine: e}
}

// Open builds the engine described by opts and returns a Tracer on it.
func Open(opts EngineOptions) (*Tracer, error) {
	e, err := engine.New(engine.Options{
		Backend:          opts.Backend,
		Simpleperf:       opts.Simpleperf,
		SysfsRoot:        opts.SysfsRoot,
		SandboxInject:    opts.SandboxInject,
		HelperBinaryPath: opts.HelperBinaryPath,
		ForwardSignals:   opts.ForwardSignals,
		LogOutput:        opts.LogOutput,
	})
	if err != nil {
		return nil, err
	}
	return New(e), nil
}

// HasDriverSupport reports whether the ETM driver is present. The driver is
// expected right after boot. It is always safe to call.
func (t *Tracer) HasDriverSupport() bool {
	return t.engine.HasDriverSupport()
}

// HasDeviceSupport reports whether the ETM device is available. Unlike the
// driver, the device may appear some time after boot.
func (t *Tracer) HasDeviceSupport() bool {
	return t.engine.HasDeviceSupport()
}

// Record captures an ETM trace of the given scope for duration and writes it
// to outputPath. An empty binaryFilter traces every binary.
func (t *Tracer) Record(outputPath string, duration time.Duration, binaryFilter string, scope Scope) {
	eventName := mustCString("event name", scope.EventName())
	traceFile := mustCString("trace path", outputPath)
	filter := mustCString("binary filter", binaryFilter)
	seconds := float32(duration.Seconds())

	log.Debug("etm record", "event", scope.EventName(), "output", outputPath,
		"duration", duration, "binary_filter", binaryFilter)
	t.engine.Record(eventName, traceFile, seconds, filter)
}

// Process converts the trace at tracePath into a profile at profilePath,
// keeping the binaries matching binaryFilter.
func (t *Tracer) Process(tracePath, profilePath, binaryFilter string) {
	trace := mustCString("trace path", tracePath)
	profile := mustCString("profile path", profilePath)
	filter := mustCString("binary filter", binaryFilter)

	log.Debug("etm process", "input", tracePath, "output", profilePath,
		"binary_filter", binaryFilter)
	t.engine.Inject(trace, profile, filter)
}

// SetLogFile sends the engine's diagnostics to path until ResetLogFile. It
// replaces any earlier log file. The redirection is process wide and is not
// undone automatically.
func (t *Tracer) SetLogFile(path string) {
	t.engine.SetLogFile(mustCString("log path", path))
}

// ResetLogFile returns engine diagnostics to their default destination. It
// is a no-op when no log file is set.
func (t *Tracer) ResetLogFile() {
	t.engine.ResetLogFile()
}

func mustCString(what, s string) CString {
	c, ok := engine.NewCString(s)
	if !ok {
		panic(fmt.Sprintf("etm: %s %q contains a NUL byte", what, s))
	}
	return c
}

var (
	defaultOnce   sync.Once
	defaultTracer *Tracer
)

// Default returns the Tracer used by the package-level functions, opened with
// zero EngineOptions on first use.
func Default() *Tracer {
	defaultOnce.Do(func() {
		t, err := Open(EngineOptions{})
		if err != nil {
			// The platform default backend is always compiled in.
			panic(fmt.Sprintf("etm: open default engine: %v", err))
		}
		defaultTracer = t
	})
	return defaultTracer
}

// HasDriverSupport calls Default().HasDriverSupport.
func HasDriverSupport() bool { return Default().HasDriverSupport() }

// HasDeviceSupport calls Default().HasDeviceSupport.
func HasDeviceSupport() bool { return Default().HasDeviceSupport() }

// Record calls Default().Record.
func Record(outputPath string, duration time.Duration, binaryFilter string, scope Scope) {
	Default().Record(outputPath, duration, binaryFilter, scope)
}

// Process calls Default().Process.
func Process(tracePath, profilePath, binaryFilter string) {
	Default().Process(tracePath, profilePath, binaryFilter)
}

// SetLogFile calls Default().SetLogFile.
func SetLogFile(path string) { Default().SetLogFile(path) }

// ResetLogFile calls Default().ResetLogFile.
func ResetLogFile() { Default().ResetLogFile() }

// RunInternalInject is the entrypoint of the sandboxed inject trampoline.
// Binaries that enable EngineOptions.SandboxInject dispatch to it when their
// first argument is InternalInjectCommand.
func RunInternalInject() (int, error) {
	return engine.RunInternalInject()
}

// InternalInjectCommand is the hidden argument selecting the trampoline.
const InternalInjectCommand = engine.InternalInjectCommand
