package engine

import (
	"log/slog"
	"runtime"

	"github.com/bpicori/etmctl/internal/log"
)

// Trampoline wiring shared by the engine and the etmctl command.
const (
	InternalInjectCommand    = "__etmctl_internal_inject"
	InternalInjectPayloadEnv = "ETMCTL_INTERNAL_INJECT_PAYLOAD"
)

func init() {
	register(BackendUnsupported, newUnsupportedEngine)
}

// unsupportedEngine reports no ETM support and turns every operation into a
// logged warning.
type unsupportedEngine struct {
	out    *log.Redirector
	logger *slog.Logger
}

func newUnsupportedEngine(opts Options) (Engine, error) {
	out := log.NewRedirector(opts.LogOutput)
	return &unsupportedEngine{
		out:    out,
		logger: log.NewLogger(log.Options{Verbose: true, Stderr: out}).With("engine", BackendUnsupported),
	}, nil
}

func (*unsupportedEngine) HasDriverSupport() bool { return false }

func (*unsupportedEngine) HasDeviceSupport() bool { return false }

func (u *unsupportedEngine) Record(eventName, traceFile CString, _ float32, _ CString) {
	u.logger.Warn("etm unsupported on "+runtime.GOOS, "op", "record",
		"event", eventName.GoString(), "output", traceFile.GoString())
}

func (u *unsupportedEngine) Inject(tracePath, profilePath, _ CString) {
	u.logger.Warn("etm unsupported on "+runtime.GOOS, "op", "inject",
		"input", tracePath.GoString(), "output", profilePath.GoString())
}

func (u *unsupportedEngine) SetLogFile(path CString) {
	if err := u.out.Redirect(path.GoString()); err != nil {
		u.logger.Warn("log file not changed", "path", path.GoString(), "error", err)
	}
}

func (u *unsupportedEngine) ResetLogFile() {
	path := u.out.Path()
	if err := u.out.Reset(); err != nil {
		u.logger.Warn("closing log file", "path", path, "error", err)
	}
}
