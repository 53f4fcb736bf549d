package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bpicori/etmctl/internal/config"
	"github.com/bpicori/etmctl/internal/log"
	"github.com/bpicori/etmctl/internal/request"
	"github.com/bpicori/etmctl/pkg/etm"
)

// runner carries the process wiring so commands can be exercised in tests.
type runner struct {
	stdout io.Writer
	stderr io.Writer
	open   func(etm.EngineOptions) (*etm.Tracer, error)
}

func defaultRunner() *runner {
	return &runner{stdout: os.Stdout, stderr: os.Stderr, open: etm.Open}
}

// ProbeCmd executes the "probe" subcommand, which prints driver and device
// availability.
func ProbeCmd(args []string) int {
	return defaultRunner().probe(args)
}

// RecordCmd executes the "record" subcommand, which captures one trace.
func RecordCmd(args []string) int {
	return defaultRunner().record(args)
}

// ProcessCmd executes the "process" subcommand, which turns a trace into a
// profile.
func ProcessCmd(args []string) int {
	return defaultRunner().process(args)
}

func (r *runner) probe(args []string) int {
	f, exitCode := parseProbeFlags(args, r.stderr)
	if f == nil {
		return exitCode
	}
	cfg, err := config.Resolve(f.configPath, f.overrides())
	if err != nil {
		return r.fail(2, err)
	}

	tracer, code := r.setup(f, cfg)
	if tracer == nil {
		return code
	}
	log.Debug("probing etm support", "sysfs_root", config.Get(cfg.SysfsRoot, ""))

	fmt.Fprintf(r.stdout, "driver=%t\n", tracer.HasDriverSupport())
	fmt.Fprintf(r.stdout, "device=%t\n", tracer.HasDeviceSupport())
	return 0
}

func (r *runner) record(args []string) int {
	f, exitCode := parseRecordFlags(args, r.stderr)
	if f == nil {
		return exitCode
	}
	cfg, err := config.Resolve(f.configPath, f.overrides())
	if err != nil {
		return r.fail(2, err)
	}

	scope, err := etm.ParseScope(config.Get(cfg.Scope, config.DefaultScope))
	if err != nil {
		return r.fail(2, err)
	}
	req := request.Request{
		Op:           request.OpRecord,
		TracePath:    absPath(f.output),
		LogFile:      absPath(config.Get(cfg.LogFile, "")),
		Duration:     config.Get(cfg.Duration, config.DefaultDuration),
		BinaryFilter: config.Get(cfg.BinaryFilter, ""),
		Scope:        scope,
	}
	if err := req.Validate(request.SensitivePaths); err != nil {
		return r.fail(2, err)
	}

	tracer, code := r.setup(&f.commonFlags, cfg)
	if tracer == nil {
		return code
	}
	if err := clearOutput(req.TracePath); err != nil {
		return r.fail(1, err)
	}

	withLogFile(tracer, req.LogFile, func() {
		tracer.Record(req.TracePath, req.Duration, req.BinaryFilter, req.Scope)
	})
	return r.checkOutput("trace", req.TracePath)
}

func (r *runner) process(args []string) int {
	f, exitCode := parseProcessFlags(args, r.stderr)
	if f == nil {
		return exitCode
	}
	cfg, err := config.Resolve(f.configPath, f.overrides())
	if err != nil {
		return r.fail(2, err)
	}

	req := request.Request{
		Op:           request.OpProcess,
		TracePath:    absPath(f.input),
		ProfilePath:  absPath(f.output),
		LogFile:      absPath(config.Get(cfg.LogFile, "")),
		BinaryFilter: config.Get(cfg.BinaryFilter, ""),
	}
	if err := req.Validate(request.SensitivePaths); err != nil {
		return r.fail(2, err)
	}

	tracer, code := r.setup(&f.commonFlags, cfg)
	if tracer == nil {
		return code
	}
	if err := clearOutput(req.ProfilePath); err != nil {
		return r.fail(1, err)
	}

	withLogFile(tracer, req.LogFile, func() {
		tracer.Process(req.TracePath, req.ProfilePath, req.BinaryFilter)
	})
	return r.checkOutput("profile", req.ProfilePath)
}

// setup initializes logging and opens the engine described by cfg.
func (r *runner) setup(f *commonFlags, cfg *config.File) (*etm.Tracer, int) {
	log.Init(log.Options{Verbose: f.verbose, JSONFormat: f.jsonLogs, Stderr: r.stderr})

	opts := etm.EngineOptions{
		Backend:        config.Get(cfg.Backend, ""),
		Simpleperf:     config.Get(cfg.Simpleperf, ""),
		SysfsRoot:      config.Get(cfg.SysfsRoot, ""),
		SandboxInject:  config.Get(cfg.SandboxInject, false),
		ForwardSignals: true,
		LogOutput:      r.stderr,
	}
	if log.Enabled(slog.LevelDebug) {
		log.Debug("opening engine",
			"backend", opts.Backend,
			"simpleperf", opts.Simpleperf,
			"sysfs_root", opts.SysfsRoot,
			"sandbox_inject", opts.SandboxInject)
	}

	tracer, err := r.open(opts)
	if err != nil {
		return nil, r.fail(1, err)
	}
	return tracer, 0
}

// withLogFile redirects engine diagnostics to path around fn. The facade
// does not undo redirection by itself.
func withLogFile(tracer *etm.Tracer, path string, fn func()) {
	if path == "" {
		fn()
		return
	}
	tracer.SetLogFile(path)
	defer tracer.ResetLogFile()
	fn()
}

// clearOutput removes a file left at path by an earlier run, so that
// checkOutput only ever sees what this run produced.
func clearOutput(path string) error {
	err := os.Remove(path)
	if err == nil {
		log.Warn("replaced existing output", "path", path)
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("remove existing output %s: %w", path, err)
}

// checkOutput confirms the engine produced a non-empty file at path. The
// engine reports nothing back, so this is the only success signal.
func (r *runner) checkOutput(what, path string) int {
	info, err := os.Stat(path)
	if err != nil {
		return r.fail(1, fmt.Errorf("no %s written to %s (see engine log)", what, path))
	}
	if info.Size() == 0 {
		return r.fail(1, fmt.Errorf("%s %s is empty (see engine log)", what, path))
	}
	log.With("kind", what).Info("etm output written", "path", path, "bytes", info.Size())
	return 0
}

func (r *runner) fail(code int, err error) int {
	fmt.Fprintf(r.stderr, "Error: %v\n", err)
	return code
}

func absPath(p string) string {
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
