//go:build linux

package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/bpicori/etmctl/internal/log"
	"golang.org/x/sys/unix"
)

const defaultBackend = BackendSimpleperf

// fallbackSimpleperf is where Android images install simpleperf.
const fallbackSimpleperf = "/system/bin/simpleperf"

func init() {
	register(BackendSimpleperf, newSimpleperfEngine)
}

// simpleperfEngine implements Engine by running the simpleperf binary. It
// owns the diagnostics destination; every child's output and every failure
// is written there.
type simpleperfEngine struct {
	binary         string
	probe          sysfsProbe
	sandboxInject  bool
	helper         string
	forwardSignals bool

	out    *log.Redirector
	logger *slog.Logger
}

func newSimpleperfEngine(opts Options) (Engine, error) {
	binary := opts.Simpleperf
	if binary == "" {
		binary = "simpleperf"
	}
	if p, err := resolveCommandPath(binary); err == nil {
		binary = p
	} else if opts.Simpleperf == "" {
		binary = fallbackSimpleperf
	}

	helper := opts.HelperBinaryPath
	if opts.SandboxInject && helper == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable path: %w", err)
		}
		helper = exe
	}

	out := log.NewRedirector(opts.LogOutput)
	return &simpleperfEngine{
		binary:         binary,
		probe:          newSysfsProbe(opts.SysfsRoot),
		sandboxInject:  opts.SandboxInject,
		helper:         helper,
		forwardSignals: opts.ForwardSignals,
		out:            out,
		logger:         log.NewLogger(log.Options{Verbose: true, Stderr: out}).With("engine", BackendSimpleperf),
	}, nil
}

func (e *simpleperfEngine) HasDriverSupport() bool {
	return e.probe.driverPresent()
}

func (e *simpleperfEngine) HasDeviceSupport() bool {
	return e.probe.devicePresent()
}

func (e *simpleperfEngine) Record(eventName, traceFile CString, durationSeconds float32, binaryFilter CString) {
	args := recordArgs(eventName.GoString(), traceFile.GoString(), durationSeconds, binaryFilter.GoString())
	e.logger.Info("recording etm trace",
		"event", eventName.GoString(),
		"output", traceFile.GoString(),
		"duration", formatSeconds(durationSeconds))
	e.run("record", exec.Command(e.binary, args...))
}

func (e *simpleperfEngine) Inject(tracePath, profilePath, binaryFilter CString) {
	args := injectArgs(tracePath.GoString(), profilePath.GoString(), binaryFilter.GoString())
	e.logger.Info("injecting etm trace",
		"input", tracePath.GoString(),
		"output", profilePath.GoString())

	if !e.sandboxInject {
		e.run("inject", exec.Command(e.binary, args...))
		return
	}

	encoded, err := encodeInjectPayload(injectPayload{
		Simpleperf: e.binary,
		Args:       args,
		WritePaths: []string{filepath.Dir(profilePath.GoString())},
	})
	if err != nil {
		e.logger.Error("encode inject payload", "error", err)
		return
	}
	cmd := exec.Command(e.helper, InternalInjectCommand)
	cmd.Env = append(os.Environ(), InternalInjectPayloadEnv+"="+encoded)
	e.run("inject", cmd)
}

func (e *simpleperfEngine) SetLogFile(path CString) {
	if err := e.out.Redirect(path.GoString()); err != nil {
		e.logger.Warn("log file not changed", "path", path.GoString(), "error", err)
	}
}

func (e *simpleperfEngine) ResetLogFile() {
	path := e.out.Path()
	if err := e.out.Reset(); err != nil {
		e.logger.Warn("closing log file", "path", path, "error", err)
	}
}

// resolveCommandPath looks bare names up in PATH. The trampoline execs
// without a PATH search.
func resolveCommandPath(command string) (string, error) {
	if strings.Contains(command, "/") {
		return command, nil
	}
	return exec.LookPath(command)
}

func recordArgs(event, output string, seconds float32, filter string) []string {
	args := []string{"record", "-a", "-e", event, "--duration", formatSeconds(seconds), "--exclude-perf"}
	if filter != "" {
		args = append(args, "--binary", filter)
	}
	return append(args, "-o", output)
}

func injectArgs(input, output, filter string) []string {
	args := []string{"inject", "-i", input, "-o", output, "--output", "branch-list", "--exclude-perf"}
	if filter != "" {
		args = append(args, "--binary", filter)
	}
	return args
}

// formatSeconds prints the shortest decimal that round-trips the float32.
func formatSeconds(s float32) string {
	return strconv.FormatFloat(float64(s), 'f', -1, 32)
}

// run starts cmd with its output on the log destination, waits for it and
// logs how it ended. Failures are only logged.
func (e *simpleperfEngine) run(op string, cmd *exec.Cmd) {
	cmd.Stdout = e.out
	cmd.Stderr = e.out
	if e.forwardSignals {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	if err := cmd.Start(); err != nil {
		e.logger.Error("start simpleperf", "op", op, "error", err)
		return
	}

	childPID := cmd.Process.Pid

	done := make(chan struct{})
	if e.forwardSignals {
		// Forward SIGINT/SIGTERM to the child process group so simpleperf can
		// flush what it captured.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			for {
				select {
				case sig := <-sigCh:
					_ = unix.Kill(-childPID, sig.(syscall.Signal))
				case <-done:
					signal.Stop(sigCh)
					return
				}
			}
		}()
	}

	waitErr := cmd.Wait()
	close(done)

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			e.logger.Error("simpleperf failed", "op", op, "exit_code", exitErr.ExitCode())
			return
		}
		e.logger.Error("simpleperf failed", "op", op, "error", waitErr)
		return
	}
	e.logger.Info("simpleperf finished", "op", op)
}
