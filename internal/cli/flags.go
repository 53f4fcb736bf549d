package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bpicori/etmctl/internal/config"
)

// boolFlag is a flag.Value that tracks whether it was explicitly set.
type boolFlag struct {
	value bool
	set   bool
}

func (b *boolFlag) String() string {
	if b == nil {
		return "false"
	}
	return fmt.Sprintf("%t", b.value)
}

func (b *boolFlag) Set(value string) error {
	parsed, err := parseBool(value)
	if err != nil {
		return err
	}
	b.value = parsed
	b.set = true
	return nil
}

func (*boolFlag) IsBoolFlag() bool {
	return true
}

// stringFlag is a flag.Value that tracks whether it was explicitly set.
type stringFlag struct {
	value string
	set   bool
}

func (s *stringFlag) String() string {
	if s == nil {
		return ""
	}
	return s.value
}

func (s *stringFlag) Set(value string) error {
	s.value = value
	s.set = true
	return nil
}

// durationFlag is a flag.Value that tracks whether it was explicitly set.
type durationFlag struct {
	value time.Duration
	set   bool
}

func (d *durationFlag) String() string {
	if d == nil {
		return "0s"
	}
	return d.value.String()
}

func (d *durationFlag) Set(value string) error {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	d.value = parsed
	d.set = true
	return nil
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "1", "t", "true", "y", "yes":
		return true, nil
	case "0", "f", "false", "n", "no":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value %q", value)
	}
}

// commonFlags are accepted by every subcommand.
type commonFlags struct {
	configPath    string
	verbose       bool
	jsonLogs      bool
	backend       stringFlag
	simpleperf    stringFlag
	sysfsRoot     stringFlag
	sandboxInject boolFlag
	logFile       stringFlag
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "Load options from YAML file")
	fs.BoolVar(&c.verbose, "v", false, "Verbose logging")
	fs.BoolVar(&c.jsonLogs, "json", false, "Log in JSON format")
	fs.Var(&c.backend, "backend", "Engine backend (simpleperf, profcollect)")
	fs.Var(&c.simpleperf, "simpleperf", "Path to the simpleperf binary")
	fs.Var(&c.sysfsRoot, "sysfs-root", "Where sysfs is mounted")
	fs.Var(&c.sandboxInject, "sandbox-inject", "Run simpleperf inject under Landlock and seccomp")
	fs.Var(&c.logFile, "log", "Write engine diagnostics to this file during the operation")
}

func (c *commonFlags) overrides() *config.File {
	cfg := &config.File{}
	if c.backend.set {
		cfg.Backend = config.StringPtr(c.backend.value)
	}
	if c.simpleperf.set {
		cfg.Simpleperf = config.StringPtr(c.simpleperf.value)
	}
	if c.sysfsRoot.set {
		cfg.SysfsRoot = config.StringPtr(c.sysfsRoot.value)
	}
	if c.sandboxInject.set {
		cfg.SandboxInject = config.BoolPtr(c.sandboxInject.value)
	}
	if c.logFile.set {
		cfg.LogFile = config.StringPtr(c.logFile.value)
	}
	return cfg
}

// recordFlags holds the raw values parsed from the "record" subcommand.
type recordFlags struct {
	commonFlags
	output       string
	duration     durationFlag
	scope        stringFlag
	binaryFilter stringFlag
}

func (r *recordFlags) overrides() *config.File {
	cfg := r.commonFlags.overrides()
	if r.duration.set {
		d := r.duration.value
		cfg.Duration = &d
	}
	if r.scope.set {
		cfg.Scope = config.StringPtr(r.scope.value)
	}
	if r.binaryFilter.set {
		cfg.BinaryFilter = config.StringPtr(r.binaryFilter.value)
	}
	return cfg
}

// processFlags holds the raw values parsed from the "process" subcommand.
type processFlags struct {
	commonFlags
	input        string
	output       string
	binaryFilter stringFlag
}

func (p *processFlags) overrides() *config.File {
	cfg := p.commonFlags.overrides()
	if p.binaryFilter.set {
		cfg.BinaryFilter = config.StringPtr(p.binaryFilter.value)
	}
	return cfg
}

func newFlagSet(name, usage string, stderr io.Writer, examples ...string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: etmctl %s [options]\n\n", name)
		fmt.Fprintf(stderr, "%s\n\n", usage)
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		if len(examples) > 0 {
			fmt.Fprintf(stderr, "\nExamples:\n")
			for _, ex := range examples {
				fmt.Fprintf(stderr, "  %s\n", ex)
			}
		}
	}
	return fs
}

func parseProbeFlags(args []string, stderr io.Writer) (*commonFlags, int) {
	f := &commonFlags{}
	fs := newFlagSet("probe", "Report ETM driver and device availability.", stderr,
		"etmctl probe",
		"etmctl probe --sysfs-root /mnt/target/sys")
	f.register(fs)
	if err := fs.Parse(args); err != nil {
		return nil, 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "Error: unexpected arguments %q\n", fs.Args())
		return nil, 2
	}
	return f, 0
}

func parseRecordFlags(args []string, stderr io.Writer) (*recordFlags, int) {
	f := &recordFlags{}
	fs := newFlagSet("record", "Capture an ETM trace.", stderr,
		"etmctl record -o /data/local/tmp/trace.etm -duration 2s",
		"etmctl record -o /data/local/tmp/trace.etm -scope userspace -binary '^/system/lib64/libc.so$'",
		"etmctl record -config ./etmctl.yaml -o /data/local/tmp/trace.etm -log /data/local/tmp/etm.log")
	f.register(fs)
	fs.StringVar(&f.output, "o", "", "Trace output path (required)")
	fs.Var(&f.duration, "duration", fmt.Sprintf("Capture duration (default %s)", config.DefaultDuration))
	fs.Var(&f.scope, "scope", "Trace scope: userspace, kernel or both (default both)")
	fs.Var(&f.binaryFilter, "binary", "Only trace binaries matching this pattern")
	if err := fs.Parse(args); err != nil {
		return nil, 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "Error: unexpected arguments %q\n", fs.Args())
		return nil, 2
	}
	return f, 0
}

func parseProcessFlags(args []string, stderr io.Writer) (*processFlags, int) {
	f := &processFlags{}
	fs := newFlagSet("process", "Convert an ETM trace into a profile.", stderr,
		"etmctl process -i /data/local/tmp/trace.etm -o /data/local/tmp/profile",
		"etmctl process -i trace.etm -o profile -binary libfoo.so -sandbox-inject")
	f.register(fs)
	fs.StringVar(&f.input, "i", "", "Trace input path (required)")
	fs.StringVar(&f.output, "o", "", "Profile output path (required)")
	fs.Var(&f.binaryFilter, "binary", "Only keep binaries matching this pattern")
	if err := fs.Parse(args); err != nil {
		return nil, 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "Error: unexpected arguments %q\n", fs.Args())
		return nil, 2
	}
	return f, 0
}
