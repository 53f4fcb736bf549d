package engine

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestNewCString(t *testing.T) {
	tests := []struct {
		in     string
		wantOK bool
	}{
		{"", true},
		{"cs-etm", true},
		{"/tmp/with space/trace", true},
		{"\xff", true},
		{"\x00", false},
		{"/tmp/a\x00b", false},
		{"trailing\x00", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, ok := NewCString(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("NewCString(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			want := append([]byte(tt.in), 0)
			if !bytes.Equal(c, want) {
				t.Fatalf("NewCString(%q) = %q, want %q", tt.in, []byte(c), want)
			}
			if c.GoString() != tt.in {
				t.Fatalf("GoString() = %q, want %q", c.GoString(), tt.in)
			}
		})
	}
}

func TestCStringDoesNotAliasInput(t *testing.T) {
	src := []byte("abc")
	c, _ := NewCString(string(src))
	src[0] = 'x'
	if c.GoString() != "abc" {
		t.Fatalf("CString changed with its source: %q", c.GoString())
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(Options{Backend: "bogus"})
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if !strings.Contains(err.Error(), `"bogus"`) {
		t.Fatalf("error should name the backend: %v", err)
	}
}

func TestBackends_IncludesDefault(t *testing.T) {
	names := Backends()
	if !slices.Contains(names, defaultBackend) {
		t.Fatalf("default backend %q missing from %v", defaultBackend, names)
	}
	if !slices.Contains(names, BackendUnsupported) {
		t.Fatalf("unsupported backend missing from %v", names)
	}
}

func TestUnsupportedEngine(t *testing.T) {
	var out bytes.Buffer
	e, err := New(Options{Backend: BackendUnsupported, LogOutput: &out})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if e.HasDriverSupport() || e.HasDeviceSupport() {
		t.Fatal("unsupported engine reported support")
	}

	ev, _ := NewCString("cs-etm")
	path, _ := NewCString("/tmp/trace.bin")
	filter, _ := NewCString("")
	e.Record(ev, path, 1, filter)
	e.Inject(path, path, filter)
	e.ResetLogFile()

	got := out.String()
	if strings.Count(got, "etm unsupported") != 2 {
		t.Fatalf("expected two warnings, got %q", got)
	}
	if !strings.Contains(got, "op=record") || !strings.Contains(got, "op=inject") {
		t.Fatalf("warnings should name the operation: %q", got)
	}
}

func TestUnsupportedEngine_LogFileSetAndReset(t *testing.T) {
	var out bytes.Buffer
	e, err := New(Options{Backend: BackendUnsupported, LogOutput: &out})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logPath := filepath.Join(t.TempDir(), "etm.log")
	lp, _ := NewCString(logPath)
	ev, _ := NewCString("cs-etm")
	path, _ := NewCString("/tmp/trace.bin")
	filter, _ := NewCString("")

	e.SetLogFile(lp)
	e.Record(ev, path, 1, filter)
	e.ResetLogFile()
	e.Inject(path, path, filter)

	raw, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(raw), "op=record") || strings.Contains(string(raw), "op=inject") {
		t.Fatalf("log file should hold only the record warning: %q", raw)
	}
	got := out.String()
	if !strings.Contains(got, "op=inject") || strings.Contains(got, "op=record") {
		t.Fatalf("default output should hold only the inject warning: %q", got)
	}
	if strings.Contains(got, "closing log file") {
		t.Fatalf("clean reset must not warn: %q", got)
	}
}
