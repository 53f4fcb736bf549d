package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ParsesYAML(t *testing.T) {
	path := writeTempConfig(t, `
backend: simpleperf
simpleperf: /system/bin/simpleperf
sandbox_inject: true
scope: userspace
binary_filter: "^/system/lib64/"
duration: 2500ms
log_file: /data/misc/profcollect/etm.log
`)

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if Get(f.Backend, "") != "simpleperf" {
		t.Fatalf("unexpected backend: %#v", f.Backend)
	}
	if f.SandboxInject == nil || !*f.SandboxInject {
		t.Fatalf("expected sandbox_inject=true, got %#v", f.SandboxInject)
	}
	if Get(f.Scope, "") != "userspace" {
		t.Fatalf("unexpected scope: %#v", f.Scope)
	}
	if Get(f.BinaryFilter, "") != "^/system/lib64/" {
		t.Fatalf("unexpected binary filter: %#v", f.BinaryFilter)
	}
	if f.Duration == nil || *f.Duration != 2500*time.Millisecond {
		t.Fatalf("unexpected duration: %#v", f.Duration)
	}
	if f.SysfsRoot != nil {
		t.Fatalf("sysfs_root should be unset, got %q", *f.SysfsRoot)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempConfig(t, `: not-valid`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid yaml")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeTempConfig(t, `duration: soon`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestResolve_OverridesWin(t *testing.T) {
	path := writeTempConfig(t, `
sandbox_inject: true
scope: kernel
duration: 10s
`)

	d := time.Second
	cfg, err := Resolve(path, &File{
		SandboxInject: BoolPtr(false),
		Duration:      &d,
	})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	if cfg.SandboxInject == nil || *cfg.SandboxInject {
		t.Fatalf("expected sandbox_inject=false after override, got %#v", cfg.SandboxInject)
	}
	if Get(cfg.Scope, DefaultScope) != "kernel" {
		t.Fatalf("expected scope from file, got %#v", cfg.Scope)
	}
	if Get(cfg.Duration, DefaultDuration) != time.Second {
		t.Fatalf("expected overridden duration, got %v", cfg.Duration)
	}

	d = time.Hour
	if *cfg.Duration != time.Second {
		t.Fatal("Merge must copy values, not alias them")
	}
}

func TestResolve_NoFile(t *testing.T) {
	cfg, err := Resolve("", &File{Backend: StringPtr("unsupported")})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if Get(cfg.Backend, "") != "unsupported" {
		t.Fatalf("unexpected backend %#v", cfg.Backend)
	}
	if Get(cfg.Duration, DefaultDuration) != DefaultDuration {
		t.Fatalf("expected default duration")
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "etmctl.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}
