package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults used when neither the file nor the command line sets a value.
const (
	DefaultDuration = 5 * time.Second
	DefaultScope    = "both"
)

// File holds etmctl options that can be loaded from YAML and then
// overridden by command line flags. Nil fields are unset.
type File struct {
	Backend       *string `yaml:"backend"`
	Simpleperf    *string `yaml:"simpleperf"`
	SysfsRoot     *string `yaml:"sysfs_root"`
	SandboxInject *bool   `yaml:"sandbox_inject"`

	LogFile      *string        `yaml:"log_file"`
	Scope        *string        `yaml:"scope"`
	BinaryFilter *string        `yaml:"binary_filter"`
	Duration     *time.Duration `yaml:"duration"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}
	return &f, nil
}

// Merge copies every field set in src over dst.
func Merge(dst, src *File) {
	if dst == nil || src == nil {
		return
	}

	mergeString(&dst.Backend, src.Backend)
	mergeString(&dst.Simpleperf, src.Simpleperf)
	mergeString(&dst.SysfsRoot, src.SysfsRoot)
	mergeString(&dst.LogFile, src.LogFile)
	mergeString(&dst.Scope, src.Scope)
	mergeString(&dst.BinaryFilter, src.BinaryFilter)
	if src.SandboxInject != nil {
		dst.SandboxInject = BoolPtr(*src.SandboxInject)
	}
	if src.Duration != nil {
		d := *src.Duration
		dst.Duration = &d
	}
}

func mergeString(dst **string, src *string) {
	if src != nil {
		*dst = StringPtr(*src)
	}
}

// Resolve loads path, when set, and applies overrides on top of it.
func Resolve(path string, overrides *File) (*File, error) {
	effective := &File{}

	if path != "" {
		fromFile, err := Load(path)
		if err != nil {
			return nil, err
		}
		Merge(effective, fromFile)
	}

	Merge(effective, overrides)
	return effective, nil
}

// Get returns *p, or def when p is nil.
func Get[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool {
	return &v
}

// StringPtr returns a pointer to v.
func StringPtr(v string) *string {
	return &v
}
