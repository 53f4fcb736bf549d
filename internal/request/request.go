package request

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bpicori/etmctl/pkg/etm"
)

// Path validation errors. Use errors.Is to check for them.
var (
	ErrPathEmpty       = errors.New("path must not be empty")
	ErrPathControlChar = errors.New("path contains control character")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathDotDot      = errors.New("path must not contain '..' components")
	ErrPathSensitive   = errors.New("path overlaps with kernel filesystem")
	ErrFilterNUL       = errors.New("binary filter contains a NUL byte")
)

// Operations understood by Validate.
const (
	OpProbe   = "probe"
	OpRecord  = "record"
	OpProcess = "process"
)

// SensitivePaths are pseudo filesystems that trace, profile and log output
// must never be written to.
var SensitivePaths = []string{"/proc", "/sys", "/dev"}

// Request is one etmctl invocation, checked before it reaches the etm
// package, which treats the same defects as programmer errors.
type Request struct {
	Op string

	// TracePath is the record output and the process input.
	TracePath   string
	ProfilePath string
	LogFile     string

	Duration     time.Duration
	BinaryFilter string
	Scope        etm.Scope
}

// Validate checks the request for the fields its operation needs and
// ensures all paths are absolute and do not point into sensitivePaths.
// It returns a combined error of every issue found.
func (r *Request) Validate(sensitivePaths []string) error {
	var errs []error

	switch r.Op {
	case OpProbe:
	case OpRecord:
		if r.Duration <= 0 {
			errs = append(errs, fmt.Errorf("duration must be positive, got %s", r.Duration))
		}
		if err := checkOutputPath(r.TracePath, sensitivePaths); err != nil {
			errs = append(errs, fmt.Errorf("trace path %q: %w", r.TracePath, err))
		}
		if !slices.Contains(etm.Scopes, r.Scope) {
			errs = append(errs, fmt.Errorf("unknown scope %v", r.Scope))
		}
	case OpProcess:
		if err := checkPath(r.TracePath); err != nil {
			errs = append(errs, fmt.Errorf("trace path %q: %w", r.TracePath, err))
		}
		if err := checkOutputPath(r.ProfilePath, sensitivePaths); err != nil {
			errs = append(errs, fmt.Errorf("profile path %q: %w", r.ProfilePath, err))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown operation %q", r.Op))
	}

	if strings.IndexByte(r.BinaryFilter, 0) >= 0 {
		errs = append(errs, ErrFilterNUL)
	}

	if r.LogFile != "" {
		if err := checkOutputPath(r.LogFile, sensitivePaths); err != nil {
			errs = append(errs, fmt.Errorf("log file %q: %w", r.LogFile, err))
		}
	}

	return errors.Join(errs...)
}

// checkPath ensures a path is non-empty, absolute and free of control
// characters and ".." components.
func checkPath(raw string) error {
	if raw == "" {
		return ErrPathEmpty
	}

	// Reject control characters, like null bytes or backspace, tabs etc.
	for _, c := range raw {
		if c < 0x20 || c == 0x7f {
			return fmt.Errorf("%w (0x%02x)", ErrPathControlChar, c)
		}
	}

	if !filepath.IsAbs(raw) {
		return ErrPathNotAbsolute
	}

	if slices.Contains(strings.Split(raw, string(filepath.Separator)), "..") {
		return ErrPathDotDot
	}
	return nil
}

// checkOutputPath is checkPath plus the sensitive path check.
func checkOutputPath(raw string, sensitivePaths []string) error {
	if err := checkPath(raw); err != nil {
		return err
	}
	cleaned := filepath.Clean(raw)
	for _, sensitive := range sensitivePaths {
		if pathOverlaps(cleaned, sensitive) {
			return fmt.Errorf("%w %q", ErrPathSensitive, sensitive)
		}
	}
	return nil
}

// pathOverlaps reports whether a and b are equal, or one is a prefix
// example: /sys and /sys/kernel/tracing are overlapping
func pathOverlaps(a, b string) bool {
	a = filepath.Clean(a)
	b = filepath.Clean(b)

	if a == b {
		return true
	}

	aSlash := a + string(filepath.Separator)
	bSlash := b + string(filepath.Separator)
	return strings.HasPrefix(aSlash, bSlash) || strings.HasPrefix(bSlash, aSlash)
}
