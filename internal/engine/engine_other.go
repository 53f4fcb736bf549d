//go:build !linux

package engine

import (
	"fmt"
	"runtime"
)

const defaultBackend = BackendUnsupported

// RunInternalInject is only meaningful on Linux.
func RunInternalInject() (int, error) {
	return 1, fmt.Errorf("sandboxed inject unsupported on %s", runtime.GOOS)
}
