//go:build linux

package engine

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

const defaultSysfsRoot = "/sys"

// etmEventSource is the perf event source registered by the coresight ETM
// driver, relative to the sysfs root.
const etmEventSource = "bus/event_source/devices/cs_etm"

// sysfsProbe answers capability queries from a sysfs tree.
type sysfsProbe struct {
	root string
}

func newSysfsProbe(root string) sysfsProbe {
	if root == "" {
		root = defaultSysfsRoot
	}
	return sysfsProbe{root: root}
}

func (p sysfsProbe) eventSourceDir() string {
	return filepath.Join(p.root, etmEventSource)
}

// driverPresent reports whether the cs_etm event source is registered. The
// perf "type" file only exists once the driver has probed.
func (p sysfsProbe) driverPresent() bool {
	return unix.Access(filepath.Join(p.eventSourceDir(), "type"), unix.R_OK) == nil
}

// devicePresent reports whether at least one ETM per-cpu device and one trace
// sink are bound to the event source.
func (p sysfsProbe) devicePresent() bool {
	if !p.driverPresent() {
		return false
	}

	entries, err := os.ReadDir(p.eventSourceDir())
	if err != nil {
		return false
	}
	hasCPU := false
	for _, e := range entries {
		if isCPUEntry(e.Name()) {
			hasCPU = true
			break
		}
	}
	if !hasCPU {
		return false
	}

	sinks, err := os.ReadDir(filepath.Join(p.eventSourceDir(), "sinks"))
	if err != nil {
		return false
	}
	return len(sinks) > 0
}

// isCPUEntry matches "cpu0", "cpu1", ... but not "cpumask".
func isCPUEntry(name string) bool {
	rest, ok := strings.CutPrefix(name, "cpu")
	if !ok || rest == "" {
		return false
	}
	for _, c := range rest {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
