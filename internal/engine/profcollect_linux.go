//go:build linux && cgo && profcollect

package engine

/*
#cgo LDFLAGS: -lsimpleperf_profcollect
#include <stdbool.h>

bool HasDriverSupport();
bool HasDeviceSupport();
void Record(const char* event_name, const char* output, float duration, const char* binary_filter);
void Inject(const char* trace_input, const char* profile_output, const char* binary_filter);
void SetLogFile(const char* filename);
void ResetLogFile();
*/
import "C"

import "unsafe"

func init() {
	register(BackendProfcollect, func(Options) (Engine, error) {
		return profcollectEngine{}, nil
	})
}

// profcollectEngine calls libsimpleperf_profcollect in-process. The library
// owns log redirection; Options are ignored.
type profcollectEngine struct{}

// cstr points C at the Go-owned buffer. cgo keeps it alive for the duration
// of the call and the library does not retain it.
func cstr(c CString) *C.char {
	if len(c) == 0 {
		panic("engine: empty CString crossing the profcollect boundary")
	}
	return (*C.char)(unsafe.Pointer(&c[0]))
}

func (profcollectEngine) HasDriverSupport() bool {
	return bool(C.HasDriverSupport())
}

func (profcollectEngine) HasDeviceSupport() bool {
	return bool(C.HasDeviceSupport())
}

func (profcollectEngine) Record(eventName, traceFile CString, durationSeconds float32, binaryFilter CString) {
	C.Record(cstr(eventName), cstr(traceFile), C.float(durationSeconds), cstr(binaryFilter))
}

func (profcollectEngine) Inject(tracePath, profilePath, binaryFilter CString) {
	C.Inject(cstr(tracePath), cstr(profilePath), cstr(binaryFilter))
}

func (profcollectEngine) SetLogFile(path CString) {
	C.SetLogFile(cstr(path))
}

func (profcollectEngine) ResetLogFile() {
	C.ResetLogFile()
}
