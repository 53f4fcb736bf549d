package log

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Redirector is an io.Writer that sends writes either to a log file or to a
// default writer. It backs the engine's process-wide log destination.
type Redirector struct {
	mu   sync.Mutex
	def  io.Writer
	file *os.File
	path string
}

// NewRedirector returns a Redirector writing to def until Redirect is called.
func NewRedirector(def io.Writer) *Redirector {
	if def == nil {
		def = os.Stderr
	}
	return &Redirector{def: def}
}

// Write implements io.Writer.
func (r *Redirector) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		return r.file.Write(p)
	}
	return r.def.Write(p)
}

// Redirect opens path for appending and makes it the destination. The
// previous file, if any, is closed. On error the destination is unchanged.
func (r *Redirector) Redirect(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		r.file.Close()
	}
	r.file = f
	r.path = path
	return nil
}

// Reset closes the log file and restores the default writer. It is a no-op
// when no file is active.
func (r *Redirector) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.path = ""
	return err
}

// Path returns the active log file, or "" in the default state.
func (r *Redirector) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}
