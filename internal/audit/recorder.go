package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xdg/hookgate/internal/hlog"
)

// Recorder routes entries to per-concern append-only files under a base
// directory. Files are opened lazily on first use and kept open for the
// life of the recorder (one hook invocation).
type Recorder struct {
	mu    sync.Mutex
	dir   string
	sinks map[Concern]*Sink
	files []*os.File
}

// NewRecorder creates a recorder writing under dir, one file per concern
// (dir/commands.log, dir/loop.log, ...).
func NewRecorder(dir string) *Recorder {
	return &Recorder{
		dir:   dir,
		sinks: make(map[Concern]*Sink),
	}
}

// Record appends an entry to the concern's audit trail. Failures are
// reported to the diagnostic log and otherwise swallowed: an audit write
// error must never convert an allow into a block or vice versa.
func (r *Recorder) Record(concern Concern, e *Entry) {
	if r == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	sink, err := r.sink(concern)
	if err != nil {
		hlog.Error("audit: open %s sink: %v", concern, err)
		return
	}
	if err := sink.Log(e); err != nil {
		hlog.Error("audit: %s: %v", concern, err)
	}
}

// sink returns the sink for a concern, opening its file on first use.
func (r *Recorder) sink(concern Concern) (*Sink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sinks[concern]; ok {
		return s, nil
	}

	if err := os.MkdirAll(r.dir, 0o750); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	path := filepath.Join(r.dir, string(concern)+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	s := NewSink(f)
	r.sinks[concern] = s
	r.files = append(r.files, f)
	return s, nil
}

// Close closes all open audit files.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, f := range r.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.files = nil
	r.sinks = make(map[Concern]*Sink)
	return firstErr
}

// DefaultDir returns the default audit directory under the state dir.
func DefaultDir() string {
	return filepath.Join(hlog.StateDir(), "audit")
}
