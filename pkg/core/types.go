/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: types.go
Description: Core types for the extraction orchestrator. Defines the pipeline handed
to callers for every resolved input, the per-file scan result and the run statistics
shared by concurrent scan workers.
*/

package core

import (
	"sync/atomic"
	"time"

	"github.com/kleascm/akaylee-reader/pkg/inference"
	"github.com/kleascm/akaylee-reader/pkg/interfaces"
)

// Pipeline is one opened input: a resolved source bound to a format adapter
// Stream is nil when Err is set
type Pipeline struct {
	Location  string                  `json:"location"`  // Origin plus archive entry path
	Format    string                  `json:"format"`    // Format tag the stream was opened with
	Detection Detection               `json:"detection"` // How the format was chosen
	Depth     int                     `json:"depth"`     // Unwrapping steps taken to reach the bytes
	Stream    interfaces.RecordStream `json:"-"`         // Record stream, owned by the caller until Close
	Err       error                   `json:"-"`         // Open failure for this input
}

// FileResult summarizes one pipeline of a scan
type FileResult struct {
	Location     string                `json:"location"`        // Origin plus archive entry path
	Format       string                `json:"format"`          // Format tag, empty when detection failed
	Records      int64                 `json:"records"`         // Records merged into the schema
	RecordErrors int64                 `json:"record_errors"`   // Recoverable errors skipped
	Capped       bool                  `json:"capped"`          // Stopped at the record cap
	Duration     time.Duration         `json:"duration"`        // Wall time spent on the pipeline
	Error        string                `json:"error,omitempty"` // Terminal error message
	Schema       *inference.SchemaNode `json:"-"`               // Partial schema, kept on failure
	Err          error                 `json:"-"`               // Terminal error
}

// Failed reports whether the pipeline ended with a terminal error
func (r *FileResult) Failed() bool {
	return r.Err != nil
}

// ScanResult is the outcome of a scan
type ScanResult struct {
	RunID  string                `json:"run_id"` // Unique identifier of the run
	Root   string                `json:"root"`   // Directory, file or object prefix scanned
	Files  []FileResult          `json:"files"`  // One entry per pipeline in input order
	Schema *inference.SchemaNode `json:"-"`      // Merged schema of every pipeline
	Stats  Stats                 `json:"stats"`  // Counters at completion
}

// Stats tracks scan statistics
// Uses atomic operations for thread-safe updates
type Stats struct {
	Files        int64         `json:"files"`         // Pipelines finished
	Failures     int64         `json:"failures"`      // Pipelines that ended with a terminal error
	Records      int64         `json:"records"`       // Records merged across all pipelines
	RecordErrors int64         `json:"record_errors"` // Recoverable errors skipped across all pipelines
	StartTime    time.Time     `json:"start_time"`    // When the scan started
	Elapsed      time.Duration `json:"elapsed"`       // Wall time of the scan
}

// AddFile atomically folds one finished pipeline into the counters
func (s *Stats) AddFile(r *FileResult) {
	atomic.AddInt64(&s.Files, 1)
	atomic.AddInt64(&s.Records, r.Records)
	atomic.AddInt64(&s.RecordErrors, r.RecordErrors)
	if r.Failed() {
		atomic.AddInt64(&s.Failures, 1)
	}
}

// Snapshot returns a consistent copy of the counters
func (s *Stats) Snapshot() Stats {
	return Stats{
		Files:        atomic.LoadInt64(&s.Files),
		Failures:     atomic.LoadInt64(&s.Failures),
		Records:      atomic.LoadInt64(&s.Records),
		RecordErrors: atomic.LoadInt64(&s.RecordErrors),
		StartTime:    s.StartTime,
		Elapsed:      time.Since(s.StartTime),
	}
}
