/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: reporter.go
Description: Reporter interface and implementations for scan progress. Notifies
listeners when pipelines start and finish so a run can be followed live.
*/

package core

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Reporter defines the interface for scan progress hooks.
// Calls may arrive concurrently from several workers.
type Reporter interface {
	// OnFileStarted is called before a pipeline is consumed.
	OnFileStarted(p *Pipeline)
	// OnFileFinished is called once a pipeline is done, failed or not.
	OnFileFinished(result *FileResult)
}

// LoggerReporter logs pipeline events with a structured logger.
type LoggerReporter struct {
	logger logrus.FieldLogger
}

// NewLoggerReporter creates a new LoggerReporter.
func NewLoggerReporter(logger logrus.FieldLogger) *LoggerReporter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LoggerReporter{logger: logger}
}

// OnFileStarted logs the chosen format.
func (r *LoggerReporter) OnFileStarted(p *Pipeline) {
	r.logger.WithFields(logrus.Fields{
		"source": p.Location,
		"format": p.Format,
	}).Debug("Pipeline started")
}

// OnFileFinished logs the outcome of a pipeline.
func (r *LoggerReporter) OnFileFinished(result *FileResult) {
	fields := logrus.Fields{
		"source":        result.Location,
		"format":        result.Format,
		"records":       result.Records,
		"record_errors": result.RecordErrors,
		"duration":      result.Duration,
	}
	switch {
	case result.Failed():
		r.logger.WithFields(fields).WithError(result.Err).Warn("Pipeline failed")
	case result.RecordErrors > 0:
		r.logger.WithFields(fields).Info("Pipeline finished with skipped records")
	default:
		r.logger.WithFields(fields).Info("Pipeline finished")
	}
}

// CollectingReporter keeps every finished result, in completion order.
type CollectingReporter struct {
	mu       sync.Mutex
	started  int
	finished []FileResult
}

// NewCollectingReporter creates an empty CollectingReporter.
func NewCollectingReporter() *CollectingReporter {
	return &CollectingReporter{}
}

// OnFileStarted counts started pipelines.
func (r *CollectingReporter) OnFileStarted(p *Pipeline) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

// OnFileFinished records the result.
func (r *CollectingReporter) OnFileFinished(result *FileResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, *result)
}

// Started returns the number of started pipelines.
func (r *CollectingReporter) Started() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// Finished returns a copy of the finished results.
func (r *CollectingReporter) Finished() []FileResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]FileResult(nil), r.finished...)
}

// multiReporter fans events out to several reporters.
type multiReporter []Reporter

// MultiReporter combines reporters, skipping nil entries.
func MultiReporter(reporters ...Reporter) Reporter {
	var out multiReporter
	for _, r := range reporters {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m multiReporter) OnFileStarted(p *Pipeline) {
	for _, r := range m {
		r.OnFileStarted(p)
	}
}

func (m multiReporter) OnFileFinished(result *FileResult) {
	for _, r := range m {
		r.OnFileFinished(result)
	}
}
