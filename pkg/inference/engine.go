/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: engine.go
Description: Inference engine. Consumes a record stream one record at a time and
widens a single schema tree. Record errors are skipped and counted; a terminal
stream error ends consumption but keeps everything merged so far.
*/

package inference

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/kleascm/akaylee-reader/pkg/value"
	"github.com/sirupsen/logrus"
)

// ErrFinalized is returned when observing into a finalized engine
var ErrFinalized = errors.New("schema already finalized")

// Stats summarizes one engine's consumption
type Stats struct {
	Records  int64         `json:"records"`
	Skipped  int64         `json:"skipped"`
	Capped   bool          `json:"capped"`
	Duration time.Duration `json:"duration"`
}

// Engine owns one schema tree
type Engine struct {
	root      *SchemaNode
	cap       int64
	stats     Stats
	finalized bool
	logger    logrus.FieldLogger
}

// NewEngine creates an engine with an empty root. opts may be nil.
func NewEngine(opts *interfaces.Options, logger logrus.FieldLogger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	e := &Engine{root: NewSchemaNode(), logger: logger}
	if opts != nil {
		e.cap = opts.RecordCap
	}
	return e
}

// Observe widens the schema with one value
func (e *Engine) Observe(v value.Value) error {
	if e.finalized {
		return ErrFinalized
	}
	e.root.observe(v)
	e.stats.Records++
	return nil
}

// Consume reads s until end of stream, the record cap, or a terminal error.
// The stream is not closed. On a terminal error the partial schema stays in
// the engine and the error is returned.
func (e *Engine) Consume(ctx context.Context, s interfaces.RecordStream) error {
	if e.finalized {
		return ErrFinalized
	}
	start := time.Now()
	defer func() { e.stats.Duration += time.Since(start) }()

	for {
		if e.cap > 0 && e.stats.Records >= e.cap {
			e.stats.Capped = true
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := s.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if interfaces.IsRecoverable(err) {
				e.stats.Skipped++
				continue
			}
			e.logger.WithError(err).WithField("records", e.stats.Records).Warn("Stream ended early, keeping partial schema")
			return err
		}
		e.root.observe(rec.Value)
		e.stats.Records++
	}
}

// Merge folds another engine's schema into this one
func (e *Engine) Merge(other *Engine) error {
	if e.finalized {
		return ErrFinalized
	}
	Merge(e.root, other.root)
	e.stats.Records += other.stats.Records
	e.stats.Skipped += other.stats.Skipped
	e.stats.Capped = e.stats.Capped || other.stats.Capped
	return nil
}

// Stats returns consumption counters
func (e *Engine) Stats() Stats {
	return e.stats
}

// Result finalizes the engine and returns the schema root. The tree must not
// be modified by the caller.
func (e *Engine) Result() *SchemaNode {
	e.finalized = true
	return e.root
}
