/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: scanner.go
Description: Parallel scanning. Fans one pipeline per input file out over a bounded
worker group, infers a schema per pipeline with its own engine and reduces the partial
schemas pairwise into one. A failing file is recorded in its result and never cancels
the others.
*/

package core

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kleascm/akaylee-reader/pkg/inference"
	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/kleascm/akaylee-reader/pkg/source"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Scanner runs many pipelines concurrently
type Scanner struct {
	orchestrator *Orchestrator      // Builds pipelines for every input
	reporter     Reporter           // Progress hooks
	logger       logrus.FieldLogger // Structured logger
	workers      int                // Maximum concurrent pipelines
	stats        *Stats             // Counters for the current run
}

// NewScanner creates a scanner on top of an orchestrator.
// A nil reporter logs progress through the orchestrator's logger.
func NewScanner(o *Orchestrator, reporter Reporter) *Scanner {
	if reporter == nil {
		reporter = NewLoggerReporter(o.logger)
	}
	return &Scanner{
		orchestrator: o,
		reporter:     reporter,
		logger:       o.logger,
		workers:      o.opts.Workers,
		stats:        &Stats{},
	}
}

// Stats returns live counters of the current or last run
func (s *Scanner) Stats() Stats {
	return s.stats.Snapshot()
}

// Scan reads every file under root, a local directory, a single file or an
// s3:// prefix. Per-file failures land in the results; only cancellation and
// a root that cannot be listed fail the scan.
func (s *Scanner) Scan(ctx context.Context, root string) (*ScanResult, error) {
	s.stats = &Stats{StartTime: time.Now()}
	result := &ScanResult{RunID: uuid.New().String(), Root: root}
	logger := s.logger.WithFields(logrus.Fields{"run_id": result.RunID, "root": root})

	locations, err := s.list(ctx, root)
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"files":   len(locations),
		"workers": s.workers,
	}).Info("Starting scan")

	// one slot per location keeps results in input order
	slots := make([][]FileResult, len(locations))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, loc := range locations {
		i, loc := i, loc
		g.Go(func() error {
			slots[i] = s.scanLocation(gctx, loc)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	schemas := make([]*inference.SchemaNode, 0, len(locations))
	for _, slot := range slots {
		for _, r := range slot {
			result.Files = append(result.Files, r)
			if r.Schema != nil {
				schemas = append(schemas, r.Schema)
			}
		}
	}
	result.Schema = inference.MergeAll(schemas...)
	result.Stats = s.stats.Snapshot()

	logger.WithFields(logrus.Fields{
		"files":         result.Stats.Files,
		"failures":      result.Stats.Failures,
		"records":       result.Stats.Records,
		"record_errors": result.Stats.RecordErrors,
		"elapsed":       result.Stats.Elapsed,
	}).Info("Scan finished")
	return result, nil
}

// scanLocation consumes every pipeline of one location
func (s *Scanner) scanLocation(ctx context.Context, loc string) []FileResult {
	var results []FileResult
	err := s.orchestrator.OpenPath(ctx, loc, func(p *Pipeline) error {
		results = append(results, s.consume(ctx, p))
		return ctx.Err()
	})
	if err != nil && ctx.Err() == nil {
		r := FileResult{Location: loc, Err: err, Error: err.Error()}
		s.finish(&r)
		results = append(results, r)
	}
	return results
}

// consume runs one pipeline through a fresh inference engine
func (s *Scanner) consume(ctx context.Context, p *Pipeline) FileResult {
	start := time.Now()
	s.reporter.OnFileStarted(p)

	r := FileResult{Location: p.Location, Format: p.Format}
	if p.Err != nil {
		r.Err = p.Err
	} else {
		engine := inference.NewEngine(s.orchestrator.opts, s.logger.WithField("source", p.Location))
		r.Err = engine.Consume(ctx, p.Stream)
		stats := engine.Stats()
		r.Records = stats.Records
		r.RecordErrors = stats.Skipped
		r.Capped = stats.Capped
		r.Schema = engine.Result()
	}
	if r.Err != nil {
		r.Error = r.Err.Error()
	}
	r.Duration = time.Since(start)
	s.finish(&r)
	return r
}

func (s *Scanner) finish(r *FileResult) {
	s.stats.AddFile(r)
	s.reporter.OnFileFinished(r)
}

// list expands root into file locations in lexical order
func (s *Scanner) list(ctx context.Context, root string) ([]string, error) {
	if source.IsObjectLocation(root) {
		if s.orchestrator.objects == nil {
			return nil, interfaces.NewSourceError(root, "list", errNoObjectStore)
		}
		return s.orchestrator.objects.List(ctx, root)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, interfaces.NewSourceError(root, "stat", err)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var out []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			out = append(out, path)
		}
		return ctx.Err()
	})
	if err != nil {
		return nil, interfaces.NewSourceError(root, "walk", err)
	}
	return out, nil
}
