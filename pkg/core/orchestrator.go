/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: orchestrator.go
Description: Pipeline construction. Opens a location, strips compression layers, expands
zip archives entry by entry, detects each entry's format and hands the bytes to the
registered adapter. Spreadsheet workbooks are zip containers and go to the excel adapter
whole.
*/

package core

import (
	"context"
	"errors"
	"io"

	"github.com/kleascm/akaylee-reader/pkg/adapters"
	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/kleascm/akaylee-reader/pkg/source"
	"github.com/kleascm/akaylee-reader/pkg/value"
	"github.com/sirupsen/logrus"
)

var errNoObjectStore = errors.New("object store not configured")

// Orchestrator builds record streams from byte sources
type Orchestrator struct {
	registry *adapters.Registry  // Format tag to adapter mapping
	resolver *source.Resolver    // Compression and archive unwrapping
	detector *Detector           // Extension and content reconciliation
	objects  *source.ObjectStore // Object-store access, nil when not configured
	opts     *interfaces.Options // Shared configuration
	logger   logrus.FieldLogger  // Structured logger
}

// NewOrchestrator creates an orchestrator with the built-in formats.
// Validates the options before use.
func NewOrchestrator(opts *interfaces.Options, logger logrus.FieldLogger) (*Orchestrator, error) {
	if opts == nil {
		opts = interfaces.DefaultOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	registry := adapters.Default()
	return &Orchestrator{
		registry: registry,
		resolver: source.NewResolver(opts, logger),
		detector: NewDetector(registry, opts.Precedence),
		opts:     opts,
		logger:   logger,
	}, nil
}

// WithRegistry replaces the format registry
func (o *Orchestrator) WithRegistry(registry *adapters.Registry) *Orchestrator {
	o.registry = registry
	o.detector = NewDetector(registry, o.opts.Precedence)
	return o
}

// WithObjectStore enables s3:// locations
func (o *Orchestrator) WithObjectStore(store *source.ObjectStore) *Orchestrator {
	o.objects = store
	return o
}

// Registry returns the format registry in use
func (o *Orchestrator) Registry() *adapters.Registry {
	return o.registry
}

// Detector returns the format detector in use
func (o *Orchestrator) Detector() *Detector {
	return o.detector
}

// Options returns the options the orchestrator was built with
func (o *Orchestrator) Options() *interfaces.Options {
	return o.opts
}

// OpenSource opens a local path or object-store location as a raw source
func (o *Orchestrator) OpenSource(ctx context.Context, loc string) (*source.Source, error) {
	if source.IsObjectLocation(loc) {
		if o.objects == nil {
			return nil, interfaces.NewSourceError(loc, "open", errNoObjectStore)
		}
		return o.objects.Open(ctx, loc)
	}
	return source.OpenFile(loc)
}

// Open builds one stream over src. An empty tag means detect. Plain zip
// archives yield the records of every entry in archive order; the first
// entry that fails to open ends the stream. On error src has been closed.
func (o *Orchestrator) Open(ctx context.Context, src *source.Source, tag string) (interfaces.RecordStream, error) {
	p, err := o.open(ctx, src, tag)
	if err != nil {
		return nil, err
	}
	return p.Stream, nil
}

// OpenLocation opens a path or s3:// location and builds one stream over it
func (o *Orchestrator) OpenLocation(ctx context.Context, loc, tag string) (interfaces.RecordStream, error) {
	src, err := o.OpenSource(ctx, loc)
	if err != nil {
		return nil, err
	}
	return o.Open(ctx, src, tag)
}

// OpenPath opens a location and calls fn with one pipeline per resolved
// input: the file itself, or every entry of a zip archive (recursively).
// Entries are opened lazily, one at a time, and each stream is closed after
// fn returns. Per-input failures reach fn through Pipeline.Err. Returns the
// error from opening the location or the first error fn returns.
func (o *Orchestrator) OpenPath(ctx context.Context, loc string, fn func(*Pipeline) error) error {
	src, err := o.OpenSource(ctx, loc)
	if err != nil {
		return err
	}
	return o.walk(ctx, src, "", fn)
}

// OpenPathTag is OpenPath with a forced format tag
func (o *Orchestrator) OpenPathTag(ctx context.Context, loc, tag string, fn func(*Pipeline) error) error {
	src, err := o.OpenSource(ctx, loc)
	if err != nil {
		return err
	}
	return o.walk(ctx, src, tag, fn)
}

func (o *Orchestrator) walk(ctx context.Context, src *source.Source, tag string, fn func(*Pipeline) error) error {
	location := src.Location()
	inner, kind, err := o.resolver.Resolve(ctx, src)
	if err != nil {
		return fn(&Pipeline{Location: location, Format: tag, Err: err})
	}

	if kind == source.KindZip {
		archive, err := o.resolver.OpenArchive(ctx, inner)
		if err != nil {
			inner.Close()
			return fn(&Pipeline{Location: location, Format: "zip", Err: err})
		}
		if !o.archiveAsWorkbook(archive, tag) {
			return o.walkArchive(ctx, archive, tag, fn)
		}
		return o.emit(ctx, inner, Detection{Kind: kind, ByContent: "excel", Chosen: "excel"}, fn)
	}

	det, err := o.detect(inner, kind, tag)
	if err != nil {
		inner.Close()
		return fn(&Pipeline{Location: location, Format: det.Chosen, Detection: det, Err: err})
	}
	return o.emit(ctx, inner, det, fn)
}

func (o *Orchestrator) walkArchive(ctx context.Context, archive *source.Archive, tag string, fn func(*Pipeline) error) error {
	defer archive.Close()

	entries, err := o.resolver.Entries(archive)
	if err != nil {
		return fn(&Pipeline{Location: archive.Source().Location(), Format: "zip", Err: err})
	}
	o.logger.WithFields(logrus.Fields{
		"source":  archive.Source().Location(),
		"entries": len(entries),
	}).Debug("Expanding archive")

	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			closeAll(entries[i:])
			return err
		}
		if err := o.walk(ctx, entry, tag, fn); err != nil {
			closeAll(entries[i+1:])
			return err
		}
	}
	return nil
}

func (o *Orchestrator) emit(ctx context.Context, src *source.Source, det Detection, fn func(*Pipeline) error) error {
	p := &Pipeline{Location: src.Location(), Format: det.Chosen, Detection: det, Depth: src.Depth}
	stream, err := o.registry.Open(ctx, det.Chosen, src, o.opts, o.logger)
	if err != nil {
		p.Err = err
		return fn(p)
	}
	p.Stream = stream
	defer stream.Close()
	return fn(p)
}

// open resolves src into a single pipeline, wrapping plain archives in a
// stream that walks their entries
func (o *Orchestrator) open(ctx context.Context, src *source.Source, tag string) (*Pipeline, error) {
	inner, kind, err := o.resolver.Resolve(ctx, src)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{Location: inner.Location(), Depth: inner.Depth}

	if kind == source.KindZip {
		archive, err := o.resolver.OpenArchive(ctx, inner)
		if err != nil {
			inner.Close()
			return nil, err
		}
		if !o.archiveAsWorkbook(archive, tag) {
			entries, err := o.resolver.Entries(archive)
			if err != nil {
				archive.Close()
				return nil, err
			}
			p.Format = "zip"
			p.Detection = Detection{Kind: kind, Chosen: "zip"}
			p.Stream = interfaces.Guard(&archiveStream{o: o, archive: archive, entries: entries, tag: tag})
			return p, nil
		}
		p.Detection = Detection{Kind: kind, ByContent: "excel", Chosen: "excel"}
	} else {
		p.Detection, err = o.detect(inner, kind, tag)
		if err != nil {
			inner.Close()
			return nil, err
		}
	}

	p.Format = p.Detection.Chosen
	p.Stream, err = o.registry.Open(ctx, p.Format, inner, o.opts, o.logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// archiveAsWorkbook reports whether a zip archive is read by the excel
// adapter instead of being expanded
func (o *Orchestrator) archiveAsWorkbook(archive *source.Archive, tag string) bool {
	if tag != "" {
		f, err := o.registry.Lookup(tag)
		return err == nil && f.Tag == "excel"
	}
	return archive.IsWorkbook()
}

// detect chooses the format for a resolved source. A forced tag skips
// detection but must name a registered format.
func (o *Orchestrator) detect(src *source.Source, kind source.Kind, tag string) (Detection, error) {
	if tag != "" {
		f, err := o.registry.Lookup(tag)
		if err != nil {
			return Detection{Kind: kind, Chosen: tag}, err
		}
		return Detection{Kind: kind, Chosen: f.Tag}, nil
	}
	prefix, err := src.Peek(source.MagicSize)
	if err != nil {
		return Detection{Kind: kind}, err
	}
	det, err := o.detector.Detect(src.Name, prefix)
	if err == nil && det.Conflict {
		o.logger.WithFields(logrus.Fields{
			"source":       src.Location(),
			"by_extension": det.ByExtension,
			"by_content":   det.ByContent,
			"chosen":       det.Chosen,
		}).Warn("Extension and content disagree")
	}
	return det, err
}

// archiveStream yields the records of every archive entry in order
type archiveStream struct {
	o       *Orchestrator
	archive *source.Archive
	entries []*source.Source
	tag     string
	pos     int
	current interfaces.RecordStream
}

func (a *archiveStream) Next(ctx context.Context) (value.Record, error) {
	for {
		if a.current == nil {
			if a.pos >= len(a.entries) {
				return value.Record{}, io.EOF
			}
			entry := a.entries[a.pos]
			a.pos++
			p, err := a.o.open(ctx, entry, a.tag)
			if err != nil {
				return value.Record{}, err
			}
			a.current = p.Stream
		}

		rec, err := a.current.Next(ctx)
		if err == io.EOF {
			a.current.Close()
			a.current = nil
			continue
		}
		return rec, err
	}
}

func (a *archiveStream) Close() error {
	if a.current != nil {
		a.current.Close()
		a.current = nil
	}
	closeAll(a.entries[a.pos:])
	a.pos = len(a.entries)
	return a.archive.Close()
}

func closeAll(sources []*source.Source) {
	for _, s := range sources {
		s.Close()
	}
}
