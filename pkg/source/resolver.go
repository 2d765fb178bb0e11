/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: resolver.go
Description: Container resolution. Unwraps gzip, zstd, xz and bzip2 layers by
substituting the decompressed stream for the original, and expands zip archives
into one lazily opened source per member in archive order. Every step increments
an explicit depth counter checked against the configured nesting limit.
*/

package source

import (
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"
)

// Resolver unwraps compression layers and archives
type Resolver struct {
	maxDepth int
	spoolDir string
	logger   logrus.FieldLogger
}

// NewResolver creates a resolver from options
func NewResolver(opts *interfaces.Options, logger logrus.FieldLogger) *Resolver {
	if opts == nil {
		opts = interfaces.DefaultOptions()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Resolver{
		maxDepth: opts.MaxNestingDepth,
		spoolDir: opts.SpoolDir,
		logger:   logger,
	}
}

// checkDepth fails when one more unwrapping step would exceed the limit
func (r *Resolver) checkDepth(src *Source) error {
	if src.Depth+1 > r.maxDepth {
		return interfaces.NewSourceError(src.Location(), "unwrap",
			fmt.Errorf("%w: limit %d", interfaces.ErrNestingTooDeep, r.maxDepth))
	}
	return nil
}

// Resolve strips every compression layer from src and returns the innermost
// source together with its sniffed kind. On error src has been closed.
func (r *Resolver) Resolve(ctx context.Context, src *Source) (*Source, Kind, error) {
	for {
		if err := ctx.Err(); err != nil {
			src.Close()
			return nil, KindUnknown, err
		}

		prefix, err := src.Peek(MagicSize)
		if err != nil {
			src.Close()
			return nil, KindUnknown, err
		}
		kind := Sniff(prefix)
		if !kind.IsCompression() {
			return src, kind, nil
		}
		if err := r.checkDepth(src); err != nil {
			src.Close()
			return nil, kind, err
		}

		inner, err := r.decompress(src, kind)
		if err != nil {
			src.Close()
			return nil, kind, err
		}
		r.logger.WithFields(logrus.Fields{
			"source": src.Location(),
			"layer":  kind,
			"depth":  inner.Depth,
		}).Debug("Unwrapped compression layer")
		src = inner
	}
}

func (r *Resolver) decompress(src *Source, kind Kind) (*Source, error) {
	var (
		rd     io.Reader
		suffix string
	)
	switch kind {
	case KindGzip:
		zr, err := gzip.NewReader(src)
		if err != nil {
			return nil, interfaces.NewSourceError(src.Location(), "gunzip", err)
		}
		rd = &truncationReader{r: zr, c: zr}
		suffix = suffixFor(src.Ext(), ".gz", ".gzip", ".tgz")
	case KindZstd:
		dec, err := zstd.NewReader(src)
		if err != nil {
			return nil, interfaces.NewSourceError(src.Location(), "zstd", err)
		}
		rc := dec.IOReadCloser()
		rd = &truncationReader{r: rc, c: rc}
		suffix = suffixFor(src.Ext(), ".zst", ".zstd")
	case KindXz:
		xr, err := xz.NewReader(src)
		if err != nil {
			return nil, interfaces.NewSourceError(src.Location(), "xz", err)
		}
		rd = &truncationReader{r: xr}
		suffix = suffixFor(src.Ext(), ".xz", ".txz")
	case KindBzip2:
		rd = &truncationReader{r: bzip2.NewReader(src)}
		suffix = suffixFor(src.Ext(), ".bz2", ".bzip2", ".tbz2")
	default:
		return nil, fmt.Errorf("not a compression layer: %s", kind)
	}

	inner := derive(src, rd, suffix)
	if suffix == ".tgz" || suffix == ".txz" || suffix == ".tbz2" {
		inner.Name += ".tar"
	}
	return inner, nil
}

func suffixFor(ext string, candidates ...string) string {
	for _, c := range candidates {
		if ext == c {
			return c
		}
	}
	return ""
}

// truncationReader maps an unexpected end of a compressed stream onto
// ErrTruncated so callers can tell corruption from a clean end.
type truncationReader struct {
	r io.Reader
	c io.Closer
}

func (t *truncationReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err == io.ErrUnexpectedEOF {
		err = fmt.Errorf("%w: %v", interfaces.ErrTruncated, err)
	}
	return n, err
}

func (t *truncationReader) Close() error {
	if t.c == nil {
		return nil
	}
	return t.c.Close()
}

// Archive is an opened zip archive
type Archive struct {
	src     *Source
	reader  *zip.Reader
	entries []*zip.File
}

// OpenArchive reads the central directory of a zip source. The archive owns
// src and closes it on Close.
func (r *Resolver) OpenArchive(ctx context.Context, src *Source) (*Archive, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, size, err := src.Materialize(r.spoolDir)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(f, size)
	if err != nil {
		return nil, interfaces.NewFormatError("zip", src.Location(), err)
	}

	entries := make([]*zip.File, 0, len(zr.File))
	for _, zf := range zr.File {
		if skipEntry(zf) {
			continue
		}
		entries = append(entries, zf)
	}
	return &Archive{src: src, reader: zr, entries: entries}, nil
}

func skipEntry(zf *zip.File) bool {
	name := zf.Name
	if zf.FileInfo().IsDir() || strings.HasSuffix(name, "/") {
		return true
	}
	if strings.HasPrefix(name, "__MACOSX/") || path.Base(name) == ".DS_Store" {
		return true
	}
	return false
}

// Names lists member paths in archive order
func (a *Archive) Names() []string {
	names := make([]string, len(a.entries))
	for i, e := range a.entries {
		names[i] = e.Name
	}
	return names
}

// IsWorkbook reports whether the archive is an OOXML spreadsheet rather than
// a plain archive
func (a *Archive) IsWorkbook() bool {
	hasTypes, hasWorkbook := false, false
	for _, zf := range a.reader.File {
		switch zf.Name {
		case "[Content_Types].xml":
			hasTypes = true
		case "xl/workbook.xml":
			hasWorkbook = true
		}
	}
	return hasTypes && hasWorkbook
}

// Source returns the archive's own source, for adapters that read the
// container directly
func (a *Archive) Source() *Source { return a.src }

// Entries returns one lazily opened source per member in archive order.
// Fails when the members would exceed the nesting limit.
func (r *Resolver) Entries(a *Archive) ([]*Source, error) {
	if err := r.checkDepth(a.src); err != nil {
		return nil, err
	}
	out := make([]*Source, len(a.entries))
	for i, zf := range a.entries {
		zf := zf
		out[i] = lazy(a.src, zf.Name, int64(zf.UncompressedSize64), func() (io.ReadCloser, error) {
			rc, err := zf.Open()
			if err != nil {
				return nil, err
			}
			return &truncationReader{r: rc, c: rc}, nil
		})
	}
	return out, nil
}

// Close releases the archive and its source
func (a *Archive) Close() error {
	return a.src.Close()
}
