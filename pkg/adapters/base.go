/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: base.go
Description: Shared adapter plumbing: provenance stamping, error helpers and the
scalar coercion used by every tabular format.
*/

package adapters

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/kleascm/akaylee-reader/pkg/source"
	"github.com/kleascm/akaylee-reader/pkg/value"
	"github.com/sirupsen/logrus"
)

// base carries what every adapter needs
type base struct {
	format string
	src    *source.Source
	prov   value.Provenance
	opts   *interfaces.Options
	logger logrus.FieldLogger
}

func newBase(in *Input) base {
	return base{
		format: in.Tag,
		src:    in.Source,
		prov:   in.Source.Provenance(),
		opts:   in.Options,
		logger: in.Logger,
	}
}

func (b *base) formatError(err error) error {
	return interfaces.NewFormatError(b.format, b.src.Location(), err)
}

func (b *base) recordError(prov value.Provenance, err error) error {
	b.logger.WithField("at", prov.String()).WithError(err).Debug("Skipping malformed record")
	return interfaces.NewRecordError(b.format, prov, err)
}

func (b *base) record(v value.Value, prov value.Provenance) value.Record {
	return value.Record{Value: v, Provenance: prov}
}

// Close releases the source
func (b *base) Close() error {
	return b.src.Close()
}

// sliceStream serves records prepared up front. Used by formats whose parser
// produces the whole document at once.
type sliceStream struct {
	base
	records []value.Record
	pos     int
}

func (s *sliceStream) Next(ctx context.Context) (value.Record, error) {
	if s.pos >= len(s.records) {
		return value.Record{}, io.EOF
	}
	rec := s.records[s.pos]
	s.records[s.pos] = value.Record{}
	s.pos++
	return rec, nil
}

// Coerce converts a cell string into the narrowest scalar it spells.
// Empty cells are null; integers win over floats; booleans are case-insensitive.
func Coerce(cell string) value.Value {
	trimmed := strings.TrimSpace(cell)
	if trimmed == "" {
		return value.Null()
	}
	if looksNumeric(trimmed) {
		if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return value.Int(i)
		}
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return value.Float(f)
		}
	}
	switch strings.ToLower(trimmed) {
	case "true":
		return value.Bool(true)
	case "false":
		return value.Bool(false)
	}
	return value.String(cell)
}

// looksNumeric keeps words like "Inf" and "NaN" as strings
func looksNumeric(s string) bool {
	c := s[0]
	if c == '+' || c == '-' {
		if len(s) == 1 {
			return false
		}
		c = s[1]
	}
	return (c >= '0' && c <= '9') || c == '.'
}
