/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: errors.go
Description: Error taxonomy for the Akaylee Reader. Source, format and unsupported
format errors are fatal for one pipeline; record errors are recoverable and leave
the stream usable. Encoding fallback is a warning value, not an error.
*/

package interfaces

import (
	"errors"
	"fmt"

	"github.com/kleascm/akaylee-reader/pkg/value"
)

var (
	ErrNestingTooDeep = errors.New("archive nesting depth exceeded")
	ErrTruncated      = errors.New("input truncated")
	ErrEmptyInput     = errors.New("empty input")
	ErrIsDirectory    = errors.New("path is a directory")
)

// SourceError means the byte source could not be opened, read or unwrapped
type SourceError struct {
	Source string
	Op     string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %s: %v", e.Source, e.Op, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// FormatError means the container-level structure of a format is invalid
type FormatError struct {
	Format string
	Source string
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s format error in %s: %v", e.Format, e.Source, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// RecordError means one record was malformed; the stream continues
type RecordError struct {
	Format     string
	Provenance value.Provenance
	Err        error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s record error at %s: %v", e.Format, e.Provenance, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// UnsupportedFormatError means no adapter exists for a format tag
type UnsupportedFormatError struct {
	Tag string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Tag == "" {
		return "unsupported format: could not detect format"
	}
	return fmt.Sprintf("unsupported format: %s", e.Tag)
}

// EncodingFallback reports that charset detection was not confident enough
// and UTF-8 with replacement characters was assumed
type EncodingFallback struct {
	Source     string
	Detected   string
	Confidence int
}

func (w EncodingFallback) String() string {
	return fmt.Sprintf("encoding fallback for %s: detected %q at confidence %d, assuming utf-8", w.Source, w.Detected, w.Confidence)
}

// IsRecoverable reports whether the stream may continue after err
func IsRecoverable(err error) bool {
	var re *RecordError
	return errors.As(err, &re)
}

// IsFatal reports whether err terminates a pipeline
func IsFatal(err error) bool {
	return err != nil && !IsRecoverable(err)
}

// NewSourceError wraps err as a SourceError
func NewSourceError(source, op string, err error) error {
	return &SourceError{Source: source, Op: op, Err: err}
}

// NewFormatError wraps err as a FormatError
func NewFormatError(format, source string, err error) error {
	return &FormatError{Format: format, Source: source, Err: err}
}

// NewRecordError wraps err as a RecordError
func NewRecordError(format string, prov value.Provenance, err error) error {
	return &RecordError{Format: format, Provenance: prov, Err: err}
}
