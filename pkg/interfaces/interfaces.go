/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: interfaces.go
Description: Shared interfaces for the Akaylee Reader. Defines the RecordStream
contract every format adapter implements and the options surface consumed from
the orchestrator, kept here to break import cycles between packages.
*/

package interfaces

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/kleascm/akaylee-reader/pkg/value"
)

// RecordStream is a lazy, finite, non-restartable sequence of records.
//
// Next returns io.EOF at end of stream. A *RecordError result is recoverable
// and the stream may be advanced again; any other error is terminal and every
// later call returns io.EOF. Close releases underlying handles without
// draining the stream.
type RecordStream interface {
	Next(ctx context.Context) (value.Record, error)
	Close() error
}

// Precedence decides between extension and content when they disagree
type Precedence string

const (
	PrecedenceContent   Precedence = "content"
	PrecedenceExtension Precedence = "extension"
	PrecedenceStrict    Precedence = "strict"
)

const (
	DefaultSampleSize      = 64 * 1024
	MaxSampleSize          = 64 * 1024
	DefaultMinConfidence   = 50
	DefaultMaxNestingDepth = 8
	DefaultXMLDepth        = 1
)

// Options is the configuration surface consumed by the core
type Options struct {
	SampleSize      int        `json:"sample_size" mapstructure:"sample_size"`
	MinConfidence   int        `json:"min_confidence" mapstructure:"min_confidence"`
	MaxNestingDepth int        `json:"max_nesting_depth" mapstructure:"max_nesting_depth"`
	XMLDepth        int        `json:"xml_depth" mapstructure:"xml_depth"`
	RecordCap       int64      `json:"record_cap" mapstructure:"record_cap"`
	Headerless      bool       `json:"headerless" mapstructure:"headerless"`
	Delimiter       rune       `json:"delimiter" mapstructure:"delimiter"`
	Precedence      Precedence `json:"precedence" mapstructure:"precedence"`
	Workers         int        `json:"workers" mapstructure:"workers"`
	HTMLSelector    string     `json:"html_selector" mapstructure:"html_selector"`
	SpoolDir        string     `json:"spool_dir" mapstructure:"spool_dir"`

	// OnFallback receives encoding fallback warnings. May be nil.
	OnFallback func(EncodingFallback) `json:"-" mapstructure:"-"`
}

// DefaultOptions returns options with every default filled in
func DefaultOptions() *Options {
	return &Options{
		SampleSize:      DefaultSampleSize,
		MinConfidence:   DefaultMinConfidence,
		MaxNestingDepth: DefaultMaxNestingDepth,
		XMLDepth:        DefaultXMLDepth,
		Delimiter:       ',',
		Precedence:      PrecedenceContent,
		Workers:         runtime.NumCPU(),
	}
}

// Validate checks the options for out-of-range values.
// Returns an error if the options are invalid, or nil if valid.
func (o *Options) Validate() error {
	if o.SampleSize <= 0 || o.SampleSize > MaxSampleSize {
		return fmt.Errorf("sample_size must be between 1 and %d", MaxSampleSize)
	}
	if o.MinConfidence < 0 || o.MinConfidence > 100 {
		return fmt.Errorf("min_confidence must be between 0 and 100")
	}
	if o.MaxNestingDepth <= 0 {
		return fmt.Errorf("max_nesting_depth must be positive")
	}
	if o.XMLDepth < 0 {
		return fmt.Errorf("xml_depth must not be negative")
	}
	if o.RecordCap < 0 {
		return fmt.Errorf("record_cap must not be negative")
	}
	if o.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	switch o.Precedence {
	case PrecedenceContent, PrecedenceExtension, PrecedenceStrict:
		// ok
	default:
		return fmt.Errorf("unsupported precedence: %s", o.Precedence)
	}
	return nil
}

// WarnFallback delivers an encoding fallback warning if a callback is set
func (o *Options) WarnFallback(w EncodingFallback) {
	if o != nil && o.OnFallback != nil {
		o.OnFallback(w)
	}
}

// Drain reads a stream to exhaustion, calling fn for each record.
// Record errors are passed to onErr and skipped; the first terminal error
// is returned.
func Drain(ctx context.Context, s RecordStream, fn func(value.Record) error, onErr func(error)) error {
	for {
		rec, err := s.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if IsRecoverable(err) {
				if onErr != nil {
					onErr(err)
				}
				continue
			}
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}
