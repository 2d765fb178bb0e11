/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: terminal.go
Description: Stream guard enforcing the terminal-error contract: once an adapter
returns a fatal error or io.EOF, every later call yields io.EOF.
*/

package interfaces

import (
	"context"
	"io"
	"sync"

	"github.com/kleascm/akaylee-reader/pkg/value"
)

// Guarded wraps a RecordStream so that it latches at end of stream
type Guarded struct {
	inner  RecordStream
	done   bool
	closed bool
	once   sync.Once
	cerr   error
}

// Guard wraps s. Guarding an already guarded stream returns it unchanged.
func Guard(s RecordStream) RecordStream {
	if g, ok := s.(*Guarded); ok {
		return g
	}
	return &Guarded{inner: s}
}

// Next forwards to the wrapped stream until it ends
func (g *Guarded) Next(ctx context.Context) (value.Record, error) {
	if g.done || g.closed {
		return value.Record{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		g.done = true
		return value.Record{}, err
	}
	rec, err := g.inner.Next(ctx)
	if err != nil && !IsRecoverable(err) {
		g.done = true
	}
	return rec, err
}

// Close closes the wrapped stream once
func (g *Guarded) Close() error {
	g.once.Do(func() {
		g.closed = true
		g.cerr = g.inner.Close()
	})
	return g.cerr
}
