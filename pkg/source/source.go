/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: source.go
Description: Byte sources for the Akaylee Reader. A Source is one sequence of bytes
with a display name, a nesting depth and a peekable buffer used for magic-number
sniffing. Sources that need random access (zip directories, parquet footers,
sqlite pages) are materialized into a file, spooling to a temp file when the bytes
do not already live on disk.
*/

package source

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/kleascm/akaylee-reader/pkg/value"
)

// bufferSize covers the largest charset sample plus the magic prefix
const bufferSize = interfaces.MaxSampleSize + 512

// Source is an exclusively owned sequence of bytes
type Source struct {
	Name   string // display name, compression suffixes stripped as layers unwrap
	Origin string // outermost location the bytes came from
	Entry  string // archive member path, nested members joined by "!"
	Depth  int    // number of unwrapping steps taken so far
	Size   int64  // byte size when known, -1 otherwise

	path string                        // local file holding exactly these bytes
	open func() (io.ReadCloser, error) // lazy opener for archive members

	br      *bufio.Reader
	closers []io.Closer
	file    *os.File
	spooled string
	closed  bool
}

// OpenFile opens a local file as a depth-zero source
func OpenFile(path string) (*Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, interfaces.NewSourceError(path, "stat", err)
	}
	if info.IsDir() {
		return nil, interfaces.NewSourceError(path, "open", interfaces.ErrIsDirectory)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, interfaces.NewSourceError(path, "open", err)
	}
	s := &Source{
		Name:   filepath.Base(path),
		Origin: path,
		Size:   info.Size(),
		path:   path,
	}
	s.attach(f)
	return s, nil
}

// FromReader wraps an arbitrary reader. If r is an io.Closer it is closed
// with the source.
func FromReader(name string, r io.Reader) *Source {
	s := &Source{Name: filepath.Base(name), Origin: name, Size: -1}
	s.attach(r)
	return s
}

// lazy builds a source whose reader is opened on first use
func lazy(parent *Source, name string, size int64, open func() (io.ReadCloser, error)) *Source {
	entry := name
	if parent.Entry != "" {
		entry = parent.Entry + "!" + name
	}
	return &Source{
		Name:   filepath.Base(name),
		Origin: parent.Origin,
		Entry:  entry,
		Depth:  parent.Depth + 1,
		Size:   size,
		open:   open,
	}
}

// derive builds the source for one decompression layer over parent.
// The parent is closed together with the derived source.
func derive(parent *Source, r io.Reader, suffix string) *Source {
	s := &Source{
		Name:   strings.TrimSuffix(parent.Name, suffix),
		Origin: parent.Origin,
		Entry:  parent.Entry,
		Depth:  parent.Depth + 1,
		Size:   -1,
	}
	s.attach(r)
	s.closers = append(s.closers, parent)
	return s
}

func (s *Source) attach(r io.Reader) {
	if c, ok := r.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}
	s.br = bufio.NewReaderSize(r, bufferSize)
}

func (s *Source) ensureOpen() error {
	if s.closed {
		return interfaces.NewSourceError(s.Location(), "read", os.ErrClosed)
	}
	if s.br != nil {
		return nil
	}
	if s.open == nil {
		return interfaces.NewSourceError(s.Location(), "read", io.ErrUnexpectedEOF)
	}
	rc, err := s.open()
	if err != nil {
		return interfaces.NewSourceError(s.Location(), "open entry", err)
	}
	s.attach(rc)
	return nil
}

// Ext returns the lower-case extension of the current name
func (s *Source) Ext() string {
	return strings.ToLower(filepath.Ext(s.Name))
}

// Location returns origin plus entry path for messages
func (s *Source) Location() string {
	if s.Entry == "" {
		return s.Origin
	}
	return s.Origin + ":" + s.Entry
}

// Provenance returns the provenance shared by every record of this source
func (s *Source) Provenance() value.Provenance {
	return value.Provenance{Source: s.Origin, Entry: s.Entry}
}

// Peek returns up to n leading bytes without consuming them.
// A shorter slice with a nil error means the input is shorter than n.
func (s *Source) Peek(n int) ([]byte, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if n > bufferSize {
		n = bufferSize
	}
	b, err := s.br.Peek(n)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return b, interfaces.NewSourceError(s.Location(), "peek", err)
	}
	return b, nil
}

// Read implements io.Reader
func (s *Source) Read(p []byte) (int, error) {
	if err := s.ensureOpen(); err != nil {
		return 0, err
	}
	return s.br.Read(p)
}

// Materialize returns a file holding exactly the bytes of this source, for
// formats that need random access. Plain files are reopened in place; other
// sources are spooled to a temp file under dir that is removed on Close.
// Must be called before the source is read. Repeated calls return the same file.
func (s *Source) Materialize(dir string) (*os.File, int64, error) {
	if s.file != nil {
		info, err := s.file.Stat()
		if err != nil {
			return nil, 0, interfaces.NewSourceError(s.Location(), "stat", err)
		}
		return s.file, info.Size(), nil
	}
	if s.path != "" {
		f, err := os.Open(s.path)
		if err != nil {
			return nil, 0, interfaces.NewSourceError(s.Location(), "open", err)
		}
		s.file = f
		return f, s.Size, nil
	}
	if err := s.ensureOpen(); err != nil {
		return nil, 0, err
	}

	f, err := os.CreateTemp(dir, "akaylee-spool-*"+s.Ext())
	if err != nil {
		return nil, 0, interfaces.NewSourceError(s.Location(), "spool", err)
	}
	s.file = f
	s.spooled = f.Name()

	n, err := io.Copy(f, s.br)
	if err != nil {
		return nil, 0, interfaces.NewSourceError(s.Location(), "spool", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, 0, interfaces.NewSourceError(s.Location(), "spool", err)
	}
	s.Size = n
	return f, n, nil
}

// Close releases every handle held by the source and its parents
func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if s.file != nil {
		if err := s.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.spooled != "" {
		if err := os.Remove(s.spooled); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return fmt.Errorf("failed to close %s: %w", s.Location(), firstErr)
	}
	return nil
}
