/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: text.go
Description: Plain text adapter. One record per line with the line number; line
terminators are stripped.
*/

package adapters

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/kleascm/akaylee-reader/pkg/value"
)

type textStream struct {
	base
	reader *bufio.Reader
	line   int64
	done   bool
}

func openText(ctx context.Context, in *Input) (interfaces.RecordStream, error) {
	return &textStream{base: newBase(in), reader: bufio.NewReader(in.Text)}, nil
}

func (s *textStream) Next(ctx context.Context) (value.Record, error) {
	if s.done {
		return value.Record{}, io.EOF
	}
	raw, err := s.reader.ReadString('\n')
	if err == io.EOF {
		s.done = true
		if raw == "" {
			return value.Record{}, io.EOF
		}
	} else if err != nil {
		s.done = true
		return value.Record{}, interfaces.NewSourceError(s.src.Location(), "read", err)
	}
	s.line++

	prov := s.prov
	prov.Line = s.line
	prov.Row = s.line

	m := value.NewMappingBuilder(2)
	m.Set("line", value.Int(s.line))
	m.Set("text", value.String(strings.TrimRight(raw, "\r\n")))
	return s.record(m.Build(), prov), nil
}
