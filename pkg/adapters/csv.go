/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: csv.go
Description: Delimited text adapter for CSV and TSV. The first row is the header
unless headerless mode is set. Each data row becomes a mapping from header to
coerced cell; rows whose width differs from the header are record errors.
*/

package adapters

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/kleascm/akaylee-reader/pkg/value"
)

type csvStream struct {
	base
	reader *csv.Reader
	header []string
	width  int
	row    int64
	done   bool
}

func openCSV(ctx context.Context, in *Input) (interfaces.RecordStream, error) {
	r := csv.NewReader(in.Text)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	r.Comma = in.Options.Delimiter
	if in.Tag == "tsv" {
		r.Comma = '\t'
	}
	if r.Comma == 0 {
		r.Comma = ','
	}

	s := &csvStream{base: newBase(in), reader: r}
	if in.Options.Headerless {
		return s, nil
	}

	first, err := r.Read()
	if err == io.EOF {
		s.done = true
		return s, nil
	}
	if err != nil {
		return nil, s.formatError(fmt.Errorf("failed to read header: %w", err))
	}
	s.header = uniqueHeader(first)
	s.width = len(s.header)
	return s, nil
}

// uniqueHeader copies the header, naming blank columns by position and
// suffixing duplicates
func uniqueHeader(row []string) []string {
	header := make([]string, len(row))
	seen := make(map[string]int, len(row))
	for i, name := range row {
		if name == "" {
			name = strconv.Itoa(i)
		}
		if n := seen[name]; n > 0 {
			candidate := fmt.Sprintf("%s_%d", name, n+1)
			for seen[candidate] > 0 {
				n++
				candidate = fmt.Sprintf("%s_%d", name, n+1)
			}
			seen[name] = n + 1
			name = candidate
		}
		seen[name]++
		header[i] = name
	}
	return header
}

func (s *csvStream) Next(ctx context.Context) (value.Record, error) {
	if s.done {
		return value.Record{}, io.EOF
	}
	fields, err := s.reader.Read()
	s.row++

	prov := s.prov
	prov.Row = s.row
	if len(fields) > 0 {
		line, _ := s.reader.FieldPos(0)
		prov.Line = int64(line)
	}

	if err == io.EOF {
		s.done = true
		return value.Record{}, io.EOF
	}
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			prov.Line = int64(perr.Line)
			return value.Record{}, s.recordError(prov, err)
		}
		s.done = true
		return value.Record{}, s.formatError(err)
	}

	if s.header == nil {
		b := value.NewMappingBuilder(len(fields))
		for i, cell := range fields {
			b.Set(strconv.Itoa(i), Coerce(cell))
		}
		return s.record(b.Build(), prov), nil
	}

	if len(fields) != s.width {
		return value.Record{}, s.recordError(prov, fmt.Errorf("row has %d fields, header has %d", len(fields), s.width))
	}
	b := value.NewMappingBuilder(s.width)
	for i, cell := range fields {
		b.Set(s.header[i], Coerce(cell))
	}
	return s.record(b.Build(), prov), nil
}
