/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: json.go
Description: JSON and JSON Lines adapters. A JSON document whose root is an array
yields one record per element, decoded element by element from the token stream
so the array never has to fit in memory. Any other root, and every further
concatenated top-level value, is one record. Object key order is preserved.
JSON Lines decodes each non-blank line independently.
*/

package adapters

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/kleascm/akaylee-reader/pkg/value"
)

// maxJSONDepth bounds recursion on hostile nesting
const maxJSONDepth = 512

var errJSONTooDeep = errors.New("json nesting too deep")

type jsonState int

const (
	jsonStart jsonState = iota
	jsonInArray
	jsonTopLevel
	jsonDone
)

type jsonStream struct {
	base
	dec   *json.Decoder
	state jsonState
	row   int64
}

func openJSON(ctx context.Context, in *Input) (interfaces.RecordStream, error) {
	dec := json.NewDecoder(in.Text)
	dec.UseNumber()
	return &jsonStream{base: newBase(in), dec: dec}, nil
}

func (s *jsonStream) fail(err error) error {
	s.state = jsonDone
	if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
		err = interfaces.ErrTruncated
	}
	return s.formatError(err)
}

func (s *jsonStream) emit(v value.Value) value.Record {
	s.row++
	prov := s.prov
	prov.Row = s.row
	return s.record(v, prov)
}

func (s *jsonStream) Next(ctx context.Context) (value.Record, error) {
	for {
		switch s.state {
		case jsonStart:
			tok, err := s.dec.Token()
			if err == io.EOF {
				s.state = jsonDone
				return value.Record{}, s.formatError(interfaces.ErrEmptyInput)
			}
			if err != nil {
				return value.Record{}, s.fail(err)
			}
			if d, ok := tok.(json.Delim); ok && d == '[' {
				s.state = jsonInArray
				continue
			}
			v, err := decodeJSON(s.dec, tok, 0)
			if err != nil {
				return value.Record{}, s.fail(err)
			}
			s.state = jsonTopLevel
			return s.emit(v), nil

		case jsonInArray:
			if !s.dec.More() {
				if _, err := s.dec.Token(); err != nil {
					return value.Record{}, s.fail(err)
				}
				s.state = jsonTopLevel
				continue
			}
			tok, err := s.dec.Token()
			if err != nil {
				return value.Record{}, s.fail(err)
			}
			v, err := decodeJSON(s.dec, tok, 0)
			if err != nil {
				return value.Record{}, s.fail(err)
			}
			return s.emit(v), nil

		case jsonTopLevel:
			tok, err := s.dec.Token()
			if err == io.EOF {
				s.state = jsonDone
				return value.Record{}, io.EOF
			}
			if err != nil {
				return value.Record{}, s.fail(err)
			}
			v, err := decodeJSON(s.dec, tok, 0)
			if err != nil {
				return value.Record{}, s.fail(err)
			}
			return s.emit(v), nil

		default:
			return value.Record{}, io.EOF
		}
	}
}

// decodeJSON builds a value starting from an already read token
func decodeJSON(dec *json.Decoder, tok json.Token, depth int) (value.Value, error) {
	if depth > maxJSONDepth {
		return value.Null(), errJSONTooDeep
	}
	switch t := tok.(type) {
	case nil:
		return value.Null(), nil
	case bool:
		return value.Bool(t), nil
	case string:
		return value.String(t), nil
	case json.Number:
		return value.FromNumber(string(t)), nil
	case float64:
		return value.Float(t), nil
	case json.Delim:
		switch t {
		case '[':
			var items []value.Value
			for dec.More() {
				next, err := dec.Token()
				if err != nil {
					return value.Null(), err
				}
				item, err := decodeJSON(dec, next, depth+1)
				if err != nil {
					return value.Null(), err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return value.Null(), err
			}
			return value.Sequence(items...), nil
		case '{':
			b := value.NewMappingBuilder(0)
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return value.Null(), err
				}
				key, ok := keyTok.(string)
				if !ok {
					return value.Null(), fmt.Errorf("object key must be a string, got %v", keyTok)
				}
				next, err := dec.Token()
				if err != nil {
					return value.Null(), err
				}
				v, err := decodeJSON(dec, next, depth+1)
				if err != nil {
					return value.Null(), err
				}
				b.Set(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return value.Null(), err
			}
			return b.Build(), nil
		}
	}
	return value.Null(), fmt.Errorf("unexpected json token %v", tok)
}

type jsonLinesStream struct {
	base
	reader *bufio.Reader
	line   int64
	done   bool
}

func openJSONLines(ctx context.Context, in *Input) (interfaces.RecordStream, error) {
	return &jsonLinesStream{base: newBase(in), reader: bufio.NewReader(in.Text)}, nil
}

func (s *jsonLinesStream) Next(ctx context.Context) (value.Record, error) {
	for !s.done {
		raw, err := s.reader.ReadBytes('\n')
		if err == io.EOF {
			s.done = true
		} else if err != nil {
			s.done = true
			return value.Record{}, interfaces.NewSourceError(s.src.Location(), "read", err)
		}
		if len(raw) == 0 && s.done {
			break
		}
		s.line++

		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 {
			continue
		}
		prov := s.prov
		prov.Line = s.line
		prov.Row = s.line

		v, err := decodeLine(trimmed)
		if err != nil {
			return value.Record{}, s.recordError(prov, err)
		}
		return s.record(v, prov), nil
	}
	return value.Record{}, io.EOF
}

func decodeLine(line []byte) (value.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return value.Null(), err
	}
	v, err := decodeJSON(dec, tok, 0)
	if err != nil {
		return value.Null(), err
	}
	if _, err := dec.Token(); err != io.EOF {
		return value.Null(), fmt.Errorf("trailing data after json value")
	}
	return v, nil
}
