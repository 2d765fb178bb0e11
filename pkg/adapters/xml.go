/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: xml.go
Description: XML adapter. Walks the token stream and emits one record per element
at the configured depth below the root (depth 0 makes the whole root one record).
Attributes become "@name" keys, repeated children fold into sequences, and text
beside child elements lands under "#text".
*/

package adapters

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/kleascm/akaylee-reader/pkg/value"
)

const xmlTextKey = "#text"

type xmlStream struct {
	base
	dec     *xml.Decoder
	target  int
	depth   int
	row     int64
	sawRoot bool
	done    bool
}

func openXML(ctx context.Context, in *Input) (interfaces.RecordStream, error) {
	dec := xml.NewDecoder(in.Text)
	dec.Strict = true
	// input is already utf-8, whatever the prolog claims
	dec.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	target := in.Options.XMLDepth
	if target < 0 {
		target = 0
	}
	return &xmlStream{base: newBase(in), dec: dec, target: target}, nil
}

func (s *xmlStream) fail(err error) error {
	s.done = true
	if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
		err = interfaces.ErrTruncated
	}
	return s.formatError(err)
}

func (s *xmlStream) Next(ctx context.Context) (value.Record, error) {
	for !s.done {
		tok, err := s.dec.Token()
		if err == io.EOF {
			s.done = true
			if !s.sawRoot {
				return value.Record{}, s.formatError(interfaces.ErrEmptyInput)
			}
			if s.depth != 0 {
				return value.Record{}, s.formatError(interfaces.ErrTruncated)
			}
			return value.Record{}, io.EOF
		}
		if err != nil {
			return value.Record{}, s.fail(err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			s.sawRoot = true
			if s.depth == s.target {
				line, _ := s.dec.InputPos()
				v, err := s.element(t.Copy(), 0)
				if err != nil {
					return value.Record{}, s.fail(err)
				}
				s.row++
				prov := s.prov
				prov.Row = s.row
				prov.Line = int64(line)
				prov.Section = t.Name.Local
				if v.Kind() != value.KindMapping {
					v = value.Mapping(value.Pair{Key: xmlTextKey, Value: v})
				}
				return s.record(v, prov), nil
			}
			s.depth++
		case xml.EndElement:
			s.depth--
		}
	}
	return value.Record{}, io.EOF
}

// element consumes tokens up to the matching end element
func (s *xmlStream) element(start xml.StartElement, depth int) (value.Value, error) {
	if depth > maxJSONDepth {
		return value.Null(), errors.New("xml nesting too deep")
	}
	b := value.NewMappingBuilder(len(start.Attr))
	for _, attr := range start.Attr {
		if attr.Name.Space == "xmlns" || attr.Name.Local == "xmlns" {
			continue
		}
		b.Set("@"+attr.Name.Local, value.String(attr.Value))
	}

	var text strings.Builder
	for {
		tok, err := s.dec.Token()
		if err != nil {
			return value.Null(), err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := s.element(t.Copy(), depth+1)
			if err != nil {
				return value.Null(), err
			}
			b.Append(t.Name.Local, child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			content := strings.TrimSpace(text.String())
			if b.Len() == 0 {
				if content == "" {
					return value.Null(), nil
				}
				return value.String(content), nil
			}
			if content != "" {
				b.Set(xmlTextKey, value.String(content))
			}
			return b.Build(), nil
		}
	}
}
