/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: pdf.go
Description: PDF adapter. One record per page carrying the page number and its
plain text. A page whose content cannot be decoded is a record error.
*/

package adapters

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/kleascm/akaylee-reader/pkg/value"
	"github.com/ledongthuc/pdf"
)

type pdfStream struct {
	base
	doc   *pdf.Reader
	pages int
	page  int
}

func openPDF(ctx context.Context, in *Input) (interfaces.RecordStream, error) {
	b := newBase(in)
	f, size, err := in.Source.Materialize(in.Options.SpoolDir)
	if err != nil {
		return nil, err
	}
	doc, err := openPDFReader(f, size)
	if err != nil {
		return nil, b.formatError(err)
	}
	return &pdfStream{base: b, doc: doc, pages: doc.NumPage()}, nil
}

// openPDFReader turns parser panics on hostile input into errors
func openPDFReader(r io.ReaderAt, size int64) (doc *pdf.Reader, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("malformed pdf: %v", p)
		}
	}()
	return pdf.NewReader(r, size)
}

func pageText(p pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed page: %v", r)
		}
	}()
	return p.GetPlainText(nil)
}

func (s *pdfStream) Next(ctx context.Context) (value.Record, error) {
	if s.page >= s.pages {
		return value.Record{}, io.EOF
	}
	s.page++
	prov := s.prov
	prov.Page = s.page
	prov.Row = int64(s.page)

	p := s.doc.Page(s.page)
	if p.V.IsNull() {
		return value.Record{}, s.recordError(prov, fmt.Errorf("page %d missing", s.page))
	}
	text, err := pageText(p)
	if err != nil {
		return value.Record{}, s.recordError(prov, err)
	}

	m := value.NewMappingBuilder(2)
	m.Set("page", value.Int(int64(s.page)))
	m.Set("text", value.String(strings.TrimSpace(text)))
	return s.record(m.Build(), prov), nil
}
