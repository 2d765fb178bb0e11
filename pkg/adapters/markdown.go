/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: markdown.go
Description: Markdown adapter. Parses the document into a block tree and yields one
record per top-level block with its plain text, block kind and starting line.
Headings carry their level and list items are emitted individually.
*/

package adapters

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"

	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/kleascm/akaylee-reader/pkg/value"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

type markdownStream struct {
	base
	source     []byte
	lineStarts []int
	blocks     []ast.Node
	pos        int
	row        int64
}

func openMarkdown(ctx context.Context, in *Input) (interfaces.RecordStream, error) {
	b := newBase(in)
	src, err := io.ReadAll(in.Text)
	if err != nil {
		return nil, interfaces.NewSourceError(in.Source.Location(), "read", err)
	}

	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	s := &markdownStream{base: b, source: src, lineStarts: lineStarts(src)}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch n.Kind() {
		case ast.KindThematicBreak:
			continue
		case ast.KindList:
			for item := n.FirstChild(); item != nil; item = item.NextSibling() {
				s.blocks = append(s.blocks, item)
			}
		default:
			s.blocks = append(s.blocks, n)
		}
	}
	return s, nil
}

func lineStarts(src []byte) []int {
	starts := []int{0}
	for i, c := range src {
		if c == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// lineOf returns the 1-based line holding byte offset off
func (s *markdownStream) lineOf(off int) int64 {
	return int64(sort.Search(len(s.lineStarts), func(i int) bool { return s.lineStarts[i] > off }))
}

func (s *markdownStream) Next(ctx context.Context) (value.Record, error) {
	for s.pos < len(s.blocks) {
		n := s.blocks[s.pos]
		s.pos++

		body := strings.TrimSpace(blockText(n, s.source))
		if body == "" {
			continue
		}
		s.row++
		prov := s.prov
		prov.Row = s.row
		if off, ok := firstOffset(n); ok {
			prov.Line = s.lineOf(off)
		}

		m := value.NewMappingBuilder(4)
		m.Set("kind", value.String(blockKind(n)))
		m.Set("text", value.String(body))
		if h, ok := n.(*ast.Heading); ok {
			m.Set("level", value.Int(int64(h.Level)))
		}
		if prov.Line > 0 {
			m.Set("line", value.Int(prov.Line))
		}
		return s.record(m.Build(), prov), nil
	}
	return value.Record{}, io.EOF
}

func blockKind(n ast.Node) string {
	switch n.Kind() {
	case ast.KindHeading:
		return "heading"
	case ast.KindParagraph, ast.KindTextBlock:
		return "paragraph"
	case ast.KindListItem:
		return "list_item"
	case ast.KindFencedCodeBlock, ast.KindCodeBlock:
		return "code"
	case ast.KindBlockquote:
		return "quote"
	case ast.KindHTMLBlock:
		return "html"
	}
	return strings.ToLower(n.Kind().String())
}

// firstOffset finds the first source byte of a block
func firstOffset(n ast.Node) (int, bool) {
	if n.Type() == ast.TypeBlock && n.Lines().Len() > 0 {
		return n.Lines().At(0).Start, true
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if off, ok := firstOffset(c); ok {
			return off, true
		}
	}
	if t, ok := n.(*ast.Text); ok {
		return t.Segment.Start, true
	}
	return 0, false
}

// blockText renders the plain text of a block without markup
func blockText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	switch n.Kind() {
	case ast.KindFencedCodeBlock, ast.KindCodeBlock, ast.KindHTMLBlock:
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		return buf.String()
	}
	writeInline(&buf, n, src)
	return buf.String()
}

func writeInline(buf *bytes.Buffer, n ast.Node, src []byte) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(src))
			if t.HardLineBreak() {
				buf.WriteByte('\n')
			} else if t.SoftLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		default:
			if c.Type() == ast.TypeBlock && buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			writeInline(buf, c, src)
		}
	}
}
