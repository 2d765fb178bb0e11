/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: html.go
Description: HTML adapter. With a selector configured, each matching element is a
record of its text, tag and attributes. Otherwise every table row becomes a
record keyed by the table header, and documents without tables yield one record
per heading, paragraph and list item.
*/

package adapters

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/kleascm/akaylee-reader/pkg/value"
)

func openHTML(ctx context.Context, in *Input) (interfaces.RecordStream, error) {
	b := newBase(in)
	doc, err := goquery.NewDocumentFromReader(in.Text)
	if err != nil {
		return nil, b.formatError(err)
	}

	var records []value.Record
	switch {
	case in.Options.HTMLSelector != "":
		records = htmlSelection(&b, doc.Find(in.Options.HTMLSelector))
	case doc.Find("table").Length() > 0:
		records = htmlTables(&b, doc)
	default:
		records = htmlSelection(&b, doc.Find("h1, h2, h3, h4, h5, h6, p, li"))
	}
	return &sliceStream{base: b, records: records}, nil
}

func htmlSelection(b *base, sel *goquery.Selection) []value.Record {
	records := make([]value.Record, 0, sel.Length())
	sel.Each(func(i int, el *goquery.Selection) {
		text := collapseSpace(el.Text())
		if text == "" && len(el.Nodes[0].Attr) == 0 {
			return
		}
		m := value.NewMappingBuilder(2 + len(el.Nodes[0].Attr))
		m.Set("text", value.String(text))
		m.Set("tag", value.String(goquery.NodeName(el)))
		for _, attr := range el.Nodes[0].Attr {
			m.Set("@"+attr.Key, value.String(attr.Val))
		}
		prov := b.prov
		prov.Row = int64(len(records) + 1)
		records = append(records, b.record(m.Build(), prov))
	})
	return records
}

func htmlTables(b *base, doc *goquery.Document) []value.Record {
	var records []value.Record
	doc.Find("table").Each(func(ti int, table *goquery.Selection) {
		section := fmt.Sprintf("table %d", ti+1)
		if id, ok := table.Attr("id"); ok && id != "" {
			section = id
		}

		var header []string
		var row int64
		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			if tr.Closest("table").Get(0) != table.Get(0) {
				return
			}
			cells := tr.ChildrenFiltered("td, th")
			if cells.Length() == 0 {
				return
			}
			texts := make([]string, 0, cells.Length())
			cells.Each(func(_ int, c *goquery.Selection) {
				texts = append(texts, collapseSpace(c.Text()))
			})

			if header == nil && cells.Filter("th").Length() == cells.Length() {
				header = uniqueHeader(texts)
				return
			}

			row++
			prov := b.prov
			prov.Section = section
			prov.Row = row
			m := value.NewMappingBuilder(len(texts))
			for i, cell := range texts {
				key := strconv.Itoa(i)
				if i < len(header) {
					key = header[i]
				}
				m.Set(key, Coerce(cell))
			}
			records = append(records, b.record(m.Build(), prov))
		})
	})
	return records
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
