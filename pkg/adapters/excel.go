/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: excel.go
Description: Excel workbook adapter. Streams every sheet in workbook order through
the row iterator. The first non-empty row of a sheet is its header; every later
non-empty row is a record. Date-formatted numeric cells are rendered as ISO 8601
strings: "YYYY-MM-DD" for whole days, "YYYY-MM-DDTHH:MM:SS" otherwise.
*/

package adapters

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/kleascm/akaylee-reader/pkg/value"
	"github.com/xuri/excelize/v2"
)

type excelStream struct {
	base
	book      *excelize.File
	sheets    []string
	sheet     int
	rows      *excelize.Rows
	header    []string
	width     int
	rowNum    int
	date1904  bool
	dateStyle map[int]bool
}

func openExcel(ctx context.Context, in *Input) (interfaces.RecordStream, error) {
	b := newBase(in)
	f, _, err := in.Source.Materialize(in.Options.SpoolDir)
	if err != nil {
		return nil, err
	}
	book, err := excelize.OpenFile(f.Name())
	if err != nil {
		return nil, b.formatError(err)
	}

	s := &excelStream{
		base:      b,
		book:      book,
		sheets:    book.GetSheetList(),
		dateStyle: make(map[int]bool),
	}
	if props, err := book.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		s.date1904 = *props.Date1904
	}
	return s, nil
}

func (s *excelStream) Next(ctx context.Context) (value.Record, error) {
	for {
		if s.rows == nil {
			if s.sheet >= len(s.sheets) {
				return value.Record{}, io.EOF
			}
			rows, err := s.book.Rows(s.sheets[s.sheet])
			if err != nil {
				name := s.sheets[s.sheet]
				s.sheet = len(s.sheets)
				return value.Record{}, s.formatError(fmt.Errorf("sheet %s: %w", name, err))
			}
			s.rows = rows
			s.header = nil
			s.width = s.sheetWidth(s.sheets[s.sheet])
			s.rowNum = 0
		}

		if !s.rows.Next() {
			err := s.rows.Error()
			s.rows.Close()
			s.rows = nil
			s.sheet++
			if err != nil {
				s.sheet = len(s.sheets)
				return value.Record{}, s.formatError(err)
			}
			continue
		}
		s.rowNum++
		sheet := s.sheets[s.sheet]

		cols, err := s.rows.Columns(excelize.Options{RawCellValue: true})
		prov := s.prov
		prov.Section = sheet
		prov.Row = int64(s.rowNum)
		if err != nil {
			return value.Record{}, s.recordError(prov, err)
		}
		if blankRow(cols) {
			continue
		}

		if s.header == nil {
			s.header = excelHeader(cols, s.width)
			continue
		}

		m := value.NewMappingBuilder(len(s.header))
		for i, name := range s.header {
			cell := ""
			if i < len(cols) {
				cell = cols[i]
			}
			m.Set(name, s.cell(sheet, i+1, cell))
		}
		for i := len(s.header); i < len(cols); i++ {
			if strings.TrimSpace(cols[i]) == "" {
				continue
			}
			name, _ := excelize.ColumnNumberToName(i + 1)
			m.Set(name, s.cell(sheet, i+1, cols[i]))
		}
		return s.record(m.Build(), prov), nil
	}
}

func blankRow(cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// sheetWidth reads the used column count from the sheet dimension, or 0 when
// the workbook does not record one
func (s *excelStream) sheetWidth(sheet string) int {
	dim, err := s.book.GetSheetDimension(sheet)
	if err != nil || dim == "" {
		return 0
	}
	last := dim[strings.LastIndex(dim, ":")+1:]
	col, _, err := excelize.CellNameToCoordinates(last)
	if err != nil {
		return 0
	}
	return col
}

// excelHeader names the header cells, padded to width. Blank header cells
// take their column letter.
func excelHeader(cols []string, width int) []string {
	if width < len(cols) {
		width = len(cols)
	}
	names := make([]string, width)
	for i := range names {
		c := ""
		if i < len(cols) {
			c = strings.TrimSpace(cols[i])
		}
		if c == "" {
			c, _ = excelize.ColumnNumberToName(i + 1)
		}
		names[i] = c
	}
	return uniqueHeader(names)
}

// cell converts one raw cell, consulting the style for dates and the cell
// type for booleans
func (s *excelStream) cell(sheet string, col int, raw string) value.Value {
	v := Coerce(raw)
	if v.Kind() != value.KindInt && v.Kind() != value.KindFloat {
		return v
	}
	ref, err := excelize.CoordinatesToCellName(col, s.rowNum)
	if err != nil {
		return v
	}

	if raw == "0" || raw == "1" {
		if typ, err := s.book.GetCellType(sheet, ref); err == nil && typ == excelize.CellTypeBool {
			return value.Bool(raw == "1")
		}
	}

	styleID, err := s.book.GetCellStyle(sheet, ref)
	if err != nil || !s.isDateStyle(styleID) {
		return v
	}
	serial, _ := v.AsFloat()
	t, err := excelize.ExcelDateToTime(serial, s.date1904)
	if err != nil {
		return v
	}
	if serial == math.Trunc(serial) {
		return value.String(t.Format("2006-01-02"))
	}
	return value.String(t.Format("2006-01-02T15:04:05"))
}

func (s *excelStream) isDateStyle(id int) bool {
	if cached, ok := s.dateStyle[id]; ok {
		return cached
	}
	isDate := false
	if style, err := s.book.GetStyle(id); err == nil && style != nil {
		isDate = builtinDateFormat(style.NumFmt)
		if style.CustomNumFmt != nil {
			isDate = customDateFormat(*style.CustomNumFmt)
		}
	}
	s.dateStyle[id] = isDate
	return isDate
}

// builtinDateFormat reports whether a built-in number format id renders a date
func builtinDateFormat(id int) bool {
	switch {
	case id >= 14 && id <= 22,
		id >= 27 && id <= 36,
		id >= 45 && id <= 47,
		id >= 50 && id <= 58:
		return true
	}
	return false
}

// customDateFormat looks for date tokens outside quoted literals and brackets
func customDateFormat(code string) bool {
	code = strings.ToLower(code)
	inQuote, inBracket := false, false
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '[':
			inBracket = true
		case c == ']':
			inBracket = false
		case inBracket:
		case c == '\\':
			i++
		case c == 'y' || c == 'm' || c == 'd' || c == 'h' || c == 's':
			return true
		}
	}
	return false
}

func (s *excelStream) Close() error {
	if s.rows != nil {
		s.rows.Close()
	}
	err := s.book.Close()
	if cerr := s.src.Close(); err == nil {
		err = cerr
	}
	return err
}
