/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: parquet.go
Description: Parquet adapter. Reads record batches through the Arrow bridge and
yields one record per row, holding a single batch in memory at a time. Nested
lists, structs and maps convert recursively; timestamps and dates render as
ISO 8601 strings.
*/

package adapters

import (
	"context"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet/file"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/kleascm/akaylee-reader/pkg/value"
)

const parquetBatchSize = 1024

type parquetStream struct {
	base
	records pqarrow.RecordReader
	batch   arrow.Record
	pos     int64
	row     int64
	done    bool
}

func openParquet(ctx context.Context, in *Input) (interfaces.RecordStream, error) {
	b := newBase(in)
	f, size, err := in.Source.Materialize(in.Options.SpoolDir)
	if err != nil {
		return nil, err
	}

	// The source owns the file; the section reader keeps arrow from closing it
	reader, err := file.NewParquetReader(io.NewSectionReader(f, 0, size))
	if err != nil {
		return nil, b.formatError(err)
	}
	fr, err := pqarrow.NewFileReader(reader, pqarrow.ArrowReadProperties{BatchSize: parquetBatchSize}, memory.DefaultAllocator)
	if err != nil {
		return nil, b.formatError(err)
	}
	rr, err := fr.GetRecordReader(ctx, nil, nil)
	if err != nil {
		return nil, b.formatError(err)
	}

	b.logger.WithField("rows", reader.NumRows()).WithField("row_groups", reader.NumRowGroups()).Debug("Opened parquet file")
	return &parquetStream{base: b, records: rr}, nil
}

func (s *parquetStream) Next(ctx context.Context) (value.Record, error) {
	if s.done {
		return value.Record{}, io.EOF
	}
	for s.batch == nil || s.pos >= s.batch.NumRows() {
		if !s.records.Next() {
			s.done = true
			s.batch = nil
			if err := s.records.Err(); err != nil && err != io.EOF {
				return value.Record{}, s.formatError(err)
			}
			return value.Record{}, io.EOF
		}
		s.batch = s.records.Record()
		s.pos = 0
	}

	i := int(s.pos)
	s.pos++
	s.row++

	cols := int(s.batch.NumCols())
	m := value.NewMappingBuilder(cols)
	for c := 0; c < cols; c++ {
		m.Set(s.batch.ColumnName(c), arrowValue(s.batch.Column(c), i))
	}
	prov := s.prov
	prov.Row = s.row
	return s.record(m.Build(), prov), nil
}

// arrowValue converts element i of an arrow array
func arrowValue(arr arrow.Array, i int) value.Value {
	if arr.IsNull(i) {
		return value.Null()
	}
	switch a := arr.(type) {
	case *array.Boolean:
		return value.Bool(a.Value(i))
	case *array.Int8:
		return value.Int(int64(a.Value(i)))
	case *array.Int16:
		return value.Int(int64(a.Value(i)))
	case *array.Int32:
		return value.Int(int64(a.Value(i)))
	case *array.Int64:
		return value.Int(a.Value(i))
	case *array.Uint8:
		return value.Int(int64(a.Value(i)))
	case *array.Uint16:
		return value.Int(int64(a.Value(i)))
	case *array.Uint32:
		return value.Int(int64(a.Value(i)))
	case *array.Uint64:
		return value.FromNative(a.Value(i))
	case *array.Float16:
		return value.Float(float64(a.Value(i).Float32()))
	case *array.Float32:
		return value.Float(float64(a.Value(i)))
	case *array.Float64:
		return value.Float(a.Value(i))
	case *array.String:
		return value.String(a.Value(i))
	case *array.LargeString:
		return value.String(a.Value(i))
	case *array.Binary:
		return value.Bytes(a.Value(i))
	case *array.LargeBinary:
		return value.Bytes(a.Value(i))
	case *array.FixedSizeBinary:
		return value.Bytes(a.Value(i))
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return value.String(a.Value(i).ToTime(unit).UTC().Format(value.TimeLayout))
	case *array.Date32:
		return value.String(a.Value(i).ToTime().Format("2006-01-02"))
	case *array.Date64:
		return value.String(a.Value(i).ToTime().Format("2006-01-02"))
	case *array.Map:
		start, end := a.ValueOffsets(i)
		keys, items := a.Keys(), a.Items()
		m := value.NewMappingBuilder(int(end - start))
		for j := start; j < end; j++ {
			m.Set(keys.ValueStr(int(j)), arrowValue(items, int(j)))
		}
		return m.Build()
	case *array.List:
		start, end := a.ValueOffsets(i)
		return arrowSlice(a.ListValues(), start, end)
	case *array.LargeList:
		start, end := a.ValueOffsets(i)
		return arrowSlice(a.ListValues(), start, end)
	case *array.Struct:
		st := a.DataType().(*arrow.StructType)
		m := value.NewMappingBuilder(a.NumField())
		for j := 0; j < a.NumField(); j++ {
			m.Set(st.Field(j).Name, arrowValue(a.Field(j), i))
		}
		return m.Build()
	case *array.Dictionary:
		return arrowValue(a.Dictionary(), a.GetValueIndex(i))
	}
	return value.String(arr.ValueStr(i))
}

func arrowSlice(values arrow.Array, start, end int64) value.Value {
	items := make([]value.Value, 0, end-start)
	for j := start; j < end; j++ {
		items = append(items, arrowValue(values, int(j)))
	}
	return value.Sequence(items...)
}

func (s *parquetStream) Close() error {
	s.batch = nil
	s.records.Release()
	return s.src.Close()
}
