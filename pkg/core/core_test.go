/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: core_test.go
Description: Tests for format detection, pipeline construction over compressed files and
archives, and parallel scanning with pairwise schema merge.
*/

package core_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/kleascm/akaylee-reader/pkg/adapters"
	"github.com/kleascm/akaylee-reader/pkg/core"
	"github.com/kleascm/akaylee-reader/pkg/inference"
	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/kleascm/akaylee-reader/pkg/source"
	"github.com/kleascm/akaylee-reader/pkg/source/mocks"
	"github.com/kleascm/akaylee-reader/pkg/value"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/minio/minio-go/v7"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const peopleCSV = "id,name,score\n1,Alice,90.5\n2,Bob,\n"

func newOrchestrator(t *testing.T, opts *interfaces.Options) *core.Orchestrator {
	t.Helper()
	logger, _ := test.NewNullLogger()
	o, err := core.NewOrchestrator(opts, logger)
	require.NoError(t, err)
	return o
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

type entry struct {
	name string
	data []byte
}

func zipBytes(t *testing.T, entries ...entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		f, err := w.Create(e.name)
		require.NoError(t, err)
		_, err = f.Write(e.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func collect(t *testing.T, s interfaces.RecordStream) ([]value.Record, error) {
	t.Helper()
	var out []value.Record
	err := interfaces.Drain(context.Background(), s, func(rec value.Record) error {
		out = append(out, rec)
		return nil
	}, nil)
	require.NoError(t, s.Close())
	return out, err
}

func TestDetectPrecedence(t *testing.T) {
	registry := adapters.Default()
	parquetMagic := []byte("PAR1\x15\x04\x15\x00")

	tests := []struct {
		name       string
		file       string
		prefix     []byte
		precedence interfaces.Precedence
		chosen     string
		conflict   bool
		wantErr    interface{}
	}{
		{"content wins by default", "data.csv", parquetMagic, interfaces.PrecedenceContent, "parquet", true, nil},
		{"extension wins when asked", "data.csv", parquetMagic, interfaces.PrecedenceExtension, "csv", true, nil},
		{"strict rejects conflicts", "data.csv", parquetMagic, interfaces.PrecedenceStrict, "", true, &interfaces.FormatError{}},
		{"plain text defers to extension", "people.csv", []byte(peopleCSV), interfaces.PrecedenceStrict, "csv", false, nil},
		{"no extension falls back to txt", "NOTES", []byte("hello there\n"), interfaces.PrecedenceContent, "txt", false, nil},
		{"front matter stays markdown", "post.md", []byte("---\ntitle: x\n---\n# Hi\n"), interfaces.PrecedenceStrict, "markdown", false, nil},
		{"json lines refine json", "rows.jsonl", []byte("{\"a\":1}\n"), interfaces.PrecedenceStrict, "jsonl", false, nil},
		{"content only", "report", []byte("%PDF-1.4\n"), interfaces.PrecedenceContent, "pdf", false, nil},
		{"unknown bytes", "blob.bin", []byte{0x00, 0x01, 0x02, 0xff}, interfaces.PrecedenceContent, "", false, &interfaces.UnsupportedFormatError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det, err := core.NewDetector(registry, tt.precedence).Detect(tt.file, tt.prefix)
			assert.Equal(t, tt.conflict, det.Conflict)
			switch want := tt.wantErr.(type) {
			case *interfaces.FormatError:
				assert.True(t, errors.As(err, &want), "got %v", err)
				return
			case *interfaces.UnsupportedFormatError:
				assert.True(t, errors.As(err, &want), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.chosen, det.Chosen)
		})
	}
}

func TestGzipCSVMatchesPlainCSV(t *testing.T) {
	dir := t.TempDir()
	plain := writeFile(t, dir, "people.csv", []byte(peopleCSV))
	packed := writeFile(t, dir, "people.csv.gz", gzipBytes(t, []byte(peopleCSV)))
	o := newOrchestrator(t, nil)
	ctx := context.Background()

	s1, err := o.OpenLocation(ctx, plain, "")
	require.NoError(t, err)
	want, err := collect(t, s1)
	require.NoError(t, err)

	s2, err := o.OpenLocation(ctx, packed, "")
	require.NoError(t, err)
	got, err := collect(t, s2)
	require.NoError(t, err)

	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, value.Equal(want[i].Value, got[i].Value), "record %d", i)
		assert.Equal(t, want[i].Provenance.Row, got[i].Provenance.Row)
	}
	assert.Equal(t, packed, got[0].Provenance.Source)
}

func TestCSVScenarioSchema(t *testing.T) {
	path := writeFile(t, t.TempDir(), "people.csv", []byte(peopleCSV))
	o := newOrchestrator(t, nil)

	s, err := o.OpenLocation(context.Background(), path, "")
	require.NoError(t, err)
	defer s.Close()

	e := inference.NewEngine(nil, nil)
	require.NoError(t, e.Consume(context.Background(), s))
	root := e.Result()

	assert.Equal(t, []string{"integer"}, root.Field("id").Types.Names())
	assert.Equal(t, []string{"string"}, root.Field("name").Types.Names())
	assert.Equal(t, []string{"float", "null"}, root.Field("score").Types.Names())
	assert.True(t, root.Field("score").Nullable())
	assert.False(t, root.Field("id").Nullable())
}

func TestJSONScenarioSchema(t *testing.T) {
	path := writeFile(t, t.TempDir(), "mixed.json", []byte(`[{"a":1},{"a":"x","b":true}]`))
	o := newOrchestrator(t, nil)

	s, err := o.OpenLocation(context.Background(), path, "")
	require.NoError(t, err)
	defer s.Close()

	e := inference.NewEngine(nil, nil)
	require.NoError(t, e.Consume(context.Background(), s))
	root := e.Result()

	assert.Equal(t, int64(2), root.Count)
	assert.Equal(t, []string{"integer", "string"}, root.Field("a").Types.Names())
	assert.False(t, root.Field("a").Nullable())
	assert.Equal(t, []string{"boolean"}, root.Field("b").Types.Names())
	assert.True(t, root.Field("b").Nullable())
}

func TestForcedTagOverridesDetection(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rows.data", []byte("a;b\n1;2\n"))
	opts := interfaces.DefaultOptions()
	opts.Delimiter = ';'
	o := newOrchestrator(t, opts)

	s, err := o.OpenLocation(context.Background(), path, "csv")
	require.NoError(t, err)
	records, err := collect(t, s)
	require.NoError(t, err)
	require.Len(t, records, 1)
	b, _ := records[0].Value.Get("b")
	assert.True(t, value.Equal(value.Int(2), b))
}

func TestOpenUnsupportedTagClosesSource(t *testing.T) {
	o := newOrchestrator(t, nil)
	src := source.FromReader("x.csv", bytes.NewReader([]byte(peopleCSV)))

	_, err := o.Open(context.Background(), src, "nope")
	var unsupported *interfaces.UnsupportedFormatError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "nope", unsupported.Tag)

	_, err = src.Peek(1)
	assert.Error(t, err)
}

func TestOpenDirectoryIsSourceError(t *testing.T) {
	o := newOrchestrator(t, nil)
	_, err := o.OpenLocation(context.Background(), t.TempDir(), "")
	assert.ErrorIs(t, err, interfaces.ErrIsDirectory)
	var se *interfaces.SourceError
	assert.True(t, errors.As(err, &se))
}

func TestObjectLocationWithoutStore(t *testing.T) {
	o := newOrchestrator(t, nil)
	_, err := o.OpenLocation(context.Background(), "s3://data/a.csv", "")
	var se *interfaces.SourceError
	assert.True(t, errors.As(err, &se))
}

func TestOpenPathExpandsArchiveEntries(t *testing.T) {
	archive := zipBytes(t,
		entry{"a.csv", []byte(peopleCSV)},
		entry{"nested/b.json", []byte(`[{"k":1},{"k":2},{"k":3}]`)},
		entry{"inner.csv.gz", gzipBytes(t, []byte("x\n1\n"))},
		entry{"c.bin", []byte{0x00, 0x01, 0x02}},
	)
	path := writeFile(t, t.TempDir(), "bundle.zip", archive)
	o := newOrchestrator(t, nil)

	type seen struct {
		location string
		format   string
		depth    int
		records  int
		err      error
	}
	var got []seen
	err := o.OpenPath(context.Background(), path, func(p *core.Pipeline) error {
		s := seen{location: p.Location, format: p.Format, depth: p.Depth, err: p.Err}
		if p.Err == nil {
			records, err := collectOpen(p.Stream)
			require.NoError(t, err)
			s.records = len(records)
		}
		got = append(got, s)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, path+":a.csv", got[0].location)
	assert.Equal(t, "csv", got[0].format)
	assert.Equal(t, 2, got[0].records)
	assert.Equal(t, 1, got[0].depth)

	assert.Equal(t, "json", got[1].format)
	assert.Equal(t, 3, got[1].records)

	assert.Equal(t, "csv", got[2].format)
	assert.Equal(t, 1, got[2].records)
	assert.Equal(t, 2, got[2].depth)

	var unsupported *interfaces.UnsupportedFormatError
	assert.True(t, errors.As(got[3].err, &unsupported))
}

// collectOpen drains a stream owned by OpenPath without closing it
func collectOpen(s interfaces.RecordStream) ([]value.Record, error) {
	var out []value.Record
	err := interfaces.Drain(context.Background(), s, func(rec value.Record) error {
		out = append(out, rec)
		return nil
	}, nil)
	return out, err
}

func TestOpenConcatenatesArchiveEntries(t *testing.T) {
	archive := zipBytes(t,
		entry{"first.csv", []byte(peopleCSV)},
		entry{"__MACOSX/._first.csv", []byte{0x00, 0x05}},
		entry{"second.jsonl", []byte("{\"id\":3}\n{\"id\":4}\n")},
	)
	path := writeFile(t, t.TempDir(), "bundle.zip", archive)
	o := newOrchestrator(t, nil)

	s, err := o.OpenLocation(context.Background(), path, "")
	require.NoError(t, err)
	records, err := collect(t, s)
	require.NoError(t, err)

	require.Len(t, records, 4)
	assert.Equal(t, "first.csv", records[0].Provenance.Entry)
	assert.Equal(t, "second.jsonl", records[3].Provenance.Entry)
	id, _ := records[3].Value.Get("id")
	assert.True(t, value.Equal(value.Int(4), id))
}

func TestCloseArchiveStreamEarly(t *testing.T) {
	archive := zipBytes(t,
		entry{"a.csv", []byte(peopleCSV)},
		entry{"b.csv", []byte(peopleCSV)},
	)
	path := writeFile(t, t.TempDir(), "bundle.zip", archive)
	o := newOrchestrator(t, nil)

	s, err := o.OpenLocation(context.Background(), path, "")
	require.NoError(t, err)
	_, err = s.Next(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestArchiveNestingLimit(t *testing.T) {
	data := []byte(peopleCSV)
	for i := 0; i < 3; i++ {
		data = zipBytes(t, entry{"layer.zip", data})
	}
	path := writeFile(t, t.TempDir(), "deep.zip", data)

	opts := interfaces.DefaultOptions()
	opts.MaxNestingDepth = 2
	o := newOrchestrator(t, opts)

	var failures []error
	err := o.OpenPath(context.Background(), path, func(p *core.Pipeline) error {
		if p.Err != nil {
			failures = append(failures, p.Err)
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], interfaces.ErrNestingTooDeep)
}

func TestWorkbookIsNotExpanded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "id"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", 7))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	o := newOrchestrator(t, nil)
	var formats []string
	err := o.OpenPath(context.Background(), path, func(p *core.Pipeline) error {
		require.NoError(t, p.Err)
		formats = append(formats, p.Format)
		records, err := collectOpen(p.Stream)
		require.NoError(t, err)
		assert.Len(t, records, 1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"excel"}, formats)
}

func scanFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "people.csv", []byte(peopleCSV))
	writeFile(t, dir, "mixed.json", []byte(`[{"a":1},{"a":"x","b":true}]`))
	writeFile(t, dir, "events.jsonl", []byte("{\"id\":1,\"tags\":[\"x\"]}\nnot json\n{\"id\":2}\n"))
	writeFile(t, dir, "sub/config.yaml", []byte("name: reader\nworkers: 4\n"))
	writeFile(t, dir, "sub/people.csv.gz", gzipBytes(t, []byte(peopleCSV)))
	writeFile(t, dir, "broken.json", []byte(`[{"a":1},{"a":`))
	writeFile(t, dir, ".hidden.csv", []byte("z\n1\n"))
	return dir
}

func TestScanMergeMatchesSequentialInference(t *testing.T) {
	dir := scanFixture(t)
	opts := interfaces.DefaultOptions()
	opts.Workers = 3
	o := newOrchestrator(t, opts)
	reporter := core.NewCollectingReporter()

	result, err := core.NewScanner(o, reporter).Scan(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, result.Files, 6)
	assert.NotEmpty(t, result.RunID)

	sequential := inference.NewEngine(opts, nil)
	for _, f := range result.Files {
		s, err := o.OpenLocation(context.Background(), f.Location, "")
		require.NoError(t, err)
		_ = sequential.Consume(context.Background(), s)
		require.NoError(t, s.Close())
	}
	assert.True(t, inference.Equal(sequential.Result(), result.Schema))

	byName := map[string]core.FileResult{}
	for _, f := range result.Files {
		byName[filepath.Base(f.Location)] = f
	}
	broken := byName["broken.json"]
	assert.True(t, broken.Failed())
	assert.ErrorIs(t, broken.Err, interfaces.ErrTruncated)
	assert.Equal(t, int64(1), broken.Records)
	assert.Equal(t, int64(1), byName["events.jsonl"].RecordErrors)
	assert.Equal(t, "yaml", byName["config.yaml"].Format)
	assert.NotContains(t, byName, ".hidden.csv")

	assert.Equal(t, int64(6), result.Stats.Files)
	assert.Equal(t, int64(1), result.Stats.Failures)
	assert.Equal(t, int64(1), result.Stats.RecordErrors)
	assert.Equal(t, int64(2+2+2+1+2+1), result.Stats.Records)
	assert.Equal(t, 6, reporter.Started())
	assert.Len(t, reporter.Finished(), 6)
}

func TestScanSingleFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "people.csv", []byte(peopleCSV))
	o := newOrchestrator(t, nil)

	result, err := core.NewScanner(o, nil).Scan(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, result.Files, 1)
	assert.Equal(t, "csv", result.Files[0].Format)
	assert.Equal(t, int64(2), result.Schema.Count)
}

func TestScanCancelled(t *testing.T) {
	dir := scanFixture(t)
	o := newOrchestrator(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := core.NewScanner(o, nil).Scan(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanMissingRoot(t *testing.T) {
	o := newOrchestrator(t, nil)
	_, err := core.NewScanner(o, nil).Scan(context.Background(), filepath.Join(t.TempDir(), "missing"))
	var se *interfaces.SourceError
	assert.True(t, errors.As(err, &se))
}

func TestScanStrictConflictIsRecorded(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "data.csv", []byte("PAR1 not really parquet"))
	writeFile(t, dir, "ok.csv", []byte(peopleCSV))
	opts := interfaces.DefaultOptions()
	opts.Precedence = interfaces.PrecedenceStrict
	o := newOrchestrator(t, opts)

	result, err := core.NewScanner(o, nil).Scan(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, result.Files, 2)

	var fe *interfaces.FormatError
	assert.True(t, errors.As(result.Files[0].Err, &fe))
	assert.False(t, result.Files[1].Failed())
	assert.Equal(t, int64(2), result.Schema.Count)
}

func TestScanObjectStorePrefix(t *testing.T) {
	client := new(mocks.ObjectClient)
	ch := make(chan minio.ObjectInfo, 2)
	ch <- minio.ObjectInfo{Key: "raw/a.csv"}
	ch <- minio.ObjectInfo{Key: "raw/b.jsonl"}
	close(ch)
	client.On("ListObjects", mock.Anything, "data", mock.Anything).Return((<-chan minio.ObjectInfo)(ch))

	objects := map[string]string{
		"raw/a.csv":   peopleCSV,
		"raw/b.jsonl": "{\"id\":1}\n",
	}
	for key, body := range objects {
		client.On("StatObject", mock.Anything, "data", key, mock.Anything).
			Return(minio.ObjectInfo{Key: key, Size: int64(len(body))}, nil)
		client.On("GetObject", mock.Anything, "data", key, mock.Anything).
			Return(io.NopCloser(bytes.NewReader([]byte(body))), nil)
	}

	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	o, err := core.NewOrchestrator(nil, logger)
	require.NoError(t, err)
	o.WithObjectStore(source.NewObjectStore(client))

	result, err := core.NewScanner(o, nil).Scan(context.Background(), "s3://data/raw/")
	require.NoError(t, err)
	require.Len(t, result.Files, 2)
	assert.Equal(t, "s3://data/raw/a.csv", result.Files[0].Location)
	assert.Equal(t, "jsonl", result.Files[1].Format)
	assert.Equal(t, int64(3), result.Stats.Records)
	client.AssertExpectations(t)
}

func TestLoggerReporterReportsFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	r := core.NewLoggerReporter(logger)

	r.OnFileFinished(&core.FileResult{Location: "a.csv", Format: "csv", Records: 2})
	r.OnFileFinished(&core.FileResult{Location: "b.json", Err: interfaces.ErrTruncated})

	require.Len(t, hook.AllEntries(), 2)
	assert.Equal(t, logrus.InfoLevel, hook.AllEntries()[0].Level)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "b.json", hook.LastEntry().Data["source"])
}
