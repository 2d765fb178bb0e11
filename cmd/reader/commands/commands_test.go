/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: commands_test.go
Description: Tests for option loading and record/schema output rendering.
*/

package commands

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kleascm/akaylee-reader/pkg/core"
	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/kleascm/akaylee-reader/pkg/logging"
	"github.com/kleascm/akaylee-reader/pkg/value"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOptionsDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	opts, err := LoadOptions(nil)
	require.NoError(t, err)
	def := interfaces.DefaultOptions()
	assert.Equal(t, def.SampleSize, opts.SampleSize)
	assert.Equal(t, def.MaxNestingDepth, opts.MaxNestingDepth)
	assert.Equal(t, interfaces.PrecedenceContent, opts.Precedence)
	assert.Equal(t, ',', opts.Delimiter)
}

func TestLoadOptionsFromConfigAndEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "reader.yaml")
	require.NoError(t, os.WriteFile(path, []byte("precedence: strict\nrecord_cap: 5\ndelimiter: tab\nmax_depth: 3\n"), 0o644))
	viper.Set("config", path)
	t.Setenv("AKAYLEE_READER_WORKERS", "3")

	require.NoError(t, LoadConfig())
	opts, err := LoadOptions(nil)
	require.NoError(t, err)

	assert.Equal(t, interfaces.PrecedenceStrict, opts.Precedence)
	assert.Equal(t, int64(5), opts.RecordCap)
	assert.Equal(t, '\t', opts.Delimiter)
	assert.Equal(t, 3, opts.MaxNestingDepth)
	assert.Equal(t, 3, opts.Workers)
}

func TestLoadOptionsRejectsInvalid(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("precedence", "loudest")
	_, err := LoadOptions(nil)
	assert.Error(t, err)

	viper.Reset()
	viper.Set("delimiter", "ab")
	_, err = LoadOptions(nil)
	assert.Error(t, err)

	viper.Reset()
	viper.Set("sample_size", 1<<20)
	_, err = LoadOptions(nil)
	assert.Error(t, err)
}

func TestParseDelimiter(t *testing.T) {
	cases := map[string]rune{"tab": '\t', `\t`: '\t', "pipe": '|', ";": ';', "é": 'é'}
	for in, want := range cases {
		got, err := parseDelimiter(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestLoadObjectStoreWithoutEndpoint(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	store, err := LoadObjectStore()
	require.NoError(t, err)
	assert.Nil(t, store)
}

func sampleRecord() value.Record {
	return value.Record{
		Value: value.Mapping(
			value.Pair{Key: "zeta", Value: value.Int(1)},
			value.Pair{Key: "alpha", Value: value.Sequence(value.Bool(true), value.Null())},
			value.Pair{Key: "ratio", Value: value.Float(math.Inf(1))},
		),
		Provenance: value.Provenance{Source: "a.json", Row: 2},
	}
}

func TestJSONLinesKeepMappingOrder(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewRecordWriter(&buf, OutputJSON, false)
	require.NoError(t, err)

	require.NoError(t, w.Write(sampleRecord()))
	require.NoError(t, w.Write(sampleRecord()))
	require.NoError(t, w.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `{"zeta":1,"alpha":[true,null],"ratio":"+Inf"}`, lines[0])
}

func TestJSONLinesWithProvenance(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewRecordWriter(&buf, OutputJSON, true)
	require.NoError(t, err)
	require.NoError(t, w.Write(sampleRecord()))

	assert.Contains(t, buf.String(), `"provenance":{"source":"a.json","row":2}`)
	assert.Contains(t, buf.String(), `"value":{"zeta":1`)
}

func TestYAMLWriterKeepsMappingOrder(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewRecordWriter(&buf, OutputYAML, false)
	require.NoError(t, err)
	require.NoError(t, w.Write(sampleRecord()))
	require.NoError(t, w.Close())

	out := buf.String()
	assert.Less(t, strings.Index(out, "zeta"), strings.Index(out, "alpha"))
	assert.Contains(t, out, "ratio: .inf")
	assert.Contains(t, out, "- true")
}

func TestUnsupportedOutput(t *testing.T) {
	_, err := NewRecordWriter(&bytes.Buffer{}, "csv", false)
	assert.Error(t, err)
	assert.Error(t, WriteDocument(&bytes.Buffer{}, "csv", map[string]interface{}{}))
}

func TestWriteDocumentYAML(t *testing.T) {
	var buf bytes.Buffer
	doc := map[string]interface{}{"types": []string{"integer"}, "nullable": false}
	require.NoError(t, WriteDocument(&buf, OutputYAML, doc))
	assert.Contains(t, buf.String(), "nullable: false")
	assert.Contains(t, buf.String(), "- integer")
}

func TestListFormats(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	require.NoError(t, ListFormats(cmd, nil))
	assert.Contains(t, buf.String(), "csv (text)")
	assert.Contains(t, buf.String(), "parquet (binary)")

	buf.Reset()
	viper.Set("formats_json", true)
	require.NoError(t, ListFormats(cmd, nil))
	assert.Contains(t, buf.String(), `"tag": "excel"`)
}

func TestAnalyzeLogs(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	content := "INFO Pipeline finished source=a.csv\nWARN Pipeline failed source=b.json\nINFO Scan summary files=2\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "akaylee-reader_2024-01-01_00-00-00.log"), []byte(content), 0o644))

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	require.NoError(t, AnalyzeLogs(cmd, []string{dir}))

	out := buf.String()
	assert.Contains(t, out, "Pipelines: 2")
	assert.Contains(t, out, "Failed Pipelines: 1")
	assert.Contains(t, out, "Scans: 1")
	assert.Contains(t, out, "1 file(s)")
}

func quietLogger(t *testing.T) *logging.Logger {
	t.Helper()
	config := logging.DefaultLoggerConfig()
	config.Quiet = true
	logger, err := logging.NewLogger(config)
	require.NoError(t, err)
	t.Cleanup(func() { logger.Close() })
	return logger
}

func TestReadContinuesPastFailedInputs(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.json")
	good := filepath.Join(dir, "good.csv")
	require.NoError(t, os.WriteFile(broken, []byte(`[{"a":1},{"a":`), 0o644))
	require.NoError(t, os.WriteFile(good, []byte("id,name\n1,x\n2,y\n"), 0o644))
	missing := filepath.Join(dir, "missing.csv")

	o, err := core.NewOrchestrator(nil, nil)
	require.NoError(t, err)
	var buf bytes.Buffer
	w, err := NewRecordWriter(&buf, OutputJSON, false)
	require.NoError(t, err)

	err = readLocations(context.Background(), o, quietLogger(t), w, []string{broken, missing, good}, "", 0)
	require.NoError(t, w.Close())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 input(s) failed")
	assert.ErrorIs(t, err, interfaces.ErrTruncated)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{`{"a":1}`, `{"id":1,"name":"x"}`, `{"id":2,"name":"y"}`}, lines)
}

func TestReadLimitStopsAcrossInputs(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.csv")
	second := filepath.Join(dir, "b.csv")
	require.NoError(t, os.WriteFile(first, []byte("n\n1\n2\n"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("n\n3\n4\n"), 0o644))

	o, err := core.NewOrchestrator(nil, nil)
	require.NoError(t, err)
	var buf bytes.Buffer
	w, err := NewRecordWriter(&buf, OutputJSON, false)
	require.NoError(t, err)

	require.NoError(t, readLocations(context.Background(), o, quietLogger(t), w, []string{first, second}, "", 3))
	require.NoError(t, w.Close())
	assert.Equal(t, 3, strings.Count(buf.String(), "\n"))
}

type failingWriter struct{ err error }

func (f failingWriter) Write(value.Record) error { return f.err }
func (f failingWriter) Close() error { return nil }

func TestReadWriteErrorAborts(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.csv")
	require.NoError(t, os.WriteFile(first, []byte("n\n1\n"), 0o644))

	o, err := core.NewOrchestrator(nil, nil)
	require.NoError(t, err)
	closed := errors.New("stdout closed")
	err = readLocations(context.Background(), o, quietLogger(t), failingWriter{err: closed}, []string{first, first}, "", 0)
	require.ErrorIs(t, err, closed)
	assert.NotContains(t, err.Error(), "input(s) failed")
}
