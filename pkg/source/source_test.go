/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: source_test.go
Description: Tests for the byte source layer: magic sniffing, compression
unwrapping, zip expansion in archive order, nesting limits, spooling and the
object-store source.
*/

package source_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/kleascm/akaylee-reader/pkg/source"
	"github.com/kleascm/akaylee-reader/pkg/source/mocks"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zipBytes(t *testing.T, files map[string][]byte, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range order {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write(files[name])
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0644))
	return p
}

func TestSniff(t *testing.T) {
	cases := []struct {
		name   string
		prefix []byte
		want   source.Kind
	}{
		{"gzip", []byte{0x1f, 0x8b, 0x08}, source.KindGzip},
		{"zstd", []byte{0x28, 0xb5, 0x2f, 0xfd, 0x00}, source.KindZstd},
		{"xz", []byte{0xfd, '7', 'z', 'X', 'Z', 0x00, 0x00}, source.KindXz},
		{"bzip2", []byte("BZh91AY&SY"), source.KindBzip2},
		{"zip", []byte("PK\x03\x04rest"), source.KindZip},
		{"parquet", []byte("PAR1\x15\x04"), source.KindParquet},
		{"sqlite", []byte("SQLite format 3\x00\x10\x00"), source.KindSQLite},
		{"pdf", []byte("%PDF-1.7\n"), source.KindPDF},
		{"png", []byte("\x89PNG\r\n\x1a\n\x00\x00"), source.KindImage},
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe1}, source.KindImage},
		{"webp", []byte("RIFF\x10\x00\x00\x00WEBPVP8 "), source.KindImage},
		{"json array", []byte("  [{\"a\":1}]"), source.KindJSON},
		{"json object", []byte("{\"a\": {\n \"b\": 1}}"), source.KindJSON},
		{"jsonl", []byte("{\"a\":1}\n{\"a\":2}\n"), source.KindJSONL},
		{"xml", []byte("<?xml version=\"1.0\"?><root/>"), source.KindXML},
		{"html", []byte("<!DOCTYPE html><html></html>"), source.KindHTML},
		{"yaml", []byte("---\na: 1\n"), source.KindYAML},
		{"csv is plain text", []byte("id,name\n1,a\n"), source.KindText},
		{"binary", []byte{0x00, 0x01, 0x02, 0x03, 0x04}, source.KindUnknown},
		{"empty", nil, source.KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, source.Sniff(tc.prefix))
		})
	}
}

func TestOpenFileRejectsDirectory(t *testing.T) {
	_, err := source.OpenFile(t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrIsDirectory)

	var se *interfaces.SourceError
	assert.True(t, errors.As(err, &se))
}

func TestOpenFileMissing(t *testing.T) {
	_, err := source.OpenFile(filepath.Join(t.TempDir(), "nope.csv"))
	var se *interfaces.SourceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "stat", se.Op)
}

func TestResolveUnwrapsCompressionLayers(t *testing.T) {
	payload := []byte("id,name\n1,Alice\n")

	var zbuf bytes.Buffer
	zw, err := zstd.NewWriter(&zbuf)
	require.NoError(t, err)
	_, err = zw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	var xbuf bytes.Buffer
	xw, err := xz.NewWriter(&xbuf)
	require.NoError(t, err)
	_, err = xw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, xw.Close())

	cases := map[string][]byte{
		"data.csv.gz":  gzipBytes(t, payload),
		"data.csv.zst": zbuf.Bytes(),
		"data.csv.xz":  xbuf.Bytes(),
		// two gzip layers
		"data.csv.gz.gz": gzipBytes(t, gzipBytes(t, payload)),
	}

	r := source.NewResolver(interfaces.DefaultOptions(), nil)
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			src, err := source.OpenFile(writeFile(t, name, data))
			require.NoError(t, err)

			inner, kind, err := r.Resolve(context.Background(), src)
			require.NoError(t, err)
			defer inner.Close()

			assert.Equal(t, source.KindText, kind)
			assert.Equal(t, "data.csv", inner.Name)
			assert.Equal(t, ".csv", inner.Ext())

			got, err := io.ReadAll(inner)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestResolveNestingLimit(t *testing.T) {
	data := []byte("hello\n")
	for i := 0; i < 4; i++ {
		data = gzipBytes(t, data)
	}

	opts := interfaces.DefaultOptions()
	opts.MaxNestingDepth = 3
	r := source.NewResolver(opts, nil)

	src, err := source.OpenFile(writeFile(t, "deep.gz", data))
	require.NoError(t, err)

	_, _, err = r.Resolve(context.Background(), src)
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrNestingTooDeep)

	var se *interfaces.SourceError
	assert.True(t, errors.As(err, &se))
}

func TestResolveTruncatedGzip(t *testing.T) {
	full := gzipBytes(t, bytes.Repeat([]byte("row,of,data\n"), 2000))
	r := source.NewResolver(interfaces.DefaultOptions(), nil)

	src := source.FromReader("cut.csv.gz", bytes.NewReader(full[:len(full)/2]))
	inner, _, err := r.Resolve(context.Background(), src)
	require.NoError(t, err)
	defer inner.Close()

	_, err = io.ReadAll(inner)
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrTruncated)
}

func TestArchiveEntriesInOrder(t *testing.T) {
	files := map[string][]byte{
		"b.csv":             []byte("x\n1\n"),
		"a.json":            []byte(`[1,2]`),
		"__MACOSX/._a.json": []byte("junk"),
		"nested/c.txt.gz":   gzipBytes(t, []byte("line\n")),
	}
	order := []string{"b.csv", "a.json", "__MACOSX/._a.json", "nested/c.txt.gz"}

	r := source.NewResolver(interfaces.DefaultOptions(), nil)
	bundle := writeFile(t, "bundle.zip", zipBytes(t, files, order))
	src, err := source.OpenFile(bundle)
	require.NoError(t, err)

	inner, kind, err := r.Resolve(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, source.KindZip, kind)

	arc, err := r.OpenArchive(context.Background(), inner)
	require.NoError(t, err)
	defer arc.Close()

	assert.Equal(t, []string{"b.csv", "a.json", "nested/c.txt.gz"}, arc.Names())
	assert.False(t, arc.IsWorkbook())

	entries, err := r.Entries(arc)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "b.csv", entries[0].Entry)
	assert.Equal(t, 1, entries[0].Depth)
	got, err := io.ReadAll(entries[0])
	require.NoError(t, err)
	assert.Equal(t, files["b.csv"], got)

	// members resolve recursively, compression inside the archive included
	last, lastKind, err := r.Resolve(context.Background(), entries[2])
	require.NoError(t, err)
	defer last.Close()
	assert.Equal(t, source.KindText, lastKind)
	assert.Equal(t, "c.txt", last.Name)
	assert.Equal(t, 2, last.Depth)
	assert.Equal(t, bundle+":nested/c.txt.gz", last.Location())
}

func TestOpenArchiveCorruptDirectory(t *testing.T) {
	data := zipBytes(t, map[string][]byte{"a.txt": []byte("x")}, []string{"a.txt"})
	// chop the end-of-central-directory record
	data = data[:len(data)-10]

	r := source.NewResolver(interfaces.DefaultOptions(), nil)
	src := source.FromReader("broken.zip", bytes.NewReader(data))
	defer src.Close()

	_, err := r.OpenArchive(context.Background(), src)
	var fe *interfaces.FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "zip", fe.Format)
}

func TestMaterializeSpoolsAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	src := source.FromReader("stream.bin", bytes.NewReader([]byte("0123456789")))

	prefix, err := src.Peek(4)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123"), prefix)

	f, size, err := src.Materialize(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)

	buf := make([]byte, 3)
	_, err = f.ReadAt(buf, 7)
	require.NoError(t, err)
	assert.Equal(t, []byte("789"), buf)

	spooled, err := filepath.Glob(filepath.Join(dir, "akaylee-spool-*"))
	require.NoError(t, err)
	require.Len(t, spooled, 1)

	require.NoError(t, src.Close())
	_, err = os.Stat(spooled[0])
	assert.True(t, os.IsNotExist(err))
}

func TestMaterializePlainFileInPlace(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, "plain.db", []byte("abcdef"))
	src, err := source.OpenFile(p)
	require.NoError(t, err)
	defer src.Close()

	f, size, err := src.Materialize(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(6), size)
	assert.Equal(t, p, f.Name())

	spooled, _ := filepath.Glob(filepath.Join(dir, "akaylee-spool-*"))
	assert.Empty(t, spooled)
}

func TestParseLocation(t *testing.T) {
	bucket, key, err := source.ParseLocation("s3://data/raw/2024/a.csv")
	require.NoError(t, err)
	assert.Equal(t, "data", bucket)
	assert.Equal(t, "raw/2024/a.csv", key)

	_, _, err = source.ParseLocation("/tmp/a.csv")
	assert.Error(t, err)
	_, _, err = source.ParseLocation("s3:///a.csv")
	assert.Error(t, err)
}

func TestObjectStoreOpen(t *testing.T) {
	client := new(mocks.ObjectClient)
	body := io.NopCloser(bytes.NewReader([]byte("a,b\n1,2\n")))

	client.On("StatObject", mock.Anything, "data", "raw/a.csv", mock.Anything).
		Return(minio.ObjectInfo{Key: "raw/a.csv", Size: 8}, nil)
	client.On("GetObject", mock.Anything, "data", "raw/a.csv", mock.Anything).
		Return(body, nil)

	store := source.NewObjectStore(client)
	src, err := store.Open(context.Background(), "s3://data/raw/a.csv")
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, "a.csv", src.Name)
	assert.Equal(t, int64(8), src.Size)
	assert.Equal(t, "s3://data/raw/a.csv", src.Location())

	got, err := io.ReadAll(src)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(got))
	client.AssertExpectations(t)
}

func TestObjectStoreOpenStatFailure(t *testing.T) {
	client := new(mocks.ObjectClient)
	client.On("StatObject", mock.Anything, "data", "missing.csv", mock.Anything).
		Return(minio.ObjectInfo{}, errors.New("not found"))

	_, err := source.NewObjectStore(client).Open(context.Background(), "s3://data/missing.csv")
	var se *interfaces.SourceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "stat", se.Op)
}

func TestObjectStoreList(t *testing.T) {
	client := new(mocks.ObjectClient)
	ch := make(chan minio.ObjectInfo, 3)
	ch <- minio.ObjectInfo{Key: "raw/a.csv"}
	ch <- minio.ObjectInfo{Key: "raw/sub/"}
	ch <- minio.ObjectInfo{Key: "raw/sub/b.json"}
	close(ch)

	client.On("ListObjects", mock.Anything, "data", mock.MatchedBy(func(o minio.ListObjectsOptions) bool {
		return o.Prefix == "raw/" && o.Recursive
	})).Return((<-chan minio.ObjectInfo)(ch))

	locs, err := source.NewObjectStore(client).List(context.Background(), "s3://data/raw/")
	require.NoError(t, err)
	assert.Equal(t, []string{"s3://data/raw/a.csv", "s3://data/raw/sub/b.json"}, locs)
}
