/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: report_writer_test.go
Description: Tests for timestamped report files.
*/

package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReport(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteReport(dir, "scan", "0123456789abcdef", map[string]interface{}{"files": 3})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "scan"), filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, "_scan_01234567.json"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]int
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, 3, doc["files"])
}

func TestWriteReportWithoutRunID(t *testing.T) {
	path, err := WriteReport(t.TempDir(), "schema", "", []string{"a"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_schema.json"))
}
