/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: analyzer.go
Description: Log analyzer for Akaylee Reader. Parses the lines written by every log
format (JSON, logfmt text with or without colors, custom and pipeline) back into
level, message and fields, and tallies extraction events: pipelines per format,
records, failures, skipped records, encoding fallbacks and scans. Rotated logs are
read too, gzip-compressed ones included.
*/

package logging

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

// maxFailedSources bounds the failed source list kept by an analysis
const maxFailedSources = 20

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*m`)

var levelNames = map[string]string{
	"DEBU": "debug", "DEBUG": "debug",
	"INFO": "info",
	"WARN": "warning", "WARNING": "warning",
	"ERRO": "error", "ERROR": "error",
	"FATA": "fatal", "FATAL": "fatal",
	"PANI": "fatal", "PANIC": "fatal",
}

// LogAnalyzer tallies extraction events in log files
type LogAnalyzer struct {
	logDir string
}

// NewLogAnalyzer creates a new log analyzer
func NewLogAnalyzer(logDir string) *LogAnalyzer {
	return &LogAnalyzer{logDir: logDir}
}

// FormatTally counts pipelines of one format
type FormatTally struct {
	Pipelines int64 `json:"pipelines"`
	Failures  int64 `json:"failures"`
	Records   int64 `json:"records"`
}

// LogAnalysis holds the results of log analysis
type LogAnalysis struct {
	StartTime        time.Time `json:"start_time"`
	LogFiles         int       `json:"log_files"`
	TotalLines       int64     `json:"total_lines"`
	DebugCount       int64     `json:"debug_count"`
	InfoCount        int64     `json:"info_count"`
	WarningCount     int64     `json:"warning_count"`
	ErrorCount       int64     `json:"error_count"`
	FatalCount       int64     `json:"fatal_count"`
	PipelineCount    int64     `json:"pipeline_count"`
	FailureCount     int64     `json:"failure_count"`
	RecordCount      int64     `json:"record_count"`
	RecordErrorCount int64     `json:"record_error_count"`
	FallbackCount    int64     `json:"fallback_count"`
	ScanCount        int64     `json:"scan_count"`

	Formats           map[string]*FormatTally `json:"formats"`
	FallbackEncodings map[string]int64        `json:"fallback_encodings"`
	FailedSources     []string                `json:"failed_sources"`
}

// AnalyzeLogs analyzes every log file in the directory, rotated ones included
func (la *LogAnalyzer) AnalyzeLogs() (*LogAnalysis, error) {
	files, err := NewLogManager(la.logDir, 0, 0, false).list(allPattern)
	if err != nil {
		return nil, err
	}

	analysis := &LogAnalysis{
		StartTime:         time.Now(),
		LogFiles:          len(files),
		Formats:           make(map[string]*FormatTally),
		FallbackEncodings: make(map[string]int64),
	}
	for _, f := range files {
		if err := la.analyzeFile(f.path, analysis); err != nil {
			return nil, fmt.Errorf("failed to analyze file %s: %w", f.path, err)
		}
	}
	return analysis, nil
}

func (la *LogAnalyzer) analyzeFile(path string, analysis *LogAnalysis) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var r io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(file)
		if err != nil {
			return err
		}
		defer zr.Close()
		r = zr
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		analysis.add(parseLogLine(scanner.Text()))
	}
	return scanner.Err()
}

// logEvent is one parsed log line
type logEvent struct {
	level  string
	msg    string
	fields map[string]string
}

// parseLogLine recovers level, message and fields from any formatter's output
func parseLogLine(line string) logEvent {
	line = strings.TrimSpace(ansiEscape.ReplaceAllString(line, ""))
	if strings.HasPrefix(line, "{") {
		if ev, ok := parseJSONLine(line); ok {
			return ev
		}
	}

	ev := logEvent{fields: make(map[string]string)}
	var words []string
	for rest := line; rest != ""; {
		var token string
		token, rest = nextToken(rest)
		if token == "" {
			continue
		}
		if key, val, ok := splitField(token); ok {
			ev.fields[key] = val
			continue
		}
		words = append(words, token)
	}

	ev.level = normalizeLevel(ev.fields["level"])
	if ev.level == "" {
		// the level sits in the header, after at most a timestamp
		for i := 0; i < len(words) && i < 4; i++ {
			if lvl := normalizeLevel(words[i]); lvl != "" {
				ev.level = lvl
				words = words[i+1:]
				break
			}
		}
	}
	ev.msg = ev.fields["msg"]
	if ev.msg == "" {
		ev.msg = strings.Join(words, " ")
	}
	return ev
}

func parseJSONLine(line string) (logEvent, bool) {
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return logEvent{}, false
	}
	ev := logEvent{fields: make(map[string]string, len(raw))}
	for k, v := range raw {
		ev.fields[k] = fmt.Sprint(v)
	}
	ev.level = normalizeLevel(ev.fields["level"])
	ev.msg = ev.fields["msg"]
	return ev, true
}

// nextToken splits off one space-separated token, keeping quoted values whole
func nextToken(s string) (string, string) {
	s = strings.TrimLeft(s, " \t")
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if inQuote {
				i++
			}
		case '"':
			inQuote = !inQuote
		case ' ', '\t':
			if !inQuote {
				return s[:i], s[i+1:]
			}
		}
	}
	return s, ""
}

// splitField parses key=value and key="quoted value" tokens
func splitField(token string) (string, string, bool) {
	eq := strings.IndexByte(token, '=')
	if eq <= 0 || strings.ContainsAny(token[:eq], `"[`) {
		return "", "", false
	}
	key, val := token[:eq], token[eq+1:]
	if strings.HasPrefix(val, `"`) {
		if unquoted, err := strconv.Unquote(val); err == nil {
			val = unquoted
		}
	}
	return key, val, true
}

// normalizeLevel maps level spellings such as INFO, WARN or ERRO[...] to
// logrus level names
func normalizeLevel(word string) string {
	word = strings.ToUpper(word)
	if i := strings.IndexByte(word, '['); i > 0 {
		word = word[:i]
	}
	return levelNames[word]
}

// add folds one event into the analysis
func (la *LogAnalysis) add(ev logEvent) {
	la.TotalLines++
	switch ev.level {
	case "debug":
		la.DebugCount++
	case "info":
		la.InfoCount++
	case "warning":
		la.WarningCount++
	case "error":
		la.ErrorCount++
	case "fatal":
		la.FatalCount++
	}

	switch {
	case strings.Contains(ev.msg, "Pipeline failed"):
		tally := la.format(ev.fields["format"])
		tally.Pipelines++
		tally.Failures++
		la.PipelineCount++
		la.FailureCount++
		if source := ev.fields["source"]; source != "" && len(la.FailedSources) < maxFailedSources {
			la.FailedSources = append(la.FailedSources, source)
		}
	case strings.Contains(ev.msg, "Pipeline finished"):
		records := fieldInt(ev.fields, "records")
		tally := la.format(ev.fields["format"])
		tally.Pipelines++
		tally.Records += records
		la.PipelineCount++
		la.RecordCount += records
	case strings.Contains(ev.msg, "Record skipped"):
		la.RecordErrorCount++
	case strings.Contains(ev.msg, "Encoding fallback"):
		detected := ev.fields["detected"]
		if detected == "" {
			detected = "unknown"
		}
		la.FallbackCount++
		la.FallbackEncodings[detected]++
	case strings.Contains(ev.msg, "Scan summary"):
		la.ScanCount++
	}
}

func (la *LogAnalysis) format(name string) *FormatTally {
	if name == "" {
		name = "unknown"
	}
	tally, ok := la.Formats[name]
	if !ok {
		tally = &FormatTally{}
		la.Formats[name] = tally
	}
	return tally
}

func fieldInt(fields map[string]string, key string) int64 {
	raw := fields[key]
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return int64(f)
	}
	return 0
}

// GetLogSummary returns a summary of the log analysis
func (la *LogAnalysis) GetLogSummary() string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Log Analysis Summary:\n")
	fmt.Fprintf(&b, "  Files: %d\n", la.LogFiles)
	fmt.Fprintf(&b, "  Total Lines: %d\n", la.TotalLines)
	fmt.Fprintf(&b, "  Debug: %d, Info: %d, Warning: %d, Error: %d, Fatal: %d\n",
		la.DebugCount, la.InfoCount, la.WarningCount, la.ErrorCount, la.FatalCount)
	fmt.Fprintf(&b, "  Pipelines: %d\n", la.PipelineCount)
	fmt.Fprintf(&b, "  Failed Pipelines: %d\n", la.FailureCount)
	fmt.Fprintf(&b, "  Records: %d\n", la.RecordCount)
	fmt.Fprintf(&b, "  Skipped Records: %d\n", la.RecordErrorCount)
	fmt.Fprintf(&b, "  Encoding Fallbacks: %d\n", la.FallbackCount)
	fmt.Fprintf(&b, "  Scans: %d", la.ScanCount)

	if len(la.Formats) > 0 {
		fmt.Fprintf(&b, "\n  By format:")
		for _, name := range sortedKeys(la.Formats) {
			t := la.Formats[name]
			fmt.Fprintf(&b, "\n    %s: %d pipeline(s), %d failed, %d records", name, t.Pipelines, t.Failures, t.Records)
		}
	}
	if len(la.FallbackEncodings) > 0 {
		fmt.Fprintf(&b, "\n  Fallback encodings:")
		for _, name := range sortedKeys(la.FallbackEncodings) {
			fmt.Fprintf(&b, "\n    %s: %d", name, la.FallbackEncodings[name])
		}
	}
	if len(la.FailedSources) > 0 {
		fmt.Fprintf(&b, "\n  Failed sources:")
		for _, source := range la.FailedSources {
			fmt.Fprintf(&b, "\n    %s", source)
		}
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
