/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: formatter.go
Description: Custom log formatters for Akaylee Reader. Provides readable, colored
console output with sorted structured fields, and a pipeline-aware variant that tags
extraction events with a short prefix.
*/

package logging

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// CustomFormatter provides readable, structured logging output
type CustomFormatter struct {
	Timestamp bool
	Caller    bool
	Colors    bool
}

// Format formats a log entry
func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var output strings.Builder
	f.writeHeader(&output, entry, "")
	output.WriteString(entry.Message)

	if len(entry.Data) > 0 {
		output.WriteString(" ")
		output.WriteString(f.formatFields(entry.Data, f.formatValue))
	}

	output.WriteString("\n")
	return []byte(output.String()), nil
}

// writeHeader writes timestamp, level, optional prefix and caller
func (f *CustomFormatter) writeHeader(output *strings.Builder, entry *logrus.Entry, prefix string) {
	if f.Timestamp {
		timestamp := entry.Time.Format("2006-01-02 15:04:05.000")
		if f.Colors {
			output.WriteString(fmt.Sprintf("\033[36m%s\033[0m ", timestamp)) // Cyan
		} else {
			output.WriteString(timestamp + " ")
		}
	}

	level := strings.ToUpper(entry.Level.String())
	if f.Colors {
		output.WriteString(fmt.Sprintf("\033[%dm%s\033[0m ", f.getLevelColor(entry.Level), level))
	} else {
		output.WriteString(level + " ")
	}

	if prefix != "" {
		if f.Colors {
			output.WriteString(fmt.Sprintf("\033[35m[%s]\033[0m ", prefix)) // Magenta
		} else {
			output.WriteString("[" + prefix + "] ")
		}
	}

	if f.Caller && entry.HasCaller() {
		caller := fmt.Sprintf("%s:%d", entry.Caller.File, entry.Caller.Line)
		if f.Colors {
			output.WriteString(fmt.Sprintf("\033[33m[%s]\033[0m ", caller)) // Yellow
		} else {
			output.WriteString("[" + caller + "] ")
		}
	}
}

// getLevelColor returns the ANSI color code for a log level
func (f *CustomFormatter) getLevelColor(level logrus.Level) int {
	switch level {
	case logrus.DebugLevel, logrus.TraceLevel:
		return 37 // White
	case logrus.InfoLevel:
		return 32 // Green
	case logrus.WarnLevel:
		return 33 // Yellow
	case logrus.ErrorLevel:
		return 31 // Red
	case logrus.FatalLevel, logrus.PanicLevel:
		return 35 // Magenta
	default:
		return 37
	}
}

// formatFields renders fields in key order
func (f *CustomFormatter) formatFields(fields logrus.Fields, format func(string, interface{}) string) string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		formattedValue := format(key, fields[key])
		if f.Colors {
			parts = append(parts, fmt.Sprintf("\033[34m%s\033[0m=\033[32m%s\033[0m", key, formattedValue)) // Blue key, Green value
		} else {
			parts = append(parts, fmt.Sprintf("%s=%s", key, formattedValue))
		}
	}
	return strings.Join(parts, " ")
}

// formatValue formats a field value appropriately
func (f *CustomFormatter) formatValue(_ string, value interface{}) string {
	switch v := value.(type) {
	case time.Duration:
		return v.String()
	case time.Time:
		return v.Format("15:04:05.000")
	case string:
		if len(v) > 80 {
			return v[:80] + "..."
		}
		return v
	case []byte:
		if len(v) > 20 {
			return fmt.Sprintf("[%d bytes]", len(v))
		}
		return fmt.Sprintf("%x", v)
	case error:
		return v.Error()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// PipelineFormatter tags extraction events with a short prefix
type PipelineFormatter struct {
	CustomFormatter
}

// Format formats pipeline log entries with a prefix derived from the message
func (f *PipelineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var output strings.Builder
	f.writeHeader(&output, entry, f.getPrefix(entry.Message))
	output.WriteString(entry.Message)

	if len(entry.Data) > 0 {
		output.WriteString(" ")
		output.WriteString(f.formatFields(entry.Data, f.formatPipelineValue))
	}

	output.WriteString("\n")
	return []byte(output.String()), nil
}

// getPrefix returns a prefix based on the log message
func (f *PipelineFormatter) getPrefix(message string) string {
	switch {
	case strings.HasPrefix(message, "Pipeline"):
		return "PIPE"
	case strings.HasPrefix(message, "Record skipped"):
		return "RECORD"
	case strings.HasPrefix(message, "Encoding fallback"):
		return "CHARSET"
	case strings.HasPrefix(message, "Scan"), strings.HasPrefix(message, "Starting scan"):
		return "SCAN"
	case strings.Contains(message, "archive"), strings.Contains(message, "compression"):
		return "UNWRAP"
	default:
		return ""
	}
}

// formatPipelineValue shortens identifiers and renders rates
func (f *PipelineFormatter) formatPipelineValue(key string, value interface{}) string {
	switch key {
	case "run_id":
		if s, ok := value.(string); ok && len(s) > 8 {
			return s[:8] + "..."
		}
	case "records_per_sec":
		if r, ok := value.(float64); ok {
			return fmt.Sprintf("%.1f/sec", r)
		}
	case "confidence":
		if c, ok := value.(int); ok {
			return fmt.Sprintf("%d%%", c)
		}
	}
	return f.formatValue(key, value)
}
