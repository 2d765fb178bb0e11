/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: logger.go
Description: Logging system for Akaylee Reader. Provides structured logging with
timestamped files, multiple output formats and extraction-specific helpers. Console
output goes to stderr so records written to stdout stay clean.
*/

package logging

import (
	"errors"
	"fmt"
	"io"
	"log/syslog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/sirupsen/logrus"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warn"
	LogLevelError   LogLevel = "error"
	LogLevelFatal   LogLevel = "fatal"
)

// LogFormat represents the logging format
type LogFormat string

const (
	LogFormatJSON     LogFormat = "json"
	LogFormatText     LogFormat = "text"
	LogFormatCustom   LogFormat = "custom"
	LogFormatPipeline LogFormat = "pipeline"
)

// filePrefix names every log file written by the reader
const filePrefix = "akaylee-reader_"

// LoggerConfig holds the configuration for the logger
type LoggerConfig struct {
	Level     LogLevel  `json:"level" mapstructure:"level"`
	Format    LogFormat `json:"format" mapstructure:"format"`
	OutputDir string    `json:"output_dir" mapstructure:"output_dir"` // empty disables log files
	MaxFiles  int       `json:"max_files" mapstructure:"max_files"`
	MaxSize   int64     `json:"max_size" mapstructure:"max_size"` // in bytes
	Timestamp bool      `json:"timestamp" mapstructure:"timestamp"`
	Caller    bool      `json:"caller" mapstructure:"caller"`
	Colors    bool      `json:"colors" mapstructure:"colors"`
	Compress  bool      `json:"compress" mapstructure:"compress"`
	Quiet     bool      `json:"quiet" mapstructure:"quiet"` // no console output

	SyslogEnabled bool   `json:"syslog_enabled" mapstructure:"syslog_enabled"`
	SyslogNetwork string `json:"syslog_network" mapstructure:"syslog_network"`
	SyslogAddress string `json:"syslog_address" mapstructure:"syslog_address"`

	// Console overrides the console writer. Defaults to stderr.
	Console io.Writer `json:"-" mapstructure:"-"`
}

// DefaultLoggerConfig returns console-only text logging at info level
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:     LogLevelInfo,
		Format:    LogFormatText,
		MaxFiles:  10,
		MaxSize:   100 * 1024 * 1024, // 100MB
		Timestamp: true,
		Colors:    true,
	}
}

// Validate checks the LoggerConfig for invalid or missing values.
// Returns an error if the config is invalid, or nil if valid.
func (c *LoggerConfig) Validate() error {
	if c.OutputDir != "" {
		if c.MaxFiles <= 0 {
			return fmt.Errorf("max_files must be positive")
		}
		if c.MaxSize <= 0 {
			return fmt.Errorf("max_size must be positive")
		}
	}
	switch c.Format {
	case LogFormatJSON, LogFormatText, LogFormatCustom, LogFormatPipeline:
		// ok
	default:
		return fmt.Errorf("unsupported log format: %s", c.Format)
	}
	switch c.Level {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError, LogLevelFatal:
		// ok
	default:
		return fmt.Errorf("unsupported log level: %s", c.Level)
	}
	if c.SyslogEnabled && c.SyslogAddress == "" && c.SyslogNetwork != "" {
		return fmt.Errorf("syslog_address must be set when syslog_network is")
	}
	return nil
}

type logEntry struct {
	level  logrus.Level
	msg    string
	fields logrus.Fields
}

// Logger provides structured logging with an async queue for the
// convenience methods
type Logger struct {
	config     *LoggerConfig
	logger     *logrus.Logger
	fileHandle *os.File
	filePath   string
	startTime  time.Time

	logQueue  chan logEntry
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewLogger creates a new logger instance
func NewLogger(config *LoggerConfig) (*Logger, error) {
	if config == nil {
		config = DefaultLoggerConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logger config: %w", err)
	}

	l := &Logger{
		config:    config,
		logger:    logrus.New(),
		startTime: time.Now(),
		logQueue:  make(chan logEntry, 1024),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	if err := l.setup(); err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	go l.runLogQueue()

	return l, nil
}

// setup configures the logger with the given configuration
func (l *Logger) setup() error {
	level, err := logrus.ParseLevel(string(l.config.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.logger.SetLevel(level)
	l.logger.SetReportCaller(l.config.Caller)

	if err := l.setFormatter(); err != nil {
		return err
	}

	var writers []io.Writer
	if !l.config.Quiet {
		console := l.config.Console
		if console == nil {
			console = os.Stderr
		}
		writers = append(writers, console)
	}

	file, err := l.setupFileOutput()
	if err != nil {
		return err
	}
	if file != nil {
		writers = append(writers, file)
	}

	if l.config.SyslogEnabled {
		writer, err := syslog.Dial(l.config.SyslogNetwork, l.config.SyslogAddress, syslog.LOG_INFO|syslog.LOG_USER, "akaylee-reader")
		if err != nil {
			return fmt.Errorf("failed to connect to syslog: %w", err)
		}
		writers = append(writers, writer)
	}

	if len(writers) == 0 {
		l.logger.SetOutput(io.Discard)
	} else {
		l.logger.SetOutput(io.MultiWriter(writers...))
	}

	if l.filePath != "" {
		l.logger.WithFields(logrus.Fields{
			"start_time": l.startTime.Format(time.RFC3339),
			"log_file":   l.filePath,
			"level":      l.config.Level,
			"format":     l.config.Format,
		}).Debug("Akaylee Reader logging system initialized")
	}
	return nil
}

// setFormatter configures the log formatter
func (l *Logger) setFormatter() error {
	prettyCaller := func(f *runtime.Frame) (string, string) {
		return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
	}

	switch l.config.Format {
	case LogFormatJSON:
		l.logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: prettyCaller,
		})

	case LogFormatText:
		l.logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    l.config.Timestamp,
			TimestampFormat:  time.RFC3339,
			ForceColors:      l.config.Colors,
			DisableColors:    !l.config.Colors,
			CallerPrettyfier: prettyCaller,
		})

	case LogFormatCustom:
		l.logger.SetFormatter(&CustomFormatter{
			Timestamp: l.config.Timestamp,
			Caller:    l.config.Caller,
			Colors:    l.config.Colors,
		})

	case LogFormatPipeline:
		l.logger.SetFormatter(&PipelineFormatter{CustomFormatter{
			Timestamp: l.config.Timestamp,
			Caller:    l.config.Caller,
			Colors:    l.config.Colors,
		}})

	default:
		return fmt.Errorf("unsupported log format: %s", l.config.Format)
	}

	return nil
}

// setupFileOutput opens a timestamped log file when an output directory is set
func (l *Logger) setupFileOutput() (*os.File, error) {
	if l.config.OutputDir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(l.config.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	path := filepath.Join(l.config.OutputDir, fmt.Sprintf("%s%s.log", filePrefix, timestamp))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l.fileHandle = file
	l.filePath = path
	return file, nil
}

// cleanup rotates oversized log files and removes old ones beyond the
// retention count
func (l *Logger) cleanup() error {
	if l.config.OutputDir == "" {
		return nil
	}

	manager := NewLogManagerFromConfig(l.config)
	if err := manager.RotateLogs(); err != nil {
		return err
	}
	return manager.CleanupOldLogs()
}

// runLogQueue flushes log entries from the queue in a background goroutine
func (l *Logger) runLogQueue() {
	defer close(l.done)
	for {
		select {
		case entry := <-l.logQueue:
			l.logger.WithFields(entry.fields).Log(entry.level, entry.msg)
		case <-l.quit:
			for {
				select {
				case entry := <-l.logQueue:
					l.logger.WithFields(entry.fields).Log(entry.level, entry.msg)
				default:
					return
				}
			}
		}
	}
}

// Extraction-specific logging methods

// LogPipeline logs the outcome of one pipeline
func (l *Logger) LogPipeline(location, format string, records, recordErrors int64, duration time.Duration, err error) {
	fields := logrus.Fields{
		"source":        location,
		"format":        format,
		"records":       records,
		"record_errors": recordErrors,
		"duration":      duration,
	}
	if duration > 0 {
		fields["records_per_sec"] = float64(records) / duration.Seconds()
	}
	if err != nil {
		l.logger.WithFields(fields).WithError(err).Warn("Pipeline failed")
		return
	}
	l.logger.WithFields(fields).Info("Pipeline finished")
}

// LogRecordError logs a skipped record with its provenance
func (l *Logger) LogRecordError(err error) {
	fields := logrus.Fields{}
	var re *interfaces.RecordError
	if errors.As(err, &re) {
		fields["format"] = re.Format
		fields["source"] = re.Provenance.String()
		err = re.Err
	}
	l.logger.WithFields(fields).WithError(err).Debug("Record skipped")
}

// LogEncodingFallback logs a charset detection fallback
func (l *Logger) LogEncodingFallback(w interfaces.EncodingFallback) {
	l.logger.WithFields(logrus.Fields{
		"source":     w.Source,
		"detected":   w.Detected,
		"confidence": w.Confidence,
	}).Warn("Encoding fallback to utf-8")
}

// LogScanSummary logs the totals of a scan
func (l *Logger) LogScanSummary(runID string, files, failures, records, recordErrors int64, elapsed time.Duration) {
	fields := logrus.Fields{
		"run_id":        runID,
		"files":         files,
		"failures":      failures,
		"records":       records,
		"record_errors": recordErrors,
		"elapsed":       elapsed,
		"uptime":        time.Since(l.startTime),
	}
	if elapsed > 0 {
		fields["records_per_sec"] = float64(records) / elapsed.Seconds()
	}
	l.logger.WithFields(fields).Info("Scan summary")
}

// Close flushes queued entries, closes the log file and removes old files
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.quit)
		<-l.done
		if l.fileHandle != nil {
			l.fileHandle.Close()
		}
		if cerr := l.cleanup(); cerr != nil {
			err = fmt.Errorf("failed to cleanup log files: %w", cerr)
		}
	})
	return err
}

// GetLogger returns the underlying logrus logger
func (l *Logger) GetLogger() *logrus.Logger {
	return l.logger
}

// FilePath returns the current log file, empty when logging to console only
func (l *Logger) FilePath() string {
	return l.filePath
}

// Debug logs a debug message (async)
func (l *Logger) Debug(msg string, fields map[string]interface{}) {
	l.logQueue <- logEntry{level: logrus.DebugLevel, msg: msg, fields: fields}
}

// Info logs an info message (async)
func (l *Logger) Info(msg string, fields map[string]interface{}) {
	l.logQueue <- logEntry{level: logrus.InfoLevel, msg: msg, fields: fields}
}

// Warning logs a warning message (async)
func (l *Logger) Warning(msg string, fields map[string]interface{}) {
	l.logQueue <- logEntry{level: logrus.WarnLevel, msg: msg, fields: fields}
}

// Error logs an error message (async)
func (l *Logger) Error(msg string, fields map[string]interface{}) {
	l.logQueue <- logEntry{level: logrus.ErrorLevel, msg: msg, fields: fields}
}
