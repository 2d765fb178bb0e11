/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: utils.go
Description: Log file management for Akaylee Reader. Rotates oversized log files,
compresses rotated files with gzip, enforces the retention limit and reports file
statistics. Compressed files keep the modification time of the log they replace so
retention stays in chronological order.
*/

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

const (
	activePattern = filePrefix + "*.log"
	allPattern    = filePrefix + "*.log*"
	rotateLayout  = "2006-01-02_15-04-05"
)

// LogManager provides log file management
type LogManager struct {
	logDir   string
	maxFiles int
	maxSize  int64
	compress bool
}

// NewLogManager creates a new log manager
func NewLogManager(logDir string, maxFiles int, maxSize int64, compress bool) *LogManager {
	return &LogManager{
		logDir:   logDir,
		maxFiles: maxFiles,
		maxSize:  maxSize,
		compress: compress,
	}
}

// NewLogManagerFromConfig creates a log manager for a logger configuration
func NewLogManagerFromConfig(config *LoggerConfig) *LogManager {
	return NewLogManager(config.OutputDir, config.MaxFiles, config.MaxSize, config.Compress)
}

// logFile is a log file with its stat taken once
type logFile struct {
	path string
	info os.FileInfo
}

// list returns the files matching pattern, oldest first. Files that vanish
// while listing are skipped.
func (lm *LogManager) list(pattern string) ([]logFile, error) {
	paths, err := filepath.Glob(filepath.Join(lm.logDir, pattern))
	if err != nil {
		return nil, fmt.Errorf("failed to glob log files: %w", err)
	}
	files := make([]logFile, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, logFile{path: path, info: info})
	}
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].info.ModTime().Before(files[j].info.ModTime())
	})
	return files, nil
}

// RotateLogs renames every active log at or over the size limit, compressing
// it when configured
func (lm *LogManager) RotateLogs() error {
	if lm.maxSize <= 0 {
		return nil
	}
	files, err := lm.list(activePattern)
	if err != nil {
		return err
	}
	stamp := time.Now().Format(rotateLayout)
	for _, f := range files {
		if f.info.Size() < lm.maxSize {
			continue
		}
		if err := lm.rotate(f, stamp); err != nil {
			return fmt.Errorf("failed to rotate file %s: %w", f.path, err)
		}
	}
	return nil
}

func (lm *LogManager) rotate(f logFile, stamp string) error {
	rotated := f.path + "." + stamp
	if err := os.Rename(f.path, rotated); err != nil {
		return err
	}
	if !lm.compress {
		return nil
	}
	return compressFile(rotated, f.info.ModTime())
}

// compressFile gzips path next to itself and removes the original. The
// archive is written under a temporary name so a failure leaves no partial
// .gz behind.
func compressFile(path string, modTime time.Time) (err error) {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	target := path + ".gz"
	tmp := target + ".tmp"
	dst, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			dst.Close()
			os.Remove(tmp)
		}
	}()

	zw := gzip.NewWriter(dst)
	zw.Name = filepath.Base(path)
	zw.ModTime = modTime
	if _, err = io.Copy(zw, src); err != nil {
		return err
	}
	if err = zw.Close(); err != nil {
		return err
	}
	if err = dst.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp, target); err != nil {
		return err
	}
	if err = os.Chtimes(target, modTime, modTime); err != nil {
		return err
	}
	src.Close()
	return os.Remove(path)
}

// CleanupOldLogs removes the oldest log files beyond the retention limit
func (lm *LogManager) CleanupOldLogs() error {
	if lm.maxFiles <= 0 {
		return nil
	}
	files, err := lm.list(allPattern)
	if err != nil {
		return err
	}
	for i := 0; i < len(files)-lm.maxFiles; i++ {
		if err := os.Remove(files[i].path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove file %s: %w", files[i].path, err)
		}
	}
	return nil
}

// GetLogStats returns statistics about log files
func (lm *LogManager) GetLogStats() (*LogStats, error) {
	files, err := lm.list(allPattern)
	if err != nil {
		return nil, err
	}

	stats := &LogStats{TotalFiles: len(files)}
	if len(files) > 0 {
		stats.OldestFile = files[0].info.ModTime()
		stats.NewestFile = files[len(files)-1].info.ModTime()
	}
	for _, f := range files {
		stats.TotalSize += f.info.Size()
		if strings.HasSuffix(f.path, ".gz") {
			stats.CompressedFiles++
		} else {
			stats.UncompressedFiles++
		}
	}
	return stats, nil
}

// LogStats holds statistics about log files
type LogStats struct {
	TotalFiles        int       `json:"total_files"`
	TotalSize         int64     `json:"total_size"`
	CompressedFiles   int       `json:"compressed_files"`
	UncompressedFiles int       `json:"uncompressed_files"`
	OldestFile        time.Time `json:"oldest_file"`
	NewestFile        time.Time `json:"newest_file"`
}
