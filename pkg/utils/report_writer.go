/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: report_writer.go
Description: Utility for writing run reports to a report directory. Handles
timestamped, kind-specific subdirectory naming and writes indented JSON files that
are easy to diff between runs.
*/

package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
)

// WriteReport writes doc under dir/kind with a timestamped name and returns the path
func WriteReport(dir, kind, runID string, doc interface{}) (string, error) {
	// Ensure report directory and subdirectory exist
	reportDir := filepath.Join(dir, kind)
	if err := os.MkdirAll(reportDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	// Generate filename: 2024-06-11_01-30-00_scan_1a2b3c4d.json
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	if len(runID) > 8 {
		runID = runID[:8]
	}
	filename := fmt.Sprintf("%s_%s.json", timestamp, kind)
	if runID != "" {
		filename = fmt.Sprintf("%s_%s_%s.json", timestamp, kind, runID)
	}
	filePath := filepath.Join(reportDir, filename)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}

	return filePath, nil
}
