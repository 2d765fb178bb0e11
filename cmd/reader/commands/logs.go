/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: logs.go
Description: Log inspection command for Akaylee Reader. Summarizes the log files in
the configured log directory: pipelines, failures, skipped records, encoding
fallbacks and file statistics.
*/

package commands

import (
	"fmt"

	"github.com/kleascm/akaylee-reader/pkg/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// AnalyzeLogs prints a summary of the log directory
func AnalyzeLogs(cmd *cobra.Command, args []string) error {
	if err := LoadConfig(); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	logDir := viper.GetString("log_dir")
	if len(args) > 0 {
		logDir = args[0]
	}
	if logDir == "" {
		fmt.Fprintln(out, "📭 No log directory configured.")
		fmt.Fprintln(out, "   Pass a directory or set --log-dir.")
		return nil
	}

	fmt.Fprintln(out, "📜 Akaylee Reader - Log Analysis")
	fmt.Fprintln(out, "===============================")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "📁 Log directory: %s\n", logDir)
	fmt.Fprintln(out)

	analysis, err := logging.NewLogAnalyzer(logDir).AnalyzeLogs()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, analysis.GetLogSummary())
	fmt.Fprintln(out)

	manager := logging.NewLogManager(logDir, viper.GetInt("log_max_files"), viper.GetInt64("log_max_size"), viper.GetBool("log_compress"))
	stats, err := manager.GetLogStats()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "📊 %d file(s), %d bytes, %d compressed\n", stats.TotalFiles, stats.TotalSize, stats.CompressedFiles)
	return nil
}
