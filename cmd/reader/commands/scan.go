/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: scan.go
Description: Scan command implementation for Akaylee Reader. Runs one pipeline per
input under a directory, archive or object-store prefix in parallel, prints progress
and a per-file summary, and renders the merged schema.
*/

package commands

import (
	"fmt"
	"io"
	"sync"

	"github.com/kleascm/akaylee-reader/pkg/core"
	"github.com/kleascm/akaylee-reader/pkg/inference"
	"github.com/kleascm/akaylee-reader/pkg/logging"
	"github.com/kleascm/akaylee-reader/pkg/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// consoleReporter prints one line per finished pipeline
type consoleReporter struct {
	mu  sync.Mutex
	out io.Writer
}

func (c *consoleReporter) OnFileStarted(p *core.Pipeline) {}

func (c *consoleReporter) OnFileFinished(r *core.FileResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case r.Failed():
		fmt.Fprintf(c.out, "  ❌ %s: %s\n", r.Location, r.Error)
	case r.RecordErrors > 0:
		fmt.Fprintf(c.out, "  ⚠️  %s [%s] %d records, %d skipped\n", r.Location, r.Format, r.Records, r.RecordErrors)
	default:
		fmt.Fprintf(c.out, "  ✅ %s [%s] %d records\n", r.Location, r.Format, r.Records)
	}
}

// logReporter sends finished pipelines to the structured logger
type logReporter struct {
	logger *logging.Logger
}

func (l logReporter) OnFileStarted(p *core.Pipeline) {}

func (l logReporter) OnFileFinished(r *core.FileResult) {
	l.logger.LogPipeline(r.Location, r.Format, r.Records, r.RecordErrors, r.Duration, r.Err)
}

// RunScan scans a root location and prints the merged schema
func RunScan(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	quiet := viper.GetBool("quiet")
	if !quiet {
		fmt.Fprintln(out, "📚 Akaylee Reader - Scan")
		fmt.Fprintln(out, "========================")
		fmt.Fprintln(out)
	}

	orchestrator, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	root := args[0]
	reporters := []core.Reporter{logReporter{logger: logger}}
	if !quiet {
		fmt.Fprintf(out, "📁 Scanning: %s\n", root)
		fmt.Fprintf(out, "⚙️  Workers: %d, precedence: %s\n", orchestrator.Options().Workers, orchestrator.Options().Precedence)
		fmt.Fprintln(out)
		reporters = append(reporters, &consoleReporter{out: out})
	}

	scanner := core.NewScanner(orchestrator, core.MultiReporter(reporters...))
	result, err := scanner.Scan(cmd.Context(), root)
	if err != nil {
		return err
	}

	stats := result.Stats
	logger.LogScanSummary(result.RunID, stats.Files, stats.Failures, stats.Records, stats.RecordErrors, stats.Elapsed)

	if !quiet {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "📊 Files: %d, failed: %d, records: %d, skipped: %d in %v\n",
			stats.Files, stats.Failures, stats.Records, stats.RecordErrors, stats.Elapsed)
		fmt.Fprintln(out)
	}

	if reportDir := viper.GetString("report_dir"); reportDir != "" {
		reportPath, err := utils.WriteReport(reportDir, "scan", result.RunID, buildReport(result))
		if err != nil {
			return err
		}
		if !quiet {
			fmt.Fprintf(out, "💾 Report saved to: %s\n\n", reportPath)
		}
	}

	if err := WriteDocument(out, viper.GetString("output"), inference.Export(result.Schema)); err != nil {
		return err
	}

	if stats.Failures > 0 && viper.GetBool("fail_on_error") {
		return fmt.Errorf("%d of %d input(s) failed", stats.Failures, stats.Files)
	}
	return nil
}

// buildReport renders the full scan result, per-file schemas included
func buildReport(result *core.ScanResult) map[string]interface{} {
	doc := map[string]interface{}{
		"run_id": result.RunID,
		"root":   result.Root,
		"stats":  result.Stats,
		"schema": inference.Export(result.Schema),
	}
	files := make([]map[string]interface{}, 0, len(result.Files))
	for _, r := range result.Files {
		entry := map[string]interface{}{
			"location":      r.Location,
			"format":        r.Format,
			"records":       r.Records,
			"record_errors": r.RecordErrors,
			"capped":        r.Capped,
			"duration":      r.Duration.String(),
		}
		if r.Error != "" {
			entry["error"] = r.Error
		}
		if r.Schema != nil {
			entry["schema"] = inference.Export(r.Schema)
		}
		files = append(files, entry)
	}
	doc["files"] = files
	return doc
}
