/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: main.go
Description: Main command-line interface for Akaylee Reader. Provides commands to read
records, infer schemas, scan whole trees in parallel and inspect format detection,
with configuration from flags, config files, .env and the environment.
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kleascm/akaylee-reader/cmd/reader/commands"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Configuration
	configFile string
	logLevel   string
	jsonLogs   bool
	quiet      bool

	// Logging configuration
	logDir      string
	logFormat   string
	logMaxFiles int
	logMaxSize  int64
	logCompress bool

	// Extraction configuration
	precedence    string
	workers       int
	sampleSize    int
	minConfidence int
	maxDepth      int
	xmlDepth      int
	recordCap     int64
	headerless    bool
	delimiter     string
	htmlSelector  string
	spoolDir      string
	formatTag     string
)

func main() {
	// Create root command
	rootCmd := &cobra.Command{
		Use:   "akaylee-reader",
		Short: "Akaylee Reader - Streaming record extraction and schema inference",
		Long: `Akaylee Reader turns heterogeneous inputs (CSV, JSON, YAML, TOML, XML, HTML,
Markdown, text, Excel, SQLite, Parquet, PDF and images, optionally compressed or
archived) into one uniform stream of records, and infers a merged schema over them.`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add persistent flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Use JSON log format")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress console logs and progress output")

	// Add logging-specific flags
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Log output directory (empty disables log files)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json, custom, pipeline)")
	rootCmd.PersistentFlags().IntVar(&logMaxFiles, "log-max-files", 10, "Maximum number of log files to keep")
	rootCmd.PersistentFlags().Int64Var(&logMaxSize, "log-max-size", 100*1024*1024, "Maximum log file size in bytes")
	rootCmd.PersistentFlags().BoolVar(&logCompress, "log-compress", false, "Compress rotated log files")
	rootCmd.PersistentFlags().Bool("log-syslog", false, "Also send logs to syslog")
	rootCmd.PersistentFlags().String("log-syslog-network", "", "Syslog network (udp, tcp; empty for local)")
	rootCmd.PersistentFlags().String("log-syslog-address", "", "Syslog address")

	// Add extraction flags
	rootCmd.PersistentFlags().StringVarP(&formatTag, "format", "f", "", "Force a format tag instead of detection")
	rootCmd.PersistentFlags().StringVar(&precedence, "precedence", "content", "Extension vs content precedence (content, extension, strict)")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 0, "Parallel pipelines for scan (0 = number of CPUs)")
	rootCmd.PersistentFlags().IntVar(&sampleSize, "sample-size", 64*1024, "Bytes sampled for charset detection")
	rootCmd.PersistentFlags().IntVar(&minConfidence, "min-confidence", 50, "Minimum charset confidence (0-100) before falling back to UTF-8")
	rootCmd.PersistentFlags().IntVar(&maxDepth, "max-depth", 8, "Maximum compression and archive nesting depth")
	rootCmd.PersistentFlags().IntVar(&xmlDepth, "xml-depth", 1, "Element depth of XML records")
	rootCmd.PersistentFlags().Int64Var(&recordCap, "record-cap", 0, "Maximum records per input (0 = unlimited)")
	rootCmd.PersistentFlags().BoolVar(&headerless, "headerless", false, "Treat the first delimited row as data")
	rootCmd.PersistentFlags().StringVar(&delimiter, "delimiter", ",", "Delimiter for csv (a character, tab or pipe)")
	rootCmd.PersistentFlags().StringVar(&htmlSelector, "html-selector", "", "CSS selector for HTML blocks")
	rootCmd.PersistentFlags().StringVar(&spoolDir, "spool-dir", "", "Directory for temporary files (default system temp)")

	// Bind flags to viper
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("json_logs", rootCmd.PersistentFlags().Lookup("json-logs"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	viper.BindPFlag("log_dir", rootCmd.PersistentFlags().Lookup("log-dir"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("log_max_files", rootCmd.PersistentFlags().Lookup("log-max-files"))
	viper.BindPFlag("log_max_size", rootCmd.PersistentFlags().Lookup("log-max-size"))
	viper.BindPFlag("log_compress", rootCmd.PersistentFlags().Lookup("log-compress"))
	viper.BindPFlag("log_syslog", rootCmd.PersistentFlags().Lookup("log-syslog"))
	viper.BindPFlag("log_syslog_network", rootCmd.PersistentFlags().Lookup("log-syslog-network"))
	viper.BindPFlag("log_syslog_address", rootCmd.PersistentFlags().Lookup("log-syslog-address"))
	viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))
	viper.BindPFlag("precedence", rootCmd.PersistentFlags().Lookup("precedence"))
	viper.BindPFlag("workers", rootCmd.PersistentFlags().Lookup("workers"))
	viper.BindPFlag("sample_size", rootCmd.PersistentFlags().Lookup("sample-size"))
	viper.BindPFlag("min_confidence", rootCmd.PersistentFlags().Lookup("min-confidence"))
	viper.BindPFlag("max_depth", rootCmd.PersistentFlags().Lookup("max-depth"))
	viper.BindPFlag("xml_depth", rootCmd.PersistentFlags().Lookup("xml-depth"))
	viper.BindPFlag("record_cap", rootCmd.PersistentFlags().Lookup("record-cap"))
	viper.BindPFlag("headerless", rootCmd.PersistentFlags().Lookup("headerless"))
	viper.BindPFlag("delimiter", rootCmd.PersistentFlags().Lookup("delimiter"))
	viper.BindPFlag("html_selector", rootCmd.PersistentFlags().Lookup("html-selector"))
	viper.BindPFlag("spool_dir", rootCmd.PersistentFlags().Lookup("spool-dir"))

	// Add read command
	readCmd := &cobra.Command{
		Use:   "read <location>...",
		Short: "Stream records from files, archives or s3:// objects",
		Long: `Read every record of the given inputs and write them to stdout, as JSON lines
by default. Compressed inputs are unwrapped and zip archives are expanded entry by entry.`,
		Args: cobra.MinimumNArgs(1),
		RunE: commands.RunRead,
	}
	readCmd.Flags().StringP("output", "o", "json", "Output format (json, yaml)")
	readCmd.Flags().Int64P("limit", "n", 0, "Stop after this many records (0 = all)")
	readCmd.Flags().Bool("provenance", false, "Include record provenance in the output")

	// Add schema command
	schemaCmd := &cobra.Command{
		Use:   "schema <location>...",
		Short: "Infer the merged schema of one or more inputs",
		Args:  cobra.MinimumNArgs(1),
		RunE:  commands.RunSchema,
	}
	schemaCmd.Flags().StringP("output", "o", "json", "Output format (json, yaml)")

	// Add scan command
	scanCmd := &cobra.Command{
		Use:   "scan <directory|file|s3://bucket/prefix>",
		Short: "Scan a tree in parallel and infer one merged schema",
		Long: `Scan every input under a directory, archive or object-store prefix with one
pipeline per input running in parallel. Failed inputs are reported and do not stop
the scan; their partial schemas are still merged.`,
		Args: cobra.ExactArgs(1),
		RunE: commands.RunScan,
	}
	scanCmd.Flags().StringP("output", "o", "json", "Schema output format (json, yaml)")
	scanCmd.Flags().String("report-dir", "", "Write the full scan result as a timestamped JSON file under this directory")
	scanCmd.Flags().Bool("fail-on-error", false, "Exit non-zero when any input fails")

	// Add formats command
	formatsCmd := &cobra.Command{
		Use:   "formats",
		Short: "List registered formats and their extensions",
		RunE:  commands.ListFormats,
	}
	formatsCmd.Flags().Bool("json", false, "Print the format list as JSON")

	// Add sniff command
	sniffCmd := &cobra.Command{
		Use:   "sniff <location>...",
		Short: "Show how inputs are detected without reading their records",
		Args:  cobra.MinimumNArgs(1),
		RunE:  commands.RunSniff,
	}

	// Add logs command
	logsCmd := &cobra.Command{
		Use:   "logs [log-dir]",
		Short: "Summarize pipelines, failures and fallbacks recorded in log files",
		Args:  cobra.MaximumNArgs(1),
		RunE:  commands.AnalyzeLogs,
	}

	// Command flags share keys, so bind them when the command runs
	bindOnRun(readCmd, map[string]string{"output": "output", "limit": "limit", "provenance": "provenance"})
	bindOnRun(schemaCmd, map[string]string{"output": "output"})
	bindOnRun(scanCmd, map[string]string{"output": "output", "report_dir": "report-dir", "fail_on_error": "fail-on-error"})
	bindOnRun(formatsCmd, map[string]string{"formats_json": "json"})

	rootCmd.AddCommand(readCmd, schemaCmd, scanCmd, formatsCmd, sniffCmd, logsCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// bindOnRun binds a command's local flags to viper keys before it runs
func bindOnRun(cmd *cobra.Command, keys map[string]string) {
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		for key, flag := range keys {
			if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
				return err
			}
		}
		return nil
	}
}
