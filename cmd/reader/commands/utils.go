/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: utils.go
Description: Shared utilities for the Akaylee Reader commands. Provides configuration
loading from files, .env and environment, logging setup, option mapping and
object-store wiring used across all command implementations.
*/

package commands

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"github.com/kleascm/akaylee-reader/pkg/core"
	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/kleascm/akaylee-reader/pkg/logging"
	"github.com/kleascm/akaylee-reader/pkg/source"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. AKAYLEE_READER_WORKERS
const EnvPrefix = "AKAYLEE_READER"

// LoadConfig loads configuration from files and environment
func LoadConfig() error {
	// A missing .env is fine
	_ = godotenv.Load()

	// Set config file if specified
	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Set environment variable prefix
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	return nil
}

// SetupLogging builds the logger from the log_* keys
func SetupLogging() (*logging.Logger, error) {
	config := logging.DefaultLoggerConfig()
	config.Level = logging.LogLevel(viper.GetString("log_level"))
	config.Format = logging.LogFormat(viper.GetString("log_format"))
	config.OutputDir = viper.GetString("log_dir")
	config.Compress = viper.GetBool("log_compress")
	config.Quiet = viper.GetBool("quiet")
	config.SyslogEnabled = viper.GetBool("log_syslog")
	config.SyslogNetwork = viper.GetString("log_syslog_network")
	config.SyslogAddress = viper.GetString("log_syslog_address")
	if n := viper.GetInt("log_max_files"); n > 0 {
		config.MaxFiles = n
	}
	if n := viper.GetInt64("log_max_size"); n > 0 {
		config.MaxSize = n
	}
	if viper.GetBool("json_logs") {
		config.Format = logging.LogFormatJSON
	}
	if config.Level == "" {
		config.Level = logging.LogLevelInfo
	}
	if config.Format == "" {
		config.Format = logging.LogFormatText
	}

	logger, err := logging.NewLogger(config)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	return logger, nil
}

// LoadOptions maps configuration keys onto extraction options.
// Unset keys keep their defaults.
func LoadOptions(logger *logging.Logger) (*interfaces.Options, error) {
	opts := interfaces.DefaultOptions()

	if viper.IsSet("sample_size") {
		opts.SampleSize = viper.GetInt("sample_size")
	}
	if viper.IsSet("min_confidence") {
		opts.MinConfidence = viper.GetInt("min_confidence")
	}
	if viper.IsSet("max_depth") {
		opts.MaxNestingDepth = viper.GetInt("max_depth")
	}
	if viper.IsSet("xml_depth") {
		opts.XMLDepth = viper.GetInt("xml_depth")
	}
	if viper.IsSet("record_cap") {
		opts.RecordCap = viper.GetInt64("record_cap")
	}
	if viper.IsSet("workers") && viper.GetInt("workers") > 0 {
		opts.Workers = viper.GetInt("workers")
	}
	if p := viper.GetString("precedence"); p != "" {
		opts.Precedence = interfaces.Precedence(strings.ToLower(p))
	}
	opts.Headerless = viper.GetBool("headerless")
	opts.HTMLSelector = viper.GetString("html_selector")
	opts.SpoolDir = viper.GetString("spool_dir")

	if d := viper.GetString("delimiter"); d != "" {
		delim, err := parseDelimiter(d)
		if err != nil {
			return nil, err
		}
		opts.Delimiter = delim
	}

	if logger != nil {
		opts.OnFallback = logger.LogEncodingFallback
	}

	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	return opts, nil
}

// parseDelimiter accepts a single character or the names tab and pipe
func parseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "tab", `\t`:
		return '\t', nil
	case "pipe":
		return '|', nil
	case "semicolon":
		return ';', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character: %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

// LoadObjectStore connects to the object store when an endpoint is configured.
// Returns nil without error when none is.
func LoadObjectStore() (*source.ObjectStore, error) {
	cfg := source.ObjectConfig{
		Endpoint:       viper.GetString("s3.endpoint"),
		AccessKey:      viper.GetString("s3.access_key"),
		SecretKey:      viper.GetString("s3.secret_key"),
		UseSSL:         viper.GetBool("s3.use_ssl"),
		Region:         viper.GetString("s3.region"),
		TimeoutSeconds: viper.GetInt("s3.timeout_seconds"),
	}
	if cfg.Endpoint == "" {
		return nil, nil
	}
	client, err := source.NewObjectClient(cfg)
	if err != nil {
		return nil, err
	}
	return source.NewObjectStore(client), nil
}

// setup runs the shared command prologue and returns a ready orchestrator.
// The caller must close the logger.
func setup() (*core.Orchestrator, *logging.Logger, error) {
	if err := LoadConfig(); err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := SetupLogging()
	if err != nil {
		return nil, nil, err
	}

	opts, err := LoadOptions(logger)
	if err != nil {
		logger.Close()
		return nil, nil, err
	}

	orchestrator, err := core.NewOrchestrator(opts, logger.GetLogger())
	if err != nil {
		logger.Close()
		return nil, nil, err
	}

	store, err := LoadObjectStore()
	if err != nil {
		logger.Close()
		return nil, nil, fmt.Errorf("failed to connect object store: %w", err)
	}
	if store != nil {
		orchestrator.WithObjectStore(store)
	}

	return orchestrator, logger, nil
}
