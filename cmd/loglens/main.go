package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/tinytelemetry/loglens/internal/report"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

var errInvalidConfig = errors.New("invalid configuration")

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("loglens", flag.ContinueOnError)
	var (
		configPath  string
		showVersion bool
		file        string
		serve       bool
		noColor     bool
		reportDir   string
		format      string
		dbPath      string
	)
	fs.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/loglens/config.yml)")
	fs.BoolVar(&showVersion, "version", false, "print version information")
	fs.StringVar(&file, "file", "", "log file to analyze, - for stdin (or pass it as the first argument)")
	fs.BoolVar(&serve, "serve", false, "serve the report over HTTP after the run")
	fs.BoolVar(&noColor, "no-color", false, "disable colored console output")
	fs.StringVar(&reportDir, "report-dir", "", "directory for report files")
	fs.StringVar(&format, "format", "", "report format: json or yaml")
	fs.StringVar(&dbPath, "db-path", "", "mirror records into this DuckDB file (:memory: allowed)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: loglens [flags] <log-file|->\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitFailure
	}

	if showVersion {
		fmt.Printf("loglens - structured log analyzer\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return exitOK
	}

	// Only flags given on the command line override file and env settings.
	overrides := map[string]interface{}{}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "file":
			overrides["file"] = file
		case "serve":
			overrides["serve"] = serve
		case "no-color":
			overrides["no-color"] = noColor
		case "report-dir":
			overrides["report-dir"] = reportDir
		case "format":
			overrides["report-format"] = format
		case "db-path":
			overrides["db-path"] = dbPath
		}
	})
	if fs.NArg() > 0 {
		if _, set := overrides["file"]; !set {
			overrides["file"] = fs.Arg(0)
		}
	}

	cfg, err := loadConfig(configPath, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		if errors.Is(err, errInvalidConfig) && cfg.File == "" {
			fs.Usage()
		}
		return exitFailure
	}

	if err := runAnalysis(context.Background(), cfg, os.Stdout); err != nil {
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "Interrupted, no report written.")
		return exitInterrupted
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}
}

func loadConfig(configPath string, overrides map[string]interface{}) (appConfig, error) {
	var cfg appConfig

	// .env values become environment variables; real env vars win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("LOGLENS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetDefault("file", "")
	setDefaults(v.SetDefault)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.SetConfigFile(filepath.Join(home, ".config", "loglens", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
		if configPath != "" {
			return cfg, fmt.Errorf("config file %s: %w", configPath, err)
		}
	}

	for key, value := range overrides {
		v.Set(key, value)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		cfg.ConfigPath = ""
	}

	if err := validateConfig(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg *appConfig) error {
	if strings.TrimSpace(cfg.File) == "" {
		return fmt.Errorf("%w: no input file given", errInvalidConfig)
	}
	if _, err := report.ParseFormat(cfg.ReportFormat); err != nil {
		return fmt.Errorf("%w: %v", errInvalidConfig, err)
	}
	if cfg.MaxLineSize <= 0 {
		return fmt.Errorf("%w: max-line-size must be positive, got %d", errInvalidConfig, cfg.MaxLineSize)
	}
	if cfg.SlowThresholdMS <= 0 {
		return fmt.Errorf("%w: slow-threshold-ms must be positive, got %g", errInvalidConfig, cfg.SlowThresholdMS)
	}
	if cfg.ReportKeep < 0 || cfg.MaxRetainedSlow < 0 || cfg.MaxRetainedErrors < 0 {
		return fmt.Errorf("%w: report-keep and max-retained-* must not be negative", errInvalidConfig)
	}
	if cfg.SlowRequestThreshold < 0 || cfg.ErrorRateThreshold < 0 || cfg.EndpointLatencyThreshold < 0 {
		return fmt.Errorf("%w: recommendation thresholds must not be negative", errInvalidConfig)
	}

	home, err := os.UserHomeDir()
	if err == nil {
		for _, p := range []*string{&cfg.ReportDir, &cfg.DBPath, &cfg.LogFile} {
			if strings.HasPrefix(*p, "~/") {
				*p = filepath.Join(home, (*p)[2:])
			}
		}
	}
	return nil
}
