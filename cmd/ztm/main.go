package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"tidbyt.dev/ztm"
	"tidbyt.dev/ztm/config"
	"tidbyt.dev/ztm/parse"
	"tidbyt.dev/ztm/storage"
)

var rootCmd = &cobra.Command{
	Use:               "ztm",
	Short:             "ZTM timetable tool",
	Long:              "Builds a stop graph from ZTM Warsaw timetable exports",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	configPath  string
	backendFlag string
	logLevel    string
	headers     []string

	cfg    *config.Config
	logger zerolog.Logger
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVarP(&backendFlag, "storage", "s", "", "Storage backend (memory, sqlite, postgres)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "", "", "Log level")
	rootCmd.PersistentFlags().StringSliceVarP(
		&headers,
		"header",
		"",
		[]string{},
		"HTTP header used when downloading exports",
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	// .env is optional
	_ = godotenv.Load()

	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}

	if backendFlag != "" {
		cfg.Storage.Backend = backendFlag
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	err = cfg.Validate()
	if err != nil {
		return err
	}

	logger, err = newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	log.Logger = logger

	return nil
}

func newLogger(c config.LoggingConfig) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if c.Level != "" {
		parsed, err := zerolog.ParseLevel(c.Level)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("invalid log level: %w", err)
		}
		level = parsed
	}

	writers := []io.Writer{
		zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339},
	}
	if c.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}

	return zerolog.New(io.MultiWriter(writers...)).
		Level(level).
		With().Timestamp().Logger(), nil
}

func parseHeaders(headers []string) (map[string]string, error) {
	parsed := map[string]string{}
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("'%s' is not on form <key>:<value>", header)
		}
		parsed[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return parsed, nil
}

func requestHeaders() (map[string]string, error) {
	merged := map[string]string{}
	for k, v := range cfg.Source.Headers {
		merged[k] = v
	}

	parsed, err := parseHeaders(headers)
	if err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}
	for k, v := range parsed {
		merged[k] = v
	}

	return merged, nil
}

func tags() parse.Tags {
	return parse.Tags{
		Groups: cfg.Source.Tags.Groups,
		Stops:  cfg.Source.Tags.Stops,
		Routes: cfg.Source.Tags.Routes,
	}.WithDefaults()
}

func openStorage() (storage.Storage, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return storage.NewMemoryStorage(), nil
	case "sqlite":
		err := os.MkdirAll(cfg.Storage.SQLiteDir, 0755)
		if err != nil {
			return nil, fmt.Errorf("creating %s: %w", cfg.Storage.SQLiteDir, err)
		}
		return storage.NewSQLiteStorage(storage.SQLiteConfig{
			OnDisk:    true,
			Directory: cfg.Storage.SQLiteDir,
		})
	case "postgres":
		return storage.NewPSQLStorage(cfg.Storage.PostgresDSN, false)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

func newManager(s storage.Storage) *ztm.Manager {
	manager := ztm.NewManager(s)
	manager.Encoding = cfg.Source.Encoding
	manager.Tags = tags()
	manager.Logger = logger
	return manager
}

// Imports the configured source if there is one.
func importConfigured(manager *ztm.Manager, cmd *cobra.Command) error {
	switch {
	case cfg.Source.URL != "":
		h, err := requestHeaders()
		if err != nil {
			return err
		}
		_, err = manager.ImportURL(cmd.Context(), cfg.Source.URL, h)
		return err
	case cfg.Source.Path != "":
		_, err := manager.ImportFile(cfg.Source.Path)
		return err
	}
	return nil
}

// Loads the most recent feed, importing the configured source first
// if storage is empty.
func loadFeed(cmd *cobra.Command) (*ztm.Feed, error) {
	s, err := openStorage()
	if err != nil {
		return nil, err
	}

	manager := newManager(s)

	feed, err := manager.LoadLatest()
	if err == ztm.ErrNoFeed {
		err = importConfigured(manager, cmd)
		if err != nil {
			return nil, err
		}
		feed, err = manager.LoadLatest()
	}
	if err == ztm.ErrNoFeed {
		return nil, fmt.Errorf("no feed imported, run 'ztm import' or configure a source")
	}
	if err != nil {
		return nil, err
	}

	return feed, nil
}
