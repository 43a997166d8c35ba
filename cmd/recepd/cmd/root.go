package cmd

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/indrasol/ai-receptionist-backend/internal/config"
)

var (
	cfgFile    string
	verbose    bool
	cfg        config.Config
	logCleanup func() error
)

// GetConfig returns the loaded configuration.
func GetConfig() config.Config {
	return cfg
}

var rootCmd = &cobra.Command{
	Use:   "recepd",
	Short: "recepd: knowledge ingestion for AI receptionists",
	Long: `recepd scrapes organization websites, splits pages into knowledge
chunks enriched with bullets and sample questions, and keeps the assistant
platform's knowledge files in sync with the chunk store.

Commands:
  serve      Start the API server and task workers
  scrape     Submit one URL and wait for the result
  reconcile  Repair knowledge base drift for an organization`,
}

func Execute() error {
	defer func() {
		if logCleanup != nil {
			_ = logCleanup()
		}
	}()
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig, initLogger)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

func initLogger() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	logger, cleanup := config.SetupLogger(cfg.Logging.File, level)
	logCleanup = cleanup
	slog.SetDefault(logger)
}

func initConfig() {
	// Start with defaults
	cfg = config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/recepd")
		viper.AddConfigPath(".")
	}

	// Environment variable overrides
	// RECEP_DATABASE_DSN -> database.dsn
	viper.SetEnvPrefix("RECEP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Explicitly bind nested env vars
	viper.BindEnv("database.dsn", "RECEP_DATABASE_DSN")
	viper.BindEnv("database.table_prefix", "RECEP_DATABASE_TABLE_PREFIX")
	viper.BindEnv("extractor.renderer", "RECEP_EXTRACTOR_RENDERER")
	viper.BindEnv("extractor.timeout", "RECEP_EXTRACTOR_TIMEOUT")
	viper.BindEnv("summarizer.enabled", "RECEP_SUMMARIZER_ENABLED")
	viper.BindEnv("summarizer.api_key", "RECEP_SUMMARIZER_API_KEY")
	viper.BindEnv("summarizer.model", "RECEP_SUMMARIZER_MODEL")
	viper.BindEnv("vapi.enabled", "RECEP_VAPI_ENABLED")
	viper.BindEnv("vapi.api_key", "RECEP_VAPI_API_KEY")
	viper.BindEnv("vapi.base_url", "RECEP_VAPI_BASE_URL")
	viper.BindEnv("archive.endpoint", "RECEP_ARCHIVE_ENDPOINT")
	viper.BindEnv("archive.access_key_id", "RECEP_ARCHIVE_ACCESS_KEY_ID")
	viper.BindEnv("archive.secret_access_key", "RECEP_ARCHIVE_SECRET_ACCESS_KEY")
	viper.BindEnv("worker.count", "RECEP_WORKER_COUNT")
	viper.BindEnv("server.addr", "RECEP_SERVER_ADDR")
	viper.BindEnv("logging.file", "RECEP_LOGGING_FILE")

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("config file error", "error", err)
		}
		// No config file - use defaults + env vars
	}

	// Unmarshal into struct (merges config file with defaults)
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Warn("failed to parse config", "error", err)
	}
}
