// Package cmd implements the docflow command line interface.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/docflow/internal/config"
	// Register the Tesseract OCR backend.
	_ "github.com/MeKo-Tech/docflow/internal/ocr/tesseract"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "docflow",
	Short:   "Document page processing pipeline with QC routing",
	Version: Version,
	Long: `docflow runs scanned page images through a processing pipeline
(preprocessing, layout analysis, OCR, classification, field extraction),
routes each page to automatic processing or human review based on
confidence thresholds, and manages the QC review queue and feedback log.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.NewLoader().Load(cfgFile)
		if err != nil {
			return err
		}
		setupLogging(cfg)
		return nil
	},
}

// Execute runs the CLI.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./docflow.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("data-dir", "data", "root directory for logs and queue state")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	mustBind("log_level", "log-level")
	mustBind("data_dir", "data-dir")
	mustBind("verbose", "verbose")
}

func mustBind(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

func setupLogging(c *config.Config) {
	level := slog.LevelInfo
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
