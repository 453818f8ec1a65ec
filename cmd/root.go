package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Yates-Labs/lectern/internal/config"
	"github.com/Yates-Labs/lectern/internal/logging"
	"github.com/Yates-Labs/lectern/internal/observability"
)

// version is set at build time with -ldflags "-X github.com/Yates-Labs/lectern/cmd.version=...".
var version = "dev"

var (
	cfgFile   string
	logLevel  string
	logFormat string

	cfg    *config.Config
	logger = zerolog.Nop()
	tracer *observability.TracerProvider
)

var rootCmd = &cobra.Command{
	Use:   "lectern",
	Short: "Lectern - Course video question answering",
	Long: `Lectern answers questions about course videos from their transcripts.

It indexes transcript files into a vector index, then routes each question
to the moment being watched, to passages of the current video, or to a
general answer when there is no video context.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./lectern.yaml or ./configs/lectern.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format override (console, json)")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, _ []string) error {
	// Load .env file if it exists
	_ = godotenv.Load()

	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
	}
	if logFormat != "" {
		loaded.Log.Format = logFormat
	}

	l, err := logging.Setup(logging.Options{Level: loaded.Log.Level, Format: loaded.Log.Format, Out: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	for _, warning := range loaded.Warnings() {
		l.Warn().Msg(warning)
	}

	tp, err := observability.InitTracing(cmd.Context(), &observability.TracingConfig{
		ServiceName:    "lectern",
		ServiceVersion: version,
		Environment:    loaded.Tracing.Environment,
		OTLPEndpoint:   loaded.Tracing.OTLPEndpoint,
		SampleRate:     loaded.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	cfg, logger, tracer = loaded, l, tp
	return nil
}

func teardown(cmd *cobra.Command, _ []string) error {
	if tracer == nil {
		return nil
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return tracer.Shutdown(ctx)
}
