package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"mealagent"
	"mealagent/internal/app"
)

var (
	envFile        string
	vocabularyPath string
	provider       string
	debug          bool
)

var rootCmd = &cobra.Command{
	Use:   "mealagent",
	Short: "Adaptive meal analysis from photos and descriptions",
	Long: `mealagent estimates the nutrition of a meal from a photo and an optional
description. It starts with one inexpensive model call and escalates to brand
search, deep ingredient analysis, or a nutrition lookup only when the first
answer is not confident enough.

Configuration comes from the environment (and an optional .env file).`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&vocabularyPath, "vocabulary", "", "JSON vocabulary file overriding VOCABULARY_PATH")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "model provider (bedrock or ollama), overrides MODEL_PROVIDER")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "dump intermediate values and log at debug level")
}

// setup loads configuration and builds the shared stack.
func setup(ctx context.Context) (*app.App, error) {
	if debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	if provider != "" {
		cfg.Model.Provider = provider
	}
	if vocabularyPath != "" {
		cfg.Agent.VocabularyPath = vocabularyPath
	}

	if debug {
		mealagent.Dump(os.Stderr, "configuration", cfg)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("SETUP: Failed to build analysis stack", "error", err)
		return nil, err
	}
	return a, nil
}

// initOtel starts exporting telemetry when an OTLP endpoint is configured.
func initOtel(ctx context.Context) func() {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		return func() {}
	}

	_, _, shutdown, err := mealagent.InitOtel(ctx)
	if err != nil {
		slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
		return func() {}
	}
	return func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
		}
	}
}
