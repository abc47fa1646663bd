package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"mealagent"
	"mealagent/storage"
)

var (
	analyzeTranscript  string
	analyzeGoal        string
	analyzeCalories    int
	analyzeProtein     float64
	analyzeWindowName  string
	analyzeWindowStart string
	analyzeWindowEnd   string
	analyzeQuiet       bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [image]",
	Short: "Analyze one meal",
	Long: `Analyze one meal photo, a description, or both.

The image may be a local path or an s3://bucket/key reference.

Examples:
  mealagent analyze lunch.jpg
  mealagent analyze s3://captures/2025/03/01/lunch.jpg --transcript "chipotle bowl, extra rice"
  mealagent analyze --transcript "two slices of pepperoni pizza"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVar(&analyzeTranscript, "transcript", "", "spoken or typed description of the meal")
	analyzeCmd.Flags().StringVar(&analyzeGoal, "goal", "", "nutrition goal, e.g. \"lose weight\"")
	analyzeCmd.Flags().IntVar(&analyzeCalories, "daily-calories", 0, "daily calorie target")
	analyzeCmd.Flags().Float64Var(&analyzeProtein, "daily-protein", 0, "daily protein target in grams")
	analyzeCmd.Flags().StringVar(&analyzeWindowName, "window", "", "active meal window name")
	analyzeCmd.Flags().StringVar(&analyzeWindowStart, "window-start", "", "active meal window start (HH:MM, today)")
	analyzeCmd.Flags().StringVar(&analyzeWindowEnd, "window-end", "", "active meal window end (HH:MM, today)")
	analyzeCmd.Flags().BoolVar(&analyzeQuiet, "quiet", false, "do not print progress")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	shutdown := initOtel(ctx)
	defer shutdown()

	req := mealagent.AnalysisRequest{
		Transcript: analyzeTranscript,
		User: mealagent.UserContext{
			Goal:         analyzeGoal,
			DailyTargets: mealagent.MacroTargets{Calories: analyzeCalories, ProteinG: analyzeProtein},
		},
	}

	if len(args) == 1 {
		src, err := a.OpenImage(args[0])
		if err != nil {
			return err
		}
		img, err := src.Load(ctx)
		if err != nil {
			return fmt.Errorf("failed to load image: %w", err)
		}
		req.Image = img
		req.ImageMIME = storage.DetectMIME(img)
	}

	if analyzeWindowName != "" {
		w, err := parseWindow(analyzeWindowName, analyzeWindowStart, analyzeWindowEnd, time.Now())
		if err != nil {
			return err
		}
		req.Window = &w
	}

	logger := mealagent.StageLogger(mealagent.NewNoOpStageLogger())
	if dir := a.Config.Agent.StageLogDir; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create stage log dir: %w", err)
		}
		f, err := os.Create(mealagent.NewStageLogFilePath(dir, "analyze"))
		if err != nil {
			return fmt.Errorf("failed to create stage log: %w", err)
		}
		defer f.Close()

		fl := mealagent.NewFileStageLogger(f)
		defer func() {
			if err := fl.Flush(); err != nil {
				slog.Error("Failed to flush stage log", "error", err)
			}
			slog.Info("SETUP: Stage log written", "path", filepath.Clean(f.Name()))
		}()
		logger = fl
	}

	o := a.Orchestrator(logger)

	states, unsubscribe := o.Subscribe()
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		for st := range states {
			if !analyzeQuiet && st.IsActive {
				fmt.Fprintf(os.Stderr, "%s\n", st.ProgressMessage)
			}
		}
	}()

	res, err := o.Analyze(ctx, req)
	unsubscribe()
	<-progressDone
	if err != nil {
		return err
	}

	if debug {
		mealagent.Dump(os.Stderr, "analysis result", res)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
