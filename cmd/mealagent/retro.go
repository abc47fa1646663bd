package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mealagent"
)

var (
	retroWindows []string
	retroDate    string
)

var retroCmd = &cobra.Command{
	Use:   "retro <description>",
	Short: "Log several past meals from one description",
	Long: `Turn a free-text description of earlier meals into meal records, one per
meal window, in order. Falls back to keyword matching when the model is unavailable.

Examples:
  mealagent retro "eggs and toast, then a chicken salad" \
    --window Breakfast=07:00-09:00 --window Lunch=12:00-14:00`,
	Args: cobra.ExactArgs(1),
	RunE: runRetro,
}

func init() {
	rootCmd.AddCommand(retroCmd)

	retroCmd.Flags().StringArrayVar(&retroWindows, "window", []string{"Breakfast=07:00-10:00", "Lunch=12:00-14:00", "Dinner=18:00-21:00"}, "meal window as Name=HH:MM-HH:MM, repeatable, in order")
	retroCmd.Flags().StringVar(&retroDate, "date", "", "day the meals were eaten (YYYY-MM-DD, default today)")
}

func runRetro(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	day := time.Now()
	if retroDate != "" {
		d, err := time.ParseInLocation(time.DateOnly, retroDate, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
		day = d
	}

	windows := make([]mealagent.MealWindow, 0, len(retroWindows))
	for _, arg := range retroWindows {
		name, span, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("invalid --window %q: want Name=HH:MM-HH:MM", arg)
		}
		start, end, ok := strings.Cut(span, "-")
		if !ok {
			return fmt.Errorf("invalid --window %q: want Name=HH:MM-HH:MM", arg)
		}
		w, err := parseWindow(name, start, end, day)
		if err != nil {
			return err
		}
		windows = append(windows, w)
	}

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	shutdown := initOtel(ctx)
	defer shutdown()

	records := a.Retrospective().ParseMeals(ctx, args[0], windows)

	if a.Webhook != nil && len(records) > 0 {
		if err := a.Webhook.PublishRecords(ctx, records); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to publish records: %v\n", err)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}
