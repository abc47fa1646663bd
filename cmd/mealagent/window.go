package main

import (
	"fmt"
	"strings"
	"time"

	"mealagent"
)

// parseWindow builds a meal window on day from HH:MM bounds. A missing end means one hour.
func parseWindow(name, start, end string, day time.Time) (mealagent.MealWindow, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return mealagent.MealWindow{}, fmt.Errorf("meal window needs a name")
	}

	s, err := clock(start, day)
	if err != nil {
		return mealagent.MealWindow{}, fmt.Errorf("window %s start: %w", name, err)
	}
	e := s.Add(time.Hour)
	if strings.TrimSpace(end) != "" {
		if e, err = clock(end, day); err != nil {
			return mealagent.MealWindow{}, fmt.Errorf("window %s end: %w", name, err)
		}
	}
	if !e.After(s) {
		return mealagent.MealWindow{}, fmt.Errorf("window %s ends before it starts", name)
	}
	return mealagent.MealWindow{Name: name, Start: s, End: e}, nil
}

func clock(hhmm string, day time.Time) (time.Time, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}
