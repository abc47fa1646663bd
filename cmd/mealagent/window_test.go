package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWindow(t *testing.T) {
	day := time.Date(2025, 3, 1, 15, 4, 5, 0, time.UTC)

	tests := []struct {
		name      string
		window    string
		start     string
		end       string
		wantStart time.Time
		wantEnd   time.Time
		wantErr   bool
	}{
		{name: "full window", window: "Breakfast", start: "07:00", end: "09:30", wantStart: time.Date(2025, 3, 1, 7, 0, 0, 0, time.UTC), wantEnd: time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)},
		{name: "default length", window: "Snack", start: "15:00", wantStart: time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC), wantEnd: time.Date(2025, 3, 1, 16, 0, 0, 0, time.UTC)},
		{name: "missing name", window: " ", start: "07:00", wantErr: true},
		{name: "bad clock", window: "Lunch", start: "noon", wantErr: true},
		{name: "inverted", window: "Dinner", start: "20:00", end: "18:00", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := parseWindow(tt.window, tt.start, tt.end, day)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, w.Start)
			assert.Equal(t, tt.wantEnd, w.End)
		})
	}
}
