package mealagent

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StageLogger records what each inference stage saw and produced.
type StageLogger interface {
	LogStage(stage StageLog) error
}

// NewStageLogFilePath returns a file path keyed by time and request so runs are easy to find.
func NewStageLogFilePath(dir, requestID string) string {
	return filepath.Join(dir, fmt.Sprintf("%d.%s.json", time.Now().Unix(), requestID))
}

// StageLog represents a single stage of one analysis
type StageLog struct {
	RequestID        string    `json:"request_id"`
	Stage            Tool      `json:"stage"`
	Timestamp        time.Time `json:"timestamp"`
	PromptBytes      int       `json:"prompt_bytes"`
	RawOutput        string    `json:"raw_output,omitempty"`
	Fallback         bool      `json:"fallback"`
	ConfidenceBefore float64   `json:"confidence_before"`
	ConfidenceAfter  float64   `json:"confidence_after"`
	CacheHit         bool      `json:"cache_hit,omitempty"`
	Error            string    `json:"error,omitempty"`
}

// FileStageLogger accumulates stages and writes them as one document on Flush
type FileStageLogger struct {
	mu     sync.Mutex
	stages []StageLog
	writer io.Writer
}

func NewFileStageLogger(writer io.Writer) *FileStageLogger {
	return &FileStageLogger{
		stages: make([]StageLog, 0),
		writer: writer,
	}
}

func (l *FileStageLogger) LogStage(stage StageLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stages = append(l.stages, stage)
	return nil
}

// Flush flushes all accumulated stages to the writer
func (l *FileStageLogger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer == nil {
		return nil
	}

	data, err := json.MarshalIndent(map[string]any{
		"analysis_session": map[string]any{
			"timestamp": time.Now(),
			"stages":    l.stages,
		},
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stage log: %w", err)
	}

	if _, err := l.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write stage log: %w", err)
	}

	l.stages = l.stages[:0]
	return nil
}

type NoOpStageLogger struct{}

func NewNoOpStageLogger() *NoOpStageLogger {
	return &NoOpStageLogger{}
}

func (nop *NoOpStageLogger) LogStage(stage StageLog) error {
	return nil
}

// StdoutStageLogger logs each stage as a JSON line to stdout (for Lambda/CloudWatch)
type StdoutStageLogger struct {
	out io.Writer
}

func NewStdoutStageLogger() *StdoutStageLogger {
	return &StdoutStageLogger{out: os.Stdout}
}

func (l *StdoutStageLogger) LogStage(stage StageLog) error {
	data, err := json.Marshal(stage)
	if err != nil {
		return err
	}
	fmt.Fprintln(l.out, string(data))
	return nil
}
