package models

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type WorkflowLogger struct {
	file    *os.File
	encoder *json.Encoder
}

func NewWorkflowLogger(baseDir string, wid WorkflowId) (*WorkflowLogger, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}

	file, err := os.OpenFile(LogFilePath(baseDir, wid), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("creating log file: %w", err)
	}

	return &WorkflowLogger{
		file:    file,
		encoder: json.NewEncoder(file),
	}, nil
}

func LogFilePath(baseDir string, wid WorkflowId) string {
	return filepath.Join(baseDir, fmt.Sprintf("%s.log", wid.String()))
}

// SummaryFilePath is where the rendered Markdown run summary for a
// workflow lives, next to its log.
func SummaryFilePath(baseDir string, wid WorkflowId) string {
	return filepath.Join(baseDir, fmt.Sprintf("%s.summary.md", wid.String()))
}

func (l *WorkflowLogger) Close() error {
	return l.file.Close()
}

func (l *WorkflowLogger) DataWriter(idx int, stream string) io.Writer {
	return &dataWriter{
		logger: l,
		idx:    idx,
		stream: stream,
	}
}

func (l *WorkflowLogger) Control(idx int, step Step, status StepStatus) error {
	return l.encoder.Encode(NewControlLogLine(idx, step, status))
}

type dataWriter struct {
	logger *WorkflowLogger
	idx    int
	stream string
}

func (w *dataWriter) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\r\n")
	entry := NewDataLogLine(w.idx, line, w.stream)
	if err := w.logger.encoder.Encode(entry); err != nil {
		return 0, err
	}
	return len(p), nil
}
