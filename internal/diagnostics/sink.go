package diagnostics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Environment labels written to request log entries.
const (
	EnvironmentCloud   = "Cloud"
	EnvironmentOnPrem  = "OnPremise"
	EnvironmentUnified = "Unified"
	EnvironmentGlobal  = "GLOBAL"
)

const (
	logFileDateLayout = "2006-01-02"
	dumpFileLayout    = "2006-01-02T15-04-05.000Z"
)

// Entry is one request log record. Response and Error are mutually
// exclusive in practice; both are omitted when nil.
type Entry struct {
	Environment string
	IP          string
	Method      string
	URL         string
	Headers     map[string]string
	Body        any
	Response    any
	Error       any
}

type logLine struct {
	Timestamp   string            `json:"timestamp"`
	Environment string            `json:"environment,omitempty"`
	IP          string            `json:"ip,omitempty"`
	Method      string            `json:"method,omitempty"`
	URL         string            `json:"url,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        any               `json:"body,omitempty"`
	Response    any               `json:"response,omitempty"`
	Error       any               `json:"error,omitempty"`
}

type errorDump struct {
	Timestamp string `json:"timestamp"`
	Error     any    `json:"error"`
	Body      any    `json:"body"`
}

// FileSink keeps a daily request log and one file per error dump.
type FileSink struct {
	logsDir   string
	errorsDir string
	logger    *zap.Logger

	now   func() time.Time
	newID func() string

	mu sync.Mutex
}

func NewFileSink(logsDir string, errorsDir string, logger *zap.Logger) (*FileSink, error) {
	logsDir = strings.TrimSpace(logsDir)
	errorsDir = strings.TrimSpace(errorsDir)
	if logsDir == "" {
		return nil, errors.New("logs directory is required")
	}
	if errorsDir == "" {
		return nil, errors.New("errors directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, dir := range []string{logsDir, errorsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create diagnostics directory %q: %w", dir, err)
		}
	}

	return &FileSink{
		logsDir:   logsDir,
		errorsDir: errorsDir,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.NewString()[:8] },
	}, nil
}

// LogRequest appends entry to today's log file.
func (s *FileSink) LogRequest(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := s.now()
	line := logLine{
		Timestamp:   now.Format(time.RFC3339Nano),
		Environment: entry.Environment,
		IP:          entry.IP,
		Method:      entry.Method,
		URL:         entry.URL,
		Headers:     RedactHeaders(entry.Headers),
		Body:        Redact(entry.Body),
		Response:    Redact(entry.Response),
		Error:       normalizeError(entry.Error),
	}

	payload, err := json.MarshalIndent(line, "", "  ")
	if err != nil {
		return fmt.Errorf("encode request log entry: %w", err)
	}
	payload = append(payload, '\n')

	path := filepath.Join(s.logsDir, now.Format(logFileDateLayout)+".log")

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open request log %q: %w", path, err)
	}
	defer file.Close()

	if _, err := file.Write(payload); err != nil {
		return fmt.Errorf("write request log %q: %w", path, err)
	}
	return nil
}

// SaveErrorDump writes the failure and the offending body to a new file and
// returns its path.
func (s *FileSink) SaveErrorDump(ctx context.Context, errDetail any, body any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	now := s.now()
	dump := errorDump{
		Timestamp: now.Format(time.RFC3339Nano),
		Error:     normalizeError(errDetail),
		Body:      Redact(body),
	}

	payload, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode error dump: %w", err)
	}

	name := fmt.Sprintf("%s-%s.json", now.Format(dumpFileLayout), s.newID())
	path := filepath.Join(s.errorsDir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("write error dump %q: %w", path, err)
	}

	s.logger.Debug("error dump saved", zap.String("path", path))
	return path, nil
}

func normalizeError(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return map[string]string{"message": v}
	case error:
		return map[string]string{"message": v.Error()}
	default:
		return Redact(v)
	}
}
