package observability

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "dncl-gateway"

// Log encodings accepted by NewLogger.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

type requestScopeKey struct{}

// requestScope is what the front door knows about the caller.
type requestScope struct {
	requestID string
	clientIP  string
}

// NewLogger builds the process logger. An empty level means info and an
// empty format means json.
func NewLogger(level string, format string) (*zap.Logger, error) {
	normalized := strings.ToLower(strings.TrimSpace(level))
	if normalized == "" {
		normalized = "info"
	}
	atomicLevel, err := zap.ParseAtomicLevel(normalized)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encoding := strings.ToLower(strings.TrimSpace(format))
	switch encoding {
	case "":
		encoding = FormatJSON
	case FormatJSON, FormatConsole:
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = atomicLevel
	cfg.Encoding = encoding
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if encoding == FormatConsole {
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	cfg.DisableStacktrace = true
	cfg.InitialFields = map[string]any{"service": serviceName}

	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// WithRequestScope attaches the request id and caller address to ctx.
func WithRequestScope(ctx context.Context, requestID string, clientIP string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestScopeKey{}, requestScope{
		requestID: strings.TrimSpace(requestID),
		clientIP:  strings.TrimSpace(clientIP),
	})
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	scope, ok := scopeFromContext(ctx)
	if !ok || scope.requestID == "" {
		return "", false
	}
	return scope.requestID, true
}

// ContextLogger tags logger with whatever request scope ctx carries.
func ContextLogger(logger *zap.Logger, ctx context.Context) *zap.Logger {
	if logger == nil {
		return nil
	}

	scope, ok := scopeFromContext(ctx)
	if !ok {
		return logger
	}

	fields := make([]zap.Field, 0, 2)
	if scope.requestID != "" {
		fields = append(fields, zap.String("requestId", scope.requestID))
	}
	if scope.clientIP != "" {
		fields = append(fields, zap.String("clientIp", scope.clientIP))
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

func scopeFromContext(ctx context.Context) (requestScope, bool) {
	if ctx == nil {
		return requestScope{}, false
	}
	scope, ok := ctx.Value(requestScopeKey{}).(requestScope)
	return scope, ok
}
