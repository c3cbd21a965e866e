package transport

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/kursadbilgin/dncl-gateway/internal/diagnostics"
	"github.com/kursadbilgin/dncl-gateway/internal/observability"
)

const internalErrorMessage = "Erro interno"

// RequestRecorder receives a diagnostics entry for every unhandled error.
type RequestRecorder interface {
	LogRequest(ctx context.Context, entry diagnostics.Entry) error
}

func ErrorHandler(logger *zap.Logger, recorder RequestRecorder) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := internalErrorMessage
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
			message = e.Message
		}

		ctx := c.UserContext()
		log := observability.ContextLogger(logger, ctx)
		log.Error("request error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		)

		if recorder != nil {
			entry := diagnostics.Entry{
				Environment: diagnostics.EnvironmentGlobal,
				IP:          ClientIP(c),
				Method:      c.Method(),
				URL:         c.OriginalURL(),
				Headers:     diagnostics.RedactHeaders(RequestHeaders(c)),
				Body:        RequestBody(c),
				Error:       err.Error(),
			}
			if recordErr := recorder.LogRequest(context.WithoutCancel(ctx), entry); recordErr != nil {
				log.Warn("failed to record request error", zap.Error(recordErr))
			}
		}

		return c.Status(code).JSON(fiber.Map{
			"message": message,
		})
	}
}
