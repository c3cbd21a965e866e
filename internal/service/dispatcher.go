package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kursadbilgin/dncl-gateway/internal/diagnostics"
	"github.com/kursadbilgin/dncl-gateway/internal/domain"
	"github.com/kursadbilgin/dncl-gateway/internal/observability"
)

const (
	stepAudit       = "audit"
	stepDiagnostics = "diagnostics"
	stepErrorDump   = "error_dump"
	stepNotify      = "notify"

	defaultStepTimeout = 30 * time.Second
)

// AuditStore persists the trace of a removal call.
type AuditStore interface {
	RecordRemoval(ctx context.Context, record domain.AuditRecord) error
}

// DiagnosticsSink writes request logs and error dumps.
type DiagnosticsSink interface {
	LogRequest(ctx context.Context, entry diagnostics.Entry) error
	SaveErrorDump(ctx context.Context, errDetail any, body any) (string, error)
}

// Notifier raises failure notifications out of band.
type Notifier interface {
	Notify(ctx context.Context, notification domain.FailureNotification) error
}

// RequestInfo is the inbound request as seen by the front door.
type RequestInfo struct {
	IP      string
	Method  string
	URL     string
	Headers map[string]string
	Body    any
}

// Event is everything the side channels need about one completed call.
type Event struct {
	Environment string
	Operation   domain.Operation
	Request     domain.TargetRequest
	Credentials domain.CredentialSet
	Result      *Result
	Info        RequestInfo
	Response    any
}

// Dispatcher runs the post-call side channels. No step can fail the call or
// stop a later step, and each step is bounded by the step timeout.
type Dispatcher struct {
	audit       AuditStore
	diagnostics DiagnosticsSink
	notifier    Notifier
	logger      *zap.Logger
	metrics     *observability.Metrics
	stepTimeout time.Duration
}

func NewDispatcher(audit AuditStore, sink DiagnosticsSink, notifier Notifier, logger *zap.Logger) (*Dispatcher, error) {
	if audit == nil {
		return nil, errors.New("audit store is required")
	}
	if sink == nil {
		return nil, errors.New("diagnostics sink is required")
	}
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		audit:       audit,
		diagnostics: sink,
		notifier:    notifier,
		logger:      logger,
		stepTimeout: defaultStepTimeout,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	d.metrics = metrics
}

// SetStepTimeout bounds every side channel step. Non-positive values keep
// the current timeout.
func (d *Dispatcher) SetStepTimeout(timeout time.Duration) {
	if timeout > 0 {
		d.stepTimeout = timeout
	}
}

// Dispatch writes the audit row (removals only), the request log entry and,
// for every failed target, an error dump plus a notification.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) {
	ctx = context.WithoutCancel(ctx)
	logger := observability.ContextLogger(d.logger, ctx)

	if event.Result == nil {
		logger.Error("dispatch called without a result")
		return
	}

	if event.Operation == domain.OperationRemove {
		record := domain.NewAuditRecord(event.Request, event.Credentials, event.Result.Outcomes, event.Result.Status)
		err := d.run(ctx, logger, stepAudit, func(ctx context.Context) error {
			return d.audit.RecordRemoval(ctx, record)
		})
		if err != nil {
			d.reportFailure(ctx, logger, domain.EnvironmentLogging, event, err.Error())
		}
	}

	d.run(ctx, logger, stepDiagnostics, func(ctx context.Context) error {
		return d.diagnostics.LogRequest(ctx, diagnostics.Entry{
			Environment: event.Environment,
			IP:          event.Info.IP,
			Method:      event.Info.Method,
			URL:         event.Info.URL,
			Headers:     event.Info.Headers,
			Body:        event.Info.Body,
			Response:    event.Response,
		})
	})

	for _, target := range domain.AllTargets {
		outcome, ok := event.Result.Outcomes[target]
		if !ok || !outcome.IsError() {
			continue
		}
		d.reportFailure(ctx, logger, target.Label(), event, describeOutcome(outcome))
	}
}

// Reject logs a request that never reached the targets.
func (d *Dispatcher) Reject(ctx context.Context, environment string, info RequestInfo, cause any) {
	ctx = context.WithoutCancel(ctx)
	logger := observability.ContextLogger(d.logger, ctx)

	d.run(ctx, logger, stepDiagnostics, func(ctx context.Context) error {
		return d.diagnostics.LogRequest(ctx, diagnostics.Entry{
			Environment: environment,
			IP:          info.IP,
			Method:      info.Method,
			URL:         info.URL,
			Headers:     info.Headers,
			Body:        info.Body,
			Error:       cause,
		})
	})
}

// Fault reports an unexpected failure of the call itself.
func (d *Dispatcher) Fault(ctx context.Context, environment string, info RequestInfo, err error) {
	ctx = context.WithoutCancel(ctx)
	logger := observability.ContextLogger(d.logger, ctx)

	d.Reject(ctx, environment, info, err)
	d.reportFailure(ctx, logger, environment, Event{Info: info}, err.Error())
}

func (d *Dispatcher) reportFailure(ctx context.Context, logger *zap.Logger, environment string, event Event, detail string) {
	var attachments []string

	d.run(ctx, logger, stepErrorDump, func(ctx context.Context) error {
		path, err := d.diagnostics.SaveErrorDump(ctx, detail, event.Info.Body)
		if err != nil {
			return err
		}
		attachments = append(attachments, path)
		return nil
	})

	d.run(ctx, logger, stepNotify, func(ctx context.Context) error {
		return d.notifier.Notify(ctx, domain.FailureNotification{
			Environment: environment,
			Request:     domain.NewRequestSnapshot(event.Request, event.Credentials),
			ErrorDetail: detail,
			Attachments: attachments,
		})
	})
}

func (d *Dispatcher) run(ctx context.Context, logger *zap.Logger, step string, fn func(ctx context.Context) error) (err error) {
	stepCtx, cancel := context.WithTimeout(ctx, d.stepTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.metrics.IncSideChannelFailure(step)
			logger.Error("side channel step panicked", zap.String("step", step), zap.Any("panic", r))
			err = fmt.Errorf("%s step panicked: %v", step, r)
		}
	}()

	if err = fn(stepCtx); err != nil {
		d.metrics.IncSideChannelFailure(step)
		logger.Error("side channel step failed", zap.String("step", step), zap.Error(err))
	}
	return err
}

func describeOutcome(outcome domain.TargetOutcome) string {
	detail := strings.TrimSpace(outcome.Detail)
	if detail == "" || detail == outcome.Reason {
		return outcome.Reason
	}
	return fmt.Sprintf("%s: %s", outcome.Reason, detail)
}
