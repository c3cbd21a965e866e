package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/dncl-gateway/internal/domain"
	"github.com/kursadbilgin/dncl-gateway/internal/observability"
	"go.uber.org/zap"
)

const reasonInternalFailure = "internal failure"

// TokenSource is the authentication port of a target.
type TokenSource interface {
	Authenticate(ctx context.Context, creds domain.Credentials) (string, error)
}

// ListMutator issues the single mutating list call against a target.
type ListMutator interface {
	Mutate(ctx context.Context, op domain.Operation, req domain.TargetRequest, token string) RawOutcome
}

// Invoker authenticates against one target and applies one list operation.
// Every failure path resolves to a TargetOutcome; nothing is retried.
type Invoker struct {
	target   domain.Target
	auth     TokenSource
	lists    ListMutator
	fallback *domain.Credentials
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewInvoker builds the invoker for target. fallback holds server-side
// credentials and is honored for the on-prem target only.
func NewInvoker(
	target domain.Target,
	auth TokenSource,
	lists ListMutator,
	fallback *domain.Credentials,
	logger *zap.Logger,
) (*Invoker, error) {
	if !target.IsValid() {
		return nil, fmt.Errorf("invalid target %q", target)
	}
	if auth == nil {
		return nil, fmt.Errorf("token source is required")
	}
	if lists == nil {
		return nil, fmt.Errorf("list mutator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if target != domain.TargetOnPrem {
		fallback = nil
	}

	return &Invoker{
		target:   target,
		auth:     auth,
		lists:    lists,
		fallback: fallback,
		logger:   logger.With(zap.String("target", target.Label())),
		now:      time.Now,
	}, nil
}

func (i *Invoker) SetMetrics(metrics *observability.Metrics) {
	if i == nil {
		return
	}
	i.metrics = metrics
}

func (i *Invoker) Target() domain.Target { return i.target }

func (i *Invoker) Invoke(
	ctx context.Context,
	op domain.Operation,
	req domain.TargetRequest,
	creds *domain.Credentials,
) (outcome domain.TargetOutcome) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := observability.ContextLogger(i.logger, ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("target invocation panicked", zap.Any("panic", r))
			outcome = domain.Failed(reasonInternalFailure, fmt.Sprint(r))
		}
		i.metrics.IncTargetOutcome(i.target.String(), op.String(), outcome.Tag.String())
	}()

	if !op.IsValid() {
		return domain.Failed(reasonInternalFailure, fmt.Sprintf("unsupported operation %q", op))
	}

	resolved, ok := i.resolveCredentials(creds)
	if !ok {
		logger.Warn("no credentials available for target")
		return domain.Failed(reasonAuthFailed, fmt.Sprintf("credentials are required for %s", i.target.Label()))
	}

	authStart := i.now()
	token, err := i.auth.Authenticate(ctx, resolved)
	i.metrics.ObserveVendorCall(i.target.String(), "authenticate", i.now().Sub(authStart))
	if err != nil {
		logger.Warn("vendor authentication failed",
			zap.String("username", resolved.Username),
			zap.Error(err),
		)
		return domain.Failed(reasonAuthFailed, err.Error())
	}

	mutateStart := i.now()
	raw := i.lists.Mutate(ctx, op, req, token)
	i.metrics.ObserveVendorCall(i.target.String(), strings.ToLower(op.String()), i.now().Sub(mutateStart))

	outcome = Classify(i.target, raw)
	if outcome.IsError() {
		logger.Warn("vendor list call failed",
			zap.String("operation", op.String()),
			zap.Int("status", raw.StatusCode),
			zap.Bool("timeout", IsTimeout(raw.Err)),
			zap.String("reason", outcome.Reason),
		)
		return outcome
	}

	logger.Info("vendor list call completed",
		zap.String("operation", op.String()),
		zap.String("outcome", outcome.Tag.String()),
	)
	return outcome
}

func (i *Invoker) resolveCredentials(explicit *domain.Credentials) (domain.Credentials, bool) {
	if explicit != nil && !explicit.IsZero() {
		return *explicit, true
	}
	if i.fallback != nil && !i.fallback.IsZero() {
		return *i.fallback, true
	}
	return domain.Credentials{}, false
}
