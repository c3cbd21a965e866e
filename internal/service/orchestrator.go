package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kursadbilgin/dncl-gateway/internal/domain"
	"github.com/kursadbilgin/dncl-gateway/internal/observability"
)

// Invoker applies one list operation against a single target.
type Invoker interface {
	Target() domain.Target
	Invoke(ctx context.Context, op domain.Operation, req domain.TargetRequest, creds *domain.Credentials) domain.TargetOutcome
}

// Execution describes one fan-out over the requested targets.
type Execution struct {
	Operation   domain.Operation
	Request     domain.TargetRequest
	Targets     []domain.Target
	Credentials domain.CredentialSet
}

// Result holds one outcome per requested target and their reconciliation.
type Result struct {
	Status   domain.AggregateStatus
	Outcomes map[domain.Target]domain.TargetOutcome
}

type Orchestrator struct {
	invokers map[domain.Target]Invoker
	logger   *zap.Logger
	metrics  *observability.Metrics
}

func NewOrchestrator(invokers []Invoker, logger *zap.Logger) (*Orchestrator, error) {
	if len(invokers) == 0 {
		return nil, errors.New("at least one invoker is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	byTarget := make(map[domain.Target]Invoker, len(invokers))
	for _, invoker := range invokers {
		if invoker == nil {
			return nil, errors.New("invoker must not be nil")
		}
		target := invoker.Target()
		if _, exists := byTarget[target]; exists {
			return nil, fmt.Errorf("duplicate invoker for target %q", target)
		}
		byTarget[target] = invoker
	}

	return &Orchestrator{invokers: byTarget, logger: logger}, nil
}

func (o *Orchestrator) SetMetrics(metrics *observability.Metrics) {
	o.metrics = metrics
}

// Execute runs every requested target concurrently and reconciles only after
// all of them have produced an outcome. Target failures never surface as an
// error; only an invalid execution does.
func (o *Orchestrator) Execute(ctx context.Context, exec Execution) (*Result, error) {
	if err := o.validate(exec); err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		outcomes = make(map[domain.Target]domain.TargetOutcome, len(exec.Targets))
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, target := range exec.Targets {
		target := target
		invoker := o.invokers[target]
		creds := exec.Credentials[target]

		g.Go(func() error {
			outcome := o.invokeSafely(gctx, invoker, exec, creds)

			mu.Lock()
			outcomes[target] = outcome
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	status := domain.Reconcile(outcomes)
	o.metrics.IncAggregateStatus(exec.Operation.String(), status.String())

	observability.ContextLogger(o.logger, ctx).Info("targets reconciled",
		zap.String("operation", exec.Operation.String()),
		zap.Int("targets", len(exec.Targets)),
		zap.String("status", status.String()),
	)

	return &Result{Status: status, Outcomes: outcomes}, nil
}

func (o *Orchestrator) invokeSafely(
	ctx context.Context,
	invoker Invoker,
	exec Execution,
	creds *domain.Credentials,
) (outcome domain.TargetOutcome) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("invoker panicked",
				zap.String("target", invoker.Target().Label()),
				zap.Any("panic", r),
			)
			outcome = domain.Failed("internal failure", fmt.Sprint(r))
		}
	}()

	return invoker.Invoke(ctx, exec.Operation, exec.Request, creds)
}

func (o *Orchestrator) validate(exec Execution) error {
	if !exec.Operation.IsValid() {
		return fmt.Errorf("%w: unknown operation %q", domain.ErrValidation, exec.Operation)
	}
	if exec.Request.IsZero() {
		return fmt.Errorf("%w: request is required", domain.ErrValidation)
	}
	if len(exec.Targets) == 0 {
		return fmt.Errorf("%w: at least one target is required", domain.ErrValidation)
	}

	seen := make(map[domain.Target]struct{}, len(exec.Targets))
	for _, target := range exec.Targets {
		if _, ok := o.invokers[target]; !ok {
			return fmt.Errorf("%w: unknown target %q", domain.ErrValidation, target)
		}
		if _, dup := seen[target]; dup {
			return fmt.Errorf("%w: target %q requested twice", domain.ErrValidation, target)
		}
		seen[target] = struct{}{}
	}
	return nil
}
