package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kursadbilgin/dncl-gateway/internal/diagnostics"
	"github.com/kursadbilgin/dncl-gateway/internal/domain"
	"github.com/kursadbilgin/dncl-gateway/internal/observability"
)

// ErrNoTargetCredentials is returned when a removal names no target at all.
var ErrNoTargetCredentials = errors.New("no target credentials supplied")

// RemoveCommand is a removal from every target whose credentials are present.
type RemoveCommand struct {
	ListName    string
	PhoneNumber string
	Cloud       *domain.Credentials
	OnPrem      *domain.Credentials
}

// OutcomeView is the client-facing shape of one target outcome.
type OutcomeView struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// ViewOutcomes keys every outcome by its target's JSON key.
func ViewOutcomes(outcomes map[domain.Target]domain.TargetOutcome) map[string]OutcomeView {
	views := make(map[string]OutcomeView, len(outcomes))
	for target, outcome := range outcomes {
		views[target.JSONKey()] = OutcomeView{
			Status:  outcome.Tag.String(),
			Message: outcome.Reason,
			Detail:  outcome.Detail,
		}
	}
	return views
}

type DNCLService struct {
	orchestrator *Orchestrator
	dispatcher   *Dispatcher
	uploadCreds  domain.CredentialSet
	logger       *zap.Logger
}

// NewDNCLService wires the use cases. uploadCreds holds the server-held
// credentials passed explicitly on uploads; a target absent from it relies on
// its invoker's own fallback.
func NewDNCLService(
	orchestrator *Orchestrator,
	dispatcher *Dispatcher,
	uploadCreds domain.CredentialSet,
	logger *zap.Logger,
) (*DNCLService, error) {
	if orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DNCLService{
		orchestrator: orchestrator,
		dispatcher:   dispatcher,
		uploadCreds:  uploadCreds,
		logger:       logger,
	}, nil
}

// Upload adds number to list on a single target using server-held credentials.
func (s *DNCLService) Upload(
	ctx context.Context,
	target domain.Target,
	listName string,
	number string,
	info RequestInfo,
) (domain.TargetOutcome, error) {
	environment := target.Label()

	req, err := domain.NewTargetRequest(listName, number)
	if err != nil {
		s.dispatcher.Reject(ctx, environment, info, err.Error())
		return domain.TargetOutcome{}, err
	}

	var creds domain.CredentialSet
	if explicit := s.uploadCreds[target]; explicit != nil {
		creds = domain.CredentialSet{target: explicit}
	}

	result, err := s.orchestrator.Execute(ctx, Execution{
		Operation:   domain.OperationAdd,
		Request:     req,
		Targets:     []domain.Target{target},
		Credentials: creds,
	})
	if err != nil {
		return domain.TargetOutcome{}, s.fail(ctx, environment, info, err)
	}

	outcome := result.Outcomes[target]
	s.dispatcher.Dispatch(ctx, Event{
		Environment: environment,
		Operation:   domain.OperationAdd,
		Request:     req,
		Credentials: creds,
		Result:      result,
		Info:        info,
		Response:    ViewOutcomes(result.Outcomes)[target.JSONKey()],
	})

	return outcome, nil
}

// RemoveAll removes number from every target that has credentials in cmd.
func (s *DNCLService) RemoveAll(ctx context.Context, cmd RemoveCommand, info RequestInfo) (*Result, error) {
	req, err := domain.NewTargetRequest(cmd.ListName, cmd.PhoneNumber)
	if err != nil {
		s.dispatcher.Reject(ctx, diagnostics.EnvironmentUnified, info, err.Error())
		return nil, err
	}

	creds := domain.CredentialSet{}
	var targets []domain.Target
	if cmd.Cloud != nil {
		creds[domain.TargetCloud] = cmd.Cloud
		targets = append(targets, domain.TargetCloud)
	}
	if cmd.OnPrem != nil {
		creds[domain.TargetOnPrem] = cmd.OnPrem
		targets = append(targets, domain.TargetOnPrem)
	}
	if len(targets) == 0 {
		s.dispatcher.Reject(ctx, diagnostics.EnvironmentUnified, info, ErrNoTargetCredentials.Error())
		return nil, ErrNoTargetCredentials
	}

	result, err := s.orchestrator.Execute(ctx, Execution{
		Operation:   domain.OperationRemove,
		Request:     req,
		Targets:     targets,
		Credentials: creds,
	})
	if err != nil {
		return nil, s.fail(ctx, diagnostics.EnvironmentUnified, info, err)
	}

	s.dispatcher.Dispatch(ctx, Event{
		Environment: diagnostics.EnvironmentUnified,
		Operation:   domain.OperationRemove,
		Request:     req,
		Credentials: creds,
		Result:      result,
		Info:        info,
		Response:    ViewOutcomes(result.Outcomes),
	})

	return result, nil
}

// Reject records a request refused before reaching the targets.
func (s *DNCLService) Reject(ctx context.Context, environment string, info RequestInfo, cause any) {
	s.dispatcher.Reject(ctx, environment, info, cause)
}

func (s *DNCLService) fail(ctx context.Context, environment string, info RequestInfo, err error) error {
	if errors.Is(err, domain.ErrValidation) {
		s.dispatcher.Reject(ctx, environment, info, err.Error())
		return err
	}

	observability.ContextLogger(s.logger, ctx).Error("dncl call failed",
		zap.String("environment", environment),
		zap.Error(err),
	)
	s.dispatcher.Fault(ctx, environment, info, err)
	return fmt.Errorf("execute %s call: %w", environment, err)
}
