package service

import (
	"context"
	"sync"

	"github.com/kursadbilgin/dncl-gateway/internal/diagnostics"
	"github.com/kursadbilgin/dncl-gateway/internal/domain"
)

type fakeInvoker struct {
	target   domain.Target
	invokeFn func(ctx context.Context, op domain.Operation, req domain.TargetRequest, creds *domain.Credentials) domain.TargetOutcome

	mu    sync.Mutex
	calls int
	creds []*domain.Credentials
}

func (f *fakeInvoker) Target() domain.Target { return f.target }

func (f *fakeInvoker) Invoke(ctx context.Context, op domain.Operation, req domain.TargetRequest, creds *domain.Credentials) domain.TargetOutcome {
	f.mu.Lock()
	f.calls++
	f.creds = append(f.creds, creds)
	f.mu.Unlock()

	if f.invokeFn != nil {
		return f.invokeFn(ctx, op, req, creds)
	}
	return domain.Succeeded()
}

func returning(outcome domain.TargetOutcome) func(context.Context, domain.Operation, domain.TargetRequest, *domain.Credentials) domain.TargetOutcome {
	return func(context.Context, domain.Operation, domain.TargetRequest, *domain.Credentials) domain.TargetOutcome {
		return outcome
	}
}

type fakeAuditStore struct {
	recordFn func(ctx context.Context, record domain.AuditRecord) error

	mu      sync.Mutex
	records []domain.AuditRecord
}

func (f *fakeAuditStore) RecordRemoval(ctx context.Context, record domain.AuditRecord) error {
	f.mu.Lock()
	f.records = append(f.records, record)
	f.mu.Unlock()

	if f.recordFn != nil {
		return f.recordFn(ctx, record)
	}
	return nil
}

type fakeSink struct {
	logFn  func(ctx context.Context, entry diagnostics.Entry) error
	dumpFn func(ctx context.Context, errDetail any, body any) (string, error)

	mu      sync.Mutex
	entries []diagnostics.Entry
	dumps   []any
}

func (f *fakeSink) LogRequest(ctx context.Context, entry diagnostics.Entry) error {
	f.mu.Lock()
	f.entries = append(f.entries, entry)
	f.mu.Unlock()

	if f.logFn != nil {
		return f.logFn(ctx, entry)
	}
	return nil
}

func (f *fakeSink) SaveErrorDump(ctx context.Context, errDetail any, body any) (string, error) {
	f.mu.Lock()
	f.dumps = append(f.dumps, errDetail)
	f.mu.Unlock()

	if f.dumpFn != nil {
		return f.dumpFn(ctx, errDetail, body)
	}
	return "errors/dump.json", nil
}

type fakeNotifier struct {
	notifyFn func(ctx context.Context, notification domain.FailureNotification) error

	mu            sync.Mutex
	notifications []domain.FailureNotification
}

func (f *fakeNotifier) Notify(ctx context.Context, notification domain.FailureNotification) error {
	f.mu.Lock()
	f.notifications = append(f.notifications, notification)
	f.mu.Unlock()

	if f.notifyFn != nil {
		return f.notifyFn(ctx, notification)
	}
	return nil
}

func (f *fakeNotifier) environments() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	envs := make([]string, 0, len(f.notifications))
	for _, n := range f.notifications {
		envs = append(envs, n.Environment)
	}
	return envs
}
