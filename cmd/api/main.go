package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kursadbilgin/dncl-gateway/internal/config"
	"github.com/kursadbilgin/dncl-gateway/internal/diagnostics"
	"github.com/kursadbilgin/dncl-gateway/internal/domain"
	"github.com/kursadbilgin/dncl-gateway/internal/handler"
	"github.com/kursadbilgin/dncl-gateway/internal/infra/postgresql"
	"github.com/kursadbilgin/dncl-gateway/internal/infra/postgresql/migrations"
	"github.com/kursadbilgin/dncl-gateway/internal/notifier"
	"github.com/kursadbilgin/dncl-gateway/internal/observability"
	"github.com/kursadbilgin/dncl-gateway/internal/provider"
	"github.com/kursadbilgin/dncl-gateway/internal/repository"
	"github.com/kursadbilgin/dncl-gateway/internal/service"
	"github.com/kursadbilgin/dncl-gateway/internal/transport"
)

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("dncl-gateway stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	pool, err := postgresql.NewPool(postgresql.DSNOpener(cfg.AuditDSN), logger)
	if err != nil {
		return fmt.Errorf("audit pool: %w", err)
	}
	defer pool.Close() //nolint:errcheck

	migrateAuditStore(ctx, pool, cfg.AuditDBName, logger)

	audit, err := repository.NewGormRemovalRepo(pool, cfg.AuditDBName)
	if err != nil {
		return fmt.Errorf("audit repository: %w", err)
	}

	sink, err := diagnostics.NewFileSink(cfg.LogsDir, cfg.ErrorsDir, logger)
	if err != nil {
		return fmt.Errorf("diagnostics sink: %w", err)
	}

	mailer, err := newNotifier(cfg, logger)
	if err != nil {
		return fmt.Errorf("notifier: %w", err)
	}

	cloud, err := newInvoker(domain.TargetCloud, provider.Endpoint{
		BaseURL:         cfg.CloudBaseURL,
		InstanceAddress: cfg.InstanceCloud,
		TLSVerify:       cfg.CloudTLSVerify,
		Timeout:         cfg.VendorTimeout,
	}, nil, logger, metrics)
	if err != nil {
		return fmt.Errorf("cloud invoker: %w", err)
	}

	onPrem, err := newInvoker(domain.TargetOnPrem, provider.Endpoint{
		BaseURL:         cfg.OnPremBaseURL,
		InstanceAddress: cfg.InstanceOnPrem,
		TLSVerify:       cfg.OnPremTLSVerify,
		Timeout:         cfg.VendorTimeout,
	}, cfg.ServerCredentials(domain.TargetOnPrem), logger, metrics)
	if err != nil {
		return fmt.Errorf("on-prem invoker: %w", err)
	}

	orchestrator, err := service.NewOrchestrator([]service.Invoker{cloud, onPrem}, logger)
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	orchestrator.SetMetrics(metrics)

	dispatcher, err := service.NewDispatcher(audit, sink, mailer, logger)
	if err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}
	dispatcher.SetMetrics(metrics)
	dispatcher.SetStepTimeout(cfg.SideChannelTimeout)

	uploadCreds := domain.CredentialSet{
		domain.TargetCloud: cfg.ServerCredentials(domain.TargetCloud),
	}

	svc, err := service.NewDNCLService(orchestrator, dispatcher, uploadCreds, logger)
	if err != nil {
		return fmt.Errorf("dncl service: %w", err)
	}

	app := fiber.New(fiber.Config{
		AppName:               "dncl-gateway",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger, sink),
	})
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(observability.RequestScopeMiddleware())
	app.Use(metrics.HTTPMiddleware())

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, func(ctx context.Context) error {
		return pool.Ping(ctx, cfg.AuditDBName)
	})
	if err := handler.RegisterDNCLRoutes(app, svc); err != nil {
		return fmt.Errorf("register routes: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("dncl-gateway api started", zap.Int("port", cfg.APIPort))
		serverErr <- app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down dncl-gateway api")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// migrateAuditStore keeps the gateway serving when the audit database is
// down at startup; audit writes fail individually until it comes back.
func migrateAuditStore(ctx context.Context, pool *postgresql.Pool, database string, logger *zap.Logger) {
	startupCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	db, err := pool.Get(startupCtx, database)
	if err != nil {
		logger.Error("audit database unavailable at startup", zap.Error(err))
		return
	}
	if err := migrations.Migrate(db); err != nil {
		logger.Error("audit database migrations failed", zap.Error(err))
	}
}

func newInvoker(
	target domain.Target,
	endpoint provider.Endpoint,
	fallback *domain.Credentials,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*provider.Invoker, error) {
	client, err := provider.NewRestyClient(endpoint)
	if err != nil {
		return nil, err
	}
	auth, err := provider.NewAuthenticator(client, endpoint.InstanceAddress)
	if err != nil {
		return nil, err
	}
	lists, err := provider.NewListClient(client)
	if err != nil {
		return nil, err
	}

	invoker, err := provider.NewInvoker(target, auth, lists, fallback, logger)
	if err != nil {
		return nil, err
	}
	invoker.SetMetrics(metrics)
	return invoker, nil
}

func newNotifier(cfg *config.Config, logger *zap.Logger) (*notifier.SMTPNotifier, error) {
	return notifier.NewSMTPNotifier(notifier.SMTPConfig{
		Host:      cfg.SMTPHost,
		Port:      cfg.SMTPPort,
		Username:  cfg.SMTPUser,
		Password:  cfg.SMTPPass,
		FromName:  cfg.SMTPFromName,
		FromEmail: cfg.SMTPFromEmail,
		To:        cfg.SMTPRecipients(),
	}, logger)
}
