package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/kursadbilgin/dncl-gateway/internal/domain"
	"github.com/kursadbilgin/dncl-gateway/internal/observability"
)

const subjectPrefix = "Erro ao enviar para DNCL"

var bodyTemplate = template.Must(template.New("failure").Parse(`<h2>Erro no envio para DNCL {{.Environment}}</h2>
<h3>Body recebido:</h3>
<pre>{{.Request}}</pre>
<h3>Erro:</h3>
<pre>{{.ErrorDetail}}</pre>
`))

type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromName  string
	FromEmail string
	To        []string
}

// SMTPNotifier mails failure notifications over implicit TLS with PLAIN auth.
type SMTPNotifier struct {
	cfg    SMTPConfig
	logger *zap.Logger
	send   func(ctx context.Context, msg *mail.Msg) error
}

func NewSMTPNotifier(cfg SMTPConfig, logger *zap.Logger) (*SMTPNotifier, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp host is required")
	}
	if len(cfg.To) == 0 {
		return nil, errors.New("at least one smtp recipient is required")
	}
	if strings.TrimSpace(cfg.FromEmail) == "" {
		cfg.FromEmail = cfg.Username
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	n := &SMTPNotifier{cfg: cfg, logger: logger}
	n.send = n.dialAndSend
	return n, nil
}

func (n *SMTPNotifier) Notify(ctx context.Context, notification domain.FailureNotification) error {
	msg, err := n.buildMessage(notification)
	if err != nil {
		return err
	}

	if err := n.send(ctx, msg); err != nil {
		return fmt.Errorf("send failure notification: %w", err)
	}

	observability.ContextLogger(n.logger, ctx).Info("failure notification sent",
		zap.String("environment", notification.Environment),
		zap.Int("attachments", len(notification.Attachments)),
	)
	return nil
}

func (n *SMTPNotifier) buildMessage(notification domain.FailureNotification) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat(n.cfg.FromName, n.cfg.FromEmail); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(n.cfg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(Subject(notification.Environment))

	if err := msg.SetBodyHTMLTemplate(bodyTemplate, newTemplateData(notification)); err != nil {
		return nil, fmt.Errorf("render notification body: %w", err)
	}

	for _, path := range notification.Attachments {
		if _, err := os.Stat(path); err != nil {
			n.logger.Warn("skipping missing attachment", zap.String("path", path), zap.Error(err))
			continue
		}
		msg.AttachFile(path, mail.WithFileName(filepath.Base(path)))
	}

	return msg, nil
}

func (n *SMTPNotifier) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	options := []mail.Option{
		mail.WithSSL(),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(n.cfg.Username),
		mail.WithPassword(n.cfg.Password),
	}
	if n.cfg.Port > 0 {
		options = append(options, mail.WithPort(n.cfg.Port))
	}

	client, err := mail.NewClient(n.cfg.Host, options...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// Subject is the mail subject for a failure in environment.
func Subject(environment string) string {
	return subjectPrefix + " " + environment
}

type templateData struct {
	Environment string
	Request     string
	ErrorDetail string
}

func newTemplateData(notification domain.FailureNotification) templateData {
	request, err := json.MarshalIndent(notification.Request, "", "  ")
	if err != nil {
		request = []byte("{}")
	}

	return templateData{
		Environment: notification.Environment,
		Request:     string(request),
		ErrorDetail: notification.ErrorDetail,
	}
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, domain.FailureNotification) error { return nil }
