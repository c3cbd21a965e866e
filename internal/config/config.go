package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"github.com/kursadbilgin/dncl-gateway/internal/domain"
)

type Config struct {
	APIPort   int    `env:"API_PORT,default=3333"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	CloudBaseURL     string `env:"CLOUD_BASE_URL,required=true"`
	OnPremBaseURL    string `env:"ONPREM_BASE_URL,required=true"`
	CloudTLSVerify   bool   `env:"CLOUD_TLS_VERIFY,default=false"`
	OnPremTLSVerify  bool   `env:"ONPREM_TLS_VERIFY,default=false"`
	VendorTimeoutRaw string `env:"VENDOR_TIMEOUT,default=10m"`

	// SideChannelTimeoutRaw bounds each audit, diagnostics and notify step.
	SideChannelTimeoutRaw string `env:"SIDE_CHANNEL_TIMEOUT,default=30s"`

	// Parsed by Load from the raw values above.
	VendorTimeout      time.Duration
	SideChannelTimeout time.Duration

	UserCloud      string `env:"USER_CLOUD,required=true"`
	PasswordCloud  string `env:"PASSWORD_CLOUD,required=true"`
	UserOnPrem     string `env:"USER_ON_PREM,required=true"`
	PasswordOnPrem string `env:"PASSWORD_ON_PREM,required=true"`
	InstanceCloud  string `env:"INSTANCE_CLOUD,required=true"`
	InstanceOnPrem string `env:"INSTANCE_ON_PREM,required=true"`

	AuditDBHost     string `env:"AUDIT_DB_HOST,required=true"`
	AuditDBPort     int    `env:"AUDIT_DB_PORT,default=5432"`
	AuditDBUser     string `env:"AUDIT_DB_USER,required=true"`
	AuditDBPassword string `env:"AUDIT_DB_PASSWORD"`
	AuditDBName     string `env:"AUDIT_DB_NAME,default=easy8"`
	AuditDBSSLMode  string `env:"AUDIT_DB_SSLMODE,default=disable"`

	SMTPHost      string `env:"SMTP_HOST,required=true"`
	SMTPPort      int    `env:"SMTP_PORT,required=true"`
	SMTPUser      string `env:"SMTP_USER,required=true"`
	SMTPPass      string `env:"SMTP_PASS,required=true"`
	SMTPFromName  string `env:"SMTP_FROM_NAME,required=true"`
	SMTPFromEmail string `env:"SMTP_FROM_EMAIL,required=true"`
	SMTPTo        string `env:"SMTP_TO,required=true"`

	LogsDir   string `env:"LOGS_DIR,default=logs"`
	ErrorsDir string `env:"ERRORS_DIR,default=errors"`
}

// Load reads an optional .env file from the working directory and then the
// process environment. Values already present in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.VendorTimeout, err = parseTimeout("VENDOR_TIMEOUT", cfg.VendorTimeoutRaw); err != nil {
		return nil, err
	}
	if cfg.SideChannelTimeout, err = parseTimeout("SIDE_CHANNEL_TIMEOUT", cfg.SideChannelTimeoutRaw); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

func parseTimeout(name, raw string) (time.Duration, error) {
	timeout, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || timeout <= 0 {
		return 0, fmt.Errorf("failed to load config: invalid %s %q", name, raw)
	}
	return timeout, nil
}

// validate rejects required values that are present but blank.
func (c *Config) validate() error {
	required := map[string]string{
		"USER_CLOUD":       c.UserCloud,
		"PASSWORD_CLOUD":   c.PasswordCloud,
		"USER_ON_PREM":     c.UserOnPrem,
		"PASSWORD_ON_PREM": c.PasswordOnPrem,
		"INSTANCE_CLOUD":   c.InstanceCloud,
		"INSTANCE_ON_PREM": c.InstanceOnPrem,
		"SMTP_HOST":        c.SMTPHost,
		"SMTP_USER":        c.SMTPUser,
		"SMTP_PASS":        c.SMTPPass,
		"SMTP_FROM_NAME":   c.SMTPFromName,
		"SMTP_FROM_EMAIL":  c.SMTPFromEmail,
	}

	var missing []string
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(c.SMTPRecipients()) == 0 {
		missing = append(missing, "SMTP_TO")
	}
	if c.SMTPPort <= 0 {
		missing = append(missing, "SMTP_PORT")
	}
	if len(missing) == 0 {
		return nil
	}

	sort.Strings(missing)
	return fmt.Errorf("required values are empty: %s", strings.Join(missing, ", "))
}

// AuditDSN builds the postgres DSN for the given logical database.
func (c *Config) AuditDSN(database string) string {
	if strings.TrimSpace(database) == "" {
		database = c.AuditDBName
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.AuditDBHost, c.AuditDBPort, c.AuditDBUser, c.AuditDBPassword, database, c.AuditDBSSLMode,
	)
}

// ServerCredentials returns the server-held credentials for target, or nil
// when none are configured.
func (c *Config) ServerCredentials(target domain.Target) *domain.Credentials {
	var creds domain.Credentials
	switch target {
	case domain.TargetCloud:
		creds = domain.Credentials{Username: c.UserCloud, Password: c.PasswordCloud}
	case domain.TargetOnPrem:
		creds = domain.Credentials{Username: c.UserOnPrem, Password: c.PasswordOnPrem}
	default:
		return nil
	}

	if creds.IsZero() {
		return nil
	}
	return &creds
}

// SMTPRecipients splits SMTP_TO on commas.
func (c *Config) SMTPRecipients() []string {
	var recipients []string
	for _, part := range strings.Split(c.SMTPTo, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			recipients = append(recipients, trimmed)
		}
	}
	return recipients
}
