package notification

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment    string `envconfig:"APP_ENV" default:"development"`
	AppName        string `envconfig:"APP_NAME" default:"rentalops"`
	Version        string `envconfig:"APP_VERSION" default:"1.0.0"`
	ConsoleEnabled bool   `envconfig:"NOTIFY_CONSOLE_ENABLED" default:"false"`
	DashboardURL   string `envconfig:"DASHBOARD_URL" default:"http://localhost:3000/monitoring"`

	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser     string `envconfig:"SMTP_USER"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	EmailFrom    string `envconfig:"NOTIFY_EMAIL_FROM" default:"alerts@rentalops.local"`
	AdminEmail   string `envconfig:"ADMIN_EMAIL"`
	AdminPhone   string `envconfig:"ADMIN_PHONE"`

	ChatWebhookURL string `envconfig:"CHAT_WEBHOOK_URL"`

	SMSAPIURL     string `envconfig:"SMS_API_URL"`
	SMSAccountSID string `envconfig:"SMS_ACCOUNT_SID"`
	SMSAuthToken  string `envconfig:"SMS_AUTH_TOKEN"`
	SMSFrom       string `envconfig:"SMS_FROM"`

	WebhookURL    string `envconfig:"WEBHOOK_URL"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`

	RulesFile string `envconfig:"NOTIFY_RULES_FILE"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
