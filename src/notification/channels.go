package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"rentalops/src/model"

	logger "github.com/sirupsen/logrus"
)

// DefaultChannels builds every built-in channel from cfg. Channels without
// their credentials report Enabled() == false.
func DefaultChannels(cfg Config) []Channel {
	return []Channel{
		NewConsoleChannel(cfg),
		NewEmailChannel(cfg),
		NewChatChannel(cfg),
		NewSMSChannel(cfg),
		NewWebhookChannel(cfg),
	}
}

// ConsoleChannel writes notifications to the process log.
type ConsoleChannel struct {
	enabled bool
	log     *logger.Logger
}

// NewConsoleChannel is always enabled in development-like environments.
func NewConsoleChannel(cfg Config) *ConsoleChannel {
	return &ConsoleChannel{
		enabled: cfg.ConsoleEnabled || model.Environment(cfg.Environment).IsDevelopment(),
		log:     logger.StandardLogger(),
	}
}

func (c *ConsoleChannel) Name() string  { return ChannelConsole }
func (c *ConsoleChannel) Enabled() bool { return c.enabled }

func (c *ConsoleChannel) Send(_ context.Context, n Notification) bool {
	entry := c.log.WithFields(logger.Fields{
		"notificationId": n.ID,
		"severity":       n.Severity,
		"rule":           n.Metadata.RuleID,
		"correlationId":  n.Metadata.CorrelationID,
	})
	if n.Error != nil {
		entry = entry.WithField("code", n.Error.Code)
	}
	msg := fmt.Sprintf("[%s] %s: %s", strings.ToUpper(string(n.Severity)), n.Title, n.Message)
	switch n.Severity {
	case SeverityCritical, SeverityError:
		entry.Error(msg)
	case SeverityWarning:
		entry.Warn(msg)
	default:
		entry.Info(msg)
	}
	return true
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailChannel mails the admin address over SMTP.
type EmailChannel struct {
	cfg      Config
	sendMail sendMailFunc
}

func NewEmailChannel(cfg Config) *EmailChannel {
	return &EmailChannel{cfg: cfg, sendMail: smtp.SendMail}
}

func (c *EmailChannel) Name() string { return ChannelEmail }

func (c *EmailChannel) Enabled() bool {
	return c.cfg.SMTPHost != "" && c.cfg.AdminEmail != ""
}

func (c *EmailChannel) Send(_ context.Context, n Notification) bool {
	if !c.Enabled() {
		return false
	}
	addr := fmt.Sprintf("%s:%d", c.cfg.SMTPHost, c.cfg.SMTPPort)
	var auth smtp.Auth
	if c.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", c.cfg.SMTPUser, c.cfg.SMTPPassword, c.cfg.SMTPHost)
	}
	if err := c.sendMail(addr, auth, c.cfg.EmailFrom, []string{c.cfg.AdminEmail}, c.compose(n)); err != nil {
		logger.WithError(err).WithField("notificationId", n.ID).Error("Email notification failed")
		return false
	}
	return true
}

func (c *EmailChannel) compose(n Notification) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", c.cfg.EmailFrom)
	fmt.Fprintf(&b, "To: %s\r\n", c.cfg.AdminEmail)
	fmt.Fprintf(&b, "Subject: [%s] %s\r\n", strings.ToUpper(string(n.Severity)), n.Title)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")

	fmt.Fprintf(&b, "%s\r\n\r\n%s\r\n\r\n", n.Message, n.MessageLocalized)
	if n.Error != nil {
		fmt.Fprintf(&b, "Code: %s\r\nStatus: %d\r\n", n.Error.Code, n.Error.StatusCode)
	}
	if n.Context != nil {
		fmt.Fprintf(&b, "Request: %s %s\r\nRequest ID: %s\r\n", n.Context.Method, n.Context.URL, n.Context.RequestID)
	}
	fmt.Fprintf(&b, "Correlation ID: %s\r\nEnvironment: %s\r\nService: %s %s\r\nTime: %s\r\n",
		n.Metadata.CorrelationID, n.Metadata.Environment, n.Metadata.Service, n.Metadata.Version,
		n.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"))
	for _, a := range n.Actions {
		fmt.Fprintf(&b, "%s: %s\r\n", a.Label, a.URL)
	}
	return []byte(b.String())
}
