package notification

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

const (
	httpTimeout       = 10 * time.Second
	smsMaxLength      = 160
	signatureHeader   = "X-Signature-256"
	notificationIDHdr = "X-Notification-ID"
)

// newHTTPClient sends each notification once. A failed send is reported by the
// dispatcher with the rest of the batch.
func newHTTPClient() *resty.Client {
	return resty.New().SetTimeout(httpTimeout)
}

func logHTTPFailure(channel string, n Notification, resp *resty.Response, err error) bool {
	entry := logger.WithFields(logger.Fields{"channel": channel, "notificationId": n.ID})
	if err != nil {
		entry.WithError(err).Error("Notification request failed")
		return false
	}
	if resp.IsError() {
		entry.WithField("status", resp.StatusCode()).Error("Notification endpoint rejected request")
		return false
	}
	return true
}

var severityColors = map[Severity]string{
	SeverityCritical: "#d32f2f",
	SeverityError:    "#f57c00",
	SeverityWarning:  "#fbc02d",
	SeverityInfo:     "#1976d2",
}

// ChatChannel posts to an incoming-webhook style team chat.
type ChatChannel struct {
	url    string
	client *resty.Client
}

func NewChatChannel(cfg Config) *ChatChannel {
	return &ChatChannel{url: cfg.ChatWebhookURL, client: newHTTPClient()}
}

func (c *ChatChannel) Name() string  { return ChannelChat }
func (c *ChatChannel) Enabled() bool { return c.url != "" }

type chatField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type chatAttachment struct {
	Color  string      `json:"color"`
	Title  string      `json:"title"`
	Text   string      `json:"text"`
	Fields []chatField `json:"fields"`
	Footer string      `json:"footer"`
	Ts     int64       `json:"ts"`
}

type chatPayload struct {
	Text        string           `json:"text"`
	Attachments []chatAttachment `json:"attachments"`
}

func (c *ChatChannel) Send(ctx context.Context, n Notification) bool {
	if !c.Enabled() {
		return false
	}
	fields := []chatField{
		{Title: "Severity", Value: string(n.Severity), Short: true},
		{Title: "Environment", Value: n.Metadata.Environment, Short: true},
	}
	if n.Error != nil {
		fields = append(fields,
			chatField{Title: "Code", Value: n.Error.Code, Short: true},
			chatField{Title: "Status", Value: fmt.Sprintf("%d", n.Error.StatusCode), Short: true})
	}
	if n.Context != nil && n.Context.URL != "" {
		fields = append(fields, chatField{Title: "Endpoint", Value: n.Context.Method + " " + n.Context.URL})
	}
	if n.Metadata.CorrelationID != "" {
		fields = append(fields, chatField{Title: "Correlation ID", Value: n.Metadata.CorrelationID})
	}
	payload := chatPayload{
		Text: fmt.Sprintf("*%s*", n.Title),
		Attachments: []chatAttachment{{
			Color:  severityColors[n.Severity],
			Title:  n.TitleLocalized,
			Text:   n.Message + "\n" + n.MessageLocalized,
			Fields: fields,
			Footer: fmt.Sprintf("%s %s", n.Metadata.Service, n.Metadata.Version),
			Ts:     n.Timestamp.Unix(),
		}},
	}
	resp, err := c.client.R().SetContext(ctx).SetBody(payload).Post(c.url)
	return logHTTPFailure(ChannelChat, n, resp, err)
}

// SMSChannel sends a short text through a form-encoded SMS gateway API.
type SMSChannel struct {
	cfg    Config
	client *resty.Client
}

func NewSMSChannel(cfg Config) *SMSChannel {
	return &SMSChannel{cfg: cfg, client: newHTTPClient()}
}

func (c *SMSChannel) Name() string { return ChannelSMS }

func (c *SMSChannel) Enabled() bool {
	return c.cfg.SMSAPIURL != "" && c.cfg.SMSAccountSID != "" && c.cfg.SMSAuthToken != "" &&
		c.cfg.SMSFrom != "" && c.cfg.AdminPhone != ""
}

func (c *SMSChannel) Send(ctx context.Context, n Notification) bool {
	if !c.Enabled() {
		return false
	}
	body := fmt.Sprintf("[%s] %s: %s", n.Metadata.Service, n.Title, n.Message)
	if len(body) > smsMaxLength {
		body = body[:smsMaxLength-3] + "..."
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBasicAuth(c.cfg.SMSAccountSID, c.cfg.SMSAuthToken).
		SetFormData(map[string]string{
			"From": c.cfg.SMSFrom,
			"To":   c.cfg.AdminPhone,
			"Body": body,
		}).
		Post(c.cfg.SMSAPIURL)
	return logHTTPFailure(ChannelSMS, n, resp, err)
}

// WebhookChannel posts the full notification as JSON. When a secret is
// configured the body is signed with HMAC-SHA256.
type WebhookChannel struct {
	url    string
	secret string
	client *resty.Client
}

func NewWebhookChannel(cfg Config) *WebhookChannel {
	return &WebhookChannel{url: cfg.WebhookURL, secret: cfg.WebhookSecret, client: newHTTPClient()}
}

func (c *WebhookChannel) Name() string  { return ChannelWebhook }
func (c *WebhookChannel) Enabled() bool { return c.url != "" }

func signBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (c *WebhookChannel) Send(ctx context.Context, n Notification) bool {
	if !c.Enabled() {
		return false
	}
	body, err := json.Marshal(n)
	if err != nil {
		logger.WithError(err).WithField("notificationId", n.ID).Error("Cannot encode webhook notification")
		return false
	}
	req := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader(notificationIDHdr, n.ID).
		SetBody(body)
	if c.secret != "" {
		req.SetHeader(signatureHeader, signBody(body, c.secret))
	}
	resp, err := req.Post(c.url)
	return logHTTPFailure(ChannelWebhook, n, resp, err)
}
