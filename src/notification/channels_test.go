package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"sync/atomic"
	"testing"
	"time"

	"rentalops/src/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleNotification() Notification {
	s := apperrors.DatabaseConnectionFailed(nil).Serialize()
	return Notification{
		ID:               "n-1",
		Timestamp:        time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
		Severity:         SeverityCritical,
		Title:            "Database down",
		TitleLocalized:   "Banco fora",
		Message:          "The database is failing",
		MessageLocalized: "O banco está falhando",
		Error:            &s,
		Metadata:         Metadata{Environment: "production", Service: "rentalops", Version: "1.0.0", CorrelationID: "corr-9"},
	}
}

func TestConsoleChannel_EnabledInDevelopment(t *testing.T) {
	assert.True(t, NewConsoleChannel(Config{Environment: "development"}).Enabled())
	assert.False(t, NewConsoleChannel(Config{Environment: "production"}).Enabled())
	assert.True(t, NewConsoleChannel(Config{Environment: "production", ConsoleEnabled: true}).Enabled())
	assert.True(t, NewConsoleChannel(Config{Environment: "test"}).Send(context.Background(), sampleNotification()))
}

func TestEmailChannel(t *testing.T) {
	cfg := Config{SMTPHost: "smtp.local", SMTPPort: 2525, SMTPUser: "bot", SMTPPassword: "pw",
		EmailFrom: "alerts@rentalops.local", AdminEmail: "ops@rentalops.local"}
	ch := NewEmailChannel(cfg)

	var gotAddr string
	var gotTo []string
	var gotMsg string
	ch.sendMail = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	require.True(t, ch.Enabled())
	assert.True(t, ch.Send(context.Background(), sampleNotification()))
	assert.Equal(t, "smtp.local:2525", gotAddr)
	assert.Equal(t, []string{"ops@rentalops.local"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: [CRITICAL] Database down")
	assert.Contains(t, gotMsg, "O banco está falhando")
	assert.Contains(t, gotMsg, "Correlation ID: corr-9")

	ch.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("relay denied") }
	assert.False(t, ch.Send(context.Background(), sampleNotification()))

	assert.False(t, NewEmailChannel(Config{SMTPHost: "smtp.local"}).Enabled())
}

func TestChatChannel(t *testing.T) {
	var payload chatPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewChatChannel(Config{ChatWebhookURL: srv.URL})
	require.True(t, ch.Enabled())
	assert.True(t, ch.Send(context.Background(), sampleNotification()))
	assert.Equal(t, "*Database down*", payload.Text)
	require.Len(t, payload.Attachments, 1)
	assert.Equal(t, "#d32f2f", payload.Attachments[0].Color)

	assert.False(t, NewChatChannel(Config{}).Enabled())
}

func TestChatChannel_RejectedRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	assert.False(t, NewChatChannel(Config{ChatWebhookURL: srv.URL}).Send(context.Background(), sampleNotification()))
}

func TestHTTPChannels_SendOnceOnServerError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := Config{
		ChatWebhookURL: srv.URL,
		WebhookURL:     srv.URL,
		SMSAPIURL:      srv.URL,
		SMSAccountSID:  "AC123",
		SMSAuthToken:   "secret",
		SMSFrom:        "+5511000000000",
		AdminPhone:     "+5511999990000",
	}
	channels := []Channel{NewChatChannel(cfg), NewWebhookChannel(cfg), NewSMSChannel(cfg)}
	for i, ch := range channels {
		require.True(t, ch.Enabled(), ch.Name())
		assert.False(t, ch.Send(context.Background(), sampleNotification()), ch.Name())
		assert.Equal(t, int32(i+1), atomic.LoadInt32(&hits), "%s must not retry", ch.Name())
	}
}

func TestSMSChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+5511999990000", r.PostForm.Get("To"))
		assert.LessOrEqual(t, len(r.PostForm.Get("Body")), smsMaxLength)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	cfg := Config{SMSAPIURL: srv.URL, SMSAccountSID: "AC123", SMSAuthToken: "secret",
		SMSFrom: "+5511000000000", AdminPhone: "+5511999990000"}
	ch := NewSMSChannel(cfg)
	require.True(t, ch.Enabled())

	n := sampleNotification()
	for i := 0; i < 20; i++ {
		n.Message += " and more detail"
	}
	assert.True(t, ch.Send(context.Background(), n))

	cfg.AdminPhone = ""
	assert.False(t, NewSMSChannel(cfg).Enabled())
}

func TestWebhookChannel_SignsBody(t *testing.T) {
	var signature string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature = r.Header.Get(signatureHeader)
		assert.Equal(t, "n-1", r.Header.Get(notificationIDHdr))
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(Config{WebhookURL: srv.URL, WebhookSecret: "s3cr3t"})
	assert.True(t, ch.Send(context.Background(), sampleNotification()))
	assert.Equal(t, signBody(body, "s3cr3t"), signature)

	var decoded Notification
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "n-1", decoded.ID)
	assert.Equal(t, apperrors.CodeDatabaseConn, decoded.Error.Code)
}

func TestDefaultChannels(t *testing.T) {
	chans := DefaultChannels(Config{Environment: "production"})
	names := make([]string, 0, len(chans))
	for _, ch := range chans {
		names = append(names, ch.Name())
		assert.False(t, ch.Enabled(), ch.Name())
	}
	assert.Equal(t, []string{ChannelConsole, ChannelEmail, ChannelChat, ChannelSMS, ChannelWebhook}, names)
}
