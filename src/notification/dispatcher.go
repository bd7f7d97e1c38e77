// Package notification matches errors against rules and fans notifications
// out to the configured channels with per-rule throttling.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"rentalops/src/apperrors"
	"rentalops/src/model"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	ErrRuleExists   = errors.New("notification rule already exists")
	ErrRuleNotFound = errors.New("notification rule not found")
)

// Observer is told about every channel delivery attempt.
type Observer interface {
	NotificationSent(channel string, ok bool)
}

type Dispatcher struct {
	cfg      Config
	env      model.Environment
	now      func() time.Time
	observer Observer

	mu       sync.Mutex
	rules    []Rule
	channels map[string]Channel
	order    []string
	sent     map[string][]time.Time
	matches  map[string][]time.Time
	history  []time.Time
}

type Option func(*Dispatcher)

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithChannels replaces the channels built from the config.
func WithChannels(channels ...Channel) Option {
	return func(d *Dispatcher) {
		d.channels = make(map[string]Channel, len(channels))
		d.order = nil
		for _, ch := range channels {
			d.channels[ch.Name()] = ch
			d.order = append(d.order, ch.Name())
		}
	}
}

func WithRules(rules []Rule) Option {
	return func(d *Dispatcher) { d.rules = append([]Rule(nil), rules...) }
}

// NewDispatcher builds a dispatcher with the seed rules and the channels
// enabled by cfg.
func NewDispatcher(cfg Config, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cfg:     cfg,
		env:     model.Environment(cfg.Environment),
		now:     time.Now,
		rules:   SeedRules(),
		sent:    make(map[string][]time.Time),
		matches: make(map[string][]time.Time),
	}
	WithChannels(DefaultChannels(cfg)...)(d)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ProcessError evaluates every enabled rule against err and delivers one
// notification per matched, unthrottled rule. It returns the number of
// notifications dispatched.
func (d *Dispatcher) ProcessError(ctx context.Context, err error, ec *model.ErrorContext) int {
	if err == nil {
		return 0
	}
	now := d.now()

	type firing struct {
		rule     Rule
		channels []Channel
	}
	var firings []firing

	d.mu.Lock()
	for _, rule := range d.rules {
		if !rule.Enabled || !d.matchLocked(rule, err, ec, now) {
			continue
		}
		if d.throttledLocked(rule, now) {
			logger.WithFields(logger.Fields{"rule": rule.ID, "code": apperrors.CodeOf(err)}).
				Debug("Notification throttled")
			continue
		}
		d.sent[rule.ID] = append(d.sent[rule.ID], now)
		d.history = append(d.history, now)
		firings = append(firings, firing{rule: rule, channels: d.channelsLocked(rule.Channels)})
	}
	d.mu.Unlock()

	for _, f := range firings {
		n := d.buildNotification(f.rule, err, ec, now)
		d.deliver(ctx, n, f.channels)
	}
	return len(firings)
}

func (d *Dispatcher) matchLocked(rule Rule, err error, ec *model.ErrorContext, now time.Time) bool {
	c := rule.Conditions
	code := apperrors.CodeOf(err)

	if len(c.ErrorCodes) > 0 && !containsString(c.ErrorCodes, code) {
		return false
	}
	if len(c.StatusCodes) > 0 && !containsInt(c.StatusCodes, apperrors.StatusOf(err)) {
		return false
	}
	if len(c.Severities) > 0 {
		sev := SeverityOf(err)
		found := false
		for _, s := range c.Severities {
			if s == sev {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(c.Patterns) > 0 {
		haystack := code + " " + err.Error()
		if ec != nil {
			haystack += " " + ec.URL
		}
		found := false
		for _, p := range c.Patterns {
			if strings.Contains(haystack, p) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	// Frequency is checked last since it records the occurrence.
	if f := c.Frequency; f != nil {
		recent := pruneBefore(d.matches[rule.ID], now.Add(-f.Window))
		recent = append(recent, now)
		d.matches[rule.ID] = recent
		if len(recent) < f.Count {
			return false
		}
	}
	return true
}

func (d *Dispatcher) throttledLocked(rule Rule, now time.Time) bool {
	sent := pruneBefore(d.sent[rule.ID], now.Add(-24*time.Hour))
	d.sent[rule.ID] = sent

	lastHour := 0
	hourAgo := now.Add(-time.Hour)
	for _, ts := range sent {
		if ts.After(hourAgo) {
			lastHour++
		}
	}
	t := rule.Throttling
	if t.MaxPerHour > 0 && lastHour >= t.MaxPerHour {
		return true
	}
	if t.MaxPerDay > 0 && len(sent) >= t.MaxPerDay {
		return true
	}
	return false
}

func (d *Dispatcher) channelsLocked(names []string) []Channel {
	out := make([]Channel, 0, len(names))
	for _, name := range names {
		ch, ok := d.channels[name]
		if !ok {
			logger.WithField("channel", name).Debug("Notification channel not registered")
			continue
		}
		out = append(out, ch)
	}
	return out
}

func (d *Dispatcher) buildNotification(rule Rule, err error, ec *model.ErrorContext, now time.Time) Notification {
	n := Notification{
		ID:        uuid.NewString(),
		Timestamp: now,
		Severity:  SeverityOf(err),
		Context:   ec,
		Metadata: Metadata{
			Environment: d.env.String(),
			Service:     d.cfg.AppName,
			Version:     d.cfg.Version,
			RuleID:      rule.ID,
		},
	}
	if ec != nil {
		n.Metadata.CorrelationID = ec.CorrelationID
	}

	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		appErr = apperrors.NewInternalError(err)
	}
	s := appErr.Serialize()
	n.Error = &s

	n.Title = fmt.Sprintf("%s: %s", rule.Name, appErr.Code)
	n.TitleLocalized = n.Title
	n.Message = appErr.Message
	n.MessageLocalized = appErr.MessageLocalized
	if tpl := rule.Template; tpl != nil {
		n.Title = firstNonEmpty(tpl.Title, n.Title)
		n.TitleLocalized = firstNonEmpty(tpl.TitleLocalized, n.TitleLocalized)
		n.Message = firstNonEmpty(tpl.Message, n.Message)
		n.MessageLocalized = firstNonEmpty(tpl.MessageLocalized, n.MessageLocalized)
	}

	if d.cfg.DashboardURL != "" {
		n.Actions = append(n.Actions, Action{Label: "Open monitoring dashboard", URL: d.cfg.DashboardURL, Kind: "link"})
	}
	if n.Severity == SeverityCritical {
		n.Actions = append(n.Actions, Action{Label: "Acknowledge alerts", URL: "/api/monitoring/alerts", Kind: "acknowledge"})
	}
	return n
}

// deliver sends n to every enabled channel concurrently. Failed channels are
// reported together once all sends have finished.
func (d *Dispatcher) deliver(ctx context.Context, n Notification, channels []Channel) map[string]bool {
	results := make([]bool, len(channels))
	g, gctx := errgroup.WithContext(ctx)
	for i, ch := range channels {
		if !ch.Enabled() {
			continue
		}
		i, ch := i, ch
		g.Go(func() error {
			results[i] = d.sendSafely(gctx, ch, n)
			return nil
		})
	}
	_ = g.Wait()

	outcome := make(map[string]bool, len(channels))
	var failed []string
	for i, ch := range channels {
		if !ch.Enabled() {
			continue
		}
		outcome[ch.Name()] = results[i]
		if d.observer != nil {
			d.observer.NotificationSent(ch.Name(), results[i])
		}
		if !results[i] {
			failed = append(failed, ch.Name())
		}
	}
	if len(failed) > 0 {
		logger.WithFields(logger.Fields{
			"notificationId": n.ID,
			"rule":           n.Metadata.RuleID,
			"failedChannels": failed,
		}).Warn("Some notification channels failed")
	}
	return outcome
}

func (d *Dispatcher) sendSafely(ctx context.Context, ch Channel, n Notification) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("channel", ch.Name()).Errorf("Notification channel panicked: %v", r)
			ok = false
		}
	}()
	return ch.Send(ctx, n)
}

// AddRule installs a new rule.
func (d *Dispatcher) AddRule(rule Rule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.rules {
		if r.ID == rule.ID {
			return fmt.Errorf("%w: %s", ErrRuleExists, rule.ID)
		}
	}
	d.rules = append(d.rules, rule)
	return nil
}

// UpdateRule replaces the rule with the same id. Its throttling history is kept.
func (d *Dispatcher) UpdateRule(rule Rule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.rules {
		if d.rules[i].ID == rule.ID {
			d.rules[i] = rule
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrRuleNotFound, rule.ID)
}

// RemoveRule deletes a rule and its history. It reports whether it existed.
func (d *Dispatcher) RemoveRule(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.rules {
		if d.rules[i].ID == id {
			d.rules = append(d.rules[:i], d.rules[i+1:]...)
			delete(d.sent, id)
			delete(d.matches, id)
			return true
		}
	}
	return false
}

func (d *Dispatcher) Rules() []Rule {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Rule(nil), d.rules...)
}

// ResetHistory forgets throttling and frequency state.
func (d *Dispatcher) ResetHistory() {
	d.mu.Lock()
	d.sent = make(map[string][]time.Time)
	d.matches = make(map[string][]time.Time)
	d.history = nil
	d.mu.Unlock()
}

// PruneHistory drops timestamps older than a day and rule entries left
// empty. It returns the number of timestamps removed.
func (d *Dispatcher) PruneHistory() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := d.now().Add(-24 * time.Hour)
	removed := 0
	for _, m := range []map[string][]time.Time{d.sent, d.matches} {
		for id, ts := range m {
			kept := pruneBefore(ts, cutoff)
			removed += len(ts) - len(kept)
			if len(kept) == 0 {
				delete(m, id)
				continue
			}
			m[id] = kept
		}
	}
	kept := pruneBefore(d.history, cutoff)
	removed += len(d.history) - len(kept)
	d.history = kept
	return removed
}

type Stats struct {
	TotalChannels           int            `json:"totalChannels"`
	EnabledChannels         []string       `json:"enabledChannels"`
	TotalRules              int            `json:"totalRules"`
	EnabledRules            int            `json:"enabledRules"`
	NotificationsLastHour   int            `json:"notificationsLastHour"`
	NotificationsLastDay    int            `json:"notificationsLastDay"`
	NotificationsByRuleHour map[string]int `json:"notificationsByRuleLastHour"`
}

func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.history = pruneBefore(d.history, now.Add(-24*time.Hour))
	hourAgo := now.Add(-time.Hour)

	s := Stats{
		TotalChannels:           len(d.channels),
		TotalRules:              len(d.rules),
		NotificationsLastDay:    len(d.history),
		NotificationsByRuleHour: make(map[string]int),
	}
	for _, name := range d.order {
		if d.channels[name].Enabled() {
			s.EnabledChannels = append(s.EnabledChannels, name)
		}
	}
	for _, r := range d.rules {
		if r.Enabled {
			s.EnabledRules++
		}
	}
	for _, ts := range d.history {
		if ts.After(hourAgo) {
			s.NotificationsLastHour++
		}
	}
	for id, sent := range d.sent {
		for _, ts := range sent {
			if ts.After(hourAgo) {
				s.NotificationsByRuleHour[id]++
			}
		}
	}
	return s
}

// ChannelResult is the outcome of a diagnostic send.
type ChannelResult struct {
	Channel string `json:"channel"`
	Enabled bool   `json:"enabled"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// TestNotification sends a synthetic notification to one channel, or to all
// of them when channel is empty. Rules and throttling are bypassed.
func (d *Dispatcher) TestNotification(ctx context.Context, channel string) []ChannelResult {
	d.mu.Lock()
	var targets []Channel
	var results []ChannelResult
	if channel != "" {
		ch, ok := d.channels[channel]
		if !ok {
			d.mu.Unlock()
			return []ChannelResult{{Channel: channel, Error: "channel not registered"}}
		}
		targets = append(targets, ch)
	} else {
		for _, name := range d.order {
			targets = append(targets, d.channels[name])
		}
	}
	d.mu.Unlock()

	n := Notification{
		ID:               uuid.NewString(),
		Timestamp:        d.now(),
		Severity:         SeverityInfo,
		Title:            "Test notification",
		TitleLocalized:   "Notificação de teste",
		Message:          "This is a test notification from the error monitoring system.",
		MessageLocalized: "Esta é uma notificação de teste do sistema de monitoramento de erros.",
		Metadata: Metadata{
			Environment: d.env.String(),
			Service:     d.cfg.AppName,
			Version:     d.cfg.Version,
			RuleID:      "test",
		},
	}
	outcome := d.deliver(ctx, n, targets)
	for _, ch := range targets {
		r := ChannelResult{Channel: ch.Name(), Enabled: ch.Enabled()}
		if !r.Enabled {
			r.Error = "channel not configured"
		} else if r.Success = outcome[ch.Name()]; !r.Success {
			r.Error = "send failed"
		}
		results = append(results, r)
	}
	return results
}

type Health struct {
	Status          string `json:"status"`
	TotalChannels   int    `json:"totalChannels"`
	EnabledChannels int    `json:"enabledChannels"`
	TotalRules      int    `json:"totalRules"`
	EnabledRules    int    `json:"enabledRules"`
}

func (d *Dispatcher) HealthCheck() Health {
	s := d.Stats()
	status := "healthy"
	if len(s.EnabledChannels) == 0 {
		status = "degraded"
	}
	return Health{
		Status:          status,
		TotalChannels:   s.TotalChannels,
		EnabledChannels: len(s.EnabledChannels),
		TotalRules:      s.TotalRules,
		EnabledRules:    s.EnabledRules,
	}
}

func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsInt(list []int, v int) bool {
	for _, n := range list {
		if n == v {
			return true
		}
	}
	return false
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
