// Package tracker aggregates error occurrences in memory: counters, a trend
// timeline, a pattern registry and a bounded alert list with acknowledgement.
// All state is process local and bounded.
package tracker

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"rentalops/src/apperrors"
	"rentalops/src/model"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
)

// Observer is told about every tracked error and raised alert.
type Observer interface {
	ErrorTracked(code string, status int)
	AlertRaised(alertType string)
}

type Tracker struct {
	mu       sync.RWMutex
	metrics  metrics
	patterns map[string]*Pattern
	alerts   []Alert

	subMu       sync.Mutex
	subscribers map[int]chan Alert
	nextSub     int

	observer Observer
	now      func() time.Time
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func WithObserver(o Observer) Option {
	return func(t *Tracker) { t.observer = o }
}

func New(opts ...Option) *Tracker {
	t := &Tracker{
		patterns:    make(map[string]*Pattern),
		subscribers: make(map[int]chan Alert),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.metrics = newMetrics(t.now())
	return t
}

// Track records err. The four steps are independent: a failure in one is
// logged and does not stop the others.
func (t *Tracker) Track(err error, ec *model.ErrorContext) {
	if err == nil {
		return
	}
	code := apperrors.CodeOf(err)
	status := apperrors.StatusOf(err)
	now := t.now()

	var raised []Alert
	t.mu.Lock()
	t.safely("metrics", func() { t.updateMetrics(code, status, ec) })
	t.safely("patterns", func() {
		if a, ok := t.recordPattern(code, ec, now); ok {
			raised = append(raised, a)
		}
	})
	t.safely("thresholds", func() { raised = append(raised, t.checkThresholds(code, status, ec, now)...) })
	t.safely("trends", func() { t.appendTrend(code, status, ec, now) })
	t.mu.Unlock()

	if t.observer != nil {
		t.observer.ErrorTracked(code, status)
		for _, a := range raised {
			t.observer.AlertRaised(string(a.Type))
		}
	}
	for _, a := range raised {
		t.publish(a)
	}
}

func (t *Tracker) safely(step string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("step", step).Errorf("Error tracking step failed: %v", r)
		}
	}()
	fn()
}

func (t *Tracker) updateMetrics(code string, status int, ec *model.ErrorContext) {
	t.metrics.total++
	t.metrics.byCode[code]++
	t.metrics.byStatus[status]++
	t.metrics.byEndpoint[ec.Endpoint()]++
	t.metrics.byUser[ec.User()]++
}

func patternKey(code, method, endpoint string) string {
	return fmt.Sprintf("%s:%s:%s", code, method, endpoint)
}

func (t *Tracker) recordPattern(code string, ec *model.ErrorContext, now time.Time) (Alert, bool) {
	method, endpoint := ec.MethodOrUnknown(), ec.Endpoint()
	key := patternKey(code, method, endpoint)

	p, ok := t.patterns[key]
	if !ok {
		p = &Pattern{Key: key, Code: code, Method: method, Endpoint: endpoint, FirstSeen: now}
		t.patterns[key] = p
	}
	p.Count++
	p.LastSeen = now
	if ec != nil {
		p.Contexts = append(p.Contexts, *ec)
		if len(p.Contexts) > MaxPatternContexts {
			p.Contexts = p.Contexts[len(p.Contexts)-MaxPatternContexts:]
		}
	}

	if p.Count != PatternAlertThreshold {
		return Alert{}, false
	}
	return t.addAlert(AlertPattern,
		fmt.Sprintf("Recurring error pattern detected: %s", key),
		map[string]interface{}{
			"pattern":   key,
			"code":      code,
			"method":    method,
			"endpoint":  endpoint,
			"count":     p.Count,
			"firstSeen": p.FirstSeen,
		}, now), true
}

func (t *Tracker) checkThresholds(code string, status int, ec *model.ErrorContext, now time.Time) []Alert {
	var raised []Alert
	count := t.metrics.byCode[code]

	switch count {
	case FrequencyAlertThreshold:
		raised = append(raised, t.addAlert(AlertFrequency,
			fmt.Sprintf("High error frequency: %s occurred %d times", code, count),
			map[string]interface{}{"code": code, "count": count, "threshold": FrequencyAlertThreshold}, now))
	case CriticalAlertThreshold:
		raised = append(raised, t.addAlert(AlertCritical,
			fmt.Sprintf("Critical error frequency: %s occurred %d times", code, count),
			map[string]interface{}{"code": code, "count": count, "threshold": CriticalAlertThreshold}, now))
	}

	if status >= 500 {
		raised = append(raised, t.addAlert(AlertCritical,
			fmt.Sprintf("Server error %d: %s", status, code),
			map[string]interface{}{
				"code":       code,
				"statusCode": status,
				"endpoint":   ec.Endpoint(),
				"user":       ec.User(),
			}, now))
	}
	return raised
}

func (t *Tracker) addAlert(kind AlertType, message string, details map[string]interface{}, now time.Time) Alert {
	a := Alert{
		ID:        uuid.NewString(),
		Timestamp: now,
		Type:      kind,
		Message:   message,
		Details:   details,
	}
	t.alerts = append(t.alerts, a)
	if len(t.alerts) > MaxAlerts {
		t.alerts = t.alerts[len(t.alerts)-MaxAlerts:]
	}
	logger.WithFields(logger.Fields{"alertId": a.ID, "type": a.Type}).Warn(message)
	return a
}

func (t *Tracker) appendTrend(code string, status int, ec *model.ErrorContext, now time.Time) {
	t.metrics.trends = append(t.metrics.trends, TrendPoint{
		Timestamp: now,
		Code:      code,
		Endpoint:  ec.Endpoint(),
		User:      ec.User(),
		Status:    status,
		Count:     t.metrics.byCode[code],
	})
	if len(t.metrics.trends) > MaxTrends {
		t.metrics.trends = t.metrics.trends[len(t.metrics.trends)-MaxTrends:]
	}
}

// AcknowledgeAlert marks the alert as seen. It reports false for unknown ids.
func (t *Tracker) AcknowledgeAlert(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.alerts {
		if t.alerts[i].ID == id {
			t.alerts[i].Acknowledged = true
			return true
		}
	}
	return false
}

// AcknowledgeAll marks every alert as seen and returns how many changed.
func (t *Tracker) AcknowledgeAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.acknowledgeAllLocked()
}

func (t *Tracker) acknowledgeAllLocked() int {
	n := 0
	for i := range t.alerts {
		if !t.alerts[i].Acknowledged {
			t.alerts[i].Acknowledged = true
			n++
		}
	}
	return n
}

// Alerts returns a copy of the alert list, oldest first.
func (t *Tracker) Alerts(unacknowledgedOnly bool) []Alert {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Alert, 0, len(t.alerts))
	for _, a := range t.alerts {
		if unacknowledgedOnly && a.Acknowledged {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Trends returns a copy of the trend timeline, oldest first.
func (t *Tracker) Trends() []TrendPoint {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]TrendPoint(nil), t.metrics.trends...)
}

// Patterns returns copies of the registered patterns, most frequent first.
func (t *Tracker) Patterns() []Pattern {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.patternsLocked()
}

func (t *Tracker) patternsLocked() []Pattern {
	out := make([]Pattern, 0, len(t.patterns))
	for _, p := range t.patterns {
		cp := *p
		cp.Contexts = append([]model.ErrorContext(nil), p.Contexts...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Summary computes the dashboard overview.
func (t *Tracker) Summary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	recent := 0
	for _, p := range t.metrics.trends {
		if now.Sub(p.Timestamp) <= time.Hour {
			recent++
		}
	}

	byType := make(map[AlertType]int)
	unack := 0
	for _, a := range t.alerts {
		byType[a.Type]++
		if !a.Acknowledged {
			unack++
		}
	}

	return Summary{
		TotalErrors:          t.metrics.total,
		RecentErrors:         recent,
		TopErrorTypes:        topN(t.metrics.byCode, 5),
		TopEndpoints:         topN(t.metrics.byEndpoint, 5),
		AlertsByType:         byType,
		TotalAlerts:          len(t.alerts),
		UnacknowledgedAlerts: unack,
		ActivePatterns:       len(t.patterns),
		TimeRange: TimeRange{
			Start:    t.metrics.lastReset,
			End:      now,
			Duration: now.Sub(t.metrics.lastReset).Round(time.Second).String(),
		},
	}
}

func topN(counts map[string]int, n int) []CountEntry {
	entries := make([]CountEntry, 0, len(counts))
	for k, v := range counts {
		entries = append(entries, CountEntry{Key: k, Count: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Key < entries[j].Key
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// Export flattens all state into plain maps.
func (t *Tracker) Export() Export {
	t.mu.RLock()
	defer t.mu.RUnlock()

	byStatus := make(map[string]int, len(t.metrics.byStatus))
	for status, n := range t.metrics.byStatus {
		byStatus[fmt.Sprintf("%d", status)] = n
	}
	return Export{
		TotalErrors:      t.metrics.total,
		ErrorsByType:     copyCounts(t.metrics.byCode),
		ErrorsByStatus:   byStatus,
		ErrorsByEndpoint: copyCounts(t.metrics.byEndpoint),
		ErrorsByUser:     copyCounts(t.metrics.byUser),
		Trends:           append([]TrendPoint(nil), t.metrics.trends...),
		Patterns:         t.patternsLocked(),
		Alerts:           append([]Alert(nil), t.alerts...),
		LastReset:        t.metrics.lastReset,
		ExportedAt:       t.now(),
	}
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Reset clears counters, trends and patterns. Existing alerts are kept but
// acknowledged.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.metrics = newMetrics(t.now())
	t.patterns = make(map[string]*Pattern)
	acked := t.acknowledgeAllLocked()
	t.mu.Unlock()
	logger.WithField("acknowledgedAlerts", acked).Info("Error metrics reset")
}

// SweepPatterns evicts patterns that are both stale and rare. It returns the
// number of evicted entries.
func (t *Tracker) SweepPatterns() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	evicted := 0
	for key, p := range t.patterns {
		if now.Sub(p.LastSeen) > PatternStaleAfter && p.Count < PatternMinCount {
			delete(t.patterns, key)
			evicted++
		}
	}
	return evicted
}

// Subscribe returns a channel receiving alerts raised from now on, and a
// function that cancels the subscription. Slow subscribers miss alerts.
func (t *Tracker) Subscribe() (<-chan Alert, func()) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	id := t.nextSub
	t.nextSub++
	ch := make(chan Alert, 16)
	t.subscribers[id] = ch
	return ch, func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		if c, ok := t.subscribers[id]; ok {
			delete(t.subscribers, id)
			close(c)
		}
	}
}

func (t *Tracker) publish(a Alert) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for _, ch := range t.subscribers {
		select {
		case ch <- a:
		default:
		}
	}
}
