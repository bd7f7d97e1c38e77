package monitoring

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"rentalops/src/tracker"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// checkOrigin admits non-browser clients, same-host pages and the
// configured dashboard origins.
func (a *API) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	_, ok := a.origins[normalizeOrigin(u)]
	return ok
}

func normalizeOrigin(u *url.URL) string {
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

type streamMessage struct {
	Type  string        `json:"type"`
	Alert tracker.Alert `json:"alert"`
}

// alertFeed remembers which alerts went out in the backlog so one raised
// between subscribing and reading the backlog is not sent twice.
type alertFeed struct {
	sent map[string]struct{}
}

func (f *alertFeed) backlog(alerts []tracker.Alert) []streamMessage {
	f.sent = make(map[string]struct{}, len(alerts))
	msgs := make([]streamMessage, 0, len(alerts))
	for _, alert := range alerts {
		f.sent[alert.ID] = struct{}{}
		msgs = append(msgs, streamMessage{Type: "backlog", Alert: alert})
	}
	return msgs
}

func (f *alertFeed) live(alert tracker.Alert) (streamMessage, bool) {
	if _, dup := f.sent[alert.ID]; dup {
		delete(f.sent, alert.ID)
		return streamMessage{}, false
	}
	return streamMessage{Type: "alert", Alert: alert}, true
}

// streamAlerts pushes unacknowledged alerts, then every new one, to a
// websocket client until it disconnects.
func (a *API) streamAlerts(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     a.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).Warn("Alert stream upgrade failed")
		return
	}
	defer conn.Close()

	alerts, cancel := a.tracker.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.WithError(err).Debug("Alert stream read error")
				}
				return
			}
		}
	}()

	send := func(msg streamMessage) bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(msg) == nil
	}

	var feed alertFeed
	for _, msg := range feed.backlog(a.tracker.Alerts(true)) {
		if !send(msg) {
			return
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case alert, ok := <-alerts:
			if !ok {
				return
			}
			if msg, fresh := feed.live(alert); fresh && !send(msg) {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
