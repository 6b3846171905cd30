// Package notify pushes run-completion events to a WebSocket endpoint so
// downstream consumers can refresh without polling. Delivery is best
// effort: one dial, one message, one close, and any failure is logged and
// swallowed. A run never fails because nobody was listening.
package notify

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/gorilla/websocket"
)

const (
	EventTypeUpdated = "trends.updated"

	KindInterest = "interest"
	KindForecast = "forecast"

	publishTimeout = 5 * time.Second
)

// Event announces that a run persisted new rows.
type Event struct {
	Type    string   `json:"type"`
	Geo     string   `json:"geo"`
	Kind    string   `json:"kind"` // "interest" or "forecast"
	Slugs   []string `json:"slugs"`
	Horizon int      `json:"horizon"` // days covered by the run
	Ts      string   `json:"ts"`      // RFC3339 UTC
}

// NewEvent builds an update event with slugs sorted and deduplicated.
func NewEvent(geo, kind string, slugs []string, horizon int) Event {
	uniq := make([]string, 0, len(slugs))
	seen := make(map[string]bool, len(slugs))
	for _, s := range slugs {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		uniq = append(uniq, s)
	}
	sort.Strings(uniq)
	return Event{
		Type:    EventTypeUpdated,
		Geo:     geo,
		Kind:    kind,
		Slugs:   uniq,
		Horizon: horizon,
		Ts:      time.Now().UTC().Format(time.RFC3339),
	}
}

type Publisher struct {
	url    string
	dialer *websocket.Dialer
}

// NewPublisher targets the given ws:// or wss:// URL. An empty URL yields
// a disabled publisher whose Publish is a silent no-op.
func NewPublisher(url string) *Publisher {
	return &Publisher{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: publishTimeout,
		},
	}
}

// Publish delivers one event and hangs up. Events without slugs are
// dropped: consumers only care about runs that changed something.
func (p *Publisher) Publish(ctx context.Context, ev Event) {
	if p.url == "" || len(ev.Slugs) == 0 {
		return
	}

	conn, _, err := p.dialer.DialContext(ctx, p.url, nil)
	if err != nil {
		log.Printf("[notify] dial %s failed: %v", p.url, err)
		return
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(publishTimeout))
	if err := conn.WriteJSON(ev); err != nil {
		log.Printf("[notify] write %s event failed: %v", ev.Kind, err)
		return
	}
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	log.Printf("[notify] published %s update for %d slugs (geo %s)", ev.Kind, len(ev.Slugs), ev.Geo)
}
