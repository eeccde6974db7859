// Package announce publishes page lifecycle events to NATS so external dev
// tooling can observe passes and evictions. Entirely optional; the
// coordinator never depends on it being up.
package announce

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/ondemand/internal/config"
	"git.home.luguber.info/inful/ondemand/internal/events"
	"git.home.luguber.info/inful/ondemand/internal/logfields"
)

// passCompletedPayload is the wire form of a pass completion announcement.
type passCompletedPayload struct {
	PassID      string    `json:"pass_id"`
	Pages       []string  `json:"pages"`
	Failed      bool      `json:"failed"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// pagesEvictedPayload is the wire form of an eviction announcement.
type pagesEvictedPayload struct {
	Pages     []string  `json:"pages"`
	EvictedAt time.Time `json:"evicted_at"`
}

// Announcer bridges the in-process event bus onto NATS subjects
// <prefix>.pass.completed and <prefix>.pages.evicted.
type Announcer struct {
	log     *slog.Logger
	conn    *nats.Conn
	prefix  string
	unsubs  []func()
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
}

// New connects to NATS and starts forwarding bus events.
func New(log *slog.Logger, cfg config.NATSConfig, bus *events.Bus) (*Announcer, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("announcer is disabled")
	}

	conn, err := nats.Connect(cfg.URL, nats.Name("ondemand-announcer"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "ondemand"
	}

	a := &Announcer{log: log, conn: conn, prefix: prefix}

	passCh, unsubPass := events.Subscribe[events.PassCompleted](bus, 16)
	evictCh, unsubEvict := events.Subscribe[events.PagesEvicted](bus, 16)
	a.unsubs = append(a.unsubs, unsubPass, unsubEvict)

	a.wg.Add(2)
	go a.forwardPasses(passCh)
	go a.forwardEvictions(evictCh)

	log.Info("lifecycle announcer connected", slog.String("url", cfg.URL), slog.String("subject_prefix", prefix))
	return a, nil
}

func (a *Announcer) forwardPasses(ch <-chan events.PassCompleted) {
	defer a.wg.Done()
	for evt := range ch {
		payload := passCompletedPayload{
			PassID:      evt.PassID,
			Pages:       evt.Pages,
			Failed:      evt.Err != nil,
			CompletedAt: evt.CompletedAt,
		}
		if evt.Err != nil {
			payload.Error = evt.Err.Error()
		}
		a.publish(a.prefix+".pass.completed", payload)
	}
}

func (a *Announcer) forwardEvictions(ch <-chan events.PagesEvicted) {
	defer a.wg.Done()
	for evt := range ch {
		a.publish(a.prefix+".pages.evicted", pagesEvictedPayload{
			Pages:     evt.Pages,
			EvictedAt: evt.EvictedAt,
		})
	}
}

func (a *Announcer) publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		a.log.Warn("announcement marshal failed", logfields.Error(err))
		return
	}
	if err := a.conn.Publish(subject, data); err != nil {
		a.log.Warn("announcement publish failed", slog.String("subject", subject), logfields.Error(err))
	}
}

// Close unsubscribes from the bus, drains the connection and waits for the
// forwarders to finish.
func (a *Announcer) Close() {
	a.closeMu.Lock()
	if a.closed {
		a.closeMu.Unlock()
		return
	}
	a.closed = true
	a.closeMu.Unlock()

	for _, unsub := range a.unsubs {
		unsub()
	}
	a.wg.Wait()

	if err := a.conn.Drain(); err != nil {
		a.log.Warn("NATS drain failed", logfields.Error(err))
		a.conn.Close()
	}
}
