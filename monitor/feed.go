// Package monitor is a read-only diagnostics feed: it subscribes to a
// session's event stream and fans each event out to connected
// WebSocket clients as JSON, tracking connection counts and an
// events-per-second rate. It never issues MTP transactions itself, so
// it cannot interfere with a session's one-transaction-in-flight rule.
//
// Grounded in the teacher's own mtp/server.go LVServer, which does the
// same websocket/ratecounter/atomic live-telemetry job for a
// different vendor feature.
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/paulbellamy/ratecounter"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"mtpzhost/ptp"
)

// EventSample is the JSON shape broadcast to every connected client.
type EventSample struct {
	Code          uint16    `json:"code"`
	SessionID     uint32    `json:"session_id"`
	TransactionID uint32    `json:"transaction_id"`
	Param         [3]uint32 `json:"param"`
	Seq           uint64    `json:"seq"`
	At            time.Time `json:"at"`
}

// Feed broadcasts a device's event stream over WebSocket.
type Feed struct {
	events <-chan ptp.Event
	log    *logrus.Logger

	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]bool
	mu       sync.Mutex

	rate       *ratecounter.RateCounter
	seq        atomic.Uint64
	connected  atomic.Int64
	dropped    atomic.Int64
	lastSample atomic.Value // EventSample

	eg  *errgroup.Group
	ctx context.Context
}

// NewFeed builds a Feed that relays events over ctx's lifetime. Call
// Run to start the broadcast loop and serve the Feed over HTTP (its
// ServeHTTP method) to accept clients.
func NewFeed(ctx context.Context, events <-chan ptp.Event, log *logrus.Logger) *Feed {
	eg, egCtx := errgroup.WithContext(ctx)
	return &Feed{
		events:  events,
		log:     log,
		clients: map[*websocket.Conn]bool{},
		rate:    ratecounter.NewRateCounter(time.Second),
		eg:      eg,
		ctx:     egCtx,
	}
}

// Run drives the broadcast loop until ctx is cancelled.
func (f *Feed) Run() error {
	f.eg.Go(f.broadcastLoop)
	return f.eg.Wait()
}

// EventsPerSecond reports the current event rate.
func (f *Feed) EventsPerSecond() int64 { return f.rate.Rate() }

// ConnectedClients reports the current WebSocket client count.
func (f *Feed) ConnectedClients() int64 { return f.connected.Load() }

// DroppedSamples reports how many samples failed to send to a slow or
// disconnected client and were skipped.
func (f *Feed) DroppedSamples() int64 { return f.dropped.Load() }

// LastSample returns the most recently broadcast sample, if any.
func (f *Feed) LastSample() (EventSample, bool) {
	v := f.lastSample.Load()
	if v == nil {
		return EventSample{}, false
	}
	return v.(EventSample), true
}

func (f *Feed) broadcastLoop() error {
	for {
		select {
		case <-f.ctx.Done():
			return nil
		case ev, ok := <-f.events:
			if !ok {
				return nil
			}
			f.rate.Incr(1)
			sample := EventSample{
				Code:          ev.Code,
				SessionID:     ev.SessionID,
				TransactionID: ev.TransactionID,
				Param:         ev.Param,
				Seq:           f.seq.Inc(),
				At:            sampleTime(),
			}
			f.lastSample.Store(sample)
			f.broadcast(sample)
		}
	}
}

// sampleTime is a seam so tests can freeze time if they need
// deterministic ordering; production uses the wall clock.
var sampleTime = time.Now

func (f *Feed) broadcast(sample EventSample) {
	payload, err := json.Marshal(sample)
	if err != nil {
		f.log.WithField("prefix", "monitor").Errorf("marshal sample: %s", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			f.log.WithField("prefix", "monitor").Warnf("dropping client: %s", err)
			f.dropped.Inc()
			delete(f.clients, c)
			f.connected.Dec()
			_ = c.Close()
		}
	}
}

// ServeHTTP upgrades r to a WebSocket and streams EventSamples to it
// until the client disconnects.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.WithField("prefix", "monitor").Errorf("upgrade failed: %s", err)
		return
	}

	f.mu.Lock()
	f.clients[conn] = true
	f.mu.Unlock()
	f.connected.Inc()

	defer func() {
		f.mu.Lock()
		delete(f.clients, conn)
		f.mu.Unlock()
		f.connected.Dec()
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
