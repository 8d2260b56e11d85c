// Package connectivity tracks whether the remote database is reachable and
// triggers the pending-data sweep when it becomes reachable again.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/logging"
)

type State string

const (
	Online  State = "online"
	Offline State = "offline"
)

// Pinger is probed periodically by Run.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor owns the online flag. Platform signals, periodic probes and
// failed remote calls all funnel into one transition routine.
type Monitor struct {
	mu           sync.Mutex
	state        State
	pinger       Pinger
	log          logging.Logger
	probeTimeout time.Duration

	onReconnect func(ctx context.Context)
	subs        map[int]func(ctx context.Context)
	nextSub     int
}

func NewMonitor(p Pinger, initial State, log logging.Logger) *Monitor {
	return &Monitor{
		state:        initial,
		pinger:       p,
		log:          log,
		probeTimeout: 3 * time.Second,
		subs:         make(map[int]func(ctx context.Context)),
	}
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) IsOnline() bool { return m.State() == Online }

// OnReconnect sets the hook run on every Offline to Online transition,
// before subscribers are told.
func (m *Monitor) OnReconnect(fn func(ctx context.Context)) {
	m.mu.Lock()
	m.onReconnect = fn
	m.mu.Unlock()
}

// Subscribe registers fn to be called after each reconnect.
func (m *Monitor) Subscribe(fn func(ctx context.Context)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// SetOnline applies a platform online/offline signal.
func (m *Monitor) SetOnline(ctx context.Context, online bool) {
	if online {
		m.transition(ctx, Online, "platform signal")
		return
	}
	m.transition(ctx, Offline, "platform signal")
}

// MarkOffline is called by data paths whose remote call just failed.
func (m *Monitor) MarkOffline(ctx context.Context, cause error) {
	m.transition(ctx, Offline, cause.Error())
}

// Probe pings the remote once and updates the state from the result.
func (m *Monitor) Probe(ctx context.Context) State {
	pctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	err := m.pinger.Ping(pctx)
	cancel()

	if err != nil {
		m.transition(ctx, Offline, err.Error())
	} else {
		m.transition(ctx, Online, "probe succeeded")
	}
	return m.State()
}

// Run probes every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) transition(ctx context.Context, to State, reason string) {
	m.mu.Lock()
	if m.state == to {
		m.mu.Unlock()
		return
	}
	m.state = to
	hook := m.onReconnect
	subs := make([]func(ctx context.Context), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	m.log.Info(ctx, "switched mode", "mode", to, "reason", reason)
	if to != Online {
		return
	}

	if hook != nil {
		hook(ctx)
	}
	for _, fn := range subs {
		fn(ctx)
	}
}

// AlwaysOnline is used in cloud-only mode, where there is no local cache
// to fall back to.
type AlwaysOnline struct{}

func (AlwaysOnline) IsOnline() bool                         { return true }
func (AlwaysOnline) State() State                           { return Online }
func (AlwaysOnline) MarkOffline(context.Context, error)     {}
func (AlwaysOnline) SetOnline(context.Context, bool)        {}
func (AlwaysOnline) Subscribe(func(context.Context)) func() { return func() {} }
