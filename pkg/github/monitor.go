package github

import (
	"context"
	"sync"
	"time"

	"github.com/ethpandaops/gheregistry/pkg/store"
	"github.com/sirupsen/logrus"
)

// Reachability is the last known probe state of a registered server.
type Reachability struct {
	ServerID  string    `json:"serverId"`
	Name      string    `json:"name"`
	APIURL    string    `json:"apiUrl"`
	Reachable bool      `json:"reachable"`
	Outcome   Outcome   `json:"outcome"`
	Message   string    `json:"message,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

// ReachabilityChangeCallback is called when a server becomes reachable or
// unreachable, and on the first check of a server that is unreachable.
type ReachabilityChangeCallback func(r *Reachability)

// MonitorMetrics records reachability state.
type MonitorMetrics interface {
	SetServerReachable(serverID, name string, reachable bool)
	DeleteServerReachable(serverID, name string)
}

// Monitor periodically re-probes every registered server.
type Monitor interface {
	Start(ctx context.Context) error
	Stop() error
	CheckNow(ctx context.Context) error
	Status() []*Reachability
	SetReachabilityChangeCallback(cb ReachabilityChangeCallback)
}

// monitor implements Monitor.
type monitor struct {
	log      logrus.FieldLogger
	prober   Prober
	store    store.Store
	metrics  MonitorMetrics
	interval time.Duration
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu       sync.Mutex
	state    map[string]*Reachability
	callback ReachabilityChangeCallback
}

// Ensure monitor implements Monitor.
var _ Monitor = (*monitor)(nil)

// NewMonitor creates a new reachability monitor. A non-positive interval
// disables the background loop; CheckNow still works.
func NewMonitor(
	log logrus.FieldLogger,
	prober Prober,
	st store.Store,
	m MonitorMetrics,
	interval time.Duration,
) Monitor {
	return &monitor{
		log:      log.WithField("component", "monitor"),
		prober:   prober,
		store:    st,
		metrics:  m,
		interval: interval,
		state:    make(map[string]*Reachability),
	}
}

// Start checks every registered server once and begins the monitoring loop.
func (m *monitor) Start(ctx context.Context) error {
	if m.interval <= 0 {
		m.log.Info("Reachability monitor disabled")

		return nil
	}

	m.log.WithField("interval", m.interval).Info("Starting reachability monitor")

	// Initial check so status is known before the first tick.
	if err := m.CheckNow(ctx); err != nil {
		m.log.WithError(err).Warn("Initial reachability check failed")
	}

	ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)

	go m.loop(ctx)

	return nil
}

// Stop stops the monitoring loop.
func (m *monitor) Stop() error {
	m.log.Info("Stopping reachability monitor")

	if m.cancel != nil {
		m.cancel()
	}

	m.wg.Wait()

	return nil
}

// SetReachabilityChangeCallback sets the callback for reachability changes.
func (m *monitor) SetReachabilityChangeCallback(cb ReachabilityChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callback = cb
}

// Status returns the last known state of every checked server.
func (m *monitor) Status() []*Reachability {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Reachability, 0, len(m.state))

	for _, r := range m.state {
		cp := *r
		out = append(out, &cp)
	}

	return out
}

func (m *monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.CheckNow(ctx); err != nil {
				m.log.WithError(err).Error("Reachability check failed")
			}
		}
	}
}

// CheckNow probes every registered server once.
func (m *monitor) CheckNow(ctx context.Context) error {
	servers, err := m.store.ListServers(ctx)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(servers))
	unreachable := 0

	for _, server := range servers {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		seen[server.ID] = true

		result, err := m.prober.Probe(ctx, server.APIURL)

		current := &Reachability{
			ServerID:  server.ID,
			Name:      server.Name,
			APIURL:    server.APIURL,
			Reachable: err == nil,
			Outcome:   result.Outcome,
			CheckedAt: time.Now(),
		}

		if err != nil {
			current.Message = err.Error()
			unreachable++
		}

		m.record(current)
	}

	m.forget(seen)

	m.log.WithFields(logrus.Fields{
		"servers":     len(servers),
		"unreachable": unreachable,
	}).Info("Reachability check completed")

	return nil
}

// record stores the new state and notifies when it changed.
func (m *monitor) record(current *Reachability) {
	m.mu.Lock()
	prev, existed := m.state[current.ServerID]
	m.state[current.ServerID] = current
	cb := m.callback
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetServerReachable(current.ServerID, current.Name, current.Reachable)
	}

	changed := (existed && prev.Reachable != current.Reachable) || (!existed && !current.Reachable)
	if !changed {
		return
	}

	log := m.log.WithFields(logrus.Fields{
		"server":  current.Name,
		"api_url": current.APIURL,
		"outcome": current.Outcome,
	})

	if current.Reachable {
		log.Info("Server is reachable again")
	} else {
		log.WithField("reason", current.Message).Warn("Server is unreachable")
	}

	if cb != nil {
		cb(current)
	}
}

// forget drops state for servers that are no longer registered.
func (m *monitor) forget(seen map[string]bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, r := range m.state {
		if seen[id] {
			continue
		}

		delete(m.state, id)

		if m.metrics != nil {
			m.metrics.DeleteServerReachable(r.ServerID, r.Name)
		}
	}
}
