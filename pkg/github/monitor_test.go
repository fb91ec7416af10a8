package github

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethpandaops/gheregistry/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProber answers from a map of URL to outcome.
type scriptedProber struct {
	mu       sync.Mutex
	outcomes map[string]Outcome
}

func (s *scriptedProber) set(apiURL string, outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outcomes[apiURL] = outcome
}

func (s *scriptedProber) Probe(_ context.Context, apiURL string) (*ProbeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcome := s.outcomes[apiURL]
	result := &ProbeResult{APIURL: apiURL, Outcome: outcome}

	if outcome != OutcomeGitHub {
		return result, &ProbeError{Outcome: outcome, Message: string(outcome)}
	}

	return result, nil
}

type fakeMonitorMetrics struct {
	mu        sync.Mutex
	reachable map[string]bool
}

func (f *fakeMonitorMetrics) SetServerReachable(serverID, _ string, reachable bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reachable[serverID] = reachable
}

func (f *fakeMonitorMetrics) DeleteServerReachable(serverID, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.reachable, serverID)
}

func seedStore(t *testing.T, servers ...*store.Server) store.Store {
	t.Helper()

	st := store.NewMemoryStore(testLogger())

	for _, s := range servers {
		require.NoError(t, st.CreateServer(context.Background(), s))
	}

	return st
}

func server(name, apiURL string) *store.Server {
	return &store.Server{ID: store.ServerID(apiURL), Name: name, APIURL: apiURL, CreatedAt: time.Now()}
}

func TestMonitorCheckNow(t *testing.T) {
	ctx := context.Background()
	up := server("up", "http://up.example.com")
	down := server("down", "http://down.example.com")
	st := seedStore(t, up, down)

	prober := &scriptedProber{outcomes: map[string]Outcome{
		up.APIURL:   OutcomeGitHub,
		down.APIURL: OutcomeUnreachable,
	}}
	metrics := &fakeMonitorMetrics{reachable: make(map[string]bool)}

	m := NewMonitor(testLogger(), prober, st, metrics, 0)

	var changes []*Reachability

	m.SetReachabilityChangeCallback(func(r *Reachability) {
		changes = append(changes, r)
	})

	require.NoError(t, m.CheckNow(ctx))

	// Only the unreachable server is reported on the first pass.
	require.Len(t, changes, 1)
	assert.Equal(t, "down", changes[0].Name)
	assert.False(t, changes[0].Reachable)
	assert.Equal(t, OutcomeUnreachable, changes[0].Outcome)

	assert.Equal(t, map[string]bool{up.ID: true, down.ID: false}, metrics.reachable)
	assert.Len(t, m.Status(), 2)

	// Nothing changed.
	require.NoError(t, m.CheckNow(ctx))
	assert.Len(t, changes, 1)

	// Recovery and a new failure are both transitions.
	prober.set(down.APIURL, OutcomeGitHub)
	prober.set(up.APIURL, OutcomeNotGitHub)

	require.NoError(t, m.CheckNow(ctx))
	require.Len(t, changes, 3)

	byName := map[string]*Reachability{}
	for _, c := range changes[1:] {
		byName[c.Name] = c
	}

	assert.True(t, byName["down"].Reachable)
	assert.False(t, byName["up"].Reachable)
	assert.Equal(t, string(OutcomeNotGitHub), byName["up"].Message)
}

func TestMonitorForgetsDeletedServers(t *testing.T) {
	ctx := context.Background()
	gone := server("gone", "http://gone.example.com")
	st := seedStore(t, gone)

	prober := &scriptedProber{outcomes: map[string]Outcome{gone.APIURL: OutcomeGitHub}}
	metrics := &fakeMonitorMetrics{reachable: make(map[string]bool)}

	m := NewMonitor(testLogger(), prober, st, metrics, 0)

	require.NoError(t, m.CheckNow(ctx))
	assert.Len(t, metrics.reachable, 1)

	require.NoError(t, st.DeleteServer(ctx, gone.ID))
	require.NoError(t, m.CheckNow(ctx))

	assert.Empty(t, metrics.reachable)
	assert.Empty(t, m.Status())
}

func TestMonitorLoop(t *testing.T) {
	down := server("down", "http://down.example.com")
	st := seedStore(t, down)

	prober := &scriptedProber{outcomes: map[string]Outcome{down.APIURL: OutcomeUnreachable}}

	m := NewMonitor(testLogger(), prober, st, nil, 10*time.Millisecond)

	notified := make(chan *Reachability, 1)

	m.SetReachabilityChangeCallback(func(r *Reachability) {
		select {
		case notified <- r:
		default:
		}
	})

	require.NoError(t, m.Start(context.Background()))

	select {
	case r := <-notified:
		assert.Equal(t, down.ID, r.ServerID)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor loop never ran")
	}

	require.NoError(t, m.Stop())
}

func TestMonitorStartChecksImmediately(t *testing.T) {
	up := server("up", "http://up.example.com")
	down := server("down", "http://down.example.com")
	st := seedStore(t, up, down)

	prober := &scriptedProber{outcomes: map[string]Outcome{
		up.APIURL:   OutcomeGitHub,
		down.APIURL: OutcomeUnreachable,
	}}
	metrics := &fakeMonitorMetrics{reachable: make(map[string]bool)}

	// The interval is far longer than the test, so only the initial check runs.
	m := NewMonitor(testLogger(), prober, st, metrics, time.Hour)

	var changes []*Reachability

	m.SetReachabilityChangeCallback(func(r *Reachability) {
		changes = append(changes, r)
	})

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	assert.Len(t, m.Status(), 2)
	assert.Equal(t, map[string]bool{up.ID: true, down.ID: false}, metrics.reachable)
	require.Len(t, changes, 1)
	assert.Equal(t, down.ID, changes[0].ServerID)
}

func TestMonitorDisabled(t *testing.T) {
	m := NewMonitor(testLogger(), &scriptedProber{}, seedStore(t), nil, -1)

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Stop())
}
