package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"wagate/internal/errors"
	"wagate/internal/models"
	"wagate/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRegistry struct {
	sessions map[string]types.Session
}

func (r *staticRegistry) LiveSessions() []string {
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (r *staticRegistry) LiveSession(clientID string) types.Session {
	return r.sessions[clientID]
}

func TestConnectionMonitorMarksReady(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	_, err := store.EnsureAccount(ctx, "alpha")
	require.NoError(t, err)
	require.NoError(t, store.UpdateAccountStatus(ctx, "alpha", models.AccountStatusDisconnected))

	registry := &staticRegistry{sessions: map[string]types.Session{
		"alpha": &mockSession{state: types.StateConnected},
	}}
	monitor := NewConnectionMonitor(registry, store, time.Minute, time.Minute, testLogger())
	monitor.Tick(ctx)

	account, err := store.GetAccount(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusReady, account.Status)
	assert.NotNil(t, account.LastConnectedAt)
}

func TestConnectionMonitorMarksDisconnected(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	_, err := store.EnsureAccount(ctx, "alpha")
	require.NoError(t, err)
	require.NoError(t, store.UpdateAccountStatus(ctx, "alpha", models.AccountStatusReady))

	registry := &staticRegistry{sessions: map[string]types.Session{
		"alpha": &mockSession{state: types.StateTimeout},
	}}
	monitor := NewConnectionMonitor(registry, store, time.Minute, time.Minute, testLogger())
	monitor.Tick(ctx)

	account, err := store.GetAccount(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusDisconnected, account.Status)
	assert.NotNil(t, account.LastDisconnectedAt)
}

func TestConnectionMonitorLeavesMatchingStatusAlone(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	_, err := store.EnsureAccount(ctx, "alpha")
	require.NoError(t, err)
	require.NoError(t, store.UpdateAccountStatus(ctx, "alpha", models.AccountStatusReady))

	registry := &staticRegistry{sessions: map[string]types.Session{
		"alpha": &mockSession{state: types.StateConnected},
	}}
	monitor := NewConnectionMonitor(registry, store, time.Minute, time.Minute, testLogger())
	monitor.Tick(ctx)

	account, err := store.GetAccount(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusReady, account.Status)
	// MarkAccountReady was not called so the timestamp stays empty.
	assert.Nil(t, account.LastConnectedAt)
}

func TestConnectionMonitorRecoverableErrorIsLoggedOnly(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	_, err := store.EnsureAccount(ctx, "alpha")
	require.NoError(t, err)
	require.NoError(t, store.UpdateAccountStatus(ctx, "alpha", models.AccountStatusReady))

	registry := &staticRegistry{sessions: map[string]types.Session{
		"alpha": &mockSession{stateErr: fmt.Errorf("temporary engine hiccup")},
	}}
	monitor := NewConnectionMonitor(registry, store, time.Minute, time.Minute, testLogger())

	exited := make(chan int, 1)
	monitor.SetExitFunc(func(code int) { exited <- code })
	monitor.Tick(ctx)

	select {
	case code := <-exited:
		t.Fatalf("unexpected process exit with code %d", code)
	case <-time.After(50 * time.Millisecond):
	}
	account, err := store.GetAccount(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusReady, account.Status)
}

func TestConnectionMonitorUnrecoverableFaultExits(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()

	fault := &types.FaultError{Code: types.FaultExecutionContextDestroyed, Message: "page gone"}
	registry := &staticRegistry{sessions: map[string]types.Session{
		"alpha": &mockSession{stateErr: fault},
		"beta":  &mockSession{stateErr: fault},
	}}
	monitor := NewConnectionMonitor(registry, store, time.Minute, time.Minute, testLogger())
	monitor.flushDelay = time.Millisecond

	exited := make(chan int, 2)
	monitor.SetExitFunc(func(code int) { exited <- code })

	// Both faulting sessions are seen in one pass yet exit fires once.
	monitor.Tick(ctx)
	monitor.Tick(ctx)

	select {
	case code := <-exited:
		assert.Equal(t, 1, code)
	case <-time.After(time.Second):
		t.Fatal("expected exit func to be called")
	}
	select {
	case <-exited:
		t.Fatal("exit func called more than once")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConnectionMonitorFatalClassifiesFault(t *testing.T) {
	store := newFakeStore()
	logger, hook := logrustest.NewNullLogger()

	fault := &types.FaultError{Code: types.FaultExecutionContextDestroyed, Message: "page gone"}
	registry := &staticRegistry{sessions: map[string]types.Session{
		"alpha": &mockSession{stateErr: fault},
	}}
	monitor := NewConnectionMonitor(registry, store, time.Minute, time.Minute, logger)
	monitor.flushDelay = time.Millisecond
	monitor.SetExitFunc(func(int) {})

	monitor.Tick(context.Background())

	var logged error
	for _, entry := range hook.AllEntries() {
		if err, ok := entry.Data[logrus.ErrorKey].(error); ok {
			logged = err
		}
	}
	require.NotNil(t, logged)
	assert.True(t, errors.HasCode(logged, errors.ErrCodeUnrecoverableFault))
	assert.ErrorIs(t, logged, fault)
}

func TestConnectionMonitorStartStop(t *testing.T) {
	store := newFakeStore()
	registry := &staticRegistry{sessions: map[string]types.Session{}}
	monitor := NewConnectionMonitor(registry, store, time.Millisecond, time.Millisecond, testLogger())

	ctx := context.Background()
	monitor.Start(ctx)
	monitor.Start(ctx) // second Start is a no-op
	time.Sleep(10 * time.Millisecond)
	monitor.Stop()
	monitor.Stop() // second Stop is a no-op
}
