package service

import (
	"context"
	"os"
	"sync"
	"time"

	"wagate/internal/constants"
	"wagate/internal/errors"
	"wagate/internal/models"
	"wagate/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

// SessionRegistry is the view of live sessions the monitor polls.
type SessionRegistry interface {
	LiveSessions() []string
	LiveSession(clientID string) types.Session
}

// MonitorStore is the persistence surface the monitor reconciles against.
type MonitorStore interface {
	GetAccount(ctx context.Context, clientID string) (*models.Account, error)
	MarkAccountReady(ctx context.Context, clientID string, at time.Time) error
	MarkAccountDisconnected(ctx context.Context, clientID string, at time.Time) error
}

// ConnectionMonitor periodically polls the connectivity state of every live
// session and reconciles the stored account status with it. An
// unrecoverable transport fault makes the monitor terminate the process so
// the supervisor can restart it into a clean engine state.
type ConnectionMonitor struct {
	sessions SessionRegistry
	store    MonitorStore
	logger   *logrus.Logger

	interval     time.Duration
	startupDelay time.Duration
	flushDelay   time.Duration

	// exit is called at most once after an unrecoverable fault. It is a
	// field so tests can observe termination instead of dying.
	exit     func(code int)
	exitOnce sync.Once

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewConnectionMonitor creates a monitor with the given poll interval and
// startup delay. Non-positive durations fall back to the defaults.
func NewConnectionMonitor(sessions SessionRegistry, store MonitorStore, interval, startupDelay time.Duration, logger *logrus.Logger) *ConnectionMonitor {
	if interval <= 0 {
		interval = constants.DefaultMonitorIntervalSec * time.Second
	}
	if startupDelay <= 0 {
		startupDelay = constants.DefaultMonitorStartupDelaySec * time.Second
	}
	return &ConnectionMonitor{
		sessions:     sessions,
		store:        store,
		logger:       logger,
		interval:     interval,
		startupDelay: startupDelay,
		flushDelay:   constants.DefaultFatalExitFlushDelayMs * time.Millisecond,
		exit:         os.Exit,
	}
}

// SetExitFunc overrides the process termination hook.
func (m *ConnectionMonitor) SetExitFunc(exit func(code int)) {
	m.exit = exit
}

// Start launches the monitor loop. Calling Start on a running monitor is a
// no-op.
func (m *ConnectionMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.running = true
	go m.run(ctx)
}

// Stop halts the monitor loop and waits for it to exit.
func (m *ConnectionMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel, done := m.cancel, m.done
	m.running = false
	m.mu.Unlock()

	cancel()
	<-done
}

func (m *ConnectionMonitor) run(ctx context.Context) {
	defer close(m.done)

	select {
	case <-ctx.Done():
		return
	case <-time.After(m.startupDelay):
	}
	m.Tick(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick performs one reconciliation pass over all live sessions.
func (m *ConnectionMonitor) Tick(ctx context.Context) {
	for _, clientID := range m.sessions.LiveSessions() {
		sess := m.sessions.LiveSession(clientID)
		if sess == nil {
			continue
		}
		m.checkSession(ctx, clientID, sess)
	}
}

func (m *ConnectionMonitor) checkSession(ctx context.Context, clientID string, sess types.Session) {
	log := m.logger.WithField("client_id", clientID)

	state, err := sess.GetState(ctx)
	if err != nil {
		if types.IsUnrecoverable(err) {
			m.fatal(err)
			return
		}
		log.WithError(err).Warn("Failed to query session state")
		return
	}

	account, err := m.store.GetAccount(ctx, clientID)
	if err != nil {
		log.WithError(err).Warn("Failed to load account for reconciliation")
		return
	}
	if account == nil {
		return
	}

	now := time.Now().UTC()
	if state == types.StateConnected {
		if account.Status == models.AccountStatusReady {
			return
		}
		log.WithField("previous_status", account.Status).Info("Session connected; marking ready")
		if err := m.store.MarkAccountReady(ctx, clientID, now); err != nil {
			log.WithError(err).Warn("Failed to mark account ready")
		}
		return
	}

	if account.Status == models.AccountStatusDisconnected {
		return
	}
	log.WithFields(logrus.Fields{
		"state":           state,
		"previous_status": account.Status,
	}).Warn("Session not connected; marking disconnected")
	if err := m.store.MarkAccountDisconnected(ctx, clientID, now); err != nil {
		log.WithError(err).Warn("Failed to mark account disconnected")
	}
}

// fatal logs the fault and schedules process termination after a short
// delay so buffered log output reaches its sink.
func (m *ConnectionMonitor) fatal(err error) {
	m.exitOnce.Do(func() {
		fault := errors.Wrap(err, errors.ErrCodeUnrecoverableFault, "transport fault cannot be recovered in-process")
		m.logger.WithError(fault).Error("Unrecoverable transport fault; terminating for supervisor restart")
		exit := m.exit
		time.AfterFunc(m.flushDelay, func() {
			exit(1)
		})
	})
}
