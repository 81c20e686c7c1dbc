package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"wagate/internal/errors"
	"wagate/internal/models"
	"wagate/internal/validation"
	"wagate/pkg/whatsapp"
	"wagate/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

// AccountStore is the persistence surface the session manager needs.
type AccountStore interface {
	EnsureAccount(ctx context.Context, clientID string) (*models.Account, error)
	GetAccount(ctx context.Context, clientID string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	UpdateAccountStatus(ctx context.Context, clientID string, status models.AccountStatus) error
	SetAccountQR(ctx context.Context, clientID, qr string) error
	MarkAccountReady(ctx context.Context, clientID string, at time.Time) error
	MarkAccountDisconnected(ctx context.Context, clientID string, at time.Time) error
	TouchAccountMessage(ctx context.Context, clientID string, at time.Time) error
	ResetAccount(ctx context.Context, clientID string) error
	DeleteAccount(ctx context.Context, clientID string) error
	SaveInboundMessage(ctx context.Context, msg *models.InboundMessage) error
}

// InboundForwarder delivers inbound messages to an external automation
// webhook. Implementations must not block the caller.
type InboundForwarder interface {
	ForwardInbound(clientID string, msg models.InboundMessage)
}

// StartOptions control how a session is brought up.
type StartOptions struct {
	// ForceReconnect starts a fresh session even when the stored account
	// is marked disconnected or a live handle already exists.
	ForceReconnect bool
	// DataPath overrides the computed session artifact directory.
	DataPath string
}

// SessionManager owns the live session registry and is the single entry
// point for engine events. All account state transitions flow through
// HandleEvent so the database and the registry never drift apart.
type SessionManager struct {
	factory     types.SessionFactory
	store       AccountStore
	forwarder   InboundForwarder
	logger      *logrus.Logger
	sessionsDir string
	webhookURL  string

	mu       sync.RWMutex
	registry map[string]types.Session

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex

	subMu       sync.Mutex
	subscribers map[string]map[chan types.Event]struct{}
}

// NewSessionManager creates a session manager. webhookURL is the callback
// the engine posts session events to; it is passed through to every
// session the factory creates.
func NewSessionManager(factory types.SessionFactory, store AccountStore, forwarder InboundForwarder, sessionsDir, webhookURL string, logger *logrus.Logger) *SessionManager {
	return &SessionManager{
		factory:     factory,
		store:       store,
		forwarder:   forwarder,
		logger:      logger,
		sessionsDir: sessionsDir,
		webhookURL:  webhookURL,
		registry:    make(map[string]types.Session),
		locks:       make(map[string]*sync.Mutex),
		subscribers: make(map[string]map[chan types.Event]struct{}),
	}
}

func (m *SessionManager) clientLock(clientID string) *sync.Mutex {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	l, ok := m.locks[clientID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[clientID] = l
	}
	return l
}

func (m *SessionManager) live(clientID string) types.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registry[clientID]
}

func (m *SessionManager) register(clientID string, sess types.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry[clientID] = sess
}

func (m *SessionManager) unregister(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.registry, clientID)
}

// SessionPath returns the artifact directory for a client.
func (m *SessionManager) SessionPath(clientID string) string {
	return filepath.Join(m.sessionsDir, whatsapp.SessionDirName(clientID))
}

// Start brings up a session for clientID, creating the account row if it
// does not exist. Starting an already-live session is a no-op that
// returns the existing handle. A stored DISCONNECTED account refuses to
// start unless ForceReconnect is set; callers must go through Reconnect
// to get a fresh QR pairing.
func (m *SessionManager) Start(ctx context.Context, clientID string, opts StartOptions) (types.Session, error) {
	if err := validation.ValidateClientID(clientID); err != nil {
		return nil, err
	}

	lock := m.clientLock(clientID)
	lock.Lock()
	defer lock.Unlock()

	if existing := m.live(clientID); existing != nil {
		if !opts.ForceReconnect {
			return existing, nil
		}
		if err := existing.Destroy(ctx); err != nil {
			m.logger.WithError(err).WithField("client_id", clientID).Warn("Failed to destroy previous session handle")
		}
		m.unregister(clientID)
	}

	account, err := m.store.EnsureAccount(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure account %s: %w", clientID, err)
	}
	if account.Status == models.AccountStatusDisconnected && !opts.ForceReconnect {
		return nil, errors.NewSessionDisconnectedError(clientID)
	}

	dataPath := opts.DataPath
	if dataPath == "" {
		dataPath = m.SessionPath(clientID)
	}

	sess, err := m.factory.NewSession(types.SessionConfig{
		ClientID:   clientID,
		DataPath:   dataPath,
		WebhookURL: m.webhookURL,
	})
	if err != nil {
		return nil, errors.NewTransportInitError(clientID, err)
	}

	m.logger.WithFields(logrus.Fields{
		"client_id": clientID,
		"data_path": dataPath,
	}).Info("Starting session")

	if err := sess.Initialize(ctx); err != nil {
		return nil, errors.NewTransportInitError(clientID, err)
	}

	m.register(clientID, sess)
	return sess, nil
}

// Resolve returns the live session for clientID, starting one on demand.
func (m *SessionManager) Resolve(ctx context.Context, clientID string) (types.Session, error) {
	if sess := m.live(clientID); sess != nil {
		return sess, nil
	}
	return m.Start(ctx, clientID, StartOptions{})
}

// Reconnect resets the stored account back to INITIALIZING and starts a
// fresh session so the engine emits a new QR code.
func (m *SessionManager) Reconnect(ctx context.Context, clientID string) (*models.Account, error) {
	if err := m.store.ResetAccount(ctx, clientID); err != nil {
		return nil, fmt.Errorf("failed to reset account %s: %w", clientID, err)
	}
	if _, err := m.Start(ctx, clientID, StartOptions{ForceReconnect: true}); err != nil {
		return nil, err
	}
	return m.store.GetAccount(ctx, clientID)
}

// Purge tears a session down completely: the live handle, the on-disk
// artifacts and the account row. Purging an unknown client is a no-op.
func (m *SessionManager) Purge(ctx context.Context, clientID string) error {
	lock := m.clientLock(clientID)
	lock.Lock()
	defer lock.Unlock()

	if sess := m.live(clientID); sess != nil {
		if err := sess.Destroy(ctx); err != nil {
			m.logger.WithError(err).WithField("client_id", clientID).Warn("Failed to destroy session during purge")
		}
		m.unregister(clientID)
	}

	if err := os.RemoveAll(m.SessionPath(clientID)); err != nil {
		m.logger.WithError(err).WithField("client_id", clientID).Warn("Failed to remove session artifacts")
	}

	if err := m.store.DeleteAccount(ctx, clientID); err != nil {
		return fmt.Errorf("failed to delete account %s: %w", clientID, err)
	}

	m.logger.WithField("client_id", clientID).Info("Session purged")
	return nil
}

// AllowAutoStart reports whether a client may be started without an
// explicit reconnect. Only a stored DISCONNECTED status blocks the boot
// rehydration path; unknown clients are allowed.
func (m *SessionManager) AllowAutoStart(ctx context.Context, clientID string) (bool, error) {
	account, err := m.store.GetAccount(ctx, clientID)
	if err != nil {
		return false, err
	}
	if account == nil {
		return true, nil
	}
	return account.Status != models.AccountStatusDisconnected, nil
}

// DiscoverStoredSessions lists client IDs that have artifact directories
// on disk from a previous run.
func (m *SessionManager) DiscoverStoredSessions() []string {
	entries, err := os.ReadDir(m.sessionsDir)
	if err != nil {
		return nil
	}
	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if id, ok := whatsapp.ClientIDFromSessionDir(entry.Name()); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// RestoreStoredSessions re-launches sessions whose artifacts survive on
// disk. Directories without a matching account row are skipped; the
// account table is the source of truth.
func (m *SessionManager) RestoreStoredSessions(ctx context.Context) []string {
	var restored []string
	for _, clientID := range m.DiscoverStoredSessions() {
		account, err := m.store.GetAccount(ctx, clientID)
		if err != nil {
			m.logger.WithError(err).WithField("client_id", clientID).Warn("Failed to look up stored session")
			continue
		}
		if account == nil {
			m.logger.WithField("client_id", clientID).Debug("Skipping orphaned session directory")
			continue
		}
		if account.Status == models.AccountStatusDisconnected {
			m.logger.WithField("client_id", clientID).Info("Skipping disconnected session; reconnect required")
			continue
		}
		if _, err := m.Start(ctx, clientID, StartOptions{}); err != nil {
			m.logger.WithError(err).WithField("client_id", clientID).Error("Failed to restore session")
			continue
		}
		restored = append(restored, clientID)
	}
	return restored
}

// LiveSessions returns the IDs of currently registered sessions.
func (m *SessionManager) LiveSessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.registry))
	for id := range m.registry {
		ids = append(ids, id)
	}
	return ids
}

// LiveSession returns the registered handle for clientID, or nil.
func (m *SessionManager) LiveSession(clientID string) types.Session {
	return m.live(clientID)
}

// ValidateNumber checks whether a phone number is registered on the
// network. The engine contact lookup is tried first; engines that do not
// support it fall back to the registration probe when available.
func (m *SessionManager) ValidateNumber(ctx context.Context, clientID, input string) (*types.NumberCheck, error) {
	sess, err := m.Resolve(ctx, clientID)
	if err != nil {
		return nil, err
	}

	chatID := whatsapp.NormalizeChatID(input)
	number := whatsapp.LocalPart(chatID)
	result := &types.NumberCheck{
		Input:  input,
		Number: number,
		ChatID: chatID,
	}

	canonical, lookupErr := sess.GetNumberID(ctx, number)
	if lookupErr == nil {
		result.IsRegistered = canonical != ""
		result.CanonicalID = canonical
		return result, nil
	}

	if checker, ok := sess.(types.RegistrationChecker); ok {
		registered, probeErr := checker.IsRegisteredUser(ctx, chatID)
		if probeErr == nil {
			result.IsRegistered = registered
			if registered {
				result.CanonicalID = chatID
			}
			return result, nil
		}
		m.logger.WithError(probeErr).WithField("client_id", clientID).Debug("Registration probe failed")
	}
	return nil, lookupErr
}

// Subscribe registers a watcher for session events of a client, used by
// the QR streaming endpoint. The returned cancel func must be called to
// release the channel. Events are dropped rather than block delivery.
func (m *SessionManager) Subscribe(clientID string) (<-chan types.Event, func()) {
	ch := make(chan types.Event, 8)
	m.subMu.Lock()
	if m.subscribers[clientID] == nil {
		m.subscribers[clientID] = make(map[chan types.Event]struct{})
	}
	m.subscribers[clientID][ch] = struct{}{}
	m.subMu.Unlock()

	cancel := func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if subs, ok := m.subscribers[clientID]; ok {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(m.subscribers, clientID)
			}
		}
	}
	return ch, cancel
}

func (m *SessionManager) publish(clientID string, ev types.Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subscribers[clientID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// HandleEvent applies an engine event to the account state machine. It
// is the only place session status transitions happen.
func (m *SessionManager) HandleEvent(ctx context.Context, clientID string, ev types.Event) error {
	log := m.logger.WithFields(logrus.Fields{
		"client_id": clientID,
		"event":     ev.Type,
	})

	var err error
	switch ev.Type {
	case types.EventQR:
		log.Info("QR code received")
		err = m.store.SetAccountQR(ctx, clientID, ev.QR)
	case types.EventAuthenticated:
		log.Info("Session authenticated")
		err = m.store.UpdateAccountStatus(ctx, clientID, models.AccountStatusAuthenticated)
	case types.EventReady:
		log.Info("Session ready")
		err = m.store.MarkAccountReady(ctx, clientID, time.Now().UTC())
	case types.EventAuthFailure:
		log.WithField("reason", ev.Reason).Warn("Authentication failed")
		err = m.store.UpdateAccountStatus(ctx, clientID, models.AccountStatusAuthFailure)
	case types.EventDisconnected:
		log.WithField("reason", ev.Reason).Warn("Session disconnected; purging")
		if markErr := m.store.MarkAccountDisconnected(ctx, clientID, time.Now().UTC()); markErr != nil {
			log.WithError(markErr).Warn("Failed to mark account disconnected")
		}
		err = m.Purge(ctx, clientID)
	case types.EventMessage:
		err = m.handleInbound(ctx, clientID, ev.Message)
	default:
		log.Debug("Ignoring unknown event type")
	}
	if err != nil {
		return err
	}

	m.publish(clientID, ev)
	return nil
}

func (m *SessionManager) handleInbound(ctx context.Context, clientID string, payload *types.MessagePayload) error {
	if payload == nil {
		return nil
	}

	if err := m.store.TouchAccountMessage(ctx, clientID, time.Now().UTC()); err != nil {
		m.logger.WithError(err).WithField("client_id", clientID).Warn("Failed to record message activity")
	}

	msg := models.InboundMessage{
		ClientID: clientID,
		From:     whatsapp.NormalizeChatID(payload.From),
		Body:     payload.Body,
		FromMe:   payload.FromMe,
	}
	if payload.Timestamp != 0 {
		ts := payload.Timestamp
		msg.Timestamp = &ts
	}
	if payload.To != "" {
		to := whatsapp.NormalizeChatID(payload.To)
		msg.To = &to
	}
	if err := m.store.SaveInboundMessage(ctx, &msg); err != nil {
		return fmt.Errorf("failed to save inbound message: %w", err)
	}

	if payload.FromMe {
		return nil
	}

	if isPing(payload.Body) {
		if sess := m.live(clientID); sess != nil {
			if err := sess.SendText(ctx, payload.From, "pong"); err != nil {
				m.logger.WithError(err).WithField("client_id", clientID).Warn("Failed to send pong")
			}
		}
	}

	if m.forwarder != nil {
		m.forwarder.ForwardInbound(clientID, msg)
	}
	return nil
}

func isPing(body string) bool {
	switch strings.ToLower(strings.TrimSpace(body)) {
	case "ping", "!ping":
		return true
	}
	return false
}
