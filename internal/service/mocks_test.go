package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"wagate/internal/models"
	"wagate/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// fakeStore is an in-memory stand-in for the database used across the
// service tests. It implements AccountStore, JobStore, MessageStore,
// MonitorStore and SettingsStore.
type fakeStore struct {
	mu sync.Mutex

	accounts   map[string]*models.Account
	jobs       map[int64]*models.Job
	broadcasts map[int64]*models.Broadcast
	inbound    []models.InboundMessage
	settings   map[string]string

	nextJobID       int64
	nextBroadcastID int64

	failEnsure bool
	failSave   bool
	failRetry  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:   make(map[string]*models.Account),
		jobs:       make(map[int64]*models.Job),
		broadcasts: make(map[int64]*models.Broadcast),
		settings:   make(map[string]string),
	}
}

func (s *fakeStore) EnsureAccount(ctx context.Context, clientID string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failEnsure {
		return nil, fmt.Errorf("store unavailable")
	}
	if acc, ok := s.accounts[clientID]; ok {
		copied := *acc
		return &copied, nil
	}
	acc := &models.Account{
		ID:       int64(len(s.accounts) + 1),
		ClientID: clientID,
		Status:   models.AccountStatusInitializing,
	}
	s.accounts[clientID] = acc
	copied := *acc
	return &copied, nil
}

func (s *fakeStore) GetAccount(ctx context.Context, clientID string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[clientID]
	if !ok {
		return nil, nil
	}
	copied := *acc
	return &copied, nil
}

func (s *fakeStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Account
	for _, acc := range s.accounts {
		out = append(out, *acc)
	}
	return out, nil
}

func (s *fakeStore) UpdateAccountStatus(ctx context.Context, clientID string, status models.AccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.accounts[clientID]; ok {
		acc.Status = status
	}
	return nil
}

func (s *fakeStore) SetAccountQR(ctx context.Context, clientID, qr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.accounts[clientID]; ok {
		acc.Status = models.AccountStatusQR
		acc.LastQR = &qr
	}
	return nil
}

func (s *fakeStore) MarkAccountReady(ctx context.Context, clientID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.accounts[clientID]; ok {
		acc.Status = models.AccountStatusReady
		acc.LastConnectedAt = &at
		acc.LastQR = nil
	}
	return nil
}

func (s *fakeStore) MarkAccountDisconnected(ctx context.Context, clientID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.accounts[clientID]; ok {
		acc.Status = models.AccountStatusDisconnected
		acc.LastDisconnectedAt = &at
	}
	return nil
}

func (s *fakeStore) TouchAccountMessage(ctx context.Context, clientID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.accounts[clientID]; ok {
		acc.Status = models.AccountStatusReady
		acc.LastMessageAt = &at
	}
	return nil
}

func (s *fakeStore) ResetAccount(ctx context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[clientID]
	if !ok {
		acc = &models.Account{ID: int64(len(s.accounts) + 1), ClientID: clientID}
		s.accounts[clientID] = acc
	}
	acc.Status = models.AccountStatusInitializing
	acc.LastQR = nil
	return nil
}

func (s *fakeStore) DeleteAccount(ctx context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, clientID)
	return nil
}

func (s *fakeStore) SaveInboundMessage(ctx context.Context, msg *models.InboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return fmt.Errorf("store unavailable")
	}
	msg.ID = int64(len(s.inbound) + 1)
	s.inbound = append(s.inbound, *msg)
	return nil
}

func (s *fakeStore) inboundMessages() []models.InboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.InboundMessage, len(s.inbound))
	copy(out, s.inbound)
	return out
}

func (s *fakeStore) CreateJob(ctx context.Context, job *models.Job) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextJobID++
	stored := *job
	stored.ID = s.nextJobID
	stored.Status = models.JobStatusQueued
	s.jobs[stored.ID] = &stored
	return stored.ID, nil
}

func (s *fakeStore) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	copied := *job
	return &copied, nil
}

func (s *fakeStore) MarkJobProcessing(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Status = models.JobStatusProcessing
	}
	return nil
}

func (s *fakeStore) MarkJobSent(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Status = models.JobStatusSent
		job.LastError = nil
		job.NextRunAt = nil
	}
	return nil
}

func (s *fakeStore) MarkJobRetry(ctx context.Context, id int64, attempts int, lastError string, nextRunAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRetry {
		return fmt.Errorf("store unavailable")
	}
	if job, ok := s.jobs[id]; ok {
		job.Status = models.JobStatusQueued
		job.Attempts = attempts
		job.LastError = &lastError
		job.NextRunAt = &nextRunAt
	}
	return nil
}

func (s *fakeStore) MarkJobFailed(ctx context.Context, id int64, attempts int, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Status = models.JobStatusFailed
		job.Attempts = attempts
		job.LastError = &lastError
		job.NextRunAt = nil
	}
	return nil
}

func (s *fakeStore) CreateBroadcast(ctx context.Context, b *models.Broadcast) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextBroadcastID++
	stored := *b
	stored.ID = s.nextBroadcastID
	s.broadcasts[stored.ID] = &stored
	return stored.ID, nil
}

func (s *fakeStore) GetBroadcast(ctx context.Context, id int64) (*models.Broadcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.broadcasts[id]
	if !ok {
		return nil, nil
	}
	copied := *b
	return &copied, nil
}

func (s *fakeStore) UpdateBroadcastStatus(ctx context.Context, id int64, status models.BroadcastStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.broadcasts[id]; ok {
		b.Status = status
	}
	return nil
}

func (s *fakeStore) GetBroadcastStats(ctx context.Context, broadcastID int64) (models.BroadcastStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats models.BroadcastStats
	for _, job := range s.jobs {
		if job.BroadcastID == nil || *job.BroadcastID != broadcastID {
			continue
		}
		switch job.Status {
		case models.JobStatusQueued:
			stats.Queued++
		case models.JobStatusProcessing:
			stats.Processing++
		case models.JobStatusSent:
			stats.Sent++
		case models.JobStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (s *fakeStore) SetSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

func (s *fakeStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, found := s.settings[key]
	return value, found, nil
}

func (s *fakeStore) GetIntSetting(ctx context.Context, key string, def int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, found := s.settings[key]
	if !found {
		return def, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return def, nil
	}
	return n, nil
}

type sendCall struct {
	chatID string
	text   string
}

// mockSession is a configurable transport session.
type mockSession struct {
	mu sync.Mutex

	clientID string

	initErr    error
	destroyErr error
	sendErr    error
	stateErr   error
	state      types.ConnectionState

	numberID    string
	numberIDErr error

	registered    bool
	registeredErr error

	initialized bool
	destroyed   bool
	sends       []sendCall
}

func (m *mockSession) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initErr != nil {
		return m.initErr
	}
	m.initialized = true
	return nil
}

func (m *mockSession) Destroy(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyed = true
	return m.destroyErr
}

func (m *mockSession) SendText(ctx context.Context, chatID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends = append(m.sends, sendCall{chatID: chatID, text: text})
	return m.sendErr
}

func (m *mockSession) GetState(ctx context.Context) (types.ConnectionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stateErr != nil {
		return "", m.stateErr
	}
	return m.state, nil
}

func (m *mockSession) GetNumberID(ctx context.Context, number string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.numberID, m.numberIDErr
}

func (m *mockSession) IsRegisteredUser(ctx context.Context, chatID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registered, m.registeredErr
}

func (m *mockSession) sentMessages() []sendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sendCall, len(m.sends))
	copy(out, m.sends)
	return out
}

// mockFactory hands out mockSessions, one per client.
type mockFactory struct {
	mu       sync.Mutex
	sessions map[string]*mockSession
	created  []string
	next     *mockSession
	err      error
}

func newMockFactory() *mockFactory {
	return &mockFactory{sessions: make(map[string]*mockSession)}
}

func (f *mockFactory) NewSession(cfg types.SessionConfig) (types.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, cfg.ClientID)
	if f.next != nil {
		sess := f.next
		f.next = nil
		sess.clientID = cfg.ClientID
		f.sessions[cfg.ClientID] = sess
		return sess, nil
	}
	sess := &mockSession{clientID: cfg.ClientID, state: types.StateConnected}
	f.sessions[cfg.ClientID] = sess
	return sess, nil
}

func (f *mockFactory) createdCount(clientID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, id := range f.created {
		if id == clientID {
			count++
		}
	}
	return count
}

type enqueueCall struct {
	jobID int64
	delay time.Duration
}

// fakeQueue records enqueue calls instead of touching Redis.
type fakeQueue struct {
	mu       sync.Mutex
	enqueues []enqueueCall
	err      error
}

func (q *fakeQueue) Enqueue(ctx context.Context, jobID int64, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.enqueues = append(q.enqueues, enqueueCall{jobID: jobID, delay: delay})
	return nil
}

func (q *fakeQueue) calls() []enqueueCall {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]enqueueCall, len(q.enqueues))
	copy(out, q.enqueues)
	return out
}

// recordingForwarder captures forwarded inbound messages.
type recordingForwarder struct {
	mu       sync.Mutex
	forwards []models.InboundMessage
}

func (f *recordingForwarder) ForwardInbound(clientID string, msg models.InboundMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forwards = append(f.forwards, msg)
}

func (f *recordingForwarder) forwarded() []models.InboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.InboundMessage, len(f.forwards))
	copy(out, f.forwards)
	return out
}
