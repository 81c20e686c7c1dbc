package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"wagate/internal/constants"
	apperrors "wagate/internal/errors"
	"wagate/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDatabase(t *testing.T) *Database {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "wagate-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEnsureAccount_CreatesInitializing(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	account, err := db.EnsureAccount(ctx, "alpha")
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, "alpha", account.ClientID)
	assert.Equal(t, models.AccountStatusInitializing, account.Status)
	assert.Nil(t, account.LastQR)
}

func TestEnsureAccount_Idempotent(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	first, err := db.EnsureAccount(ctx, "alpha")
	require.NoError(t, err)

	require.NoError(t, db.UpdateAccountStatus(ctx, "alpha", models.AccountStatusAuthenticated))

	second, err := db.EnsureAccount(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.AccountStatusAuthenticated, second.Status, "existing row must not be reset")
}

func TestGetAccount_MissingReturnsNil(t *testing.T) {
	db := setupTestDatabase(t)

	account, err := db.GetAccount(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, account)
}

func TestAccountLifecycleTransitions(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	_, err := db.EnsureAccount(ctx, "alpha")
	require.NoError(t, err)

	require.NoError(t, db.SetAccountQR(ctx, "alpha", "qr-payload-1"))
	account, err := db.GetAccount(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusQR, account.Status)
	require.NotNil(t, account.LastQR)
	assert.Equal(t, "qr-payload-1", *account.LastQR)

	now := time.Now().UTC()
	require.NoError(t, db.MarkAccountReady(ctx, "alpha", now))
	account, err = db.GetAccount(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusReady, account.Status)
	assert.Nil(t, account.LastQR, "ready must clear the stored QR")
	require.NotNil(t, account.LastConnectedAt)

	require.NoError(t, db.MarkAccountDisconnected(ctx, "alpha", now))
	account, err = db.GetAccount(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusDisconnected, account.Status)
	require.NotNil(t, account.LastDisconnectedAt)
}

func TestResetAccount_ClearsQRAndStatus(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	_, err := db.EnsureAccount(ctx, "alpha")
	require.NoError(t, err)
	require.NoError(t, db.SetAccountQR(ctx, "alpha", "stale-qr"))
	require.NoError(t, db.MarkAccountDisconnected(ctx, "alpha", time.Now().UTC()))

	require.NoError(t, db.ResetAccount(ctx, "alpha"))

	account, err := db.GetAccount(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusInitializing, account.Status)
	assert.Nil(t, account.LastQR)
}

func TestResetAccount_CreatesMissingRow(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	require.NoError(t, db.ResetAccount(ctx, "fresh"))

	account, err := db.GetAccount(ctx, "fresh")
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, models.AccountStatusInitializing, account.Status)
}

func TestDeleteAccount_Idempotent(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	_, err := db.EnsureAccount(ctx, "alpha")
	require.NoError(t, err)

	require.NoError(t, db.DeleteAccount(ctx, "alpha"))
	require.NoError(t, db.DeleteAccount(ctx, "alpha"))

	account, err := db.GetAccount(ctx, "alpha")
	require.NoError(t, err)
	assert.Nil(t, account)
}

func TestTouchAccountMessage_SetsReadyAndTimestamp(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	_, err := db.EnsureAccount(ctx, "alpha")
	require.NoError(t, err)

	require.NoError(t, db.TouchAccountMessage(ctx, "alpha", time.Now().UTC()))

	account, err := db.GetAccount(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusReady, account.Status)
	require.NotNil(t, account.LastMessageAt)
}

func TestListAccounts(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	for _, id := range []string{"alpha", "beta", "gamma"} {
		_, err := db.EnsureAccount(ctx, id)
		require.NoError(t, err)
	}

	accounts, err := db.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 3)
}

func TestCreateJob_DefaultsAndRoundTrip(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	id, err := db.CreateJob(ctx, &models.Job{
		ClientID: "alpha",
		To:       "62813555000@c.us",
		Text:     "hello there",
	})
	require.NoError(t, err)

	job, err := db.GetJob(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "alpha", job.ClientID)
	assert.Equal(t, "62813555000@c.us", job.To)
	assert.Equal(t, "hello there", job.Text)
	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Equal(t, 0, job.Attempts)
	assert.Zero(t, job.MaxAttempts)
	assert.Nil(t, job.BroadcastID)
}

func TestCreateJob_CallerMaxAttemptsKept(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	id, err := db.CreateJob(ctx, &models.Job{
		ClientID:    "alpha",
		To:          "62813555000@c.us",
		Text:        "hello",
		MaxAttempts: 3,
	})
	require.NoError(t, err)

	job, err := db.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, job.MaxAttempts)
}

func TestGetJob_MissingReturnsNil(t *testing.T) {
	db := setupTestDatabase(t)

	job, err := db.GetJob(context.Background(), 12345)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestJobTransitions(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	id, err := db.CreateJob(ctx, &models.Job{ClientID: "alpha", To: "62813@c.us", Text: "x"})
	require.NoError(t, err)

	require.NoError(t, db.MarkJobProcessing(ctx, id))
	job, err := db.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, job.Status)

	nextRun := time.Now().UTC().Add(time.Second)
	require.NoError(t, db.MarkJobRetry(ctx, id, 1, "send failed", nextRun))
	job, err = db.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Equal(t, 1, job.Attempts)
	require.NotNil(t, job.LastError)
	assert.Equal(t, "send failed", *job.LastError)
	require.NotNil(t, job.NextRunAt)

	require.NoError(t, db.MarkJobSent(ctx, id))
	job, err = db.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSent, job.Status)
	assert.Nil(t, job.LastError, "sent must clear the last error")
	assert.Nil(t, job.NextRunAt)
}

func TestMarkJobFailed(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	id, err := db.CreateJob(ctx, &models.Job{ClientID: "alpha", To: "62813@c.us", Text: "x"})
	require.NoError(t, err)

	require.NoError(t, db.MarkJobFailed(ctx, id, 3, "engine unreachable"))

	job, err := db.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, 3, job.Attempts)
	require.NotNil(t, job.LastError)
	assert.Equal(t, "engine unreachable", *job.LastError)
}

func TestBroadcastStatsAndStatus(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	broadcastID, err := db.CreateBroadcast(ctx, &models.Broadcast{
		ClientID: "alpha",
		Name:     "launch",
		Text:     "we are live",
		Status:   models.BroadcastStatusQueued,
	})
	require.NoError(t, err)

	var jobIDs []int64
	for i := 0; i < 3; i++ {
		id, err := db.CreateJob(ctx, &models.Job{
			ClientID:    "alpha",
			To:          "62813@c.us",
			Text:        "we are live",
			BroadcastID: &broadcastID,
		})
		require.NoError(t, err)
		jobIDs = append(jobIDs, id)
	}

	stats, err := db.GetBroadcastStats(ctx, broadcastID)
	require.NoError(t, err)
	assert.Equal(t, models.BroadcastStats{Queued: 3}, stats)

	require.NoError(t, db.MarkJobSent(ctx, jobIDs[0]))
	require.NoError(t, db.MarkJobSent(ctx, jobIDs[1]))
	require.NoError(t, db.MarkJobFailed(ctx, jobIDs[2], 3, "boom"))

	stats, err = db.GetBroadcastStats(ctx, broadcastID)
	require.NoError(t, err)
	assert.Equal(t, models.BroadcastStats{Sent: 2, Failed: 1}, stats)
	assert.Equal(t, models.BroadcastStatusDone, stats.Resolve())

	require.NoError(t, db.UpdateBroadcastStatus(ctx, broadcastID, models.BroadcastStatusDone))
	broadcast, err := db.GetBroadcast(ctx, broadcastID)
	require.NoError(t, err)
	assert.Equal(t, models.BroadcastStatusDone, broadcast.Status)
}

func TestInboundMessages_SaveAndList(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	ts := time.Now().Unix()
	to := "628000@c.us"
	require.NoError(t, db.SaveInboundMessage(ctx, &models.InboundMessage{
		ClientID:  "alpha",
		From:      "62813@c.us",
		To:        &to,
		Body:      "ping",
		Timestamp: &ts,
	}))
	require.NoError(t, db.SaveInboundMessage(ctx, &models.InboundMessage{
		ClientID: "beta",
		From:     "62814@c.us",
		Body:     "hello",
		FromMe:   true,
	}))

	all, err := db.ListInboundMessages(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	alphaOnly, err := db.ListInboundMessages(ctx, "alpha", 10)
	require.NoError(t, err)
	require.Len(t, alphaOnly, 1)
	assert.Equal(t, "ping", alphaOnly[0].Body)
	assert.False(t, alphaOnly[0].FromMe)
	require.NotNil(t, alphaOnly[0].To)
	assert.Equal(t, to, *alphaOnly[0].To)
}

func TestSettings_RoundTripAndPrecedence(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	_, found, err := db.GetSetting(ctx, constants.SettingSchedulerBaseDelayMs)
	require.NoError(t, err)
	assert.False(t, found)

	n, err := db.GetIntSetting(ctx, constants.SettingSchedulerBaseDelayMs, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1000, n, "missing setting falls back to the default")

	require.NoError(t, db.SetSetting(ctx, constants.SettingSchedulerBaseDelayMs, "250"))
	n, err = db.GetIntSetting(ctx, constants.SettingSchedulerBaseDelayMs, 1000)
	require.NoError(t, err)
	assert.Equal(t, 250, n, "stored setting wins over the default")

	require.NoError(t, db.SetSetting(ctx, constants.SettingSchedulerBaseDelayMs, "not-a-number"))
	n, err = db.GetIntSetting(ctx, constants.SettingSchedulerBaseDelayMs, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1000, n, "unparseable stored value falls back to the default")
}

func TestColumnEncryption_RoundTrip(t *testing.T) {
	t.Setenv("WAGATE_ENABLE_ENCRYPTION", "true")
	t.Setenv("WAGATE_ENCRYPTION_SECRET", "0123456789abcdef0123456789abcdef")

	db := setupTestDatabase(t)
	ctx := context.Background()

	_, err := db.EnsureAccount(ctx, "alpha")
	require.NoError(t, err)
	require.NoError(t, db.SetAccountQR(ctx, "alpha", "secret-qr"))

	account, err := db.GetAccount(ctx, "alpha")
	require.NoError(t, err)
	require.NotNil(t, account.LastQR)
	assert.Equal(t, "secret-qr", *account.LastQR)

	id, err := db.CreateJob(ctx, &models.Job{ClientID: "alpha", To: "62813@c.us", Text: "classified"})
	require.NoError(t, err)
	job, err := db.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "classified", job.Text)
}

func TestWrite_NonRetryableErrorIsTyped(t *testing.T) {
	db := setupTestDatabase(t)
	require.NoError(t, db.Close())

	_, err := db.CreateJob(context.Background(), &models.Job{ClientID: "alpha", To: "62813@c.us", Text: "hello"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDatabaseQuery))
}

func TestNewEncryptor_MissingSecret(t *testing.T) {
	t.Setenv("WAGATE_ENABLE_ENCRYPTION", "true")
	t.Setenv("WAGATE_ENCRYPTION_SECRET", "")

	_, err := newEncryptor()
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMissingConfig))
}
