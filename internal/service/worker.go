package service

import (
	"context"
	"time"

	"wagate/internal/constants"
	"wagate/internal/errors"
	"wagate/internal/models"
	"wagate/internal/queue"
	"wagate/internal/retry"
	"wagate/pkg/whatsapp"
	"wagate/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

// JobStore is the persistence surface the delivery worker needs.
type JobStore interface {
	GetJob(ctx context.Context, id int64) (*models.Job, error)
	MarkJobProcessing(ctx context.Context, id int64) error
	MarkJobSent(ctx context.Context, id int64) error
	MarkJobRetry(ctx context.Context, id int64, attempts int, lastError string, nextRunAt time.Time) error
	MarkJobFailed(ctx context.Context, id int64, attempts int, lastError string) error
	GetIntSetting(ctx context.Context, key string, def int) (int, error)
}

// SessionResolver resolves a live session for a client, starting one on
// demand.
type SessionResolver interface {
	Resolve(ctx context.Context, clientID string) (types.Session, error)
}

// DeliveryWorker consumes delivery jobs from the queue and drives each one
// through its send attempts. A failed attempt is re-enqueued with a
// Fibonacci-spaced delay until the attempt ceiling is reached.
type DeliveryWorker struct {
	store     JobStore
	sessions  SessionResolver
	queue     queue.Queue
	scheduler models.SchedulerConfig
	logger    *logrus.Logger
}

// NewDeliveryWorker creates a delivery worker. The scheduler config holds
// the environment-level retry defaults; stored settings take precedence
// over them at attempt time.
func NewDeliveryWorker(store JobStore, sessions SessionResolver, q queue.Queue, scheduler models.SchedulerConfig, logger *logrus.Logger) *DeliveryWorker {
	return &DeliveryWorker{
		store:     store,
		sessions:  sessions,
		queue:     q,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Process handles a single queue delivery for jobID. It never returns with
// the job left in processing: every path ends in sent, queued (with a
// scheduled retry) or failed. Unknown job IDs are dropped silently so a
// stale queue entry cannot wedge a worker.
func (w *DeliveryWorker) Process(ctx context.Context, jobID int64) {
	log := w.logger.WithField("job_id", jobID)

	job, err := w.store.GetJob(ctx, jobID)
	if err != nil {
		log.WithError(err).Error("Failed to load job")
		return
	}
	if job == nil {
		log.Debug("Job row missing; dropping queue entry")
		return
	}

	if err := w.store.MarkJobProcessing(ctx, jobID); err != nil {
		log.WithError(err).Error("Failed to mark job processing")
		return
	}

	sendErr := w.attempt(ctx, job)
	if sendErr == nil {
		if err := w.store.MarkJobSent(ctx, jobID); err != nil {
			log.WithError(err).Error("Failed to mark job sent")
		}
		log.WithField("client_id", job.ClientID).Info("Message delivered")
		return
	}

	attempts := job.Attempts + 1
	maxAttempts := w.resolveMaxAttempts(ctx, job)
	log = log.WithFields(logrus.Fields{
		"client_id":    job.ClientID,
		"attempts":     attempts,
		"max_attempts": maxAttempts,
	})

	if attempts >= maxAttempts {
		if err := w.store.MarkJobFailed(ctx, jobID, attempts, sendErr.Error()); err != nil {
			log.WithError(err).Error("Failed to mark job failed")
		}
		log.WithError(sendErr).Error("Delivery failed permanently")
		return
	}

	delay := retry.Delay(attempts, w.resolveBaseDelay(ctx))
	nextRunAt := time.Now().UTC().Add(delay)
	if err := w.store.MarkJobRetry(ctx, jobID, attempts, sendErr.Error(), nextRunAt); err != nil {
		log.WithError(err).Error("Failed to record retry state")
		// Close the job out rather than strand it in processing with no
		// queue entry pointing at it.
		if failErr := w.store.MarkJobFailed(ctx, jobID, attempts, sendErr.Error()); failErr != nil {
			log.WithError(failErr).Error("Failed to close out job after retry bookkeeping failure")
		}
		return
	}
	if err := w.queue.Enqueue(ctx, jobID, delay); err != nil {
		log.WithError(err).Error("Failed to re-enqueue job")
		return
	}
	log.WithError(sendErr).WithField("delay", delay).Warn("Delivery failed; retry scheduled")
}

func (w *DeliveryWorker) attempt(ctx context.Context, job *models.Job) error {
	sess, err := w.sessions.Resolve(ctx, job.ClientID)
	if err != nil {
		return err
	}
	if err := sess.SendText(ctx, whatsapp.NormalizeChatID(job.To), job.Text); err != nil {
		return errors.NewSendFailureError(job.ClientID, job.To, err)
	}
	return nil
}

// resolveMaxAttempts prefers a caller-supplied ceiling stamped on the job;
// jobs without one fall back to the stored setting, then the environment
// default.
func (w *DeliveryWorker) resolveMaxAttempts(ctx context.Context, job *models.Job) int {
	if job.MaxAttempts > 0 {
		return job.MaxAttempts
	}
	def := w.scheduler.MaxAttempts
	if def <= 0 {
		def = constants.DefaultSchedulerMaxAttempts
	}
	resolved, err := w.store.GetIntSetting(ctx, constants.SettingSchedulerMaxAttempts, def)
	if err != nil {
		w.logger.WithError(err).Warn("Failed to read max attempts setting")
		return def
	}
	return resolved
}

func (w *DeliveryWorker) resolveBaseDelay(ctx context.Context) time.Duration {
	def := w.scheduler.BaseDelayMs
	if def <= 0 {
		def = constants.DefaultSchedulerBaseDelayMs
	}
	ms, err := w.store.GetIntSetting(ctx, constants.SettingSchedulerBaseDelayMs, def)
	if err != nil {
		w.logger.WithError(err).Warn("Failed to read base delay setting")
		ms = def
	}
	return time.Duration(ms) * time.Millisecond
}
