package service

import (
	"context"
	"fmt"

	"wagate/internal/errors"
	"wagate/internal/models"
	"wagate/internal/queue"
	"wagate/internal/validation"
	"wagate/pkg/whatsapp"

	"github.com/sirupsen/logrus"
)

// MessageStore is the persistence surface of the submission path.
type MessageStore interface {
	CreateJob(ctx context.Context, job *models.Job) (int64, error)
	GetJob(ctx context.Context, id int64) (*models.Job, error)
	CreateBroadcast(ctx context.Context, b *models.Broadcast) (int64, error)
	GetBroadcast(ctx context.Context, id int64) (*models.Broadcast, error)
	UpdateBroadcastStatus(ctx context.Context, id int64, status models.BroadcastStatus) error
	GetBroadcastStats(ctx context.Context, broadcastID int64) (models.BroadcastStats, error)
}

// Messenger accepts outbound submissions, persists them as jobs and hands
// them to the delivery queue. Acceptance is decoupled from delivery: a
// successful submission means queued, not sent.
type Messenger struct {
	store  MessageStore
	queue  queue.Queue
	logger *logrus.Logger
}

func NewMessenger(store MessageStore, q queue.Queue, logger *logrus.Logger) *Messenger {
	return &Messenger{store: store, queue: q, logger: logger}
}

// EnqueueMessage persists a single outbound message as a queued job and
// schedules it for immediate delivery. maxAttempts of zero defers the
// attempt ceiling to runtime settings.
func (s *Messenger) EnqueueMessage(ctx context.Context, clientID, to, text string, maxAttempts int) (*models.Job, error) {
	if err := validation.ValidateClientID(clientID); err != nil {
		return nil, err
	}
	if err := validation.ValidateRecipient(to); err != nil {
		return nil, err
	}
	if err := validation.ValidateMessageBody(text); err != nil {
		return nil, err
	}
	if maxAttempts < 0 {
		return nil, errors.NewValidationError("maxAttempts", fmt.Sprintf("%d", maxAttempts), "must not be negative")
	}

	job := &models.Job{
		ClientID:    clientID,
		To:          whatsapp.NormalizeChatID(to),
		Text:        text,
		MaxAttempts: maxAttempts,
	}
	id, err := s.store.CreateJob(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	if err := s.queue.Enqueue(ctx, id, 0); err != nil {
		return nil, fmt.Errorf("failed to enqueue job %d: %w", id, err)
	}

	s.logger.WithFields(logrus.Fields{
		"job_id":    id,
		"client_id": clientID,
	}).Info("Message accepted")
	return s.store.GetJob(ctx, id)
}

// EnqueueBroadcast fans one text out to many recipients: a broadcast row
// plus one queued job per recipient. Returns the broadcast and the created
// job IDs.
func (s *Messenger) EnqueueBroadcast(ctx context.Context, clientID, name, text string, recipients []string, maxAttempts int) (*models.Broadcast, []int64, error) {
	if err := validation.ValidateClientID(clientID); err != nil {
		return nil, nil, err
	}
	if err := validation.ValidateMessageBody(text); err != nil {
		return nil, nil, err
	}
	if len(recipients) == 0 {
		return nil, nil, errors.NewValidationError("recipients", "", "at least one recipient is required")
	}

	broadcastID, err := s.store.CreateBroadcast(ctx, &models.Broadcast{
		ClientID: clientID,
		Name:     name,
		Text:     text,
		Status:   models.BroadcastStatusQueued,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create broadcast: %w", err)
	}

	jobIDs := make([]int64, 0, len(recipients))
	for _, recipient := range recipients {
		if err := validation.ValidateRecipient(recipient); err != nil {
			s.logger.WithError(err).WithField("recipient", recipient).Warn("Skipping invalid broadcast recipient")
			continue
		}
		job := &models.Job{
			ClientID:    clientID,
			To:          whatsapp.NormalizeChatID(recipient),
			Text:        text,
			MaxAttempts: maxAttempts,
			BroadcastID: &broadcastID,
		}
		id, err := s.store.CreateJob(ctx, job)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create broadcast job: %w", err)
		}
		if err := s.queue.Enqueue(ctx, id, 0); err != nil {
			return nil, nil, fmt.Errorf("failed to enqueue broadcast job %d: %w", id, err)
		}
		jobIDs = append(jobIDs, id)
	}
	if len(jobIDs) == 0 {
		// No jobs will ever report in, so close the broadcast row here.
		if err := s.store.UpdateBroadcastStatus(ctx, broadcastID, models.BroadcastStatusFailed); err != nil {
			s.logger.WithError(err).WithField("broadcast_id", broadcastID).Warn("Failed to mark empty broadcast failed")
		}
		return nil, nil, errors.NewValidationError("recipients", "", "no usable recipients")
	}

	s.logger.WithFields(logrus.Fields{
		"broadcast_id": broadcastID,
		"client_id":    clientID,
		"recipients":   len(jobIDs),
	}).Info("Broadcast accepted")

	broadcast, err := s.store.GetBroadcast(ctx, broadcastID)
	if err != nil {
		return nil, nil, err
	}
	return broadcast, jobIDs, nil
}

// GetJob returns the job for id, converting a missing row into a typed
// not-found error.
func (s *Messenger) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, errors.NewNotFoundError("job", fmt.Sprintf("%d", id))
	}
	return job, nil
}

// BroadcastStatus returns a broadcast with its aggregate status derived
// from the live job counts. The derived status is written back so the
// stored row converges on the terminal state.
func (s *Messenger) BroadcastStatus(ctx context.Context, id int64) (*models.Broadcast, models.BroadcastStats, error) {
	broadcast, err := s.store.GetBroadcast(ctx, id)
	if err != nil {
		return nil, models.BroadcastStats{}, err
	}
	if broadcast == nil {
		return nil, models.BroadcastStats{}, errors.NewNotFoundError("broadcast", fmt.Sprintf("%d", id))
	}

	stats, err := s.store.GetBroadcastStats(ctx, id)
	if err != nil {
		return nil, models.BroadcastStats{}, err
	}

	resolved := stats.Resolve()
	if resolved != broadcast.Status {
		if err := s.store.UpdateBroadcastStatus(ctx, id, resolved); err != nil {
			s.logger.WithError(err).WithField("broadcast_id", id).Warn("Failed to persist derived broadcast status")
		} else {
			broadcast.Status = resolved
		}
	}
	return broadcast, stats, nil
}
