package queue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Handler processes one dequeued job reference. The job row itself lives in
// the database; the queue only moves identifiers around.
type Handler func(ctx context.Context, jobID int64)

// Queue is the delivery queue contract used by the submission path and the
// worker's retry scheduling.
type Queue interface {
	Enqueue(ctx context.Context, jobID int64, delay time.Duration) error
}

const (
	defaultPromoteInterval = 250 * time.Millisecond
	dequeueBlockTimeout    = time.Second
	promoteBatchSize       = 100
)

// RedisQueue is a Redis-backed delivery queue: a list holds ready job IDs and
// a sorted set holds delayed ones, scored by their due time. A promoter loop
// moves due entries from the set to the list; workers block-pop the list.
type RedisQueue struct {
	client     *redis.Client
	readyKey   string
	delayedKey string
	logger     *logrus.Logger

	promoteInterval time.Duration

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

func NewRedisQueue(client *redis.Client, name string, logger *logrus.Logger) *RedisQueue {
	return &RedisQueue{
		client:          client,
		readyKey:        name,
		delayedKey:      name + ":delayed",
		logger:          logger,
		promoteInterval: defaultPromoteInterval,
	}
}

// Enqueue schedules a job reference for delivery. A non-positive delay makes
// it immediately available; otherwise it parks in the delayed set until due.
func (q *RedisQueue) Enqueue(ctx context.Context, jobID int64, delay time.Duration) error {
	member := strconv.FormatInt(jobID, 10)
	if delay <= 0 {
		return q.client.LPush(ctx, q.readyKey, member).Err()
	}
	due := float64(time.Now().Add(delay).UnixMilli())
	return q.client.ZAdd(ctx, q.delayedKey, redis.Z{Score: due, Member: member}).Err()
}

// Start launches the promoter loop and the worker pool. It returns
// immediately; consumption stops when ctx is cancelled.
func (q *RedisQueue) Start(ctx context.Context, workers int, handler Handler) {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		q.logger.Warn("Delivery queue is already running")
		return
	}
	q.running = true
	q.mu.Unlock()

	if workers <= 0 {
		workers = 1
	}

	q.wg.Add(1)
	go q.promoteLoop(ctx)

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.workerLoop(ctx, handler)
	}

	q.logger.WithField("workers", workers).Info("Delivery queue started")
}

// Wait blocks until every queue goroutine has exited.
func (q *RedisQueue) Wait() {
	q.wg.Wait()
}

func (q *RedisQueue) promoteLoop(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.promoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.promoteDue(ctx); err != nil && ctx.Err() == nil {
				q.logger.WithError(err).Error("Failed to promote delayed jobs")
			}
		}
	}
}

// promoteDue moves every due entry from the delayed set to the ready list.
// ZRem acts as the claim: only the remover pushes, so concurrent promoters
// never duplicate a job.
func (q *RedisQueue) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	members, err := q.client.ZRangeByScore(ctx, q.delayedKey, &redis.ZRangeBy{
		Min: "-inf", Max: now, Count: promoteBatchSize,
	}).Result()
	if err != nil {
		return err
	}

	for _, member := range members {
		removed, err := q.client.ZRem(ctx, q.delayedKey, member).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.readyKey, member).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (q *RedisQueue) workerLoop(ctx context.Context, handler Handler) {
	defer q.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		result, err := q.client.BRPop(ctx, dequeueBlockTimeout, q.readyKey).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.logger.WithError(err).Error("Delivery queue dequeue failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		// BRPop returns [key, value].
		if len(result) < 2 {
			continue
		}
		jobID, err := strconv.ParseInt(result[1], 10, 64)
		if err != nil {
			q.logger.WithField("member", result[1]).Warn("Discarding malformed queue entry")
			continue
		}

		handler(ctx, jobID)
	}
}
