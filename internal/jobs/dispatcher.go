package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"freightcall-platform/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Processor runs one pipeline run; the dispatcher owns claiming and status
// bookkeeping around it.
type Processor interface {
	Process(ctx context.Context, orgID, callID string, runAttempt int) error
}

// Dispatcher pulls pending jobs onto a fixed worker pool. Per-org
// concurrency is capped with Redis slots; a job that cannot get a slot is
// requeued instead of dropped.
type Dispatcher struct {
	store     Store
	processor Processor
	logger    *slog.Logger

	// acquireSlot is nil when org caps are disabled (no Redis configured).
	acquireSlot func(ctx context.Context, orgID string) (bool, error)
	releaseSlot func(ctx context.Context, orgID string) error

	workers      int
	pollInterval time.Duration

	wake chan struct{}
	wg   sync.WaitGroup
}

type DispatcherConfig struct {
	Store     Store
	Processor Processor
	Logger    *slog.Logger

	Redis          *redis.Client
	OrgConcurrency int
	SlotTTL        time.Duration

	Workers      int
	PollInterval time.Duration
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.SlotTTL <= 0 {
		cfg.SlotTTL = 10 * time.Minute
	}
	d := &Dispatcher{
		store:        cfg.Store,
		processor:    cfg.Processor,
		logger:       cfg.Logger,
		workers:      cfg.Workers,
		pollInterval: cfg.PollInterval,
		wake:         make(chan struct{}, 1),
	}
	if cfg.Redis != nil && cfg.OrgConcurrency > 0 {
		rdb, limit, ttl := cfg.Redis, cfg.OrgConcurrency, cfg.SlotTTL
		d.acquireSlot = func(ctx context.Context, orgID string) (bool, error) {
			return utils.AcquireRunSlot(ctx, rdb, "org:runs:"+orgID, limit, ttl)
		}
		d.releaseSlot = func(ctx context.Context, orgID string) error {
			return utils.ReleaseRunSlot(ctx, rdb, "org:runs:"+orgID)
		}
	}
	return d
}

// Submit enqueues a process_call job for one claimed run attempt and wakes
// a worker.
func (d *Dispatcher) Submit(ctx context.Context, orgID, callID string, runAttempt int) (Job, error) {
	payload, err := json.Marshal(ProcessCallPayload{CallID: callID, RunAttempt: runAttempt})
	if err != nil {
		return Job{}, fmt.Errorf("encode payload: %w", err)
	}
	j, err := d.store.Enqueue(ctx, Job{
		ID:      uuid.NewString(),
		OrgID:   orgID,
		Kind:    KindProcessCall,
		Payload: string(payload),
	})
	if err != nil {
		return Job{}, err
	}
	select {
	case d.wake <- struct{}{}:
	default:
	}
	return j, nil
}

// Start launches the worker pool. Workers exit when ctx is cancelled; Wait
// blocks until they drain.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func(worker int) {
			defer d.wg.Done()
			d.runWorker(ctx, worker)
		}(i)
	}
}

func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) runWorker(ctx context.Context, worker int) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		d.drain(ctx, worker)
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
		case <-ticker.C:
		}
	}
}

// drain claims and runs jobs until the queue is empty. A job requeued for
// an org at its concurrency cap ends the drain; the worker waits out a poll
// interval instead of re-claiming the same job in a tight loop.
func (d *Dispatcher) drain(ctx context.Context, worker int) {
	for {
		if ctx.Err() != nil {
			return
		}
		j, err := d.store.Claim(ctx)
		if errors.Is(err, ErrNoPendingJobs) {
			return
		}
		if err != nil {
			d.logger.ErrorContext(ctx, "job claim failed", "worker", worker, "error", err)
			return
		}
		if requeued := d.runJob(ctx, worker, j); requeued {
			return
		}
	}
}

// runJob executes one claimed job. Reports whether the job was requeued
// because its org had no free run slot.
func (d *Dispatcher) runJob(ctx context.Context, worker int, j Job) bool {
	log := d.logger.With("worker", worker, "job_id", j.ID, "org_id", j.OrgID, "kind", j.Kind)

	if d.acquireSlot != nil {
		ok, err := d.acquireSlot(ctx, j.OrgID)
		if err != nil {
			log.ErrorContext(ctx, "run slot check failed", "error", err)
		}
		if err == nil && !ok {
			log.InfoContext(ctx, "org at concurrency cap, requeueing")
			if err := d.store.Requeue(ctx, j.ID); err != nil {
				log.ErrorContext(ctx, "requeue failed", "error", err)
			}
			return true
		}
		if err == nil {
			defer func() {
				if err := d.releaseSlot(context.WithoutCancel(ctx), j.OrgID); err != nil {
					log.WarnContext(ctx, "run slot release failed", "error", err)
				}
			}()
		}
	}

	if err := d.execute(ctx, j); err != nil {
		log.ErrorContext(ctx, "job failed", "error", err)
		if markErr := d.store.MarkFailed(context.WithoutCancel(ctx), j.ID, err.Error()); markErr != nil {
			log.ErrorContext(ctx, "job status write failed", "error", markErr)
		}
		return false
	}
	if err := d.store.MarkCompleted(ctx, j.ID); err != nil {
		log.ErrorContext(ctx, "job status write failed", "error", err)
	}
	return false
}

func (d *Dispatcher) execute(ctx context.Context, j Job) error {
	switch j.Kind {
	case KindProcessCall:
		var p ProcessCallPayload
		if err := json.Unmarshal([]byte(j.Payload), &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return d.processor.Process(ctx, j.OrgID, p.CallID, p.RunAttempt)
	default:
		return fmt.Errorf("unknown job kind %q", j.Kind)
	}
}
