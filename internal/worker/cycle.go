// Package worker contains the publish pipeline: the cycle controller that
// runs once per scheduler tick, the per-job processor, and the token cache.
package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	config "github.com/postdeck/postdeck/configs"
	"github.com/postdeck/postdeck/internal/models"
	"github.com/postdeck/postdeck/internal/repository"
)

const missedScheduleMessage = "scheduled time missed by more than the recovery threshold"

// Controller owns all per-process worker state: the shutdown flag, the idle
// cycle counter and the concurrency gate. One instance per process.
type Controller struct {
	workerID  string
	sr        repository.ScheduleRepository
	processor *Processor
	sem       *semaphore.Weighted
	cfg       config.Worker

	cycleMu  sync.Mutex
	inFlight sync.WaitGroup

	mu           sync.Mutex
	shuttingDown bool
	idleCycles   int
}

func NewController(workerID string, sr repository.ScheduleRepository, processor *Processor, cfg config.Worker) *Controller {
	return &Controller{
		workerID:  workerID,
		sr:        sr,
		processor: processor,
		sem:       semaphore.NewWeighted(cfg.ConcurrencyLimit),
		cfg:       cfg,
	}
}

func (c *Controller) WorkerID() string {
	return c.workerID
}

// Initialize runs the startup recovery: any job this worker id still holds
// is indeterminate after a restart and goes back to pending, and pending
// jobs that missed their run time beyond the threshold are failed outright.
func (c *Controller) Initialize(ctx context.Context) error {
	released, err := c.sr.ReleaseAllLockedBy(ctx, c.workerID)
	if err != nil {
		return err
	}
	if released > 0 {
		log.Printf("Released %d jobs locked by worker %s", released, c.workerID)
	}

	missed, err := c.sr.FailStalePending(ctx, c.cfg.MissedThreshold, missedScheduleMessage)
	if err != nil {
		return err
	}
	if missed > 0 {
		log.Printf("Failed %d jobs that missed their schedule", missed)
	}

	return nil
}

// RunCycle is the per-tick entry point. Overlapping ticks are skipped, as is
// any tick arriving during shutdown.
func (c *Controller) RunCycle(ctx context.Context) error {
	if !c.cycleMu.TryLock() {
		return nil
	}
	defer c.cycleMu.Unlock()

	if c.isShuttingDown() {
		return nil
	}

	due, err := c.sr.CountDuePending(ctx)
	if err != nil {
		log.Printf("CRITICAL: counting due jobs failed: %v", err)
		return err
	}

	if due == 0 {
		c.mu.Lock()
		c.idleCycles++
		idle := c.idleCycles
		c.mu.Unlock()

		if idle%c.cfg.IdleRecoveryEvery == 0 {
			c.recoverySweep(ctx)
		}
		return nil
	}

	c.mu.Lock()
	c.idleCycles = 0
	c.mu.Unlock()

	c.recoverySweep(ctx)

	if c.isShuttingDown() {
		return nil
	}

	batch, err := c.sr.ClaimBatch(ctx, c.workerID, c.cfg.BatchSize)
	if err != nil {
		log.Printf("CRITICAL: claiming batch failed: %v", err)
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	log.Printf("Worker %s claimed %d jobs", c.workerID, len(batch))

	var wg sync.WaitGroup
	for _, cj := range batch {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			// Context gone mid-batch; release the rest for another cycle.
			c.releaseJob(cj)
			continue
		}

		wg.Add(1)
		c.inFlight.Add(1)
		go func(cj *models.ClaimedJob) {
			defer wg.Done()
			defer c.inFlight.Done()
			defer c.sem.Release(1)

			if err := c.processor.Process(ctx, cj); err != nil {
				log.Printf("Job %d finished with error: %v", cj.Job.ID, err)
			}
		}(cj)
	}

	wg.Wait()
	return nil
}

// recoverySweep is the safety net run on busy cycles and every Nth idle
// cycle: release stuck locks and fail jobs that missed their window.
func (c *Controller) recoverySweep(ctx context.Context) {
	if reset, err := c.sr.ReleaseStuck(ctx, c.cfg.StuckThreshold); err != nil {
		log.Printf("Stuck job recovery failed: %v", err)
	} else if reset > 0 {
		log.Printf("Recovered %d stuck jobs", reset)
	}

	if missed, err := c.sr.FailStalePending(ctx, c.cfg.MissedThreshold, missedScheduleMessage); err != nil {
		log.Printf("Missed schedule sweep failed: %v", err)
	} else if missed > 0 {
		log.Printf("Failed %d jobs that missed their schedule", missed)
	}
}

func (c *Controller) releaseJob(cj *models.ClaimedJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.sr.Requeue(ctx, cj.Job.ID, cj.Job.Attempts); err != nil {
		log.Printf("Releasing unprocessed job %d failed: %v", cj.Job.ID, err)
	}
}

// Shutdown suppresses new cycles, waits up to the grace period for in-flight
// jobs, then force-releases anything still locked by this worker so nothing
// is stranded in processing.
func (c *Controller) Shutdown(ctx context.Context) {
	c.mu.Lock()
	c.shuttingDown = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(c.cfg.ShutdownGrace):
		log.Printf("Shutdown grace period elapsed with jobs still in flight")
	}

	released, err := c.sr.ReleaseAllLockedBy(ctx, c.workerID)
	if err != nil {
		log.Printf("Releasing locks on shutdown failed: %v", err)
		return
	}
	if released > 0 {
		log.Printf("Released %d jobs on shutdown", released)
	}
}

func (c *Controller) isShuttingDown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shuttingDown
}

// Stats reports queue depth by status plus this worker's identity.
func (c *Controller) Stats(ctx context.Context) (map[string]any, error) {
	stats, err := c.sr.Stats(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	idle := c.idleCycles
	down := c.shuttingDown
	c.mu.Unlock()

	return map[string]any{
		"worker_id":     c.workerID,
		"queue":         stats,
		"idle_cycles":   idle,
		"shutting_down": down,
		"concurrency":   c.cfg.ConcurrencyLimit,
		"batch_size":    c.cfg.BatchSize,
	}, nil
}
