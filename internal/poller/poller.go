// Package poller drives the periodic status reconciliation of active jobs
// against the remote platform.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"eotracker/internal/apperrors"
	"eotracker/internal/job"
	"eotracker/internal/observability"
	"eotracker/pkg/backoff"
)

// Config holds poll scheduler settings.
type Config struct {
	// Interval between poll cycles.
	Interval time.Duration

	// FailureThreshold is the number of consecutive poll failures for one
	// job after which a warning is surfaced and backoff kicks in.
	FailureThreshold int

	// MaxBackoff caps the per-job delay between polls after the failure
	// threshold is reached.
	MaxBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 15 * time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Minute
	}
	return c
}

// Sink receives jobs that reached a terminal state during a poll cycle.
type Sink interface {
	Enqueue(jobID string)
}

// Poller periodically polls the remote platform for the status of every
// active job and applies the observed transitions to the store.
//
// One cycle runs at a time: if a cycle is still in flight when the ticker
// fires, that tick is skipped rather than stacking concurrent cycles.
type Poller struct {
	remote   job.Remote
	store    job.Store
	sink     Sink
	notifier job.Notifier
	metrics  *observability.Metrics
	cfg      Config
	policy   backoff.Policy
	logger   *slog.Logger

	inFlight atomic.Bool

	mu       sync.Mutex
	failures map[string]int
	warned   map[string]bool
	nextPoll map[string]time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a poller. The sink and notifier may be nil.
func New(remote job.Remote, store job.Store, sink Sink, notifier job.Notifier, metrics *observability.Metrics, cfg Config) *Poller {
	cfg = cfg.withDefaults()
	if notifier == nil {
		notifier = job.NopNotifier{}
	}
	return &Poller{
		remote:   remote,
		store:    store,
		sink:     sink,
		notifier: notifier,
		metrics:  metrics,
		cfg:      cfg,
		policy:   backoff.Policy{Initial: cfg.Interval, Max: cfg.MaxBackoff},
		logger:   slog.With("component", "poller"),
		failures: make(map[string]int),
		warned:   make(map[string]bool),
		nextPoll: make(map[string]time.Time),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the poll loop. The first cycle runs immediately.
func (p *Poller) Start(ctx context.Context) {
	go p.loop(ctx)
}

// Stop terminates the poll loop and waits for it to exit. An in-flight
// cycle finishes on its own; its results are still committed.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.logger.Info("Poll scheduler started", "interval", p.cfg.Interval, "failureThreshold", p.cfg.FailureThreshold)
	go p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Poll scheduler stopping", "reason", "context cancelled")
			return
		case <-p.stop:
			p.logger.Info("Poll scheduler stopping")
			return
		case <-ticker.C:
			go p.poll(ctx)
		}
	}
}

// poll runs one guarded cycle. Returns false when a previous cycle is
// still in flight and this one was skipped.
func (p *Poller) poll(ctx context.Context) bool {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.logger.Debug("Previous poll cycle still running, skipping tick")
		return false
	}
	defer p.inFlight.Store(false)
	p.cycle(ctx)
	return true
}

// cycle polls every active job once.
func (p *Poller) cycle(ctx context.Context) {
	start := time.Now()
	active := p.store.ListActive()

	polled := 0
	for _, j := range active {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if p.deferred(j.ID) {
			continue
		}
		p.pollOne(ctx, j)
		polled++
	}

	if p.metrics != nil {
		p.metrics.RecordPollCycle(ctx, int64(polled), time.Since(start).Seconds())
	}
	if polled > 0 {
		p.logger.Debug("Poll cycle finished", "polled", polled, "duration", time.Since(start))
	}
}

// deferred reports whether the job is inside its failure backoff window.
func (p *Poller) deferred(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, ok := p.nextPoll[id]
	return ok && time.Now().Before(next)
}

func (p *Poller) pollOne(ctx context.Context, j *job.Job) {
	rs, err := p.remote.Status(ctx, j.ID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// The platform no longer knows the job. Nothing left to poll.
			p.failJob(ctx, j, "job no longer exists on the platform")
			return
		}
		p.recordFailure(ctx, j, err)
		return
	}

	wasWarned := p.wasWarned(j.ID)
	p.clearFailure(j.ID)

	from := j.State
	updated, err := p.store.Update(j.ID, func(j *job.Job) error {
		j.LastPolledAt = time.Now().UTC()
		if wasWarned {
			j.Warning = ""
		}
		if rs.State == j.State {
			return nil
		}
		j.State = rs.State
		switch rs.State {
		case job.StateSucceeded:
			j.ResultHandle = rs.ResultHandle
			if j.Datatype == "" && rs.Datatype != "" {
				j.Datatype = rs.Datatype
			}
		case job.StateFailed:
			detail := rs.Detail
			if detail == "" {
				detail = "processing failed"
			}
			j.ErrorDetail = detail
		}
		return nil
	})
	if err != nil {
		// Update failures here mean the remote reported a backwards
		// transition; the store already logged the rejection.
		p.logger.Error("Applying polled status failed", "jobId", j.ID, "remoteState", rs.State, "error", err)
		return
	}

	p.finishTransition(ctx, updated, from)
}

// failJob moves a job to failed with the given detail.
func (p *Poller) failJob(ctx context.Context, j *job.Job, detail string) {
	p.clearFailure(j.ID)

	from := j.State
	updated, err := p.store.Update(j.ID, func(j *job.Job) error {
		j.LastPolledAt = time.Now().UTC()
		j.State = job.StateFailed
		j.ErrorDetail = detail
		return nil
	})
	if err != nil {
		p.logger.Error("Failing a vanished job failed", "jobId", j.ID, "error", err)
		return
	}
	p.logger.Warn("Job failed", "jobId", j.ID, "detail", detail)
	p.finishTransition(ctx, updated, from)
}

// finishTransition emits notifications and hands terminal jobs to the sink.
func (p *Poller) finishTransition(ctx context.Context, j *job.Job, from job.State) {
	if j.State == from {
		return
	}
	p.logger.Info("Job state changed", "jobId", j.ID, "from", from, "to", j.State)
	p.notifier.StateChanged(j, from)

	if j.State.Terminal() {
		if p.metrics != nil {
			p.metrics.RecordJobFinished(ctx, j.Pipeline, string(j.State))
		}
		if p.sink != nil {
			p.sink.Enqueue(j.ID)
		}
	}
}

// recordFailure bumps the consecutive failure counter for a job, surfaces
// a warning when the threshold is crossed, and schedules backoff.
func (p *Poller) recordFailure(ctx context.Context, j *job.Job, pollErr error) {
	p.mu.Lock()
	p.failures[j.ID]++
	n := p.failures[j.ID]
	if n >= p.cfg.FailureThreshold {
		delay := p.policy.Delay(n - p.cfg.FailureThreshold)
		p.nextPoll[j.ID] = time.Now().Add(delay)
	}
	crossed := n == p.cfg.FailureThreshold
	if crossed {
		p.warned[j.ID] = true
	}
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.RecordPollError(ctx, j.Pipeline)
	}
	p.logger.Warn("Status poll failed", "jobId", j.ID, "consecutiveFailures", n, "error", pollErr)

	if !crossed {
		return
	}

	msg := fmt.Sprintf("status checks have failed %d times in a row: %v", n, pollErr)
	updated, err := p.store.Update(j.ID, func(j *job.Job) error {
		j.Warning = msg
		return nil
	})
	if err != nil {
		p.logger.Error("Recording poll warning failed", "jobId", j.ID, "error", err)
		return
	}
	p.notifier.Warning(updated, msg)
}

func (p *Poller) wasWarned(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.warned[id]
}

// clearFailure resets the failure bookkeeping after a successful poll.
func (p *Poller) clearFailure(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.failures, id)
	delete(p.nextPoll, id)
	delete(p.warned, id)
}
