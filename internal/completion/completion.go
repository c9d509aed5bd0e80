// Package completion hands finished jobs their post-terminal work: result
// download and layer import for succeeded jobs, failure notification for
// failed ones.
package completion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"eotracker/internal/apperrors"
	"eotracker/internal/importer"
	"eotracker/internal/job"
	"eotracker/internal/observability"
)

// Config holds completion dispatcher settings.
type Config struct {
	// Buffer is the completion queue capacity.
	Buffer int

	// DownloadDir is where result artifacts are staged before import.
	DownloadDir string
}

func (c Config) withDefaults() Config {
	if c.Buffer <= 0 {
		c.Buffer = 64
	}
	if c.DownloadDir == "" {
		c.DownloadDir = "downloads"
	}
	return c
}

// Dispatcher consumes terminal jobs from a single worker queue. One
// worker processes completions sequentially, which together with the
// store's imported-flag invariants gives at-most-once import per job.
type Dispatcher struct {
	remote   job.Remote
	store    job.Store
	importer importer.Importer
	notifier job.Notifier
	metrics  *observability.Metrics
	cfg      Config
	logger   *slog.Logger

	queue    chan string
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a completion dispatcher.
func New(remote job.Remote, store job.Store, imp importer.Importer, notifier job.Notifier, metrics *observability.Metrics, cfg Config) *Dispatcher {
	if notifier == nil {
		notifier = job.NopNotifier{}
	}
	cfg = cfg.withDefaults()
	return &Dispatcher{
		remote:   remote,
		store:    store,
		importer: imp,
		notifier: notifier,
		metrics:  metrics,
		cfg:      cfg,
		logger:   slog.With("component", "completion"),
		queue:    make(chan string, cfg.Buffer),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the worker.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.run(ctx)
}

// Stop drains the queue and waits for the worker to exit.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
	<-d.done
}

// Enqueue queues a terminal job for completion handling. A full queue
// drops the entry; a succeeded job can still be imported via Retry.
func (d *Dispatcher) Enqueue(jobID string) {
	select {
	case d.queue <- jobID:
	default:
		d.logger.Error("Completion queue full, dropping job", "jobId", jobID)
	}
}

// Retry re-queues the import of a succeeded job whose automatic import
// failed. This is the manual "import selected" action.
func (d *Dispatcher) Retry(jobID string) error {
	j, err := d.store.Get(jobID)
	if err != nil {
		return err
	}
	if j.State != job.StateSucceeded {
		return apperrors.Conflict("job", jobID, fmt.Sprintf("job is %s, only succeeded jobs have a result to import", j.State))
	}
	if j.Imported {
		return apperrors.Conflict("job", jobID, "job result already imported")
	}

	select {
	case d.queue <- jobID:
		return nil
	default:
		return apperrors.Unavailable("completion.retry", fmt.Errorf("completion queue full"))
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	d.logger.Info("Completion dispatcher started", "buffer", d.cfg.Buffer)

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			d.drain(ctx)
			return
		case id := <-d.queue:
			d.process(ctx, id)
		}
	}
}

// drain processes whatever is already queued, then returns.
func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case id := <-d.queue:
			d.process(ctx, id)
		default:
			return
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, id string) {
	j, err := d.store.Get(id)
	if err != nil {
		d.logger.Warn("Completed job vanished before handling", "jobId", id, "error", err)
		return
	}

	switch j.State {
	case job.StateFailed:
		d.logger.Info("Job failed", "jobId", j.ID, "detail", j.ErrorDetail)
		d.notifier.Failed(j)
	case job.StateSucceeded:
		if j.Imported {
			d.logger.Debug("Result already imported, skipping", "jobId", j.ID)
			return
		}
		d.importResult(ctx, j)
	default:
		// Cancelled jobs have no completion work.
		d.logger.Debug("No completion handling for state", "jobId", j.ID, "state", j.State)
	}
}

func (d *Dispatcher) importResult(ctx context.Context, j *job.Job) {
	start := time.Now()

	artifact, err := d.remote.Download(ctx, j.ResultHandle, d.cfg.DownloadDir)
	if err != nil {
		d.importFailed(ctx, j, start, fmt.Sprintf("downloading the result failed: %v", err))
		return
	}

	layer, err := d.importer.Import(ctx, artifact, j.ID, j.Datatype)
	if err != nil {
		d.importFailed(ctx, j, start, fmt.Sprintf("importing the result failed: %v", err))
		return
	}

	updated, err := d.store.Update(j.ID, func(j *job.Job) error {
		j.Imported = true
		j.ImportedPath = layer
		j.Warning = ""
		return nil
	})
	if err != nil {
		d.logger.Error("Recording import failed", "jobId", j.ID, "error", err)
		return
	}

	if d.metrics != nil {
		d.metrics.RecordImport(ctx, updated.Datatype, true, time.Since(start).Seconds())
	}
	d.logger.Info("Result imported", "jobId", j.ID, "layer", layer, "duration", time.Since(start))
	d.notifier.Imported(updated)
}

// importFailed records the failure as a warning on the job. The job stays
// succeeded; the user can retry the import manually.
func (d *Dispatcher) importFailed(ctx context.Context, j *job.Job, start time.Time, msg string) {
	if d.metrics != nil {
		d.metrics.RecordImport(ctx, j.Datatype, false, time.Since(start).Seconds())
	}
	d.logger.Error("Result import failed", "jobId", j.ID, "error", msg)

	updated, err := d.store.Update(j.ID, func(j *job.Job) error {
		j.Warning = msg
		return nil
	})
	if err != nil {
		d.logger.Error("Recording import warning failed", "jobId", j.ID, "error", err)
		return
	}
	d.notifier.Warning(updated, msg)
}
