package geocoding

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kedaikopi/delivery_layer/internal/app/domain/geocode"
	"github.com/kedaikopi/delivery_layer/internal/app/metrics"
	"github.com/kedaikopi/delivery_layer/internal/app/storage"
	"github.com/kedaikopi/delivery_layer/internal/app/system"
	"github.com/kedaikopi/delivery_layer/pkg/logger"
)

// Geocoder resolves a free-text address into coordinates. Failures are
// reported as *geocode.LookupError where the provider could be reached.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geocode.Point, error)
}

// Escalator receives threshold-crossing notifications. Implementations must
// never block geocoding on transport failures.
type Escalator interface {
	Notify(ctx context.Context, orderID, message string, attempts int)
}

var _ system.Service = (*Worker)(nil)

// Worker polls due geocode jobs and drives them to completion or documented
// failure. It runs concurrently with the override handler; all its writes are
// conditional, so a concurrent override always wins and the worker's stale
// result is discarded.
type Worker struct {
	service     *Service
	geocoder    Geocoder
	notifier    Escalator
	cache       ResultCache
	interval    time.Duration
	batchSize   int
	backoffBase time.Duration
	backoffCap  time.Duration
	log         *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewWorker constructs a lifecycle-managed geocode worker.
func NewWorker(service *Service, notifier Escalator, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.NewDefault("geocode-worker")
	}
	return &Worker{
		service:     service,
		notifier:    notifier,
		interval:    30 * time.Second,
		batchSize:   10,
		backoffBase: 30 * time.Second,
		backoffCap:  15 * time.Minute,
		log:         log,
	}
}

// WithGeocoder sets the provider client.
func (w *Worker) WithGeocoder(g Geocoder) {
	w.mu.Lock()
	w.geocoder = g
	w.mu.Unlock()
}

// WithCache attaches an optional result cache consulted before the provider.
func (w *Worker) WithCache(c ResultCache) {
	w.mu.Lock()
	w.cache = c
	w.mu.Unlock()
}

// WithInterval overrides the polling cadence.
func (w *Worker) WithInterval(d time.Duration) {
	if d > 0 {
		w.interval = d
	}
}

// WithBatchSize overrides the per-tick job batch bound.
func (w *Worker) WithBatchSize(n int) {
	if n > 0 {
		w.batchSize = n
	}
}

// WithBackoff overrides the retry backoff base and cap.
func (w *Worker) WithBackoff(base, cap time.Duration) {
	if base > 0 {
		w.backoffBase = base
	}
	if cap > 0 {
		w.backoffCap = cap
	}
}

func (w *Worker) Name() string { return "geocode-worker" }

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.geocoder == nil {
		w.mu.Unlock()
		w.log.Warn("geocoder not configured; worker disabled")
		return nil
	}
	if w.running {
		w.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				w.tick(runCtx)
			}
		}
	}()

	w.log.Info("geocode worker started")
	return nil
}

func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.log.Info("geocode worker stopped")
	return nil
}

// RunOnce processes a single batch immediately. Used by tests and by the CLI
// one-shot mode; Start's polling loop calls the same path.
func (w *Worker) RunOnce(ctx context.Context) {
	w.tick(ctx)
}

func (w *Worker) tick(ctx context.Context) {
	jobs, err := w.service.DueJobs(ctx, w.batchSize)
	if err != nil {
		w.log.WithError(err).Warn("list due jobs failed")
		return
	}

	now := time.Now()
	for _, job := range jobs {
		if job.Status == geocode.JobDone {
			// Done is terminal; a done row should never be listed, but the
			// worker must not touch one regardless.
			continue
		}
		if !w.eligible(job, now) {
			continue
		}
		w.process(ctx, job)
	}
}

// eligible applies the retry backoff: a job becomes due no earlier than
// backoff(attempts) after its last mutation.
func (w *Worker) eligible(job geocode.Job, now time.Time) bool {
	if job.Attempts == 0 {
		return true
	}
	return !now.Before(job.UpdatedAt.Add(w.backoff(job.Attempts)))
}

func (w *Worker) backoff(attempts int) time.Duration {
	delay := w.backoffBase
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= w.backoffCap {
			return w.backoffCap
		}
	}
	if delay > w.backoffCap {
		delay = w.backoffCap
	}
	return delay
}

// process isolates one job: its failure can never halt the batch.
func (w *Worker) process(ctx context.Context, job geocode.Job) {
	ord, err := w.service.Order(ctx, job.OrderID)
	if err != nil {
		w.log.WithError(err).WithField("job_id", job.ID).Warn("load order for job failed")
		return
	}

	w.mu.Lock()
	geocoder := w.geocoder
	cache := w.cache
	w.mu.Unlock()

	if cache != nil {
		if pt, ok, err := cache.Get(ctx, ord.DeliveryAddress); err != nil {
			w.log.WithError(err).Debug("geocode cache read failed")
		} else if ok {
			metrics.RecordLookup("cache_hit", time.Millisecond)
			w.applySuccess(ctx, job, pt)
			return
		}
	}

	start := time.Now()
	pt, err := geocoder.Geocode(ctx, ord.DeliveryAddress)
	elapsed := time.Since(start)
	if err != nil {
		metrics.RecordLookup(lookupOutcome(err), elapsed)
		w.applyFailure(ctx, job, err.Error())
		return
	}
	metrics.RecordLookup("ok", elapsed)

	if cache != nil {
		if err := cache.Put(ctx, ord.DeliveryAddress, pt); err != nil {
			w.log.WithError(err).Debug("geocode cache write failed")
		}
	}
	w.applySuccess(ctx, job, pt)
}

func (w *Worker) applySuccess(ctx context.Context, job geocode.Job, pt geocode.Point) {
	err := w.service.CompleteJob(ctx, job.ID, pt)
	if errors.Is(err, storage.ErrConflict) {
		// An operator override completed the job while the lookup was in
		// flight; the manual value wins and this result is dropped.
		w.log.WithField("job_id", job.ID).Info("discarding geocode result, job already completed")
		return
	}
	if err != nil {
		w.log.WithError(err).WithField("job_id", job.ID).Warn("apply geocode success failed")
	}
}

func (w *Worker) applyFailure(ctx context.Context, job geocode.Job, message string) {
	updated, err := w.service.FailJob(ctx, job.ID, message)
	if errors.Is(err, storage.ErrConflict) {
		w.log.WithField("job_id", job.ID).Info("discarding geocode failure, job already completed")
		return
	}
	if err != nil {
		w.log.WithError(err).WithField("job_id", job.ID).Warn("apply geocode failure failed")
		return
	}

	// Escalate on the exact threshold crossing only; later failures of the
	// same job must stay silent.
	if w.notifier != nil && updated.Attempts == w.service.Threshold() {
		w.notifier.Notify(ctx, updated.OrderID, message, updated.Attempts)
	}
}

func lookupOutcome(err error) string {
	var lookupErr *geocode.LookupError
	if errors.As(err, &lookupErr) {
		return string(lookupErr.Kind)
	}
	return "error"
}
