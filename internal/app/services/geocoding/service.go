package geocoding

import (
	"context"
	"fmt"
	"strings"

	"github.com/kedaikopi/delivery_layer/internal/app/domain/geocode"
	"github.com/kedaikopi/delivery_layer/internal/app/domain/order"
	"github.com/kedaikopi/delivery_layer/internal/app/metrics"
	"github.com/kedaikopi/delivery_layer/internal/app/storage"
	"github.com/kedaikopi/delivery_layer/pkg/logger"
)

// DefaultThreshold is the attempt count at which a job escalates to humans.
const DefaultThreshold = 3

// maxFailedJobs caps the admin triage listing.
const maxFailedJobs = 50

// ValidationError rejects malformed operator input before any mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Service coordinates geocode jobs and operator overrides over the shared
// store. It is the single mutation path for job state.
type Service struct {
	jobs      storage.JobStore
	orders    storage.OrderStore
	threshold int
	log       *logger.Logger
}

// New creates a configured geocoding service.
func New(jobs storage.JobStore, orders storage.OrderStore, threshold int, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("geocoding")
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Service{
		jobs:      jobs,
		orders:    orders,
		threshold: threshold,
		log:       log,
	}
}

// Threshold returns the escalation attempt count.
func (s *Service) Threshold() int { return s.threshold }

// GetJob fetches a job by identifier.
func (s *Service) GetJob(ctx context.Context, jobID string) (geocode.Job, error) {
	return s.jobs.GetJob(ctx, jobID)
}

// Order fetches the order a job belongs to.
func (s *Service) Order(ctx context.Context, orderID string) (order.Order, error) {
	return s.orders.GetOrder(ctx, orderID)
}

// DueJobs returns the next batch of jobs eligible for processing.
func (s *Service) DueJobs(ctx context.Context, limit int) ([]geocode.Job, error) {
	return s.jobs.ListDueJobs(ctx, limit)
}

// ListFailedJobs returns failed jobs joined with order context for the admin
// dashboard, newest first, never more than 50 rows.
func (s *Service) ListFailedJobs(ctx context.Context, limit int) ([]geocode.FailedJob, error) {
	if limit <= 0 || limit > maxFailedJobs {
		limit = maxFailedJobs
	}
	return s.jobs.ListFailedJobs(ctx, limit)
}

// CompleteJob records a successful lookup. A storage.ErrConflict return means
// a concurrent override already completed the job; the caller must discard
// its result since the manual value wins.
func (s *Service) CompleteJob(ctx context.Context, jobID string, pt geocode.Point) error {
	if err := s.jobs.ApplySuccess(ctx, jobID, pt.Lat, pt.Lng); err != nil {
		return err
	}
	s.log.WithField("job_id", jobID).Info("geocode job completed")
	return nil
}

// FailJob records a failed attempt and returns the updated job so the caller
// can read back the attempt count. Once attempts reach the threshold the
// order's geocode status is marked failed.
func (s *Service) FailJob(ctx context.Context, jobID, message string) (geocode.Job, error) {
	job, err := s.jobs.ApplyFailure(ctx, jobID, message)
	if err != nil {
		return geocode.Job{}, err
	}
	if job.Attempts >= s.threshold {
		if err := s.orders.MarkOrderFailed(ctx, job.OrderID); err != nil {
			s.log.WithError(err).WithField("order_id", job.OrderID).Warn("mark order failed")
		}
	}
	s.log.WithField("job_id", jobID).
		WithField("attempts", job.Attempts).
		Warnf("geocode job failed: %s", message)
	return job, nil
}

// Override injects operator-verified coordinates for an order and neutralizes
// any in-flight job. Validation happens before any mutation.
func (s *Service) Override(ctx context.Context, orderID string, lat, lng float64) (order.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return order.Order{}, &ValidationError{Field: "order_id", Reason: "required"}
	}
	if lat < -90 || lat > 90 {
		return order.Order{}, &ValidationError{Field: "lat", Reason: "must be between -90 and 90"}
	}
	if lng < -180 || lng > 180 {
		return order.Order{}, &ValidationError{Field: "lng", Reason: "must be between -180 and 180"}
	}

	if err := s.jobs.ApplyManualOverride(ctx, orderID, lat, lng); err != nil {
		return order.Order{}, err
	}
	metrics.RecordOverride()
	s.log.WithField("order_id", orderID).Info("manual coordinate override applied")

	return s.orders.GetOrder(ctx, orderID)
}
