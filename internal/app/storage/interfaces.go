package storage

import (
	"context"
	"errors"

	"github.com/kedaikopi/delivery_layer/internal/app/domain/geocode"
	"github.com/kedaikopi/delivery_layer/internal/app/domain/notification"
	"github.com/kedaikopi/delivery_layer/internal/app/domain/order"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when a conditional update finds the job already in
// a terminal state. Callers treat it as a benign no-op; it exists so the
// losing writer can tell its update was dropped.
var ErrConflict = errors.New("job already completed")

// OrderStore reads and mutates the geocoding fields of order records. The
// records themselves are created by the order-management subsystem.
type OrderStore interface {
	CreateOrder(ctx context.Context, o order.Order) (order.Order, error)
	GetOrder(ctx context.Context, id string) (order.Order, error)

	// MarkOrderFailed flips the order's geocode status to failed once the
	// retry ceiling is reached. Orders already ok or manual are left alone.
	MarkOrderFailed(ctx context.Context, orderID string) error
}

// JobStore persists geocode jobs and applies the three mutation paths. Every
// mutation is a single conditional write: a job already done is never moved
// again, and the loser of a concurrent write race receives ErrConflict.
type JobStore interface {
	CreateJob(ctx context.Context, job geocode.Job) (geocode.Job, error)
	GetJob(ctx context.Context, id string) (geocode.Job, error)

	// ListDueJobs returns pending and failed jobs ordered by updated_at
	// ascending, bounded by limit.
	ListDueJobs(ctx context.Context, limit int) ([]geocode.Job, error)

	// ListFailedJobs returns failed jobs joined with their order, newest
	// updated_at first, bounded by limit. Read-only.
	ListFailedJobs(ctx context.Context, limit int) ([]geocode.FailedJob, error)

	// ApplySuccess marks the job done and stores the coordinates on the
	// order. ErrConflict if the job is already done.
	ApplySuccess(ctx context.Context, jobID string, lat, lng float64) error

	// ApplyFailure increments attempts, records the error on job and order,
	// and returns the updated job so the caller can read back the attempt
	// count. ErrConflict if the job is already done.
	ApplyFailure(ctx context.Context, jobID, message string) (geocode.Job, error)

	// ApplyManualOverride atomically stores operator coordinates on the
	// order and completes every non-done job for it with the override
	// marker.
	ApplyManualOverride(ctx context.Context, orderID string, lat, lng float64) error
}

// NotificationStore persists in-app admin notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error)
	ListNotificationsForAdmin(ctx context.Context, adminID string) ([]notification.Notification, error)
}

// AdminStore resolves administrator identities for escalation.
type AdminStore interface {
	ListAdmins(ctx context.Context) ([]notification.Admin, error)
}
