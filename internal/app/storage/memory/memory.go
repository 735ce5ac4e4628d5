package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kedaikopi/delivery_layer/internal/app/domain/geocode"
	"github.com/kedaikopi/delivery_layer/internal/app/domain/notification"
	"github.com/kedaikopi/delivery_layer/internal/app/domain/order"
	"github.com/kedaikopi/delivery_layer/internal/app/storage"
	"github.com/google/uuid"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development. Conditional-update semantics match the Postgres store: a job
// already done is never mutated and the caller gets storage.ErrConflict.
type Store struct {
	mu            sync.RWMutex
	orders        map[string]order.Order
	jobs          map[string]geocode.Job
	notifications map[string][]notification.Notification
	admins        []notification.Admin
}

var _ storage.OrderStore = (*Store)(nil)
var _ storage.JobStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)
var _ storage.AdminStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		orders:        make(map[string]order.Order),
		jobs:          make(map[string]geocode.Job),
		notifications: make(map[string][]notification.Notification),
	}
}

// SeedAdmins replaces the admin directory, for tests and local runs.
func (s *Store) SeedAdmins(admins ...notification.Admin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins = append([]notification.Admin(nil), admins...)
}

// OrderStore ------------------------------------------------------------------

func (s *Store) CreateOrder(_ context.Context, o order.Order) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	if o.GeocodeStatus == "" {
		o.GeocodeStatus = order.GeocodePending
	}
	s.orders[o.ID] = o
	return o, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, storage.ErrNotFound
	}
	return o, nil
}

// JobStore --------------------------------------------------------------------

func (s *Store) CreateJob(_ context.Context, job geocode.Job) (geocode.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = geocode.JobPending
	}
	s.jobs[job.ID] = job
	return job, nil
}

func (s *Store) GetJob(_ context.Context, id string) (geocode.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return geocode.Job{}, storage.ErrNotFound
	}
	return job, nil
}

func (s *Store) ListDueJobs(_ context.Context, limit int) ([]geocode.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	due := make([]geocode.Job, 0)
	for _, job := range s.jobs {
		if job.Status == geocode.JobPending || job.Status == geocode.JobFailed {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].UpdatedAt.Before(due[j].UpdatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *Store) ListFailedJobs(_ context.Context, limit int) ([]geocode.FailedJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	failed := make([]geocode.FailedJob, 0)
	for _, job := range s.jobs {
		if job.Status != geocode.JobFailed {
			continue
		}
		row := geocode.FailedJob{Job: job}
		if o, ok := s.orders[job.OrderID]; ok {
			row.DeliveryAddress = o.DeliveryAddress
			row.DeliveryLat = o.DeliveryLat
			row.DeliveryLng = o.DeliveryLng
			row.GeocodeStatus = string(o.GeocodeStatus)
		}
		failed = append(failed, row)
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].UpdatedAt.After(failed[j].UpdatedAt) })
	if limit > 0 && len(failed) > limit {
		failed = failed[:limit]
	}
	return failed, nil
}

func (s *Store) ApplySuccess(_ context.Context, jobID string, lat, lng float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return storage.ErrNotFound
	}
	if job.Status == geocode.JobDone {
		return storage.ErrConflict
	}

	now := time.Now().UTC()
	job.Status = geocode.JobDone
	job.LastError = ""
	job.UpdatedAt = now
	s.jobs[jobID] = job

	if o, ok := s.orders[job.OrderID]; ok {
		o.DeliveryLat = &lat
		o.DeliveryLng = &lng
		o.GeocodeStatus = order.GeocodeOK
		o.GeocodeError = ""
		o.GeocodedAt = now
		o.UpdatedAt = now
		s.orders[o.ID] = o
	}
	return nil
}

func (s *Store) ApplyFailure(_ context.Context, jobID, message string) (geocode.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return geocode.Job{}, storage.ErrNotFound
	}
	if job.Status == geocode.JobDone {
		return geocode.Job{}, storage.ErrConflict
	}

	now := time.Now().UTC()
	job.Attempts++
	job.Status = geocode.JobFailed
	job.LastError = message
	job.UpdatedAt = now
	s.jobs[jobID] = job

	if o, ok := s.orders[job.OrderID]; ok && o.GeocodeStatus != order.GeocodeManual {
		o.GeocodeError = message
		o.UpdatedAt = now
		s.orders[o.ID] = o
	}
	return job, nil
}

// MarkOrderFailed flips the order status once the retry ceiling is reached.
// Manual orders are left untouched.
func (s *Store) MarkOrderFailed(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return storage.ErrNotFound
	}
	if o.GeocodeStatus == order.GeocodeManual || o.GeocodeStatus == order.GeocodeOK {
		return nil
	}
	o.GeocodeStatus = order.GeocodeFailed
	o.UpdatedAt = time.Now().UTC()
	s.orders[orderID] = o
	return nil
}

func (s *Store) ApplyManualOverride(_ context.Context, orderID string, lat, lng float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return storage.ErrNotFound
	}

	now := time.Now().UTC()
	o.DeliveryLat = &lat
	o.DeliveryLng = &lng
	o.GeocodeStatus = order.GeocodeManual
	o.GeocodeError = ""
	o.GeocodedAt = now
	o.UpdatedAt = now
	s.orders[orderID] = o

	for id, job := range s.jobs {
		if job.OrderID != orderID || job.Status == geocode.JobDone {
			continue
		}
		job.Status = geocode.JobDone
		job.LastError = geocode.OverrideMarker
		job.UpdatedAt = now
		s.jobs[id] = job
	}
	return nil
}

// NotificationStore -----------------------------------------------------------

func (s *Store) CreateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Category == "" {
		n.Category = notification.CategorySystem
	}
	n.CreatedAt = time.Now().UTC()
	s.notifications[n.RecipientID] = append(s.notifications[n.RecipientID], n)
	return n, nil
}

func (s *Store) ListNotificationsForAdmin(_ context.Context, adminID string) ([]notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]notification.Notification(nil), s.notifications[adminID]...), nil
}

// AdminStore ------------------------------------------------------------------

func (s *Store) ListAdmins(_ context.Context) ([]notification.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]notification.Admin(nil), s.admins...), nil
}
