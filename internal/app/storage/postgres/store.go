package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/kedaikopi/delivery_layer/internal/app/domain/geocode"
	"github.com/kedaikopi/delivery_layer/internal/app/domain/notification"
	"github.com/kedaikopi/delivery_layer/internal/app/domain/order"
	"github.com/kedaikopi/delivery_layer/internal/app/storage"
	"github.com/google/uuid"
)

// Store implements the storage interfaces backed by PostgreSQL. All job
// mutations are conditional writes guarded on the job not being done, so
// concurrent writers (worker and override handler) cannot lose updates
// silently; the loser receives storage.ErrConflict.
type Store struct {
	db *sqlx.DB
}

var _ storage.OrderStore = (*Store)(nil)
var _ storage.JobStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)
var _ storage.AdminStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

type orderRow struct {
	ID              string          `db:"id"`
	DeliveryAddress string          `db:"delivery_address"`
	DeliveryLat     sql.NullFloat64 `db:"delivery_lat"`
	DeliveryLng     sql.NullFloat64 `db:"delivery_lng"`
	GeocodeStatus   string          `db:"geocode_status"`
	GeocodeError    sql.NullString  `db:"geocode_error"`
	GeocodedAt      sql.NullTime    `db:"geocoded_at"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

func (r orderRow) toDomain() order.Order {
	o := order.Order{
		ID:              r.ID,
		DeliveryAddress: r.DeliveryAddress,
		GeocodeStatus:   order.GeocodeStatus(r.GeocodeStatus),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.DeliveryLat.Valid {
		lat := r.DeliveryLat.Float64
		o.DeliveryLat = &lat
	}
	if r.DeliveryLng.Valid {
		lng := r.DeliveryLng.Float64
		o.DeliveryLng = &lng
	}
	if r.GeocodeError.Valid {
		o.GeocodeError = r.GeocodeError.String
	}
	if r.GeocodedAt.Valid {
		o.GeocodedAt = r.GeocodedAt.Time.UTC()
	}
	return o
}

type jobRow struct {
	ID        string         `db:"id"`
	OrderID   string         `db:"order_id"`
	Status    string         `db:"status"`
	Attempts  int            `db:"attempts"`
	LastError sql.NullString `db:"last_error"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (r jobRow) toDomain() geocode.Job {
	job := geocode.Job{
		ID:        r.ID,
		OrderID:   r.OrderID,
		Status:    geocode.JobStatus(r.Status),
		Attempts:  r.Attempts,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.LastError.Valid {
		job.LastError = r.LastError.String
	}
	return job
}

type failedJobRow struct {
	jobRow
	DeliveryAddress string          `db:"delivery_address"`
	DeliveryLat     sql.NullFloat64 `db:"delivery_lat"`
	DeliveryLng     sql.NullFloat64 `db:"delivery_lng"`
	GeocodeStatus   string          `db:"geocode_status"`
}

// OrderStore ------------------------------------------------------------------

func (s *Store) CreateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.GeocodeStatus == "" {
		o.GeocodeStatus = order.GeocodePending
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_orders (id, delivery_address, delivery_lat, delivery_lng, geocode_status, geocode_error, geocoded_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)
	`, o.ID, o.DeliveryAddress, toNullFloat(o.DeliveryLat), toNullFloat(o.DeliveryLng), string(o.GeocodeStatus), o.GeocodeError, toNullTime(o.GeocodedAt), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return order.Order{}, err
	}
	return o, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (order.Order, error) {
	var row orderRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, delivery_address, delivery_lat, delivery_lng, geocode_status, geocode_error, geocoded_at, created_at, updated_at
		FROM delivery_orders
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return order.Order{}, storage.ErrNotFound
	}
	if err != nil {
		return order.Order{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) MarkOrderFailed(ctx context.Context, orderID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE delivery_orders
		SET geocode_status = 'failed', updated_at = $2
		WHERE id = $1 AND geocode_status NOT IN ('ok', 'manual')
	`, orderID, time.Now().UTC())
	if err != nil {
		return err
	}
	// Zero rows here is fine: the order is gone, already resolved, or under
	// operator control.
	_, _ = result.RowsAffected()
	return nil
}

// JobStore --------------------------------------------------------------------

func (s *Store) CreateJob(ctx context.Context, job geocode.Job) (geocode.Job, error) {
	if job.OrderID == "" {
		return geocode.Job{}, fmt.Errorf("order_id required")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = geocode.JobPending
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO geocode_jobs (id, order_id, status, attempts, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
	`, job.ID, job.OrderID, string(job.Status), job.Attempts, job.LastError, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return geocode.Job{}, err
	}
	return job, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (geocode.Job, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, order_id, status, attempts, last_error, created_at, updated_at
		FROM geocode_jobs
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return geocode.Job{}, storage.ErrNotFound
	}
	if err != nil {
		return geocode.Job{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListDueJobs(ctx context.Context, limit int) ([]geocode.Job, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []jobRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, order_id, status, attempts, last_error, created_at, updated_at
		FROM geocode_jobs
		WHERE status IN ('pending', 'failed')
		ORDER BY updated_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	jobs := make([]geocode.Job, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, row.toDomain())
	}
	return jobs, nil
}

func (s *Store) ListFailedJobs(ctx context.Context, limit int) ([]geocode.FailedJob, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []failedJobRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT j.id, j.order_id, j.status, j.attempts, j.last_error, j.created_at, j.updated_at,
		       o.delivery_address, o.delivery_lat, o.delivery_lng, o.geocode_status
		FROM geocode_jobs j
		JOIN delivery_orders o ON o.id = j.order_id
		WHERE j.status = 'failed'
		ORDER BY j.updated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	failed := make([]geocode.FailedJob, 0, len(rows))
	for _, row := range rows {
		item := geocode.FailedJob{
			Job:             row.jobRow.toDomain(),
			DeliveryAddress: row.DeliveryAddress,
			GeocodeStatus:   row.GeocodeStatus,
		}
		if row.DeliveryLat.Valid {
			lat := row.DeliveryLat.Float64
			item.DeliveryLat = &lat
		}
		if row.DeliveryLng.Valid {
			lng := row.DeliveryLng.Float64
			item.DeliveryLng = &lng
		}
		failed = append(failed, item)
	}
	return failed, nil
}

func (s *Store) ApplySuccess(ctx context.Context, jobID string, lat, lng float64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()

	var orderID string
	err = tx.QueryRowContext(ctx, `
		UPDATE geocode_jobs
		SET status = 'done', last_error = NULL, updated_at = $2
		WHERE id = $1 AND status <> 'done'
		RETURNING order_id
	`, jobID, now).Scan(&orderID)
	if errors.Is(err, sql.ErrNoRows) {
		if exists, lookupErr := s.jobExists(ctx, jobID); lookupErr == nil && !exists {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE delivery_orders
		SET delivery_lat = $2, delivery_lng = $3, geocode_status = 'ok', geocode_error = NULL, geocoded_at = $4, updated_at = $4
		WHERE id = $1
	`, orderID, lat, lng, now)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ApplyFailure(ctx context.Context, jobID, message string) (geocode.Job, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return geocode.Job{}, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()

	var row jobRow
	err = tx.QueryRowContext(ctx, `
		UPDATE geocode_jobs
		SET attempts = attempts + 1, status = 'failed', last_error = $2, updated_at = $3
		WHERE id = $1 AND status <> 'done'
		RETURNING id, order_id, status, attempts, last_error, created_at, updated_at
	`, jobID, message, now).Scan(&row.ID, &row.OrderID, &row.Status, &row.Attempts, &row.LastError, &row.CreatedAt, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		if exists, lookupErr := s.jobExists(ctx, jobID); lookupErr == nil && !exists {
			return geocode.Job{}, storage.ErrNotFound
		}
		return geocode.Job{}, storage.ErrConflict
	}
	if err != nil {
		return geocode.Job{}, err
	}

	// Mirror the latest error onto the order unless an operator took over.
	_, err = tx.ExecContext(ctx, `
		UPDATE delivery_orders
		SET geocode_error = $2, updated_at = $3
		WHERE id = $1 AND geocode_status <> 'manual'
	`, row.OrderID, message, now)
	if err != nil {
		return geocode.Job{}, err
	}

	if err := tx.Commit(); err != nil {
		return geocode.Job{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ApplyManualOverride(ctx context.Context, orderID string, lat, lng float64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()

	result, err := tx.ExecContext(ctx, `
		UPDATE delivery_orders
		SET delivery_lat = $2, delivery_lng = $3, geocode_status = 'manual', geocode_error = NULL, geocoded_at = $4, updated_at = $4
		WHERE id = $1
	`, orderID, lat, lng, now)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE geocode_jobs
		SET status = 'done', last_error = $2, updated_at = $3
		WHERE order_id = $1 AND status <> 'done'
	`, orderID, geocode.OverrideMarker, now)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) jobExists(ctx context.Context, jobID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM geocode_jobs WHERE id = $1)`, jobID)
	return exists, err
}

// NotificationStore -----------------------------------------------------------

func (s *Store) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Category == "" {
		n.Category = notification.CategorySystem
	}
	n.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_notifications (id, recipient_id, category, title, body, order_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
	`, n.ID, n.RecipientID, n.Category, n.Title, n.Body, n.OrderID, n.CreatedAt)
	if err != nil {
		return notification.Notification{}, err
	}
	return n, nil
}

func (s *Store) ListNotificationsForAdmin(ctx context.Context, adminID string) ([]notification.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient_id, category, title, body, order_id, read_at, created_at
		FROM admin_notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
	`, adminID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []notification.Notification
	for rows.Next() {
		var (
			n       notification.Notification
			orderID sql.NullString
			readAt  sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Category, &n.Title, &n.Body, &orderID, &readAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		if orderID.Valid {
			n.OrderID = orderID.String
		}
		if readAt.Valid {
			n.ReadAt = readAt.Time.UTC()
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

// AdminStore ------------------------------------------------------------------

func (s *Store) ListAdmins(ctx context.Context) ([]notification.Admin, error) {
	var admins []notification.Admin
	err := s.db.SelectContext(ctx, &admins, `
		SELECT id, name, email
		FROM admin_users
		WHERE active
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	return admins, nil
}

func toNullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
