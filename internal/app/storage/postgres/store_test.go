package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/kedaikopi/delivery_layer/internal/app/domain/geocode"
	"github.com/kedaikopi/delivery_layer/internal/app/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(sqlx.NewDb(db, "sqlmock")), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplySuccessCommitsJobAndOrder(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE geocode_jobs").
		WithArgs("job-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"order_id"}).AddRow("ord-1"))
	mock.ExpectExec("UPDATE delivery_orders").
		WithArgs("ord-1", -7.98, 112.62, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.ApplySuccess(context.Background(), "job-1", -7.98, 112.62); err != nil {
		t.Fatalf("apply success: %v", err)
	}
	expectationsMet(t, mock)
}

func TestApplySuccessOnDoneJobIsConflict(t *testing.T) {
	store, mock := newMockStore(t)

	// The conditional update touches nothing because the job is already done;
	// the existence probe distinguishes conflict from not-found.
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE geocode_jobs").
		WithArgs("job-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"order_id"}))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := store.ApplySuccess(context.Background(), "job-1", -7.98, 112.62)
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestApplySuccessOnMissingJobIsNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE geocode_jobs").
		WithArgs("no-such-job", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"order_id"}))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("no-such-job").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := store.ApplySuccess(context.Background(), "no-such-job", -7.98, 112.62)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestApplyFailureIncrementsAndMirrorsError(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE geocode_jobs").
		WithArgs("job-1", "no match", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "status", "attempts", "last_error", "created_at", "updated_at"}).
			AddRow("job-1", "ord-1", "failed", 3, "no match", now, now))
	mock.ExpectExec("UPDATE delivery_orders").
		WithArgs("ord-1", "no match", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	job, err := store.ApplyFailure(context.Background(), "job-1", "no match")
	if err != nil {
		t.Fatalf("apply failure: %v", err)
	}
	if job.Attempts != 3 || job.Status != geocode.JobFailed || job.LastError != "no match" {
		t.Fatalf("unexpected job: %+v", job)
	}
	expectationsMet(t, mock)
}

func TestApplyFailureOnDoneJobIsConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE geocode_jobs").
		WithArgs("job-1", "late failure", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := store.ApplyFailure(context.Background(), "job-1", "late failure")
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestApplyManualOverrideCompletesOpenJobs(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE delivery_orders").
		WithArgs("ord-1", -6.2, 106.8, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE geocode_jobs").
		WithArgs("ord-1", geocode.OverrideMarker, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.ApplyManualOverride(context.Background(), "ord-1", -6.2, 106.8); err != nil {
		t.Fatalf("apply override: %v", err)
	}
	expectationsMet(t, mock)
}

func TestApplyManualOverrideUnknownOrder(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE delivery_orders").
		WithArgs("no-such-order", -6.2, 106.8, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.ApplyManualOverride(context.Background(), "no-such-order", -6.2, 106.8)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestGetJobNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM geocode_jobs").
		WithArgs("no-such-job").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetJob(context.Background(), "no-such-job")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestListFailedJobsJoinsOrderContext(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM geocode_jobs j").
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "order_id", "status", "attempts", "last_error", "created_at", "updated_at",
			"delivery_address", "delivery_lat", "delivery_lng", "geocode_status",
		}).AddRow("job-1", "ord-1", "failed", 2, "no match", now, now, "Jl. Hilang 3", nil, nil, "pending"))

	rows, err := store.ListFailedJobs(context.Background(), 0)
	if err != nil {
		t.Fatalf("list failed jobs: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	got := rows[0]
	if got.OrderID != "ord-1" || got.Attempts != 2 || got.DeliveryAddress != "Jl. Hilang 3" {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.DeliveryLat != nil || got.DeliveryLng != nil {
		t.Fatalf("expected nil coordinates, got %+v", got)
	}
	expectationsMet(t, mock)
}
