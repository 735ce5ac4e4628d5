package geocoding

import (
	"context"
	"errors"
	"testing"

	"github.com/kedaikopi/delivery_layer/internal/app/domain/geocode"
	"github.com/kedaikopi/delivery_layer/internal/app/domain/order"
	"github.com/kedaikopi/delivery_layer/internal/app/storage"
	"github.com/kedaikopi/delivery_layer/internal/app/storage/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	return New(store, store, DefaultThreshold, nil), store
}

func seedOrderWithJob(t *testing.T, store *memory.Store, address string) (order.Order, geocode.Job) {
	t.Helper()
	ctx := context.Background()

	o, err := store.CreateOrder(ctx, order.Order{DeliveryAddress: address})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	j, err := store.CreateJob(ctx, geocode.Job{OrderID: o.ID})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return o, j
}

func TestOverrideValidation(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	o, j := seedOrderWithJob(t, store, "Jl. Kopi No.1, Malang")

	cases := []struct {
		name     string
		orderID  string
		lat, lng float64
		field    string
	}{
		{"missing order id", "", -7.98, 112.62, "order_id"},
		{"blank order id", "   ", -7.98, 112.62, "order_id"},
		{"lat too low", o.ID, -90.5, 112.62, "lat"},
		{"lat too high", o.ID, 91, 112.62, "lat"},
		{"lng too low", o.ID, -7.98, -180.5, "lng"},
		{"lng too high", o.ID, -7.98, 181, "lng"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Override(ctx, tc.orderID, tc.lat, tc.lng)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, verr.Field)
			}
		})
	}

	// Rejected input must leave no trace.
	got, err := store.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != geocode.JobPending || got.Attempts != 0 {
		t.Fatalf("job mutated by rejected override: %+v", got)
	}
	gotOrder, err := store.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if gotOrder.GeocodeStatus != order.GeocodePending || gotOrder.DeliveryLat != nil {
		t.Fatalf("order mutated by rejected override: %+v", gotOrder)
	}
}

func TestOverrideUnknownOrder(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Override(context.Background(), "no-such-order", -7.98, 112.62)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOverrideCompletesJobsAndMarksOrderManual(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	o, j := seedOrderWithJob(t, store, "Jl. Sudirman 10, Jakarta")

	updated, err := svc.Override(ctx, o.ID, -6.2, 106.8)
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if updated.GeocodeStatus != order.GeocodeManual {
		t.Fatalf("expected manual status, got %s", updated.GeocodeStatus)
	}
	if updated.DeliveryLat == nil || *updated.DeliveryLat != -6.2 {
		t.Fatalf("expected lat -6.2, got %v", updated.DeliveryLat)
	}
	if updated.DeliveryLng == nil || *updated.DeliveryLng != 106.8 {
		t.Fatalf("expected lng 106.8, got %v", updated.DeliveryLng)
	}

	got, err := store.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != geocode.JobDone {
		t.Fatalf("expected job done after override, got %s", got.Status)
	}
	if got.LastError != geocode.OverrideMarker {
		t.Fatalf("expected override marker, got %q", got.LastError)
	}

	due, err := svc.DueJobs(ctx, 10)
	if err != nil {
		t.Fatalf("due jobs: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("overridden job still listed as due: %+v", due)
	}
}

func TestCompleteAfterOverrideIsConflict(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	o, j := seedOrderWithJob(t, store, "Jl. Braga 5, Bandung")

	if _, err := svc.Override(ctx, o.ID, -6.91, 107.6); err != nil {
		t.Fatalf("override: %v", err)
	}

	// The worker's late success must lose: conflict, and the manual
	// coordinates stay untouched.
	err := svc.CompleteJob(ctx, j.ID, geocode.Point{Lat: 1, Lng: 2})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, err := store.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.GeocodeStatus != order.GeocodeManual || *got.DeliveryLat != -6.91 {
		t.Fatalf("manual coordinates overwritten: %+v", got)
	}

	if _, err := svc.FailJob(ctx, j.ID, "late failure"); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict for late failure, got %v", err)
	}
}

func TestFailJobMarksOrderFailedAtThreshold(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	o, j := seedOrderWithJob(t, store, "unknown address")

	for i := 1; i <= DefaultThreshold; i++ {
		job, err := svc.FailJob(ctx, j.ID, "no match")
		if err != nil {
			t.Fatalf("fail job attempt %d: %v", i, err)
		}
		if job.Attempts != i {
			t.Fatalf("expected attempts %d, got %d", i, job.Attempts)
		}
	}

	got, err := store.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.GeocodeStatus != order.GeocodeFailed {
		t.Fatalf("expected order failed at threshold, got %s", got.GeocodeStatus)
	}
	if got.GeocodeError != "no match" {
		t.Fatalf("expected error mirrored on order, got %q", got.GeocodeError)
	}
}

func TestListFailedJobsCapAndOrder(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 55; i++ {
		_, j := seedOrderWithJob(t, store, "nowhere")
		if _, err := svc.FailJob(ctx, j.ID, "no match"); err != nil {
			t.Fatalf("fail job: %v", err)
		}
	}

	rows, err := svc.ListFailedJobs(ctx, 0)
	if err != nil {
		t.Fatalf("list failed jobs: %v", err)
	}
	if len(rows) != 50 {
		t.Fatalf("expected 50 rows, got %d", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].UpdatedAt.After(rows[i-1].UpdatedAt) {
			t.Fatalf("rows not ordered newest first at index %d", i)
		}
	}

	rows, err = svc.ListFailedJobs(ctx, 5)
	if err != nil {
		t.Fatalf("list failed jobs limit 5: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(rows))
	}

	// Over-limit requests clamp to the cap rather than erroring.
	rows, err = svc.ListFailedJobs(ctx, 500)
	if err != nil {
		t.Fatalf("list failed jobs limit 500: %v", err)
	}
	if len(rows) != 50 {
		t.Fatalf("expected clamp to 50 rows, got %d", len(rows))
	}
}
