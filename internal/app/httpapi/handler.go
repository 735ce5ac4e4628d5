package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kedaikopi/delivery_layer/internal/app/domain/geocode"
	"github.com/kedaikopi/delivery_layer/internal/app/domain/order"
	"github.com/kedaikopi/delivery_layer/internal/app/metrics"
	"github.com/kedaikopi/delivery_layer/internal/app/services/geocoding"
	"github.com/kedaikopi/delivery_layer/internal/app/storage"
	"github.com/kedaikopi/delivery_layer/pkg/logger"
)

// Handler exposes the administrative geocoding endpoints.
type Handler struct {
	service *geocoding.Service
	log     *logger.Logger
}

// NewHandler creates the admin API handler.
func NewHandler(service *geocoding.Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return &Handler{service: service, log: log}
}

// Router builds the chi route tree.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)

	r.Get("/healthz", h.handleHealth)

	r.Route("/admin/geocoding", func(r chi.Router) {
		r.Get("/failed-jobs", h.handleListFailedJobs)
		r.Get("/jobs/{jobID}", h.handleGetJob)
		r.Post("/override", h.handleOverride)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type jobResponse struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type failedJobResponse struct {
	jobResponse
	DeliveryAddress string   `json:"delivery_address"`
	DeliveryLat     *float64 `json:"delivery_lat,omitempty"`
	DeliveryLng     *float64 `json:"delivery_lng,omitempty"`
	GeocodeStatus   string   `json:"geocode_status"`
}

type orderResponse struct {
	ID              string    `json:"id"`
	DeliveryAddress string    `json:"delivery_address"`
	DeliveryLat     *float64  `json:"delivery_lat,omitempty"`
	DeliveryLng     *float64  `json:"delivery_lng,omitempty"`
	GeocodeStatus   string    `json:"geocode_status"`
	GeocodeError    string    `json:"geocode_error,omitempty"`
	GeocodedAt      time.Time `json:"geocoded_at,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toJobResponse(j geocode.Job) jobResponse {
	return jobResponse{
		ID:        j.ID,
		OrderID:   j.OrderID,
		Status:    string(j.Status),
		Attempts:  j.Attempts,
		LastError: j.LastError,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

func toOrderResponse(o order.Order) orderResponse {
	return orderResponse{
		ID:              o.ID,
		DeliveryAddress: o.DeliveryAddress,
		DeliveryLat:     o.DeliveryLat,
		DeliveryLng:     o.DeliveryLng,
		GeocodeStatus:   string(o.GeocodeStatus),
		GeocodeError:    o.GeocodeError,
		GeocodedAt:      o.GeocodedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func (h *Handler) handleListFailedJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	jobs, err := h.service.ListFailedJobs(r.Context(), limit)
	if err != nil {
		h.log.WithError(err).Warn("list failed jobs")
		writeError(w, http.StatusInternalServerError, "list failed jobs")
		return
	}

	out := make([]failedJobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, failedJobResponse{
			jobResponse:     toJobResponse(j.Job),
			DeliveryAddress: j.DeliveryAddress,
			DeliveryLat:     j.DeliveryLat,
			DeliveryLng:     j.DeliveryLng,
			GeocodeStatus:   j.GeocodeStatus,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": out})
}

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.service.GetJob(r.Context(), jobID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job %s not found", jobID)
		return
	}
	if err != nil {
		h.log.WithError(err).WithField("job_id", jobID).Warn("get job")
		writeError(w, http.StatusInternalServerError, "get job")
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

// overrideRequest uses pointer fields so a missing coordinate is
// distinguishable from an explicit zero (0,0 is a valid location).
type overrideRequest struct {
	OrderID *string  `json:"order_id"`
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
}

func (h *Handler) handleOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.OrderID == nil {
		writeError(w, http.StatusBadRequest, "order_id is required")
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeError(w, http.StatusBadRequest, "lat and lng are required")
		return
	}

	updated, err := h.service.Override(r.Context(), *req.OrderID, *req.Lat, *req.Lng)
	var verr *geocoding.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "%v", verr)
		return
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "order %s not found", *req.OrderID)
		return
	case err != nil:
		h.log.WithError(err).WithField("order_id", *req.OrderID).Warn("apply override")
		writeError(w, http.StatusInternalServerError, "apply override")
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(updated))
}
