package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/punchamoorthee/pointops/internal/models"
	"github.com/punchamoorthee/pointops/internal/service"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pointops_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pointops_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	service *service.PointService
}

func NewHandler(svc *service.PointService) *Handler {
	return &Handler{service: svc}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, r, http.StatusOK, "/health", map[string]string{"status": "ok"})
}

func (h *Handler) EarnHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/points/earn"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	key, req, ok := decodeMutation[models.EarnRequest](w, r, endpoint)
	if !ok {
		return
	}
	h.respondResult(w, r, endpoint)(h.service.Earn(r.Context(), req, key))
}

func (h *Handler) CancelEarnHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/points/cancel-earn"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	key, req, ok := decodeMutation[models.CancelEarnRequest](w, r, endpoint)
	if !ok {
		return
	}
	h.respondResult(w, r, endpoint)(h.service.CancelEarn(r.Context(), req, key))
}

func (h *Handler) UseHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/points/use"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	key, req, ok := decodeMutation[models.UseRequest](w, r, endpoint)
	if !ok {
		return
	}
	h.respondResult(w, r, endpoint)(h.service.Use(r.Context(), req, key))
}

func (h *Handler) CancelUseHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/points/cancel-use"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	key, req, ok := decodeMutation[models.CancelUseRequest](w, r, endpoint)
	if !ok {
		return
	}
	h.respondResult(w, r, endpoint)(h.service.CancelUse(r.Context(), req, key))
}

func (h *Handler) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/points/balance/{userId}"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("GET", endpoint))
	defer timer.ObserveDuration()

	resp, err := h.service.GetBalance(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		respondWithBusinessError(w, r, endpoint, err)
		return
	}
	respondWithJSON(w, r, http.StatusOK, endpoint, resp)
}

func (h *Handler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/points/history/{userId}"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("GET", endpoint))
	defer timer.ObserveDuration()

	page := queryInt(r, "page", 0)
	size := queryInt(r, "size", 20)
	resp, err := h.service.GetHistory(r.Context(), mux.Vars(r)["userId"], page, size)
	if err != nil {
		respondWithBusinessError(w, r, endpoint, err)
		return
	}
	respondWithJSON(w, r, http.StatusOK, endpoint, resp)
}

// decodeMutation validates the Idempotency-Key header and decodes the JSON
// body for the four mutating endpoints.
func decodeMutation[T any](w http.ResponseWriter, r *http.Request, endpoint string) (string, *T, bool) {
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		respondWithError(w, r, http.StatusBadRequest, endpoint, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required")
		return "", nil, false
	}
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r, http.StatusBadRequest, endpoint, "MALFORMED_REQUEST", "malformed JSON body")
		return "", nil, false
	}
	return key, &req, true
}

// respondResult writes a mutation outcome: the stored response bytes
// verbatim on success or replay, the mapped business error otherwise.
func (h *Handler) respondResult(w http.ResponseWriter, r *http.Request, endpoint string) func(*service.Result, error) {
	return func(result *service.Result, err error) {
		if err != nil {
			respondWithBusinessError(w, r, endpoint, err)
			return
		}
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(result.Status)).Inc()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(result.Status)
		w.Write(result.Body)
	}
}

func respondWithBusinessError(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	var business *service.BusinessError
	if errors.As(err, &business) {
		respondWithJSONError(w, r, business.HTTPStatus, endpoint, models.ErrorResponse{
			Code:      business.Code,
			Message:   business.Message,
			Details:   business.Details,
			RequestID: service.RequestID(r.Context()),
		})
		return
	}
	respondWithError(w, r, http.StatusInternalServerError, endpoint, "INTERNAL_ERROR", "internal server error")
}

func respondWithError(w http.ResponseWriter, r *http.Request, code int, endpoint, errCode, message string) {
	respondWithJSONError(w, r, code, endpoint, models.ErrorResponse{
		Code:      errCode,
		Message:   message,
		RequestID: service.RequestID(r.Context()),
	})
}

func respondWithJSONError(w http.ResponseWriter, r *http.Request, code int, endpoint string, payload models.ErrorResponse) {
	httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func respondWithJSON(w http.ResponseWriter, r *http.Request, code int, endpoint string, payload any) {
	httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
