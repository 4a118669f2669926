package api

import (
	"context"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/cbwinslow/crawl4ai/internal/domain"
	"github.com/cbwinslow/crawl4ai/internal/pipeline"
)

// Pagination defaults and limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Webhook request headers, GitHub wire format.
const (
	HeaderEvent     = "X-GitHub-Event"
	HeaderDelivery  = "X-GitHub-Delivery"
	HeaderSignature = "X-Hub-Signature-256"
)

// Pipeline runs one delivery and shapes the response.
type Pipeline interface {
	Process(ctx context.Context, in pipeline.Inbound) pipeline.Result
}

type Store interface {
	ListDeliveries(ctx context.Context, limit, offset int) ([]domain.Delivery, error)
	ListTransitions(ctx context.Context, deliveryID string, limit, offset int) ([]domain.Transition, error)
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	pipeline Pipeline
	store    Store
	db       HealthChecker // optional, nil when running without Postgres

	maxBodyBytes   int64
	requestTimeout time.Duration
}

func NewHandler(p Pipeline, store Store) *Handler {
	return &Handler{
		pipeline:       p,
		store:          store,
		maxBodyBytes:   1 << 20,
		requestTimeout: 30 * time.Second,
	}
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

// WithLimits overrides the request body cap and the per-delivery deadline.
func (h *Handler) WithLimits(maxBodyBytes int64, requestTimeout time.Duration) *Handler {
	if maxBodyBytes > 0 {
		h.maxBodyBytes = maxBodyBytes
	}
	if requestTimeout > 0 {
		h.requestTimeout = requestTimeout
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/webhooks" && r.Method == http.MethodPost:
		h.webhook(w, r)

	case path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)

	case path == "/deliveries" && r.Method == http.MethodGet:
		h.listDeliveries(w, r)

	case strings.HasSuffix(path, "/transitions") && r.Method == http.MethodGet:
		h.listTransitions(w, r)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	// Cap the body before reading; signature verification needs the raw
	// bytes, so the payload is read fully rather than stream-decoded.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	deliveryID := r.Header.Get(HeaderDelivery)
	event := r.Header.Get(HeaderEvent)
	if deliveryID == "" {
		writeError(w, http.StatusBadRequest, "missing "+HeaderDelivery+" header")
		return
	}
	if event == "" {
		writeError(w, http.StatusBadRequest, "missing "+HeaderEvent+" header")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	res := h.pipeline.Process(ctx, pipeline.Inbound{
		DeliveryID: deliveryID,
		Event:      event,
		Signature:  r.Header.Get(HeaderSignature),
		ClientKey:  clientKey(r),
		Body:       body,
	})

	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	if res.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(res.RetryAfter/time.Second), 10))
	}

	if res.Ack != nil {
		writeJSON(w, res.Code, res.Ack)
		return
	}
	writeJSON(w, res.Code, res.Rejection)
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.db == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["database"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["database"] = "healthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	deliveries, err := h.store.ListDeliveries(r.Context(), limit, offset)
	if err != nil {
		log.Printf("api: list deliveries error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}

	resp := ListDeliveriesResponse{Deliveries: make([]DeliveryResponse, len(deliveries))}
	for i, d := range deliveries {
		resp.Deliveries[i] = DeliveryResponse{
			DeliveryID: d.DeliveryID,
			Event:      string(d.Event),
			Action:     d.Action,
			Repository: d.RepositoryName,
			Sender:     d.SenderLogin,
			Status:     string(d.Status),
			RecordedAt: formatTime(d.RecordedAt),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listTransitions(w http.ResponseWriter, r *http.Request) {
	// Extract delivery ID from path: /deliveries/{id}/transitions
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "deliveries" || parts[2] != "transitions" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	deliveryID := parts[1]
	if deliveryID == "" {
		writeError(w, http.StatusBadRequest, "invalid delivery id")
		return
	}

	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	transitions, err := h.store.ListTransitions(r.Context(), deliveryID, limit, offset)
	if err != nil {
		log.Printf("api: list transitions error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list transitions")
		return
	}

	resp := ListTransitionsResponse{Transitions: make([]TransitionResponse, len(transitions))}
	for i, tr := range transitions {
		resp.Transitions[i] = TransitionResponse{
			ID:         tr.ID.String(),
			DeliveryID: tr.DeliveryID,
			Seq:        tr.Seq,
			Status:     string(tr.Status),
			Detail:     tr.Detail,
			RecordedAt: formatTime(tr.RecordedAt),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// parsePagination extracts and validates limit/offset query parameters.
// Returns DefaultLimit if limit is not specified, and 0 for offset if not specified.
// Returns an error if limit exceeds MaxLimit or if values are negative/invalid.
func parsePagination(r *http.Request) (limit, offset int, err error) {
	limit = DefaultLimit
	offset = 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, err
		}
		if limit < 0 {
			return 0, 0, strconv.ErrRange
		}
		if limit > MaxLimit {
			return 0, 0, &limitExceededError{max: MaxLimit}
		}
		if limit == 0 {
			limit = DefaultLimit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil {
			return 0, 0, err
		}
		if offset < 0 {
			return 0, 0, strconv.ErrRange
		}
	}

	return limit, offset, nil
}

type limitExceededError struct {
	max int
}

func (e *limitExceededError) Error() string {
	return "limit exceeds maximum of " + strconv.Itoa(e.max)
}
