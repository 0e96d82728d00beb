package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/lensai/lensai-stack/common/httputil"
	"github.com/lensai/lensai-stack/common/logging"
	"github.com/lensai/lensai-stack/ingest/internal/auth"
	"github.com/lensai/lensai-stack/ingest/internal/metrics"
	"github.com/lensai/lensai-stack/ingest/internal/partition"
	"github.com/lensai/lensai-stack/ingest/internal/ratelimit"
	"github.com/lensai/lensai-stack/ingest/internal/validator"
	"github.com/lensai/lensai-stack/ingest/internal/writer"
	"github.com/lensai/lensai-stack/ingest/pkg/models"
)

// Response bodies.
const (
	bodyOK               = "OK"
	bodyMethodNotAllowed = "Method not allowed"
	bodyUnauthorized     = "Unauthorized"
	bodyInternalError    = "Internal server error"
	msgInvalidEvent      = "Invalid event format"
	msgTooLarge          = "Request body too large"
	msgRateLimited       = "Rate limit exceeded"
)

// DefaultMaxBodyBytes caps request bodies when Options.MaxBodyBytes is unset.
const DefaultMaxBodyBytes = 1 << 20

// EventWriter persists a validated event.
type EventWriter interface {
	Write(ctx context.Context, ev *models.Event) (*writer.Ack, error)
}

// ReadinessCheck reports a dependency's state for /readyz.
type ReadinessCheck func(ctx context.Context) (map[string]interface{}, error)

type Options struct {
	MaxBodyBytes int64
	Logger       *logging.Logger
	// Checks are keyed by the name reported in /readyz.
	Checks map[string]ReadinessCheck
	// Limiter, when set, admits events per project_id.
	Limiter ratelimit.Limiter
	// RetryAfter is advertised on 429 responses.
	RetryAfter time.Duration
}

type EventHandler struct {
	writer    EventWriter
	validator *validator.Validator
	verifier  auth.Verifier
	maxBytes  int64
	logger    *logging.Logger
	checks    map[string]ReadinessCheck
	limiter   ratelimit.Limiter
	retry     time.Duration
}

func NewEventHandler(w EventWriter, v *validator.Validator, verifier auth.Verifier, opts Options) *EventHandler {
	if v == nil {
		v = validator.New()
	}
	if verifier == nil {
		verifier = auth.None{}
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &EventHandler{
		writer:    w,
		validator: v,
		verifier:  verifier,
		maxBytes:  opts.MaxBodyBytes,
		logger:    opts.Logger,
		checks:    opts.Checks,
		limiter:   opts.Limiter,
		retry:     opts.RetryAfter,
	}
}

// HandleEvent accepts one usage event per POST and appends it to its partition.
func (h *EventHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		metrics.RequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
	}()

	switch r.Method {
	case http.MethodOptions:
		rec.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		h.logger.DebugContext(r.Context(), "Method not allowed", logging.Method(r.Method), logging.Path(r.URL.Path))
		rec.Header().Set("Allow", "POST, OPTIONS")
		httputil.WriteText(rec, http.StatusMethodNotAllowed, bodyMethodNotAllowed)
		return
	}

	start := time.Now()
	defer func() {
		metrics.RequestDuration.Observe(time.Since(start).Seconds())
	}()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.EventsTotal.WithLabelValues("too_large").Inc()
			httputil.WriteError(rec, http.StatusRequestEntityTooLarge, msgTooLarge)
			return
		}
		h.fail(rec, r, err)
		return
	}

	if err := h.verifier.Verify(r, body); err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			metrics.AuthFailures.Inc()
			h.logger.WarnContext(r.Context(), "Rejected unauthenticated request",
				logging.IP(httputil.GetClientIP(r)),
				logging.Path(r.URL.Path))
			httputil.WriteText(rec, http.StatusUnauthorized, bodyUnauthorized)
			return
		}
		h.fail(rec, r, err)
		return
	}

	ev, err := h.validator.Validate(body)
	if err != nil {
		h.fail(rec, r, err)
		return
	}
	// Events that cannot be placed in a partition are rejected before they count against the limit.
	if _, err := partition.Key(ev); err != nil {
		h.fail(rec, r, err)
		return
	}

	if !h.admit(rec, r, ev) {
		return
	}

	// A client that disconnects after sending the whole body still gets its event committed.
	ack, err := h.writer.Write(context.WithoutCancel(r.Context()), ev)
	if err != nil {
		h.fail(rec, r, err)
		return
	}

	metrics.EventsTotal.WithLabelValues("accepted").Inc()
	h.logger.DebugContext(r.Context(), "Event accepted",
		logging.ProjectID(ev.ProjectID),
		logging.PartitionKey(ack.Key))

	rec.Header().Set("Content-Type", "application/json")
	httputil.WriteText(rec, http.StatusOK, bodyOK)
}

// admit applies the per-project rate limit. Limiter faults admit the event.
func (h *EventHandler) admit(w http.ResponseWriter, r *http.Request, ev *models.Event) bool {
	if h.limiter == nil {
		return true
	}
	allowed, err := h.limiter.Allow(r.Context(), ev.ProjectID)
	if err != nil {
		metrics.RateLimitErrors.Inc()
		h.logger.WarnContext(r.Context(), "Rate limit check failed, admitting event",
			logging.ProjectID(ev.ProjectID),
			logging.Error(err))
		return true
	}
	if allowed {
		return true
	}

	metrics.RateLimited.Inc()
	metrics.EventsTotal.WithLabelValues("rate_limited").Inc()
	h.logger.InfoContext(r.Context(), "Rate limit exceeded", logging.ProjectID(ev.ProjectID))
	if h.retry > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(h.retry.Round(time.Second).Seconds())))
	}
	httputil.WriteError(w, http.StatusTooManyRequests, msgRateLimited)
	return false
}

// fail maps an error from the pipeline onto a response.
func (h *EventHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var vErr *models.ValidationError
	if errors.As(err, &vErr) {
		metrics.EventsTotal.WithLabelValues("invalid").Inc()
		for _, is := range vErr.Issues {
			metrics.ValidationErrors.WithLabelValues(is.Code).Inc()
		}
		h.logger.DebugContext(ctx, "Rejected invalid event", logging.Error(err))
		httputil.WriteJSON(w, http.StatusBadRequest, models.ErrorResponse{
			Error:   msgInvalidEvent,
			Details: vErr.Issues,
		})
		return
	}

	metrics.EventsTotal.WithLabelValues("failed").Inc()
	var storeErr *writer.StoreError
	if errors.As(err, &storeErr) {
		h.logger.ErrorContext(ctx, "Event not stored",
			logging.PartitionKey(storeErr.Key),
			logging.Attempt(storeErr.Attempts),
			logging.Error(storeErr.Err))
	} else {
		h.logger.ErrorContext(ctx, "Event handling failed", logging.Error(err))
	}
	httputil.WriteText(w, http.StatusInternalServerError, bodyInternalError)
}

func (h *EventHandler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (h *EventHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]interface{}, len(h.checks))
	for name, check := range h.checks {
		info, err := check(ctx)
		if info == nil {
			info = map[string]interface{}{}
		}
		if err != nil {
			status = http.StatusServiceUnavailable
			info["error"] = err.Error()
		}
		deps[name] = info
	}

	body := map[string]interface{}{
		"status":       "ready",
		"dependencies": deps,
	}
	if status != http.StatusOK {
		body["status"] = "not_ready"
	}
	httputil.WriteJSON(w, status, body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
