package backup

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// defaultRequestTimeout applies when the server has no write timeout.
const defaultRequestTimeout = 15 * time.Minute

// HTTPOptions configures the webhook handler.
type HTTPOptions struct {
	// MaxBodyBytes caps the request body; zero disables the cap.
	MaxBodyBytes int64
	// AuthToken is the expected bearer token; empty disables the check.
	AuthToken string
	// WriteTimeout is the server's write timeout. Requests are cancelled
	// shortly before it so the summary still reaches the caller.
	WriteTimeout time.Duration
}

// RequestTimeout returns the per-request budget for a server write timeout.
func RequestTimeout(writeTimeout time.Duration) time.Duration {
	if writeTimeout <= 0 {
		return defaultRequestTimeout
	}
	return writeTimeout - min(writeTimeout/10, 10*time.Second)
}

// HTTPHandler receives bucket notifications posted by a webhook target.
type HTTPHandler struct {
	dispatcher   *Dispatcher
	logger       *zap.Logger
	maxBodyBytes int64
	authToken    string
	timeout      time.Duration
	router       chi.Router
}

// NewHTTPHandler constructs the HTTP handler and wires routes.
func NewHTTPHandler(d *Dispatcher, logger *zap.Logger, opts HTTPOptions) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &HTTPHandler{
		dispatcher:   d,
		logger:       logger,
		maxBodyBytes: opts.MaxBodyBytes,
		authToken:    opts.AuthToken,
		timeout:      RequestTimeout(opts.WriteTimeout),
	}
	h.buildRouter()
	return h
}

func (h *HTTPHandler) buildRouter() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(h.timeout))

	r.Get("/healthz", h.handleHealth)
	r.With(h.authenticate).Post("/api/v1/events", h.handleEvents)

	h.router = r
}

// Router exposes the configured chi router.
func (h *HTTPHandler) Router() http.Handler {
	return h.router
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *HTTPHandler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.authToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.authToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *HTTPHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if h.maxBodyBytes > 0 && r.ContentLength > h.maxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	body := io.Reader(r.Body)
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	payload, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	batch, err := DecodeBatch(payload)
	if err != nil {
		h.logger.Warn("rejected event payload",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid event payload")
		return
	}

	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	resp, err := h.dispatcher.Handle(ctx, batch)
	if err != nil {
		h.logger.Error("event batch aborted", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "backup handler misconfigured")
		return
	}

	writeJSON(w, resp.StatusCode, resp.Summary())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error": msg,
	})
}
