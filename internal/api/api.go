// Package api exposes the prediction service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/firecast/internal/metrics"
	"github.com/sells-group/firecast/internal/model"
	"github.com/sells-group/firecast/internal/service"
)

// Predictor is the service surface the handlers depend on.
type Predictor interface {
	Predict(ctx context.Context, features map[string]float64) (*model.Prediction, error)
	Explain(ctx context.Context, features map[string]float64, topK int) (*model.Explanation, error)
	FeatureNames() []string
	Info() service.ModelInfo
}

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// storePingTimeout bounds the audit store check in /health.
const storePingTimeout = 2 * time.Second

// Options configures the router.
type Options struct {
	// AllowedOrigins defaults to any origin.
	AllowedOrigins []string
	Metrics        *metrics.Metrics
	// RateLimit caps prediction requests per second across all clients.
	// Zero disables limiting.
	RateLimit float64
	RateBurst int
	// Store, when set, is checked by /health.
	Store Pinger
}

type handler struct {
	svc      Predictor
	store    Pinger
	validate *validator.Validate
}

// NewRouter builds the HTTP handler tree.
func NewRouter(svc Predictor, opts Options) http.Handler {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	h := &handler{svc: svc, store: opts.Store, validate: newValidator()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(instrument(opts.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions, http.MethodHead},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Group(func(r chi.Router) {
		if opts.RateLimit > 0 {
			burst := opts.RateBurst
			if burst <= 0 {
				burst = int(math.Ceil(opts.RateLimit))
			}
			r.Use(rateLimit(rate.NewLimiter(rate.Limit(opts.RateLimit), burst)))
		}
		r.Post("/predict", h.predict)
		r.Post("/explain", h.explain)
	})
	r.Get("/health", h.health)
	r.Get("/model", h.modelInfo)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}
	return r
}

func (h *handler) predict(w http.ResponseWriter, r *http.Request) {
	rec, err := decodeFeatures(h.validate, r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	pred, err := h.svc.Predict(r.Context(), rec.Features())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

func (h *handler) explain(w http.ResponseWriter, r *http.Request) {
	topK, err := topKParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := decodeFeatures(h.validate, r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	exp, err := h.svc.Explain(r.Context(), rec.Features(), topK)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

// health stays 200 while the audit store is down since predictions are still
// served; the body reports the store as unavailable.
func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":   "ok",
		"features": len(h.svc.FeatureNames()),
	}
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), storePingTimeout)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			zap.L().Warn("health: audit store unreachable", zap.Error(err))
			body["status"] = "degraded"
			body["store"] = "unavailable"
		} else {
			body["store"] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *handler) modelInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Info())
}

type errorBody struct {
	Error  string       `json:"error"`
	Detail []FieldError `json:"detail,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: reqErr.msg, Detail: reqErr.fields})
		return
	}
	zap.L().Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
}

// writeJSON encodes v before the status line goes out, so an unencodable
// value still produces a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		zap.L().Error("encode response", zap.Error(err))
		status = http.StatusInternalServerError
		body = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}
