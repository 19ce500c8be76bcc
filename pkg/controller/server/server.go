package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/cardsync/pkg/domain/interfaces"
	"github.com/m-mizutani/cardsync/pkg/domain/model"
	"github.com/m-mizutani/cardsync/pkg/domain/types"
	"github.com/m-mizutani/cardsync/pkg/utils/errutil"
	"github.com/m-mizutani/cardsync/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

type Server struct {
	mux *chi.Mux
}

func safeWrite(w http.ResponseWriter, code int, body []byte) {
	w.WriteHeader(code)

	// nosemgrep: go.lang.security.audit.xss.no-direct-write-to-responsewriter.no-direct-write-to-responsewriter
	// Why: The response data is not from user input
	if _, err := w.Write(body); err != nil {
		logging.Default().Error("fail to write response", slog.Any("error", err))
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		logging.Default().Error("fail to marshal response", slog.Any("error", err))
		safeWrite(w, http.StatusInternalServerError, []byte(`{"error":"internal error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	safeWrite(w, code, body)
}

type errorResponse struct {
	Error string `json:"error"`
}

type config struct {
	provider interfaces.ConfigProvider
}

type Option func(*config)

// WithConfigProvider makes /health report the configuration status.
func WithConfigProvider(provider interfaces.ConfigProvider) Option {
	return func(cfg *config) {
		cfg.provider = provider
	}
}

func New(uc interfaces.UseCase, options ...Option) *Server {
	cfg := &config{}
	for _, opt := range options {
		opt(cfg)
	}

	r := chi.NewRouter()
	r.Use(preProcess)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, buildHealth(r, uc, cfg.provider))
	})
	r.Post("/sync", func(w http.ResponseWriter, r *http.Request) {
		handleSync(w, r, uc)
	})

	return &Server{
		mux: r,
	}
}

func (x *Server) Mux() *chi.Mux {
	return x.mux
}

type healthResponse struct {
	Status      string     `json:"status"`
	ConfigValid bool       `json:"config_valid"`
	ConfigError string     `json:"config_error,omitempty"`
	CardCount   int        `json:"card_count"`
	LastCycleAt *time.Time `json:"last_cycle_at,omitempty"`
}

// buildHealth reports configuration validity, the card count over all repositories and the time of
// the last cycle. Errors of past cycles are not reflected.
func buildHealth(r *http.Request, uc interfaces.UseCase, provider interfaces.ConfigProvider) *healthResponse {
	resp := &healthResponse{Status: "ok", ConfigValid: true}
	if provider != nil {
		status := provider.Status()
		resp.ConfigValid = status.Valid
		resp.ConfigError = status.Error
	}

	report, err := uc.LatestReport(r.Context())
	if err != nil {
		errutil.HandleError(r.Context(), "fail to get latest cycle report", err)
		return resp
	}
	if report == nil {
		return resp
	}
	finished := report.FinishedAt
	resp.LastCycleAt = &finished

	count, err := uc.CardCount(r.Context())
	if err != nil {
		errutil.HandleError(r.Context(), "fail to count cards", err)
		return resp
	}
	resp.CardCount = count
	return resp
}

type syncResponse struct {
	Status string `json:"status"`
	Owner  string `json:"owner,omitempty"`
	Repo   string `json:"repo,omitempty"`
}

func handleSync(w http.ResponseWriter, r *http.Request, uc interfaces.UseCase) {
	owner, repo := r.URL.Query().Get("owner"), r.URL.Query().Get("repo")
	if (owner == "") != (repo == "") {
		writeJSON(w, http.StatusBadRequest, &errorResponse{Error: "owner and repo must be given together"})
		return
	}

	var filter *model.RepoFilter
	if owner != "" {
		filter = &model.RepoFilter{Owner: owner, Name: repo}
	}

	run, err := uc.PrepareCycle(r.Context(), filter)
	if err != nil {
		code := syncErrorStatus(err)
		if code == http.StatusInternalServerError {
			errutil.HandleError(r.Context(), "fail to start sync cycle", err)
		}
		writeJSON(w, code, &errorResponse{Error: err.Error()})
		return
	}

	// The request context is cancelled once the response is sent.
	go runCycle(DetachContext(r.Context()), run)

	writeJSON(w, http.StatusAccepted, &syncResponse{Status: "accepted", Owner: owner, Repo: repo})
}

func syncErrorStatus(err error) int {
	switch {
	case errors.Is(err, types.ErrCycleInProgress):
		return http.StatusConflict
	case errors.Is(err, types.ErrInvalidConfig):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrInvalidOption):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func runCycle(ctx context.Context, run interfaces.CycleFunc) {
	defer func() {
		if r := recover(); r != nil {
			errutil.HandleError(ctx, "panic in manual sync cycle", goerr.New("panic", goerr.V("recover", r)))
		}
	}()

	report, err := run(ctx)
	if err != nil {
		errutil.HandleError(ctx, "manual sync cycle failed", err)
		return
	}
	logging.From(ctx).Info("manual sync cycle done",
		slog.Any("cycle_id", report.ID),
		slog.Int("cards", report.CardCount()),
		slog.Int("errors", report.Errors()),
	)
}
