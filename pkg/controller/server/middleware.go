package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/m-mizutani/cardsync/pkg/domain/types"
	"github.com/m-mizutani/cardsync/pkg/utils/logging"
)

const requestIDHeader = "X-Request-ID"

func preProcess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		reqID := types.RequestID(r.Header.Get(requestIDHeader))
		if reqID == "" {
			reqID, ctx = logging.CtxRequestID(ctx)
		} else {
			ctx = logging.WithRequestID(ctx, reqID)
		}

		logger := logging.Default().With(
			slog.String("component", "http"),
			slog.Any("request_id", reqID),
		)
		ctx = logging.With(ctx, logger)
		w.Header().Set(requestIDHeader, string(reqID))

		lw := &statusCodeLogger{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		requestedAt := time.Now()
		next.ServeHTTP(lw, r.WithContext(ctx))

		logger.Info("http access",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("query", r.URL.RawQuery),
			slog.String("remote_addr", r.RemoteAddr),
			slog.Int("status_code", lw.statusCode),
			slog.String("user_agent", r.UserAgent()),
			slog.Duration("elapsed", time.Since(requestedAt)),
		)
	})
}

type statusCodeLogger struct {
	http.ResponseWriter
	statusCode int
}

func (x *statusCodeLogger) WriteHeader(code int) {
	x.statusCode = code
	x.ResponseWriter.WriteHeader(code)
}
