package server

import (
	"context"

	"github.com/m-mizutani/cardsync/pkg/utils/logging"
)

// DetachContext returns a background context carrying the logger, request ID and time function of
// ctx. Cycles triggered over HTTP outlive their request.
func DetachContext(ctx context.Context) context.Context {
	bgCtx := logging.With(context.Background(), logging.From(ctx))
	return logging.InheritContextValues(bgCtx, ctx)
}
