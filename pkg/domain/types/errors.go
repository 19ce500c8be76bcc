package types

import (
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrInvalidOption   = goerr.New("invalid option")
	ErrInvalidConfig   = goerr.New("invalid configuration")
	ErrRateLimited     = goerr.New("rate limited")
	ErrServerError     = goerr.New("server error")
	ErrClientError     = goerr.New("client error")
	ErrNotFound        = goerr.New("not found")
	ErrCycleInProgress = goerr.New("sync cycle already in progress")
)

// Services reported in RateLimitError.
const (
	ServiceGitHub = "github"
	ServiceBoard  = "board"
)

// RateLimitError is returned when a remote service refuses further requests until ResetAt. ResetAt is
// zero when the service did not tell us.
type RateLimitError struct {
	Service string
	ResetAt time.Time
}

func (x *RateLimitError) Error() string {
	if x.ResetAt.IsZero() {
		return fmt.Sprintf("%s rate limit exceeded", x.Service)
	}
	return fmt.Sprintf("%s rate limit exceeded, resets at %s", x.Service, x.ResetAt.Format(time.RFC3339))
}

func (x *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
