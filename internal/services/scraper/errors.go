package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/LeonardoBeccarini/road-conditions/internal/model"
	"github.com/LeonardoBeccarini/road-conditions/pkg/postgrest"
)

// FetchStatusError is a non-2xx answer from a sensor endpoint.
type FetchStatusError struct {
	Status int
}

func (e *FetchStatusError) Error() string {
	return fmt.Sprintf("sensor answered status %d", e.Status)
}

// errorClass buckets err into the short label used in log fields and metrics.
func errorClass(err error) string {
	if err == nil {
		return "none"
	}
	var fse *FetchStatusError
	if errors.As(err, &fse) {
		return fmt.Sprintf("status_%d", fse.Status)
	}
	var pse *postgrest.StatusError
	if errors.As(err, &pse) {
		return fmt.Sprintf("status_%d", pse.Status)
	}
	switch {
	case errors.Is(err, postgrest.ErrBreakerOpen):
		return "breaker_open"
	case errors.Is(err, model.ErrMalformed):
		return "malformed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "timeout"
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return "connection"
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return "connection"
	}
	return "other"
}
