package scraper

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Outcome classifies the result of one attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetryable
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	default:
		return "fatal"
	}
}

// RetryPolicy bounds the attempts made for one sensor inside one polling cycle.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Classify decides whether a failed attempt is worth repeating.
	// Nil uses ClassifyFetchError.
	Classify func(error) Outcome
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
		Classify:       ClassifyFetchError,
	}
}

// ClassifyFetchError treats timeouts, connection failures, 5xx and 429 as retryable.
// Other 4xx answers will not change within a cycle.
func ClassifyFetchError(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	if errors.Is(err, context.Canceled) {
		return OutcomeFatal
	}
	var fse *FetchStatusError
	if errors.As(err, &fse) {
		if fse.Status >= 500 || fse.Status == http.StatusTooManyRequests {
			return OutcomeRetryable
		}
		return OutcomeFatal
	}
	return OutcomeRetryable
}

func (p RetryPolicy) classify(err error) Outcome {
	if p.Classify != nil {
		return p.Classify(err)
	}
	return ClassifyFetchError(err)
}

func (p RetryPolicy) newBackOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	if p.InitialBackoff > 0 {
		bo.InitialInterval = p.InitialBackoff
	}
	if p.MaxBackoff > 0 {
		bo.MaxInterval = p.MaxBackoff
	}
	bo.MaxElapsedTime = 0
	bo.Reset()

	max := p.MaxAttempts
	if max < 1 {
		max = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(max-1)), ctx)
}

// Do runs op until it succeeds, fails fatally, the context ends or MaxAttempts
// is spent. onFailure is called exactly once per failed attempt.
func (p RetryPolicy) Do(
	ctx context.Context,
	op func(ctx context.Context, attempt int) error,
	onFailure func(attempt int, err error, outcome Outcome),
) (int, error) {
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := op(ctx, attempt)
		outcome := p.classify(err)
		if outcome == OutcomeSuccess {
			return nil
		}
		if onFailure != nil {
			onFailure(attempt, err, outcome)
		}
		if outcome == OutcomeFatal {
			return backoff.Permanent(err)
		}
		return err
	}, p.newBackOff(ctx))
	return attempt, err
}
