// Package upstream maps provider transport failures onto the domain error
// taxonomy and records per-call metrics.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"CoinPulse/internal/domain/models"
	"CoinPulse/internal/domain/repository"
	xhttp "CoinPulse/pkg/http"
)

// Classify wraps err with the matching domain sentinel. Context
// cancellation is passed through untouched.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	for _, known := range []error{models.ErrRateLimited, models.ErrNotFound, models.ErrUpstream, models.ErrNetwork} {
		if errors.Is(err, known) {
			return err
		}
	}

	switch code := xhttp.StatusCode(err); {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w: %w", provider, models.ErrRateLimited, err)
	case code == http.StatusNotFound:
		return fmt.Errorf("%s: %w: %w", provider, models.ErrNotFound, err)
	case code != 0:
		return fmt.Errorf("%s: %w: %w", provider, models.ErrUpstream, err)
	case xhttp.IsTransport(err) || errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", provider, models.ErrNetwork, err)
	default:
		return fmt.Errorf("%s: %w: %w", provider, models.ErrUpstream, err)
	}
}

// Result is the metrics label for an already classified error.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrNetwork):
		return "network"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "upstream"
	}
}

// Observe classifies err and records the call.
func Observe(m repository.Metrics, provider, op string, started time.Time, err error) error {
	err = Classify(provider, err)
	if m != nil {
		m.RecordProviderRequest(provider, op, Result(err), time.Since(started).Seconds())
	}
	return err
}
