package api

import (
	"errors"

	"CoinPulse/internal/domain/models"
	xhttp "CoinPulse/pkg/http"
)

// toAppError maps domain failures onto HTTP statuses.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, models.ErrNoSelection):
		return xhttp.NotFoundError("no asset selected").WithError(err)
	case errors.Is(err, models.ErrNotFound):
		return xhttp.NotFoundError("not found").WithError(err)
	case errors.Is(err, models.ErrRateLimited), errors.Is(err, models.ErrBackoff):
		return xhttp.TooManyRequestsError("provider is backing off, retry later").WithError(err)
	case errors.Is(err, models.ErrInvalidPreference), errors.Is(err, models.ErrInsufficientData):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrStaleResult):
		return xhttp.ConflictError("superseded by a newer selection").WithError(err)
	case errors.Is(err, models.ErrUpstream), errors.Is(err, models.ErrNetwork), errors.Is(err, models.ErrStream):
		return xhttp.BadGatewayError("market data provider unavailable").WithError(err)
	default:
		return xhttp.InternalError("Something went wrong").WithError(err)
	}
}
