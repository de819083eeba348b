package models

import "errors"

var (
	ErrRateLimited       = errors.New("rate limited")
	ErrNotFound          = errors.New("not found")
	ErrUpstream          = errors.New("upstream error")
	ErrNetwork           = errors.New("network error")
	ErrStream            = errors.New("stream error")
	ErrInsufficientData  = errors.New("insufficient data")
	ErrMalformedMessage  = errors.New("malformed message")
	ErrBackoff           = errors.New("backoff in effect")
	ErrStaleResult       = errors.New("stale result discarded")
	ErrNoSelection       = errors.New("no asset selected")
	ErrInvalidPreference = errors.New("invalid preference")
)

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstream) ||
		errors.Is(err, ErrNetwork) || errors.Is(err, ErrStream)
}
