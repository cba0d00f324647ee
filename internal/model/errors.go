package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrRateLimited signals a quota or rate-limit rejection from an upstream API.
	ErrRateLimited = errors.New("rate limited")
	// ErrMalformedResponse signals an upstream response that could not be parsed.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrRecordNotFound is returned by queue stores for unknown record IDs.
	ErrRecordNotFound = errors.New("queue record not found")
	// ErrRecordChanged is returned when a conditional write finds the record
	// was updated after it was read.
	ErrRecordChanged = errors.New("queue record changed since it was read")
)

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrRateLimited) match a 429.
func (e *HTTPError) Is(target error) bool {
	return target == ErrRateLimited && e.StatusCode == 429
}

// ParseRetryAfter parses a Retry-After header in seconds format (e.g. "120").
// Returns zero if absent or unparseable.
func ParseRetryAfter(value string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
