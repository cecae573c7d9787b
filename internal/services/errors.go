package services

import (
	"errors"
	"fmt"
	"strings"
)

// Error markers shared across the engine. Per-item markers (playlist format,
// lookup failures, filesystem writes) are absorbed into run statistics;
// ErrConfiguration and ErrCacheIO abort a run before scanning begins.
var (
	ErrPlaylistFormat  = errors.New("playlist format error")
	ErrRateLimited     = errors.New("rate limited")
	ErrTransient       = errors.New("transient failure")
	ErrNotFound        = errors.New("not found")
	ErrUnknown         = errors.New("unknown lookup failure")
	ErrCacheIO         = errors.New("cache io error")
	ErrFilesystemWrite = errors.New("filesystem write error")
	ErrConfiguration   = errors.New("configuration error")
)

// Wrap builds an error message that includes phase context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, phase, operation, message string, err error) error {
	detail := buildDetail(phase, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether a failure may succeed when attempted again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}

// IsFatal reports whether a failure must abort the run rather than be
// counted against a single item.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrCacheIO)
}

// Reason returns a short, stable label for the marker carried by err.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPlaylistFormat):
		return "playlist_format"
	case errors.Is(err, ErrFilesystemWrite):
		return "filesystem_write"
	case errors.Is(err, ErrCacheIO):
		return "cache_io"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "unknown"
	}
}

func buildDetail(phase, operation, message string) string {
	parts := make([]string, 0, 3)
	if phase = strings.TrimSpace(phase); phase != "" {
		parts = append(parts, phase)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
