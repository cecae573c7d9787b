package tmdb

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"strmsync/internal/services"
)

// Kind classifies a lookup failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindRateLimited
	KindTransient
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

func (k Kind) marker() error {
	switch k {
	case KindRateLimited:
		return services.ErrRateLimited
	case KindTransient:
		return services.ErrTransient
	case KindNotFound:
		return services.ErrNotFound
	default:
		return services.ErrUnknown
	}
}

// LookupError describes a failed TMDB request.
type LookupError struct {
	Kind       Kind
	Op         string
	StatusCode int
	Latency    time.Duration
	retryAfter time.Duration
	Err        error
}

func (e *LookupError) Error() string {
	var b strings.Builder
	b.WriteString("tmdb ")
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Latency > 0 {
		fmt.Fprintf(&b, " (latency=%v)", e.Latency.Round(time.Millisecond))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *LookupError) Unwrap() error { return e.Err }

// Is matches the services marker for the error's kind.
func (e *LookupError) Is(target error) bool {
	return target == e.Kind.marker()
}

// RetryAfter returns the server-requested delay, if any.
func (e *LookupError) RetryAfter() time.Duration { return e.retryAfter }

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout, status >= http.StatusInternalServerError:
		return KindTransient
	case status == http.StatusNotFound:
		return KindNotFound
	default:
		return KindUnknown
	}
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}
