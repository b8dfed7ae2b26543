package github

import (
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"
)

func TestShouldRetryStatus(t *testing.T) {
	retryable := []int{408, 500, 502, 503, 504, 599}
	for _, s := range retryable {
		if !shouldRetryStatus(s) {
			t.Errorf("status %d should be retryable", s)
		}
	}
	terminal := []int{200, 400, 401, 403, 404, 422, 429}
	for _, s := range terminal {
		if shouldRetryStatus(s) {
			t.Errorf("status %d must not be retried", s)
		}
	}
}

func TestParseRetryAfter_Seconds(t *testing.T) {
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"30"}}}
	if got := parseRetryAfter(resp, time.Minute); got != 30*time.Second {
		t.Fatalf("got %s", got)
	}
}

func TestParseRetryAfter_CappedAtFiveMinutes(t *testing.T) {
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"3600"}}}
	if got := parseRetryAfter(resp, time.Minute); got != 5*time.Minute {
		t.Fatalf("got %s", got)
	}
}

func TestParseRetryAfter_ResetEpochFallback(t *testing.T) {
	reset := strconv.FormatInt(time.Now().Add(45*time.Second).Unix(), 10)
	resp := &http.Response{Header: http.Header{"X-Ratelimit-Reset": []string{reset}}}

	got := parseRetryAfter(resp, time.Minute)
	if got < 40*time.Second || got > 46*time.Second {
		t.Fatalf("got %s, want ~45s", got)
	}
}

func TestParseRetryAfter_Fallback(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	if got := parseRetryAfter(resp, 90*time.Second); got != 90*time.Second {
		t.Fatalf("got %s", got)
	}
	if got := parseRetryAfter(nil, time.Minute); got != time.Minute {
		t.Fatalf("nil response: got %s", got)
	}
}

func TestComputeBackoff_Bounds(t *testing.T) {
	base := 100 * time.Millisecond
	for attempt := 0; attempt < 12; attempt++ {
		for i := 0; i < 20; i++ {
			d := computeBackoff(base, attempt)
			if d < 0 {
				t.Fatalf("attempt %d: negative backoff %s", attempt, d)
			}
			if d > 60*time.Second {
				t.Fatalf("attempt %d: backoff %s above cap", attempt, d)
			}
		}
	}
}

func TestIsTransientNetError(t *testing.T) {
	if isTransientNetError(nil) {
		t.Error("nil is not transient")
	}
	if !isTransientNetError(fmt.Errorf("dial tcp: connection refused")) {
		t.Error("connection refused should be transient")
	}
	if isTransientNetError(fmt.Errorf("invalid request body")) {
		t.Error("application error must not be transient")
	}
}
