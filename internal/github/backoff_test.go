package github

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
)

func TestCalculateBackoff_RespectsRetryAfter(t *testing.T) {
	cfg := DefaultRetryConfig()

	retryAfter := 5 * time.Second
	backoff := CalculateBackoff(cfg, 0, retryAfter)

	expected := 5*time.Second + 500*time.Millisecond
	if backoff != expected {
		t.Errorf("expected backoff %v, got %v", expected, backoff)
	}
}

func TestCalculateBackoff_ExponentialGrowth(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:     5,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		Jitter:         false,
	}

	for attempt, want := range []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
	} {
		if got := CalculateBackoff(cfg, attempt, 0); got != want {
			t.Errorf("attempt %d: expected %v, got %v", attempt, want, got)
		}
	}
}

func TestCalculateBackoff_RespectsMaxBackoff(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:     10,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
		Jitter:         false,
	}

	if got := CalculateBackoff(cfg, 10, 0); got > 5*time.Second {
		t.Errorf("backoff %v exceeds cap of 5s", got)
	}
}

func respErr(code int) error {
	return &github.ErrorResponse{Response: &http.Response{StatusCode: code}}
}

func TestClassify(t *testing.T) {
	retryAfter := 42 * time.Second
	tests := []struct {
		name string
		err  error
		want errKind
	}{
		{"plain error is transient", errTest("boom"), kindTransient},
		{"timeout is transient", context.DeadlineExceeded, kindTransient},
		{"server error is transient", respErr(http.StatusBadGateway), kindTransient},
		{"not found is permanent", respErr(http.StatusNotFound), kindPermanent},
		{"unauthorized is permanent", respErr(http.StatusUnauthorized), kindPermanent},
		{"forbidden is permanent", respErr(http.StatusForbidden), kindPermanent},
		{"primary rate limit", &github.RateLimitError{}, kindRateLimit},
		{"secondary rate limit", &github.AbuseRateLimitError{RetryAfter: &retryAfter}, kindRateLimit},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			kind, delay := classify(tc.err)
			if kind != tc.want {
				t.Errorf("classify() = %v, want %v", kind, tc.want)
			}
			if tc.name == "secondary rate limit" && delay != retryAfter {
				t.Errorf("expected delay %v, got %v", retryAfter, delay)
			}
		})
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
