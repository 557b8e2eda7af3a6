package github

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/go-github/v57/github"
)

// errKind classifies a failed API call for the retry policy.
type errKind int

const (
	kindTransient errKind = iota // retry with backoff
	kindRateLimit                // wait for the reset, charge the wait budget
	kindPermanent                // give up on this repository
)

// classify maps an API error onto the retry taxonomy. The reset delay is
// only meaningful for kindRateLimit.
func classify(err error) (errKind, time.Duration) {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		delay := time.Until(rateErr.Rate.Reset.Time)
		if delay < 0 {
			delay = 0
		}
		return kindRateLimit, delay
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		delay := time.Minute
		if abuseErr.RetryAfter != nil {
			delay = *abuseErr.RetryAfter
		}
		return kindRateLimit, delay
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch code := respErr.Response.StatusCode; {
		case code == http.StatusNotFound,
			code == http.StatusUnauthorized,
			code == http.StatusForbidden,
			code == http.StatusGone:
			return kindPermanent, 0
		case code >= 500:
			return kindTransient, 0
		}
		return kindPermanent, 0
	}

	// Timeouts and network failures are retryable.
	if errors.Is(err, context.DeadlineExceeded) {
		return kindTransient, 0
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return kindTransient, 0
	}

	return kindTransient, 0
}
