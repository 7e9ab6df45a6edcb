package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixelconvert/internal/ratelimit"
)

type RateLimiter interface {
	Allow(ctx context.Context, subject string, cost int) (ratelimit.Decision, error)
}

// allowConvert charges one token per input of the batch about to run. It
// writes the 429 response itself and reports false when the batch must wait.
// Limiter failures let the request through.
func (s *Server) allowConvert(w http.ResponseWriter, r *http.Request, cost int) bool {
	if s.rateLimiter == nil {
		return true
	}

	subject := strings.TrimSpace(r.Header.Get(s.rateLimitUserIDHeader))
	if subject == "" {
		subject = "anonymous"
	}
	subject = subject + ":" + routeLabel(r.URL.Path)

	decision, err := s.rateLimiter.Allow(r.Context(), subject, cost)
	if err != nil {
		s.logger.Warn().Err(err).Str("subject", subject).Msg("rate limiter check failed")
		return true
	}

	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
	if decision.Allowed {
		return true
	}

	retryAfter := int(decision.RetryAfter.Round(time.Second).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	s.metrics.rateLimitRejected.WithLabelValues(routeLabel(r.URL.Path)).Inc()
	writeJSON(w, http.StatusTooManyRequests, map[string]string{
		"error": "rate limit exceeded",
	})
	return false
}
