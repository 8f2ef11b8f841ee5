package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"imageclassifier/internal/dto"
	"imageclassifier/internal/errs"
	"imageclassifier/internal/logger"
	"imageclassifier/internal/model"
)

// Limiter counts a request and reports whether it may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, *model.RateLimitWindow, error)
	Max() int64
}

// RateLimitMiddleware counts every request per client IP and answers 429 once the window is used up.
func RateLimitMiddleware(limiter Limiter, log *logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := ClientIP(r)
		ok, window, err := limiter.Allow(r.Context(), key)
		if err != nil {
			log.ErrorCtx(r.Context(), "Rate limit check for %s failed: %v", key, err)
			writeJSON(w, http.StatusInternalServerError, dto.MessageResponse{Message: "Error:" + errs.CodeOf(err)})
			return
		}

		remaining := limiter.Max() - window.Count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limiter.Max(), 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(window.Expiry.Unix(), 10))

		if !ok {
			retry := int64(time.Until(window.Expiry).Seconds()) + 1
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
			log.WarningCtx(r.Context(), "Rate limit exceeded for %s (%d requests)", key, window.Count)
			writeJSON(w, http.StatusTooManyRequests, dto.MessageResponse{Message: "Too Many Requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the host part of the connection's remote address.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
