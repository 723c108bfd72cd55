package middleware

import (
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	appErrors "github.com/noah-isme/bp-reports-api/pkg/errors"
	"github.com/noah-isme/bp-reports-api/pkg/response"
)

const limiterSweepEvery = 1000

type limiterStore struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
	seen     int
}

func newLimiterStore(rps float64, burst int) *limiterStore {
	return &limiterStore{limiters: make(map[string]*rate.Limiter), rps: rate.Limit(rps), burst: burst}
}

func (s *limiterStore) get(ip string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(s.rps, s.burst)
		s.limiters[ip] = limiter
	}

	s.seen++
	if s.seen%limiterSweepEvery == 0 {
		for key, l := range s.limiters {
			// A full bucket means the client has been idle.
			if key != ip && l.Tokens() >= float64(s.burst) {
				delete(s.limiters, key)
			}
		}
	}
	return limiter
}

// RateLimit throttles requests per client IP with a token bucket. rps <= 0 disables it.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	store := newLimiterStore(rps, burst)

	return func(c *gin.Context) {
		if !store.get(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			response.Error(c, appErrors.ErrTooManyRequests)
			c.Abort()
			return
		}
		c.Next()
	}
}
