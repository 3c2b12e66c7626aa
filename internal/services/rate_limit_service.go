package services

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds token request rate limiting configuration
type RateLimitConfig struct {
	Every   time.Duration // one request replenished per interval
	Burst   int           // requests allowed back to back
	IdleTTL time.Duration // forget callers idle for this long
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Every:   12 * time.Second, // 5 per minute
		Burst:   5,
		IdleTTL: time.Hour,
	}
}

// RateLimitError represents a rate limit exceeded error
type RateLimitError struct {
	Message    string
	RetryAfter time.Time
}

func (e *RateLimitError) Error() string {
	return e.Message
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitService throttles operator token requests per client IP
type RateLimitService struct {
	config RateLimitConfig
	now    func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
}

// NewRateLimitService creates a new rate limit service
func NewRateLimitService(config RateLimitConfig) *RateLimitService {
	return &RateLimitService{
		config:   config,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

// CheckTokenRateLimit consumes one request for ip or returns a *RateLimitError
func (s *RateLimitService) CheckTokenRateLimit(ip string) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictIdleLocked(now)

	v, ok := s.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(s.config.Every), s.config.Burst)}
		s.visitors[ip] = v
	}
	v.lastSeen = now

	if v.limiter.AllowN(now, 1) {
		return nil
	}

	r := v.limiter.ReserveN(now, 1)
	retryAfter := now.Add(r.DelayFrom(now))
	r.CancelAt(now)

	return &RateLimitError{
		Message:    fmt.Sprintf("Too many token requests. Please try again after %s", retryAfter.Format("15:04:05")),
		RetryAfter: retryAfter,
	}
}

func (s *RateLimitService) evictIdleLocked(now time.Time) {
	if s.config.IdleTTL <= 0 {
		return
	}
	for ip, v := range s.visitors {
		if now.Sub(v.lastSeen) > s.config.IdleTTL {
			delete(s.visitors, ip)
		}
	}
}
