package ratelimit

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/linkdrop/linkdrop/internal/config"
	"golang.org/x/time/rate"
)

const (
	PrefixDownloadIP   = "download:ip:"
	PrefixDownloadUser = "download:user:"
	PrefixValidation   = "token:validation:"

	// maxBuckets bounds memory; the whole cache is cleared past this point.
	maxBuckets = 100_000
)

func KeyIP(ip string) string {
	return PrefixDownloadIP + ip
}

func KeyUser(user string) string {
	return PrefixDownloadUser + user
}

func KeyValidation(scope string) string {
	return PrefixValidation + scope
}

// Limiter is a keyed token bucket admission gate. It is advisory: any
// internal degradation answers allow rather than blocking downloads.
type Limiter interface {
	Allow(key string) bool
	Maintain()
}

type family struct {
	enabled  bool
	requests int
	window   time.Duration
}

type keyedLimiter struct {
	families map[string]family
	fallback family
	buckets  sync.Map
	count    atomic.Int64
}

// New builds a limiter from config. A disabled config yields a no-op
// limiter so callers never deal with an absent dependency.
func New(cfg *config.RateLimitConfig) Limiter {
	if cfg == nil || !cfg.Enable {
		return NewNoop()
	}
	return &keyedLimiter{
		families: map[string]family{
			PrefixDownloadIP:   {enabled: cfg.IP.Enable, requests: cfg.IP.Requests, window: cfg.IP.Window},
			PrefixDownloadUser: {enabled: cfg.User.Enable, requests: cfg.User.Requests, window: cfg.User.Window},
			PrefixValidation:   {enabled: cfg.Validation.Enable, requests: cfg.Validation.Requests, window: cfg.Validation.Window},
		},
		fallback: family{enabled: true, requests: 20, window: time.Minute},
	}
}

func (l *keyedLimiter) familyFor(key string) family {
	for prefix, fam := range l.families {
		if strings.HasPrefix(key, prefix) {
			return fam
		}
	}
	return l.fallback
}

func (l *keyedLimiter) Allow(key string) bool {
	fam := l.familyFor(key)
	if !fam.enabled {
		return true
	}
	if fam.requests <= 0 || fam.window <= 0 {
		// misconfigured family degrades to allow
		return true
	}

	bucket, loaded := l.buckets.Load(key)
	if !loaded {
		fresh := rate.NewLimiter(rate.Every(fam.window/time.Duration(fam.requests)), fam.requests)
		bucket, loaded = l.buckets.LoadOrStore(key, fresh)
		if !loaded {
			l.count.Add(1)
		}
	}

	lim, ok := bucket.(*rate.Limiter)
	if !ok {
		return true
	}
	return lim.Allow()
}

// Maintain clears the whole bucket cache once it grows past the threshold,
// trading perfect fairness for bounded memory.
func (l *keyedLimiter) Maintain() {
	if l.count.Load() <= maxBuckets {
		return
	}
	l.buckets.Range(func(key, _ any) bool {
		l.buckets.Delete(key)
		return true
	})
	l.count.Store(0)
}

type noopLimiter struct{}

func NewNoop() Limiter {
	return noopLimiter{}
}

func (noopLimiter) Allow(string) bool { return true }
func (noopLimiter) Maintain()         {}
