// ratelimit.go — ограничение частоты запросов с одного клиента.
// Для каждого IP-адреса ведётся собственный token bucket (golang.org/x/time/rate):
// пополнение — requests за window, ёмкость — requests.
package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apierrors "github.com/bigkaa/filemanager/internal/api/errors"
)

// rateLimitedTotal — количество отклонённых по лимиту запросов.
var rateLimitedTotal = OperationsTotal.MustCurryWith(map[string]string{"operation": "rate_limit"})

// clientLimiter — token bucket одного клиента.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter — набор token bucket по ключу клиента.
type RateLimiter struct {
	mu        sync.RWMutex
	clients   map[string]*clientLimiter
	limit     rate.Limit
	interval  time.Duration
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter создаёт лимитер: не более requests запросов за window
// с одного клиента. requests <= 0 отключает ограничение (nil).
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	if requests <= 0 || window <= 0 {
		return nil
	}
	interval := window / time.Duration(requests)
	return &RateLimiter{
		clients:  make(map[string]*clientLimiter),
		limit:    rate.Every(interval),
		interval: interval,
		burst:    requests,
		idleTTL:  window,
		now:      time.Now,
	}
}

// Allow расходует один токен клиента key. false — лимит исчерпан.
func (l *RateLimiter) Allow(key string) bool {
	now := l.now()

	l.mu.RLock()
	c, ok := l.clients[key]
	l.mu.RUnlock()

	if !ok {
		l.mu.Lock()
		c, ok = l.clients[key]
		if !ok {
			c = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst), lastSeen: now}
			l.clients[key] = c
		}
		l.sweepLocked(now)
		l.mu.Unlock()
	}

	l.mu.Lock()
	c.lastSeen = now
	l.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

// sweepLocked удаляет клиентов, неактивных дольше idleTTL.
// Простаивающий bucket к этому моменту полностью пополнен, поэтому его
// удаление не меняет поведение лимита. Вызывается под l.mu.
func (l *RateLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.idleTTL {
		return
	}
	l.lastSweep = now
	for key, c := range l.clients {
		if now.Sub(c.lastSeen) > l.idleTTL {
			delete(l.clients, key)
		}
	}
}

// retryAfter — значение Retry-After в секундах: время пополнения одного токена,
// округлённое вверх, не меньше 1.
func (l *RateLimiter) retryAfter() string {
	secs := int64(math.Ceil(l.interval.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

// size возвращает текущее число отслеживаемых клиентов.
func (l *RateLimiter) size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.clients)
}

// RateLimit возвращает middleware, отвечающий 429 при превышении лимита.
// nil-лимитер пропускает все запросы.
func RateLimit(l *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(clientKey(r)) {
				rateLimitedTotal.WithLabelValues("rejected").Inc()
				w.Header().Set("Retry-After", l.retryAfter())
				apierrors.TooManyRequests(w, "Слишком много запросов, повторите позже")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey — IP-адрес клиента без порта.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
