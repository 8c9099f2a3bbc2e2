package notify

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var (
	ErrDuplicate = errors.New("notification already sent")
	ErrThrottled = errors.New("too many notifications for this topic")
)

// Outcome labels of the notifications counter.
const (
	OutcomeSent         = "sent"
	OutcomeDeduplicated = "deduplicated"
	OutcomeThrottled    = "throttled"
	OutcomeFailed       = "failed"
)

type OptimizerOptions struct {
	// DedupeWindow is how long an identical chat message is suppressed.
	DedupeWindow time.Duration
	// RatePerSecond and Burst size the per-topic token bucket. A
	// non-positive rate disables throttling.
	RatePerSecond float64
	Burst         int
	Now           func() time.Time
}

// Optimizer suppresses duplicate chat notifications, throttles noisy topics
// and counts what happened to every notification.
type Optimizer struct {
	mu       sync.Mutex
	window   time.Duration
	seen     map[string]time.Time
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
	now      func() time.Time

	notifications *prometheus.CounterVec
}

// NewOptimizer registers its counters on reg.
func NewOptimizer(reg prometheus.Registerer, opts OptimizerOptions) *Optimizer {
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Optimizer{
		window:   opts.DedupeWindow,
		seen:     map[string]time.Time{},
		limit:    limit,
		burst:    burst,
		limiters: map[string]*rate.Limiter{},
		now:      now,
		notifications: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "cummap_notifications_total",
				Help: "Notifications handled by the relay, by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// Admit decides whether a notification identified by fingerprint may go out
// on topic now. An empty fingerprint skips deduplication.
func (o *Optimizer) Admit(topic, fingerprint string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	for k, at := range o.seen {
		if now.Sub(at) >= o.window {
			delete(o.seen, k)
		}
	}
	if fingerprint != "" && o.window > 0 {
		if _, dup := o.seen[fingerprint]; dup {
			o.notifications.WithLabelValues(OutcomeDeduplicated).Inc()
			return ErrDuplicate
		}
	}

	limiter, ok := o.limiters[topic]
	if !ok {
		limiter = rate.NewLimiter(o.limit, o.burst)
		o.limiters[topic] = limiter
	}
	if !limiter.AllowN(now, 1) {
		o.notifications.WithLabelValues(OutcomeThrottled).Inc()
		return ErrThrottled
	}

	if fingerprint != "" && o.window > 0 {
		o.seen[fingerprint] = now
	}
	return nil
}

// Forget drops a fingerprint admitted for a send that then failed, so a
// retry is not taken for a duplicate.
func (o *Optimizer) Forget(fingerprint string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.seen, fingerprint)
}

func (o *Optimizer) RecordSent(n int) {
	o.notifications.WithLabelValues(OutcomeSent).Add(float64(n))
}

func (o *Optimizer) RecordFailed(n int) {
	o.notifications.WithLabelValues(OutcomeFailed).Add(float64(n))
}
