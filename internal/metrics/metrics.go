package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Service exposes the guard subsystem counters. Notifier exhaustion is the
// operational alerting channel for delivery failures: the session is already
// in Emergency when it fires, so the failure must page operations instead of
// the triggering user.
type Service struct {
	Escalations       *prometheus.CounterVec
	SessionsCompleted prometheus.Counter
	SessionsExpired   prometheus.Counter
	NotifyAttempts    prometheus.Counter
	NotifyExhausted   prometheus.Counter
	BeaconFixFailures prometheus.Counter
	BeaconFixes       prometheus.Counter
	EscalationLatency prometheus.Histogram
}

var (
	once    sync.Once
	service *Service
)

// New returns the process-wide metrics service. Collectors are registered
// once; repeated calls return the same instance.
func New() *Service {
	once.Do(func() {
		service = &Service{
			Escalations: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "guard",
				Subsystem: "session",
				Name:      "escalations_total",
				Help:      "Sessions escalated to emergency, by trigger reason",
			}, []string{"reason"}),
			SessionsCompleted: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "guard",
				Subsystem: "session",
				Name:      "completed_total",
				Help:      "Sessions ended voluntarily (including decoy cancels)",
			}),
			SessionsExpired: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "guard",
				Subsystem: "session",
				Name:      "expired_total",
				Help:      "Sessions abandoned before activation",
			}),
			NotifyAttempts: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "guard",
				Subsystem: "notify",
				Name:      "attempts_total",
				Help:      "Guardian notification delivery attempts",
			}),
			NotifyExhausted: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "guard",
				Subsystem: "notify",
				Name:      "exhausted_total",
				Help:      "Emergency notifications dropped after all retries failed",
			}),
			BeaconFixFailures: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "guard",
				Subsystem: "beacon",
				Name:      "fix_failures_total",
				Help:      "Location fixes that failed or timed out",
			}),
			BeaconFixes: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "guard",
				Subsystem: "beacon",
				Name:      "fixes_total",
				Help:      "Location fixes obtained",
			}),
			EscalationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
				Namespace: "guard",
				Subsystem: "notify",
				Name:      "dispatch_duration_seconds",
				Help:      "Time from escalation to final notifier outcome",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			}),
		}
	})
	return service
}
