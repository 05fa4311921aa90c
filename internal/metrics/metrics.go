// Package metrics exports host boot state as Prometheus metrics.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/bootlatch/internal/embedded"
	"github.com/roach88/bootlatch/internal/host"
)

const namespace = "bootlatch"

// Collector turns host events into metrics. It implements host.Observer and
// may observe several hosts; every series is labelled with the host name.
type Collector struct {
	deferrals     *prometheus.GaugeVec
	booted        *prometheus.GaugeVec
	registrations *prometheus.CounterVec
	resumes       *prometheus.CounterVec
	bootWait      *prometheus.HistogramVec

	now func() time.Time

	mu         sync.Mutex
	attached   map[string]bool
	deferredAt map[string]time.Time
}

// New creates a Collector and registers its metrics on reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		deferrals: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "host",
				Name:      "readiness_deferrals",
				Help:      "Outstanding readiness deferrals.",
			},
			[]string{"host"},
		),
		booted: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "host",
				Name:      "booted",
				Help:      "1 once the host has booted.",
			},
			[]string{"host"},
		),
		registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "registrations_total",
				Help:      "Registry writes by key.",
			},
			[]string{"host", "key"},
		),
		resumes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "embedded",
				Name:      "resumes_total",
				Help:      "Embedded configurations registered by a resume call.",
			},
			[]string{"host"},
		),
		bootWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "host",
				Name:      "boot_wait_seconds",
				Help:      "Time from the first readiness deferral to boot.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"host"},
		),
		now:        time.Now,
		attached:   make(map[string]bool),
		deferredAt: make(map[string]time.Time),
	}

	for _, col := range []prometheus.Collector{c.deferrals, c.booted, c.registrations, c.resumes, c.bootWait} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return c, nil
}

// Observe implements host.Observer.
func (c *Collector) Observe(ev host.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deferrals.WithLabelValues(ev.Host).Set(float64(ev.Deferrals))

	switch ev.Kind {
	case host.EventDefer:
		if _, ok := c.deferredAt[ev.Host]; !ok {
			c.deferredAt[ev.Host] = c.now()
		}
	case host.EventAttach:
		c.attached[ev.Host] = true
	case host.EventRegister:
		c.registrations.WithLabelValues(ev.Host, ev.Key).Inc()
		if ev.Key == embedded.ConfigKey && c.attached[ev.Host] {
			c.resumes.WithLabelValues(ev.Host).Inc()
		}
	case host.EventBooted:
		c.booted.WithLabelValues(ev.Host).Set(1)
		if start, ok := c.deferredAt[ev.Host]; ok {
			c.bootWait.WithLabelValues(ev.Host).Observe(c.now().Sub(start).Seconds())
		}
	case host.EventDestroyed:
		delete(c.attached, ev.Host)
		delete(c.deferredAt, ev.Host)
	}
	return nil
}
