package hotstorage

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	pathPrimaryKey = "primary_key"
	pathConstraint = "constraint"
	pathBacking    = "backing"

	resultHit         = "hit"
	resultNotFound    = "not_found"
	resultFallthrough = "fallthrough"
	resultError       = "error"
	resultDelegated   = "delegated"
)

// Metrics holds the prometheus collectors of the engine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	lookups     *prometheus.CounterVec
	cacheErrors *prometheus.CounterVec
	syncs       *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. Collectors already registered
// by another Metrics on the same registry are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hotstorage",
		Name:      "lookups_total",
		Help:      "Point lookups by resolution path and result.",
	}, []string{"type", "path", "result"})

	cacheErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hotstorage",
		Name:      "cache_errors_total",
		Help:      "Cache store failures that were degraded or swallowed.",
	}, []string{"type", "op"})

	syncs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hotstorage",
		Name:      "sync_total",
		Help:      "Write-through synchronizations by operation.",
	}, []string{"type", "op"})

	var err error
	m := &Metrics{}
	if m.lookups, err = register(reg, lookups); err != nil {
		return nil, err
	}
	if m.cacheErrors, err = register(reg, cacheErrors); err != nil {
		return nil, err
	}
	if m.syncs, err = register(reg, syncs); err != nil {
		return nil, err
	}
	return m, nil
}

func register(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, errors.Wrap(err, "register metrics")
	}
	return c, nil
}

func (m *Metrics) lookup(typ, path, result string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(typ, path, result).Inc()
}

func (m *Metrics) cacheError(typ, op string) {
	if m == nil {
		return
	}
	m.cacheErrors.WithLabelValues(typ, op).Inc()
}

func (m *Metrics) synced(typ, op string) {
	if m == nil {
		return
	}
	m.syncs.WithLabelValues(typ, op).Inc()
}
