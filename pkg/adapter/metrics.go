// pkg/adapter/metrics.go
package adapter

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Statement kinds used as the "kind" label.
const (
	KindSelect = "select"
	KindCount  = "count"
	KindInsert = "insert"
	KindUpdate = "update"
	KindDelete = "delete"
	KindDDL    = "ddl"
	KindRaw    = "raw"
)

// Metrics counts executed statements per adapter.
type Metrics struct {
	Queries *prometheus.CounterVec
	Errors  *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them on reg. Registering on a
// registerer that already holds them reuses the existing collectors, so every
// adapter of a process can share one registerer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	queries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spot_queries_total",
		Help: "Statements executed, by adapter and statement kind.",
	}, []string{"adapter", "kind"})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spot_query_errors_total",
		Help: "Statements that returned an error, by adapter.",
	}, []string{"adapter"})

	m := &Metrics{Queries: queries, Errors: errs}
	if reg == nil {
		return m, nil
	}
	var err error
	if m.Queries, err = register(reg, queries); err != nil {
		return nil, err
	}
	if m.Errors, err = register(reg, errs); err != nil {
		return nil, err
	}
	return m, nil
}

func register(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

func (m *Metrics) observe(adapter, kind string, err error) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(adapter, kind).Inc()
	if err != nil {
		m.Errors.WithLabelValues(adapter).Inc()
	}
}
