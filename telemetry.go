package sharedconn

import "github.com/prometheus/client_golang/prometheus"

// Collector captures lifecycle events of the managed connection.
//
// Implementations must be inexpensive to call: the hooks run inline with
// connection establishment, reset and the proxy's suppressed shutdown paths.
type Collector interface {
	// IncCreated counts a successfully established shared connection.
	IncCreated()
	// IncReset counts a discarded connection/proxy pair.
	IncReset()
	// IncFault counts a broker-reported connection error.
	IncFault()
	// IncSuppressedShutdown counts a Stop/Close absorbed by the proxy.
	IncSuppressedShutdown()
}

type noopCollector struct{}

// Noop returns a collector that discards all counts.
func Noop() Collector { return noopCollector{} }

func (noopCollector) IncCreated()            {}
func (noopCollector) IncReset()              {}
func (noopCollector) IncFault()              {}
func (noopCollector) IncSuppressedShutdown() {}

// PrometheusCollector exposes the lifecycle counters via Prometheus.
type PrometheusCollector struct {
	created    prometheus.Counter
	resets     prometheus.Counter
	faults     prometheus.Counter
	suppressed prometheus.Counter
}

// NewPrometheusCollector registers the lifecycle counters with reg. A nil reg
// uses the default registerer.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &PrometheusCollector{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shared_connection_created_total",
			Help: "Number of shared broker connections established.",
		}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shared_connection_reset_total",
			Help: "Number of times the cached connection was discarded.",
		}),
		faults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shared_connection_fault_total",
			Help: "Number of broker-reported connection errors.",
		}),
		suppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shared_connection_suppressed_shutdown_total",
			Help: "Number of Stop/Close calls absorbed by the shared proxy.",
		}),
	}
	for _, counter := range []prometheus.Counter{c.created, c.resets, c.faults, c.suppressed} {
		if err := reg.Register(counter); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *PrometheusCollector) IncCreated()            { c.created.Inc() }
func (c *PrometheusCollector) IncReset()              { c.resets.Inc() }
func (c *PrometheusCollector) IncFault()              { c.faults.Inc() }
func (c *PrometheusCollector) IncSuppressedShutdown() { c.suppressed.Inc() }
