package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "repairagent"

// collectors holds the gauges a Result is exported through.
type collectors struct {
	resolved   prometheus.Gauge
	duration   prometheus.Gauge
	cost       prometheus.Gauge
	tokens     *prometheus.GaugeVec
	toolCalls  *prometheus.GaugeVec
	rateLimits prometheus.Gauge
	errors     prometheus.Gauge
}

func newCollectors(reg prometheus.Registerer) (*collectors, error) {
	c := &collectors{
		resolved: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resolved",
			Help:      "1 if the post-verification marker exists.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "duration_seconds",
			Help:      "Time between the first and last logged event.",
		}),
		cost: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cost_usd",
			Help:      "Estimated model spend for the run.",
		}),
		tokens: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tokens",
			Help:      "Model tokens consumed, by direction.",
		}, []string{"direction"}),
		toolCalls: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tool_calls",
			Help:      "Tool invocations, by category.",
		}, []string{"tool"}),
		rateLimits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_limits",
			Help:      "Rate-limited generation attempts.",
		}),
		errors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "errors",
			Help:      "Error events logged.",
		}),
	}
	for _, col := range []prometheus.Collector{c.resolved, c.duration, c.cost, c.tokens, c.toolCalls, c.rateLimits, c.errors} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}
	return c, nil
}

func (c *collectors) observe(r *Result) {
	if r.Resolved {
		c.resolved.Set(1)
	} else {
		c.resolved.Set(0)
	}
	c.duration.Set(r.DurationSeconds)
	c.cost.Set(r.TotalCostUSD)
	c.tokens.WithLabelValues("input").Set(float64(r.Tokens.Input))
	c.tokens.WithLabelValues("output").Set(float64(r.Tokens.Output))
	for tool, n := range r.ToolUsage {
		c.toolCalls.WithLabelValues(tool).Set(float64(n))
	}
	c.rateLimits.Set(float64(r.RateLimits))
	c.errors.Set(float64(r.Errors))
}

// Register exposes r through reg.
func (r *Result) Register(reg prometheus.Registerer) error {
	c, err := newCollectors(reg)
	if err != nil {
		return err
	}
	c.observe(r)
	return nil
}

// WriteTextfile writes r in the node-exporter textfile collector format.
func (r *Result) WriteTextfile(path string) error {
	reg := prometheus.NewRegistry()
	if err := r.Register(reg); err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("writing textfile: %w", err)
	}
	return nil
}
