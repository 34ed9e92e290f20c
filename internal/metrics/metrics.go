package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors groups the planner's prometheus instruments. A nil *Collectors
// is valid and records nothing.
type Collectors struct {
	Turns            *prometheus.CounterVec
	NodeExecutions   *prometheus.CounterVec
	NodeDuration     *prometheus.HistogramVec
	ToolCalls        *prometheus.CounterVec
	ModelInvocations *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
}

// New builds the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_turns_total",
			Help: "Turns processed, by final status.",
		}, []string{"status"}),
		NodeExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_node_executions_total",
			Help: "Node executions, by node and outcome.",
		}, []string{"node", "outcome"}),
		NodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "planner_node_duration_seconds",
			Help:    "Node execution latency.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"node"}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_tool_calls_total",
			Help: "Tool dispatches, by tool and outcome.",
		}, []string{"tool", "outcome"}),
		ModelInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_model_invocations_total",
			Help: "Model invocations after retries, by model and outcome.",
		}, []string{"model", "outcome"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planner_active_sessions",
			Help: "Sessions currently held in the registry.",
		}),
	}
	if reg == nil {
		return c, nil
	}
	for _, col := range []prometheus.Collector{c.Turns, c.NodeExecutions, c.NodeDuration, c.ToolCalls, c.ModelInvocations, c.ActiveSessions} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (c *Collectors) ObserveTurn(status string) {
	if c == nil {
		return
	}
	c.Turns.WithLabelValues(status).Inc()
}

func (c *Collectors) ObserveNode(node string, started time.Time, err error) {
	if c == nil {
		return
	}
	c.NodeExecutions.WithLabelValues(node, outcome(err)).Inc()
	c.NodeDuration.WithLabelValues(node).Observe(time.Since(started).Seconds())
}

func (c *Collectors) ObserveTool(tool string, err error) {
	if c == nil {
		return
	}
	c.ToolCalls.WithLabelValues(tool, outcome(err)).Inc()
}

func (c *Collectors) ObserveModel(model string, err error) {
	if c == nil {
		return
	}
	c.ModelInvocations.WithLabelValues(model, outcome(err)).Inc()
}

func (c *Collectors) SetActiveSessions(n int) {
	if c == nil {
		return
	}
	c.ActiveSessions.Set(float64(n))
}
