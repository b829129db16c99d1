// Package metrics provides Prometheus collectors for message handling, sweeps and tool calls.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultSuccess = "success"
	ResultError   = "error"
	// ResultSkipped counts sweep tasks closed by another writer first
	ResultSkipped = "skipped"
)

// Metrics records counters and histograms. A nil *Metrics is valid and records nothing.
type Metrics struct {
	inboundTotal  *prometheus.CounterVec
	sweepTotal    *prometheus.CounterVec
	toolCallTotal *prometheus.CounterVec
	replyDuration prometheus.Histogram
}

// New registers collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		inboundTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lily_inbound_messages_total",
				Help: "Total number of inbound messages by channel and result",
			},
			[]string{"channel", "result"},
		),
		sweepTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lily_sweep_tasks_total",
				Help: "Total number of due tasks handled by sweeps",
			},
			[]string{"result"},
		),
		toolCallTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lily_tool_calls_total",
				Help: "Total number of tool calls requested by the model",
			},
			[]string{"tool", "result"},
		),
		replyDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lily_reply_duration_seconds",
				Help:    "Time spent producing a reply to one inbound message",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

// InboundMessage counts one handled inbound message
func (m *Metrics) InboundMessage(channel string, err error) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(channel, result(err)).Inc()
}

// SweepTask counts one due task with the given result label
func (m *Metrics) SweepTask(label string) {
	if m == nil {
		return
	}
	m.sweepTotal.WithLabelValues(label).Inc()
}

// ToolCall counts one tool invocation
func (m *Metrics) ToolCall(tool string, err error) {
	if m == nil {
		return
	}
	m.toolCallTotal.WithLabelValues(tool, result(err)).Inc()
}

// ObserveReply records the reply latency
func (m *Metrics) ObserveReply(d time.Duration) {
	if m == nil {
		return
	}
	m.replyDuration.Observe(d.Seconds())
}
