package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lily/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func TestNilMetrics(t *testing.T) {
	var m *metrics.Metrics
	m.InboundMessage("whatsapp", nil)
	m.SweepTask(metrics.ResultSuccess)
	m.ToolCall("createTask", errors.New("boom"))
	m.ObserveReply(time.Second)
}

func TestMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.InboundMessage("telegram", nil)
	m.SweepTask(metrics.ResultSkipped)
	m.ToolCall("listTasks", nil)
	m.ObserveReply(200 * time.Millisecond)

	families, err := reg.Gather()
	gt.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	gt.True(t, names["lily_inbound_messages_total"])
	gt.True(t, names["lily_sweep_tasks_total"])
	gt.True(t, names["lily_tool_calls_total"])
	gt.True(t, names["lily_reply_duration_seconds"])
}
