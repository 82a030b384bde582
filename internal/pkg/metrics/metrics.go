package metrics

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "plexcrm"

// Metrics holds the application counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	webhookEvents    *prometheus.CounterVec
	reminderSends    *prometheus.CounterVec
	reminderRuns     *prometheus.CounterVec
	gateDecisions    *prometheus.CounterVec
	settingsSnapshot *prometheus.CounterVec
	ipLogFlushes     *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		webhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Payment webhook events by outcome and error code.",
		}, []string{"outcome", "code"}),
		reminderSends: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_sends_total",
			Help:      "Reminder decisions by bucket and result.",
		}, []string{"bucket", "result"}),
		reminderRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_runs_total",
			Help:      "Reminder batch runs by trigger and status.",
		}, []string{"trigger", "status"}),
		gateDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Edge gate decisions.",
		}, []string{"decision"}),
		settingsSnapshot: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settings_snapshot_total",
			Help:      "Settings snapshots served by source.",
		}, []string{"source"}),
		ipLogFlushes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ip_log_flushes_total",
			Help:      "IP access log flushes by status.",
		}, []string{"status"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

func (m *Metrics) WebhookEvent(outcome, code string) {
	m.webhookEvents.WithLabelValues(outcome, code).Inc()
}

func (m *Metrics) ReminderDecision(bucket int, result string) {
	m.reminderSends.WithLabelValues(strconv.Itoa(bucket), result).Inc()
}

func (m *Metrics) ReminderRun(trigger, status string) {
	m.reminderRuns.WithLabelValues(trigger, status).Inc()
}

func (m *Metrics) GateDecision(decision string) {
	m.gateDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) SettingsSnapshot(source string) {
	m.settingsSnapshot.WithLabelValues(source).Inc()
}

func (m *Metrics) IPLogFlush(status string) {
	m.ipLogFlushes.WithLabelValues(status).Inc()
}
