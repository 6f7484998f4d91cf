package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики run'ов.
var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialwatch_runs_total",
		Help: "Harvest runs by result (completed, skipped, failed).",
	}, []string{"result"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "socialwatch_run_duration_seconds",
		Help:    "Duration of harvest runs that acquired the lock.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
	})

	ClientsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialwatch_clients_processed_total",
		Help: "Clients processed by outcome (ok, failed, skipped).",
	}, []string{"outcome"})
)

// Метрики outbox.
var (
	OutboxEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialwatch_outbox_enqueued_total",
		Help: "Outbox insert attempts by result (inserted, duplicate, failed).",
	}, []string{"result"})

	OutboxDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialwatch_outbox_deliveries_total",
		Help: "Outbox delivery attempts by result (sent, retrying, dead_letter).",
	}, []string{"result"})

	OutboxRecovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socialwatch_outbox_recovered_total",
		Help: "Stale processing rows returned to retrying.",
	})
)

// AlertsTotal — алерты по контексту.
var AlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "socialwatch_alerts_total",
	Help: "Operator alerts by context.",
}, []string{"context"})

// AMQPReconnects — попытки переподключения к RabbitMQ по результату.
var AMQPReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "socialwatch_amqp_reconnects_total",
	Help: "RabbitMQ reconnect attempts by result (ok, failed).",
}, []string{"result"})
