// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "translation_viewer"

// Metrics holds all Prometheus metrics for the viewer.
type Metrics struct {
	// Segment store metrics
	SegmentsIngested prometheus.Counter
	SegmentsDropped  *prometheus.CounterVec
	SegmentsUpdated  prometheus.Counter
	StoreSegments    *prometheus.GaugeVec
	SegmentsTrimmed  prometheus.Counter
	IngestBatches    prometheus.Counter

	// Routing metrics
	RoutingEvaluations *prometheus.CounterVec
	RoutingDecisions   *prometheus.CounterVec
	RoutingDeferred    prometheus.Counter
	RoutingLatency     prometheus.Histogram

	// Agent RPC metrics
	RPCAttempts *prometheus.CounterVec
	RPCFailures *prometheus.CounterVec
	RPCLatency  *prometheus.HistogramVec

	// Session metrics
	SessionActions     *prometheus.CounterVec
	AttributePublishes *prometheus.CounterVec

	// View push metrics
	WebSocketClients prometheus.Gauge
	ViewBroadcasts   prometheus.Counter

	// Playback metrics
	PlaybackPackets *prometheus.CounterVec

	// Kafka metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
	KafkaConsumed       *prometheus.CounterVec

	// gRPC health endpoint metrics
	GRPCStreamsActive prometheus.Gauge
	GRPCStreamsTotal  *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SegmentsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_ingested_total",
			Help:      "Total number of segments accepted into the store",
		}),
		SegmentsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_dropped_total",
			Help:      "Total number of segments discarded during ingest",
		}, []string{"reason"}),
		SegmentsUpdated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_updated_total",
			Help:      "Total number of redeliveries that overwrote an existing segment",
		}),
		StoreSegments: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_segments",
			Help:      "Number of segments currently held per language",
		}, []string{"language"}),
		SegmentsTrimmed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_trimmed_total",
			Help:      "Total number of segments removed by retention trimming",
		}),
		IngestBatches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_batches_total",
			Help:      "Total number of segment batches ingested",
		}),

		RoutingEvaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_evaluations_total",
			Help:      "Total number of routing table recomputations",
		}, []string{"trigger"}),
		RoutingDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_decisions_total",
			Help:      "Total number of applied routing decisions",
		}, []string{"verdict"}),
		RoutingDeferred: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_deferred_total",
			Help:      "Total number of decisions deferred because the source had no track",
		}),
		RoutingLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "routing_evaluation_seconds",
			Help:      "Time spent recomputing the routing table",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),

		RPCAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_rpc_attempts_total",
			Help:      "Total number of agent RPC attempts",
		}, []string{"method"}),
		RPCFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_rpc_failures_total",
			Help:      "Total number of agent RPC attempts that failed",
		}, []string{"method"}),
		RPCLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_rpc_latency_seconds",
			Help:      "Agent RPC latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"method"}),

		SessionActions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_actions_total",
			Help:      "Total number of session actions dispatched",
		}, []string{"kind"}),
		AttributePublishes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attribute_publishes_total",
			Help:      "Total number of participant attribute writes",
		}, []string{"result"}),

		WebSocketClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Number of connected WebSocket view clients",
		}),
		ViewBroadcasts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "view_broadcasts_total",
			Help:      "Total number of view snapshots pushed to clients",
		}),

		PlaybackPackets: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_packets_total",
			Help:      "Total number of RTP packets seen by playback sinks",
		}, []string{"state"}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
		KafkaConsumed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_consumed_total",
			Help:      "Total number of Kafka messages consumed",
		}, []string{"topic", "result"}),

		GRPCStreamsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "grpc_streams_active",
			Help:      "Number of open gRPC streams (health watchers)",
		}),
		GRPCStreamsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_streams_total",
			Help:      "Total number of gRPC streams by outcome",
		}, []string{"outcome"}),
	}
}

// RecordIngest records the outcome of one ingested batch.
func (m *Metrics) RecordIngest(accepted, updated, trimmed int) {
	m.IngestBatches.Inc()
	m.SegmentsIngested.Add(float64(accepted))
	m.SegmentsUpdated.Add(float64(updated))
	m.SegmentsTrimmed.Add(float64(trimmed))
}

// RecordSegmentDropped records a segment discarded during ingest.
func (m *Metrics) RecordSegmentDropped(reason string) {
	m.SegmentsDropped.WithLabelValues(reason).Inc()
}

// RecordStoreSize records the current bucket size for a language.
func (m *Metrics) RecordStoreSize(language string, n int) {
	m.StoreSegments.WithLabelValues(language).Set(float64(n))
}

// RecordRoutingEvaluation records one full recomputation of the routing table.
func (m *Metrics) RecordRoutingEvaluation(trigger string, seconds float64) {
	m.RoutingEvaluations.WithLabelValues(trigger).Inc()
	m.RoutingLatency.Observe(seconds)
}

// RecordRoutingDecision records an applied decision.
func (m *Metrics) RecordRoutingDecision(verdict string) {
	m.RoutingDecisions.WithLabelValues(verdict).Inc()
}

// RecordRoutingDeferred records a decision that could not be applied yet.
func (m *Metrics) RecordRoutingDeferred() {
	m.RoutingDeferred.Inc()
}

// RecordRPC records one agent RPC attempt.
func (m *Metrics) RecordRPC(method string, err error, latencySeconds float64) {
	m.RPCAttempts.WithLabelValues(method).Inc()
	m.RPCLatency.WithLabelValues(method).Observe(latencySeconds)
	if err != nil {
		m.RPCFailures.WithLabelValues(method).Inc()
	}
}

// RecordSessionAction records a dispatched session action.
func (m *Metrics) RecordSessionAction(kind string) {
	m.SessionActions.WithLabelValues(kind).Inc()
}

// RecordAttributePublish records a participant attribute write.
func (m *Metrics) RecordAttributePublish(err error) {
	if err != nil {
		m.AttributePublishes.WithLabelValues("error").Inc()
		return
	}
	m.AttributePublishes.WithLabelValues("ok").Inc()
}

// RecordPlaybackPacket records an RTP packet reaching a sink.
func (m *Metrics) RecordPlaybackPacket(muted bool) {
	if muted {
		m.PlaybackPackets.WithLabelValues("muted").Inc()
		return
	}
	m.PlaybackPackets.WithLabelValues("written").Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic).Inc()
	}
}

// RecordKafkaConsumed records a consumed Kafka message.
func (m *Metrics) RecordKafkaConsumed(topic string, ok bool) {
	if ok {
		m.KafkaConsumed.WithLabelValues(topic, "ok").Inc()
		return
	}
	m.KafkaConsumed.WithLabelValues(topic, "invalid").Inc()
}

// RecordGRPCStreamStart records a new gRPC stream.
func (m *Metrics) RecordGRPCStreamStart() {
	m.GRPCStreamsActive.Inc()
}

// RecordGRPCStreamEnd records a gRPC stream ending.
func (m *Metrics) RecordGRPCStreamEnd(success bool) {
	m.GRPCStreamsActive.Dec()
	if success {
		m.GRPCStreamsTotal.WithLabelValues("success").Inc()
	} else {
		m.GRPCStreamsTotal.WithLabelValues("failed").Inc()
	}
}
