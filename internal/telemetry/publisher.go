// Package telemetry publishes best-path-change events to Kafka for
// external consumers (analytics, alerting) that want a live feed rather
// than querying the audit ledger. It is, like internal/audit, a
// best-effort side channel: publish failures are logged and counted, never
// propagated back into the RIB.
package telemetry

import (
	"context"
	"encoding/json"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/route-beacon/bgp-control/internal/config"
	"github.com/route-beacon/bgp-control/internal/metrics"
)

// Event is the wire payload published to the telemetry topic, one per
// best-path change a subscribed table observes.
type Event struct {
	Table        string `json:"table"`
	Prefix       string `json:"prefix"`
	Action       string `json:"action"`
	PeerRouterID uint32 `json:"peer_router_id,omitempty"`
	NextHop      string `json:"next_hop,omitempty"`
	ASPath       string `json:"as_path,omitempty"`
	Origin       string `json:"origin,omitempty"`
	LocalPref    uint32 `json:"local_pref,omitempty"`
	MED          uint32 `json:"med,omitempty"`
}

// Publisher is a Kafka producer for the telemetry topic. Unlike the
// teacher's HistoryConsumer/StateConsumer, it produces rather than
// consumes; the client construction (brokers, TLS, SASL) is otherwise the
// same shape.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *zap.Logger
}

// NewPublisher constructs a Publisher from the Kafka client settings.
// Returns an error if the client cannot be constructed (bad TLS material,
// unreachable brokers are not checked eagerly — kgo dials lazily).
func NewPublisher(cfg config.KafkaConfig, logger *zap.Logger) (*Publisher, error) {
	tlsCfg, err := cfg.BuildTLSConfig()
	if err != nil {
		return nil, err
	}
	saslMech := cfg.BuildSASLMechanism()

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
	}
	if tlsCfg != nil {
		opts = append(opts, kgo.DialTLSConfig(tlsCfg))
	}
	if saslMech != nil {
		opts = append(opts, kgo.SASL(saslMech))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}

	return &Publisher{client: client, topic: cfg.Telemetry.Topic, logger: logger}, nil
}

// Close releases the underlying Kafka client.
func (p *Publisher) Close() {
	p.client.Close()
}

// Publish produces one Event asynchronously. The prefix is the record key
// so a downstream compacted topic retains only the latest state per
// prefix.
func (p *Publisher) Publish(ctx context.Context, e *Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		metrics.TelemetryPublishTotal.WithLabelValues("encode_error").Inc()
		p.logger.Warn("telemetry: failed to encode event", zap.Error(err))
		return
	}

	rec := &kgo.Record{Topic: p.topic, Key: []byte(e.Prefix), Value: payload}
	p.client.Produce(ctx, rec, func(_ *kgo.Record, err error) {
		if err != nil {
			metrics.TelemetryPublishTotal.WithLabelValues("error").Inc()
			p.logger.Warn("telemetry: publish failed", zap.String("prefix", e.Prefix), zap.Error(err))
			return
		}
		metrics.TelemetryPublishTotal.WithLabelValues("ok").Inc()
	})
}
