package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
)

// Config is the full on-disk/env configuration. RoutingInstances, Peers,
// and VirtualNetworks describe the BGP core's intent; Kafka/Postgres
// describe the best-effort observability side channels (internal/telemetry,
// internal/audit), which degrade independently of the core's correctness.
type Config struct {
	Service          ServiceConfig            `koanf:"service"`
	Scheduler        SchedulerConfig          `koanf:"scheduler"`
	RoutingInstances []RoutingInstanceConfig  `koanf:"routing_instances"`
	Connections      []ConnectionConfig       `koanf:"connections"`
	Peers            []PeerConfig             `koanf:"peers"`
	VirtualNetworks  []VirtualNetworkConfig   `koanf:"virtual_networks"`
	Kafka            KafkaConfig              `koanf:"kafka"`
	Postgres         PostgresConfig           `koanf:"postgres"`
	Audit            AuditConfig              `koanf:"audit"`
}

type ServiceConfig struct {
	InstanceID             string `koanf:"instance_id"`
	HTTPListen             string `koanf:"http_listen"`
	LogLevel               string `koanf:"log_level"`
	ShutdownTimeoutSeconds int    `koanf:"shutdown_timeout_seconds"`
	// LocalASNumber is this speaker's own AS number, used to classify each
	// configured peer as eBGP or iBGP for export-policy purposes.
	LocalASNumber uint32 `koanf:"local_as_number"`
}

// SchedulerConfig exposes the update scheduler's tuning knob: the
// SchedulingGroup RibOut-count ceiling at or above which Leave skips its
// connectivity re-check, a split-disabled optimization for groups too
// large for the check to be worth the cost.
type SchedulerConfig struct {
	SplitThreshold int `koanf:"split_threshold"`
	MTU            int `koanf:"mtu"`
}

// RoutingInstanceConfig is one VRF: a named table set plus the
// route-targets it imports and exports.
type RoutingInstanceConfig struct {
	Name          string   `koanf:"name"`
	ImportTargets []string `koanf:"import_targets"`
	ExportTargets []string `koanf:"export_targets"`
}

// ConnectionConfig is sugar for symmetric RT import between two
// instances: each imports the other's export-targets.
type ConnectionConfig struct {
	InstanceA string `koanf:"instance_a"`
	InstanceB string `koanf:"instance_b"`
}

// PeerConfig is one configured BGP or XMPP peering.
type PeerConfig struct {
	Instance        string   `koanf:"instance"`
	Name            string   `koanf:"name"`
	Address         string   `koanf:"address"`
	Port            int      `koanf:"port"`
	Identifier      string   `koanf:"identifier"`
	ASNumber        uint32   `koanf:"as_number"`
	Families        []string `koanf:"families"`
	HoldTimeSeconds int      `koanf:"hold_time_seconds"`
	IsXMPP          bool     `koanf:"is_xmpp"`
	ClusterID       uint32   `koanf:"cluster_id"`
}

// VirtualNetworkConfig names a virtual-network id, the label agents use
// to tag routes they publish.
type VirtualNetworkConfig struct {
	Name string `koanf:"name"`
	ID   int    `koanf:"id"`
}

type KafkaConfig struct {
	Brokers       []string       `koanf:"brokers"`
	ClientID      string         `koanf:"client_id"`
	TLS           TLSConfig      `koanf:"tls"`
	SASL          SASLConfig     `koanf:"sasl"`
	Telemetry     ProducerConfig `koanf:"telemetry"`
	FetchMaxBytes int32          `koanf:"fetch_max_bytes"`
}

type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CAFile   string `koanf:"ca_file"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
}

type SASLConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Mechanism string `koanf:"mechanism"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
}

// ProducerConfig names the topic internal/telemetry publishes best-path
// change events to.
type ProducerConfig struct {
	Topic string `koanf:"topic"`
}

type PostgresConfig struct {
	DSN      string `koanf:"dsn"`
	MaxConns int32  `koanf:"max_conns"`
	MinConns int32  `koanf:"min_conns"`
}

// AuditConfig tunes internal/audit's batching: a size trigger, a time
// trigger, and whether the (possibly compressed) raw UPDATE bytes are
// worth the storage cost.
type AuditConfig struct {
	BatchSize             int    `koanf:"batch_size"`
	FlushIntervalMs       int    `koanf:"flush_interval_ms"`
	StoreRawBytes         bool   `koanf:"store_raw_bytes"`
	StoreRawBytesCompress bool   `koanf:"store_raw_bytes_compress"`
	RetentionDays         int    `koanf:"retention_days"`
	RetentionTimezone     string `koanf:"retention_timezone"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Overlay environment variables: BGPD_KAFKA__BROKERS → kafka.brokers
	if err := k.Load(env.Provider("BGPD_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "BGPD_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := &Config{
		Service: ServiceConfig{
			InstanceID:             "bgpd-1",
			HTTPListen:             ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		Scheduler: SchedulerConfig{
			SplitThreshold: 64,
			MTU:            4096,
		},
		Kafka: KafkaConfig{
			ClientID:      "bgpd",
			FetchMaxBytes: 52428800,
			Telemetry: ProducerConfig{
				Topic: "bgp.route-changes",
			},
		},
		Postgres: PostgresConfig{
			MaxConns: 20,
			MinConns: 2,
		},
		Audit: AuditConfig{
			BatchSize:             500,
			FlushIntervalMs:       200,
			StoreRawBytesCompress: true,
			RetentionDays:         30,
			RetentionTimezone:     "UTC",
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the core intent sections unconditionally, and the
// Kafka/Postgres side-channel sections only when they carry any
// configuration — both are best-effort observability listeners the core
// runs fine without.
func (c *Config) Validate() error {
	seen := map[string]bool{}
	for _, ri := range c.RoutingInstances {
		if ri.Name == "" {
			return fmt.Errorf("config: routing_instances entry missing name")
		}
		if seen[ri.Name] {
			return fmt.Errorf("config: duplicate routing_instance name %q", ri.Name)
		}
		seen[ri.Name] = true
	}
	for _, conn := range c.Connections {
		if !seen[conn.InstanceA] || !seen[conn.InstanceB] {
			return fmt.Errorf("config: connection references unknown instance (%q, %q)", conn.InstanceA, conn.InstanceB)
		}
	}
	for _, p := range c.Peers {
		if p.Name == "" {
			return fmt.Errorf("config: peers entry missing name")
		}
		if p.Instance != "" && !seen[p.Instance] {
			return fmt.Errorf("config: peer %q references unknown instance %q", p.Name, p.Instance)
		}
	}
	if c.Scheduler.SplitThreshold <= 0 {
		return fmt.Errorf("config: scheduler.split_threshold must be > 0 (got %d)", c.Scheduler.SplitThreshold)
	}
	if c.Scheduler.MTU <= 0 {
		return fmt.Errorf("config: scheduler.mtu must be > 0 (got %d)", c.Scheduler.MTU)
	}
	if c.Service.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("config: service.shutdown_timeout_seconds must be > 0 (got %d)", c.Service.ShutdownTimeoutSeconds)
	}
	if c.Service.LocalASNumber == 0 {
		return fmt.Errorf("config: service.local_as_number must be set")
	}

	if len(c.Kafka.Brokers) > 0 {
		if c.Kafka.FetchMaxBytes <= 0 {
			return fmt.Errorf("config: kafka.fetch_max_bytes must be > 0 (got %d)", c.Kafka.FetchMaxBytes)
		}
		if c.Kafka.Telemetry.Topic == "" {
			return fmt.Errorf("config: kafka.telemetry.topic is required when kafka.brokers is set")
		}
	}
	if c.Postgres.DSN != "" {
		if c.Postgres.MaxConns <= 0 {
			return fmt.Errorf("config: postgres.max_conns must be > 0 (got %d)", c.Postgres.MaxConns)
		}
		if c.Postgres.MinConns < 0 {
			return fmt.Errorf("config: postgres.min_conns must be >= 0 (got %d)", c.Postgres.MinConns)
		}
		if c.Audit.BatchSize <= 0 {
			return fmt.Errorf("config: audit.batch_size must be > 0 (got %d)", c.Audit.BatchSize)
		}
		if c.Audit.FlushIntervalMs <= 0 {
			return fmt.Errorf("config: audit.flush_interval_ms must be > 0 (got %d)", c.Audit.FlushIntervalMs)
		}
		if c.Audit.RetentionDays <= 0 {
			return fmt.Errorf("config: audit.retention_days must be > 0 (got %d)", c.Audit.RetentionDays)
		}
	}
	return nil
}

// BuildTLSConfig creates a *tls.Config from the Kafka TLS settings. Returns nil if TLS is disabled.
func (k *KafkaConfig) BuildTLSConfig() (*tls.Config, error) {
	if !k.TLS.Enabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{}
	if k.TLS.CAFile != "" {
		caPEM, err := os.ReadFile(k.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsCfg.RootCAs = pool
	}
	if k.TLS.CertFile != "" && k.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(k.TLS.CertFile, k.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}

// BuildSASLMechanism creates a SASL mechanism from the Kafka SASL settings. Returns nil if SASL is disabled.
func (k *KafkaConfig) BuildSASLMechanism() sasl.Mechanism {
	if !k.SASL.Enabled {
		return nil
	}
	switch strings.ToUpper(k.SASL.Mechanism) {
	case "PLAIN":
		return plain.Auth{User: k.SASL.Username, Pass: k.SASL.Password}.AsMechanism()
	default:
		return nil
	}
}
