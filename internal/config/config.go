package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// ExactTaskDef defines a single exact aggregation task from the config file.
type ExactTaskDef struct {
	Name      string   `yaml:"name"`
	NumShards uint32   `yaml:"num_shards"`
	KeyFields []string `yaml:"key_fields"`
}

// SketchTaskDef defines a single sketch aggregation task from the config file.
type SketchTaskDef struct {
	Name string `yaml:"name"`
	// 0 = count-min (heavy talkers), 1 = spread (distinct peers per flow key)
	SktType        int      `yaml:"skt_type"`
	FlowFields     []string `yaml:"flow_fields"`
	ElementFields  []string `yaml:"element_fields"`
	Width          uint32   `yaml:"width"`
	Depth          uint32   `yaml:"depth"`
	SizeThreshold  uint64   `yaml:"size_threshold"`
	CountThreshold uint32   `yaml:"count_threshold"`
	Registers      uint32   `yaml:"registers"`
}

// GobWriterConfig holds settings for the gob snapshot writer.
type GobWriterConfig struct {
	RootPath string `yaml:"root_path"`
}

// TextWriterConfig holds settings for the text snapshot writer.
type TextWriterConfig struct {
	RootPath string `yaml:"root_path"`
}

// ClickHouseConfig holds the connection settings for a ClickHouse instance.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// WriterDef defines a single writer attached to an aggregator group.
type WriterDef struct {
	Type             string           `yaml:"type"`
	Enabled          bool             `yaml:"enabled"`
	SnapshotInterval string           `yaml:"snapshot_interval"`
	Gob              GobWriterConfig  `yaml:"gob"`
	Text             TextWriterConfig `yaml:"text"`
	ClickHouse       ClickHouseConfig `yaml:"clickhouse"`
}

// ExactConfig groups the exact aggregator's tasks and writers.
type ExactConfig struct {
	Tasks   []ExactTaskDef `yaml:"tasks"`
	Writers []WriterDef    `yaml:"writers"`
}

// SketchConfig groups the sketch aggregator's tasks and writers.
type SketchConfig struct {
	Tasks   []SketchTaskDef `yaml:"tasks"`
	Writers []WriterDef     `yaml:"writers"`
}

// AggregatorConfig holds the configuration for the record aggregation engine.
type AggregatorConfig struct {
	Types               []string     `yaml:"types"`
	Period              string       `yaml:"period"`
	NumWorkers          int          `yaml:"num_workers"`
	SizeOfRecordChannel int          `yaml:"size_of_record_channel"`
	Exact               ExactConfig  `yaml:"exact"`
	Sketch              SketchConfig `yaml:"sketch"`
}

// PersistenceConfig holds settings for the on-disk document archive.
type PersistenceConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Path              string `yaml:"path"`
	Encoding          string `yaml:"encoding"`
	MaxFileSize       int64  `yaml:"max_file_size"`
	ChannelBufferSize int    `yaml:"channel_buffer_size"`
}

// ProbeConfig holds the NATS transport settings for the document probe.
type ProbeConfig struct {
	NATSURL     string            `yaml:"nats_url"`
	Subject     string            `yaml:"subject"`
	Persistence PersistenceConfig `yaml:"persistence"`
}

// APIConfig holds the REST API server settings.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// AlerterRule defines a single threshold rule evaluated against a task.
type AlerterRule struct {
	Name      string  `yaml:"name"`
	TaskName  string  `yaml:"task_name"`
	Metric    string  `yaml:"metric"`
	Operator  string  `yaml:"operator"`
	Threshold float64 `yaml:"threshold"`
}

// AlerterConfig holds the alerting settings.
type AlerterConfig struct {
	Enabled       bool          `yaml:"enabled"`
	CheckInterval string        `yaml:"check_interval"`
	Rules         []AlerterRule `yaml:"rules"`
}

// SMTPConfig holds the email notification settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// ExclusionConfig holds the IP exclusion lists applied before aggregation.
// IPs are exact addresses; CIDRs use the a.b.c.d/n form with n in [0,32].
type ExclusionConfig struct {
	IPs              []string `yaml:"ips"`
	CIDRs            []string `yaml:"cidrs"`
	ProgressInterval int      `yaml:"progress_interval"`
}

// OwnershipConfig holds settings for the IP ownership resolver.
type OwnershipConfig struct {
	ServiceTagsPath string `yaml:"service_tags_path"`
	CacheTTL        string `yaml:"cache_ttl"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Probe      ProbeConfig      `yaml:"probe"`
	API        APIConfig        `yaml:"api"`
	Alerter    AlerterConfig    `yaml:"alerter"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	Exclusions ExclusionConfig  `yaml:"exclusions"`
	Ownership  OwnershipConfig  `yaml:"ownership"`
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills in the optional settings that the engine needs to run.
func (c *Config) applyDefaults() {
	if c.Aggregator.Period == "" {
		c.Aggregator.Period = "5m"
	}
	if c.Aggregator.NumWorkers <= 0 {
		c.Aggregator.NumWorkers = runtime.NumCPU()
	}
	if c.Aggregator.SizeOfRecordChannel <= 0 {
		c.Aggregator.SizeOfRecordChannel = 10000
	}
	if c.Probe.NATSURL == "" {
		c.Probe.NATSURL = "nats://127.0.0.1:4222"
	}
	if c.Probe.Subject == "" {
		c.Probe.Subject = "flowlens.documents.raw"
	}
	if c.Probe.Persistence.MaxFileSize <= 0 {
		c.Probe.Persistence.MaxFileSize = 64 << 20
	}
	if c.Probe.Persistence.ChannelBufferSize <= 0 {
		c.Probe.Persistence.ChannelBufferSize = 10000
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.Alerter.CheckInterval == "" {
		c.Alerter.CheckInterval = "1m"
	}
	if c.Exclusions.ProgressInterval <= 0 {
		c.Exclusions.ProgressInterval = 10000
	}
	if c.Ownership.CacheTTL == "" {
		c.Ownership.CacheTTL = "1h"
	}
}
