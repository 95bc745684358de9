package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Pipeline struct {
		AgentTimeout      time.Duration `yaml:"agent_timeout"`
		DefaultPortfolio  float64       `yaml:"default_portfolio"`
		PersistBackend    string        `yaml:"persist_backend"` // "clickhouse", "kafka", or "both"
		ScanWorkers       int           `yaml:"scan_workers"`
		ScanConcurrency   int           `yaml:"scan_concurrency"`
	} `yaml:"pipeline"`
	Consensus struct {
		HighAgreementRatio float64 `yaml:"high_agreement_ratio"`
		LowAgreementRatio  float64 `yaml:"low_agreement_ratio"`
		HighPenalty        float64 `yaml:"high_penalty"`
		LowPenalty         float64 `yaml:"low_penalty"`
		TiePriority        []string `yaml:"tie_priority"`
	} `yaml:"consensus"`
	Deliberation struct {
		ArbiterURL   string        `yaml:"arbiter_url"`
		Timeout      time.Duration `yaml:"timeout"`
		Retries      int           `yaml:"retries"`
		FallbackStop float64       `yaml:"fallback_stop"`
	} `yaml:"deliberation"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	MarketData struct {
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url"`
		RESTBaseURL    string        `yaml:"rest_base_url"`
		Symbols        []string      `yaml:"symbols"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	} `yaml:"market_data"`
	Cache struct {
		MarketOpenTTL  time.Duration `yaml:"market_open_ttl"`
		AfterHoursTTL  time.Duration `yaml:"after_hours_ttl"`
		WeekendTTL     time.Duration `yaml:"weekend_ttl"`
		Redis          struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("MARKET_DATA_API_KEY"); v != "" {
		c.MarketData.APIKey = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.MarketData.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("ARBITER_URL"); v != "" {
		c.Deliberation.ArbiterURL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Pipeline.PersistBackend {
	case "", "clickhouse", "kafka", "both":
	default:
		return fmt.Errorf("pipeline.persist_backend must be 'clickhouse', 'kafka', or 'both', got '%s'", c.Pipeline.PersistBackend)
	}
	if len(c.MarketData.Symbols) == 0 {
		return fmt.Errorf("market_data.symbols cannot be empty")
	}
	if c.Consensus.HighAgreementRatio != 0 && c.Consensus.LowAgreementRatio != 0 &&
		c.Consensus.LowAgreementRatio >= c.Consensus.HighAgreementRatio {
		return fmt.Errorf("consensus.low_agreement_ratio must be below high_agreement_ratio")
	}
	return nil
}
