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
	Credentials struct {
		EnvVar   string `yaml:"env_var"`
		FilePath string `yaml:"file_path"`
	} `yaml:"credentials"`
	Warehouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		Table            string        `yaml:"table"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
		IntradayRowCap   int           `yaml:"intraday_row_cap"`
		RootFallback     bool          `yaml:"root_fallback"`
	} `yaml:"warehouse"`
	LiveFeed struct {
		BaseURL     string        `yaml:"base_url"`
		Username    string        `yaml:"username"`
		Password    string        `yaml:"password"`
		Timeout     time.Duration `yaml:"timeout"`
		QuotaBurst  int           `yaml:"quota_burst"`
		QuotaRefill time.Duration `yaml:"quota_refill"`
	} `yaml:"live_feed"`
	Oracle struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"oracle"`
	Backfill struct {
		Enabled      bool          `yaml:"enabled"`
		Backend      string        `yaml:"backend"` // "kafka" routes fills through the broker, "warehouse" writes direct
		BufferSize   int           `yaml:"buffer_size"`
		BatchSize    int           `yaml:"batch_size"`
		BatchTimeout time.Duration `yaml:"batch_timeout"`
	} `yaml:"backfill"`
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
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Cache struct {
		Enabled  bool          `yaml:"enabled"`
		Backend  string        `yaml:"backend"` // "memory" or "redis"
		TTL      time.Duration `yaml:"ttl"`
		MaxItems int           `yaml:"max_items"`
		Redis    struct {
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

	// Validate required fields
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

	// Override with environment variables
	if v := os.Getenv("WAREHOUSE_HOST"); v != "" {
		c.Warehouse.Host = v
	}
	if v := os.Getenv("WAREHOUSE_PASSWORD"); v != "" {
		c.Warehouse.Password = v
	}
	if v := os.Getenv("LIVE_FEED_URL"); v != "" {
		c.LiveFeed.BaseURL = v
	}
	if v := os.Getenv("LIVE_FEED_USERNAME"); v != "" {
		c.LiveFeed.Username = v
	}
	if v := os.Getenv("LIVE_FEED_PASSWORD"); v != "" {
		c.LiveFeed.Password = v
	}
	if v := os.Getenv("ORACLE_URL"); v != "" {
		c.Oracle.BaseURL = v
	}
	if v := os.Getenv("BACKFILL_BACKEND"); v != "" {
		c.Backfill.Backend = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Credentials.EnvVar == "" {
		c.Credentials.EnvVar = "QUANT_SERVICE_ACCOUNT"
	}
	if c.Warehouse.Table == "" {
		return fmt.Errorf("warehouse.table is required")
	}
	if c.Warehouse.IntradayRowCap <= 0 {
		c.Warehouse.IntradayRowCap = 50000
	}
	// Outbound calls stay bounded even when the YAML omits timeouts.
	if c.Oracle.Timeout <= 0 {
		c.Oracle.Timeout = 20 * time.Second
	}
	if c.LiveFeed.Timeout <= 0 {
		c.LiveFeed.Timeout = 15 * time.Second
	}
	if c.Backfill.Enabled {
		if c.Backfill.Backend != "kafka" && c.Backfill.Backend != "warehouse" {
			return fmt.Errorf("backfill.backend must be 'kafka' or 'warehouse', got '%s'", c.Backfill.Backend)
		}
		if c.Backfill.Backend == "kafka" && len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty when backfill.backend is 'kafka'")
		}
	}
	if c.Cache.Enabled {
		if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
			return fmt.Errorf("cache.backend must be 'memory' or 'redis', got '%s'", c.Cache.Backend)
		}
	}
	return nil
}
