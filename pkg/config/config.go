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
	Engine struct {
		TickInterval    time.Duration `yaml:"tick_interval"`
		AnchorWindow    time.Duration `yaml:"anchor_window"`
		FeedStaleAfter  time.Duration `yaml:"feed_stale_after"`
		SettlementGrace time.Duration `yaml:"settlement_grace"`
		SweepInterval   time.Duration `yaml:"sweep_interval"`
		HistorySize     int           `yaml:"history_size"`
	} `yaml:"engine"`
	Feed struct {
		Source         string        `yaml:"source"` // websocket, kafka, none
		URL            string        `yaml:"url"`
		APIKey         string        `yaml:"api_key"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"feed"`
	Ledger struct {
		Backend      string        `yaml:"backend"` // http, memory
		BaseURL      string        `yaml:"base_url"`
		Timeout      time.Duration `yaml:"timeout"`
		RetryMax     int           `yaml:"retry_max"`
		RetryBackoff time.Duration `yaml:"retry_backoff"`
	} `yaml:"ledger"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Topics       struct {
			Ticks      string `yaml:"ticks"`
			Events     string `yaml:"events"`
			Audit      string `yaml:"audit"`
			RealPrices string `yaml:"real_prices"`
			Logs       string `yaml:"logs"`
		} `yaml:"topics"`
		Producer struct {
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
	Redis struct {
		Enabled   bool   `yaml:"enabled"`
		Addr      string `yaml:"addr"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"redis"`
	RetryQueue struct {
		Workers    int           `yaml:"workers"`
		RetryLimit int           `yaml:"retry_limit"`
		RetryDelay time.Duration `yaml:"retry_delay"`
	} `yaml:"retry_queue"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
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
	Symbols []SymbolConfig `yaml:"symbols"`
}

// SymbolConfig seeds one instrument: price process plus risk parameters.
type SymbolConfig struct {
	Symbol       string      `yaml:"symbol"`
	Market       string      `yaml:"market"` // forex, crypto
	InitialPrice float64     `yaml:"initial_price"`
	PipSize      float64     `yaml:"pip_size"`
	Price        PriceParams `yaml:"price"`
	Risk         RiskParams  `yaml:"risk"`
}

type PriceParams struct {
	BaseVolatility       float64 `yaml:"base_volatility"`
	VolatilityMultiplier float64 `yaml:"volatility_multiplier"`
	MomentumFactor       float64 `yaml:"momentum_factor"`
	GarchAlpha           float64 `yaml:"garch_alpha"`
	GarchBeta            float64 `yaml:"garch_beta"`
	GarchOmega           float64 `yaml:"garch_omega"`
	MeanReversion        float64 `yaml:"mean_reversion"`
	MaxDeviationPct      float64 `yaml:"max_deviation_pct"`
	PriceOffset          float64 `yaml:"price_offset"`
	SpreadPips           float64 `yaml:"spread_pips"`
}

type RiskParams struct {
	Enabled             bool    `yaml:"enabled"`
	ExposureThreshold   float64 `yaml:"exposure_threshold"`
	MinInterventionRate float64 `yaml:"min_intervention_rate"`
	MaxInterventionRate float64 `yaml:"max_intervention_rate"`
	SpreadMultiplier    float64 `yaml:"spread_multiplier"`
	PayoutPct           float64 `yaml:"payout_pct"`
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

	c.applyDefaults()

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

	if v := os.Getenv("FEED_URL"); v != "" {
		c.Feed.URL = v
	}
	if v := os.Getenv("FEED_API_KEY"); v != "" {
		c.Feed.APIKey = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("LEDGER_URL"); v != "" {
		c.Ledger.BaseURL = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Engine.TickInterval <= 0 {
		c.Engine.TickInterval = time.Second
	}
	if c.Engine.AnchorWindow <= 0 {
		c.Engine.AnchorWindow = 5 * time.Minute
	}
	if c.Engine.FeedStaleAfter <= 0 {
		c.Engine.FeedStaleAfter = 30 * time.Second
	}
	if c.Engine.SettlementGrace <= 0 {
		c.Engine.SettlementGrace = time.Minute
	}
	if c.Engine.SweepInterval <= 0 {
		c.Engine.SweepInterval = 15 * time.Second
	}
	if c.Engine.HistorySize <= 0 {
		c.Engine.HistorySize = 300
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = "memory"
	}
	if c.Ledger.RetryMax <= 0 {
		c.Ledger.RetryMax = 3
	}
	if c.Ledger.RetryBackoff <= 0 {
		c.Ledger.RetryBackoff = 500 * time.Millisecond
	}
	if c.Feed.Source == "" {
		c.Feed.Source = "none"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "quoteforge"
	}
	for i := range c.Symbols {
		s := &c.Symbols[i]
		if s.PipSize <= 0 {
			s.PipSize = 0.0001
		}
		if s.Price.VolatilityMultiplier <= 0 {
			s.Price.VolatilityMultiplier = 1
		}
		if s.Price.SpreadPips <= 0 {
			s.Price.SpreadPips = 2
		}
		if s.Risk.PayoutPct <= 0 {
			s.Risk.PayoutPct = 0.85
		}
		if s.Risk.SpreadMultiplier <= 0 {
			s.Risk.SpreadMultiplier = 1
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols cannot be empty")
	}
	switch c.Feed.Source {
	case "websocket":
		if c.Feed.URL == "" {
			return fmt.Errorf("feed.url is required for websocket source")
		}
	case "kafka":
		if !c.Kafka.Enabled {
			return fmt.Errorf("kafka must be enabled for kafka feed source")
		}
		if c.Kafka.Topics.RealPrices == "" {
			return fmt.Errorf("kafka.topics.real_prices is required for kafka feed source")
		}
	case "none":
	default:
		return fmt.Errorf("feed.source must be 'websocket', 'kafka' or 'none', got '%s'", c.Feed.Source)
	}
	if c.Ledger.Backend != "http" && c.Ledger.Backend != "memory" {
		return fmt.Errorf("ledger.backend must be 'http' or 'memory', got '%s'", c.Ledger.Backend)
	}
	if c.Ledger.Backend == "http" && c.Ledger.BaseURL == "" {
		return fmt.Errorf("ledger.base_url is required for http backend")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	seen := make(map[string]bool, len(c.Symbols))
	for _, s := range c.Symbols {
		if s.Symbol == "" {
			return fmt.Errorf("symbol name is required")
		}
		if seen[s.Symbol] {
			return fmt.Errorf("duplicate symbol '%s'", s.Symbol)
		}
		seen[s.Symbol] = true
		if s.Market != "forex" && s.Market != "crypto" {
			return fmt.Errorf("symbol %s: market must be 'forex' or 'crypto', got '%s'", s.Symbol, s.Market)
		}
		if s.InitialPrice <= 0 {
			return fmt.Errorf("symbol %s: initial_price must be positive", s.Symbol)
		}
		if s.Risk.ExposureThreshold < 0 || s.Risk.ExposureThreshold >= 1 {
			return fmt.Errorf("symbol %s: risk.exposure_threshold must be in [0,1)", s.Symbol)
		}
		if s.Risk.MinInterventionRate > s.Risk.MaxInterventionRate {
			return fmt.Errorf("symbol %s: risk.min_intervention_rate exceeds max", s.Symbol)
		}
		if s.Risk.PayoutPct > 1 {
			return fmt.Errorf("symbol %s: risk.payout_pct is a fraction, must be in (0,1]", s.Symbol)
		}
	}
	return nil
}
