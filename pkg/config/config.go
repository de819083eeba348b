package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"CoinPulse/pkg/util"
)

type Config struct {
	Environment string       `yaml:"environment" default:"development"`
	Server      ServerConfig `yaml:"server"`
	Log         LogConfig    `yaml:"log"`
	Providers   struct {
		CoinGecko   CoinGeckoConfig   `yaml:"coingecko"`
		Binance     BinanceConfig     `yaml:"binance"`
		DexScreener DexScreenerConfig `yaml:"dexscreener"`
	} `yaml:"providers"`
	Market  MarketConfig  `yaml:"market"`
	Backoff BackoffConfig `yaml:"backoff"`
	Cache   CacheConfig   `yaml:"cache"`
	Storage struct {
		SQLitePath string `yaml:"sqlite_path" default:"coinpulse.db"`
	} `yaml:"storage"`
	Sink SinkConfig `yaml:"sink"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"console"`
	Output string `yaml:"output" default:"stdout"`
}

type CoinGeckoConfig struct {
	BaseURL           string        `yaml:"base_url" default:"https://api.coingecko.com/api/v3"`
	APIKey            string        `yaml:"api_key"`
	Timeout           time.Duration `yaml:"timeout" default:"15s"`
	RequestsPerSecond float64       `yaml:"requests_per_second" default:"0.5"`
}

type BinanceConfig struct {
	RestURL          string        `yaml:"rest_url" default:"https://api.binance.com"`
	WebSocketURL     string        `yaml:"ws_url" default:"wss://stream.binance.com:9443/ws"`
	Timeout          time.Duration `yaml:"timeout" default:"10s"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" default:"10s"`
	PingInterval     time.Duration `yaml:"ping_interval" default:"30s"`
}

type DexScreenerConfig struct {
	BaseURL  string        `yaml:"base_url" default:"https://api.dexscreener.com"`
	Chains   []string      `yaml:"chains" default:"[\"solana\",\"ethereum\",\"bsc\"]"`
	PerChain int           `yaml:"per_chain" default:"15"`
	MaxPairs int           `yaml:"max_pairs" default:"45"`
	Spacing  time.Duration `yaml:"spacing" default:"250ms"`
	Refresh  time.Duration `yaml:"refresh" default:"60s"`
	Timeout  time.Duration `yaml:"timeout" default:"10s"`
}

type MarketConfig struct {
	DefaultFiat       string   `yaml:"default_fiat" default:"usd"`
	RefreshSeconds    int      `yaml:"refresh_seconds" default:"5"`
	MinRefreshSeconds int      `yaml:"min_refresh_seconds" default:"2"`
	TopCount          int      `yaml:"top_count" default:"25"`
	BufferCapacity    int      `yaml:"buffer_capacity" default:"120"`
	HistoryDays       int      `yaml:"history_days" default:"1"`
	DefaultWatchlist  []string `yaml:"default_watchlist" default:"[\"bitcoin\",\"ethereum\",\"solana\"]"`
}

type BackoffConfig struct {
	Base time.Duration `yaml:"base" default:"2s"`
	Max  time.Duration `yaml:"max" default:"20s"`
}

type CacheConfig struct {
	SearchTTL     time.Duration `yaml:"search_ttl" default:"1h"`
	PairsTTL      time.Duration `yaml:"pairs_ttl" default:"30s"`
	MemoryMaxSize int           `yaml:"memory_max_size" default:"1000"`
	Redis         struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"coinpulse"`
	} `yaml:"redis"`
}

type SinkConfig struct {
	Type       string `yaml:"type" default:"none"`
	MaxRPS     int    `yaml:"max_rps" default:"20"`
	BufferSize int    `yaml:"buffer_size" default:"1000"`
	Kafka      struct {
		Brokers     []string `yaml:"brokers"`
		Topic       string   `yaml:"topic" default:"coinpulse.ticks"`
		Compression string   `yaml:"compression" default:"snappy"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"9000"`
		Database string `yaml:"database" default:"coinpulse"`
		User     string `yaml:"user" default:"default"`
		Password string `yaml:"password"`
		Table    string `yaml:"table" default:"live_ticks"`
	} `yaml:"clickhouse"`
}

// Load reads and parses a YAML configuration file. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(b) > 0 {
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML, then a .env file if present, and
// overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	_ = godotenv.Load()

	if v := os.Getenv("COINGECKO_API_KEY"); v != "" {
		c.Providers.CoinGecko.APIKey = v
	}
	if v := os.Getenv("COINPULSE_FIAT"); v != "" {
		c.Market.DefaultFiat = strings.ToLower(v)
	}
	c.Market.RefreshSeconds = util.ParseIntDefault(os.Getenv("COINPULSE_REFRESH_SECONDS"), c.Market.RefreshSeconds)
	c.Server.Port = util.ParseIntDefault(os.Getenv("HTTP_PORT"), c.Server.Port)
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Enabled = true
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("SINK_TYPE"); v != "" {
		c.Sink.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Sink.Kafka.Brokers = strings.Split(v, ",")
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid. Refresh intervals below the
// floor are raised to it rather than rejected.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Market.TopCount < 1 || c.Market.TopCount > 25 {
		return fmt.Errorf("market.top_count must be in 1..25, got %d", c.Market.TopCount)
	}
	if c.Market.BufferCapacity < 20 || c.Market.BufferCapacity > 1000 {
		return fmt.Errorf("market.buffer_capacity must be in 20..1000, got %d", c.Market.BufferCapacity)
	}
	if c.Market.DefaultFiat == "" {
		return fmt.Errorf("market.default_fiat is required")
	}
	if c.Market.MinRefreshSeconds < 1 {
		c.Market.MinRefreshSeconds = 2
	}
	if c.Market.RefreshSeconds < c.Market.MinRefreshSeconds {
		c.Market.RefreshSeconds = c.Market.MinRefreshSeconds
	}
	if c.Market.HistoryDays < 1 {
		c.Market.HistoryDays = 1
	}
	if c.Backoff.Base <= 0 {
		return fmt.Errorf("backoff.base must be positive")
	}
	if c.Backoff.Max < c.Backoff.Base {
		return fmt.Errorf("backoff.max must be >= backoff.base")
	}
	switch c.Sink.Type {
	case "none", "":
		c.Sink.Type = "none"
	case "kafka":
		if len(c.Sink.Kafka.Brokers) == 0 {
			return fmt.Errorf("sink.kafka.brokers cannot be empty")
		}
	case "clickhouse":
		if c.Sink.ClickHouse.Host == "" {
			return fmt.Errorf("sink.clickhouse.host is required")
		}
	default:
		return fmt.Errorf("sink.type must be 'none', 'kafka' or 'clickhouse', got '%s'", c.Sink.Type)
	}
	return nil
}
