package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Stream   StreamConfig   `mapstructure:"stream"`
	TTS      TTSConfig      `mapstructure:"tts"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	Events   EventsConfig   `mapstructure:"events"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	MiddlewareTimeout time.Duration `mapstructure:"middleware_timeout"`
	MaxUploadBytes    int64         `mapstructure:"max_upload_bytes"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
}

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
)

type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	Database   string `mapstructure:"database"`
	SSLMode    string `mapstructure:"ssl_mode"`
	MaxConns   int32  `mapstructure:"max_conns"`
	MinConns   int32  `mapstructure:"min_conns"`
	SQLitePath string `mapstructure:"sqlite_path"`
	MySQLDSN   string `mapstructure:"mysql_dsn"`

	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the connection string for the configured driver
func (c DatabaseConfig) DSN() string {
	switch c.Driver {
	case DriverSQLite:
		return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", c.SQLitePath)
	case DriverMySQL:
		if c.MySQLDSN != "" {
			return c.MySQLDSN
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
			c.User, c.Password, c.Host, c.Port, c.Database)
	default:
		return fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
		)
	}
}

// MigrateURL returns the database URL understood by golang-migrate
func (c DatabaseConfig) MigrateURL() string {
	switch c.Driver {
	case DriverSQLite:
		return "sqlite://" + c.SQLitePath
	case DriverMySQL:
		return "mysql://" + c.DSN()
	default:
		return c.DSN()
	}
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LLMConfig struct {
	DefaultProvider string          `mapstructure:"default_provider"`
	Model           string          `mapstructure:"model"`
	Temperature     float64         `mapstructure:"temperature"`
	TopP            float64         `mapstructure:"top_p"`
	NumPredict      int             `mapstructure:"num_predict"`
	MaxAttempts     int             `mapstructure:"max_attempts"`
	BackoffBase     time.Duration   `mapstructure:"backoff_base"`
	ProbeTimeout    time.Duration   `mapstructure:"probe_timeout"`
	RequestTimeout  time.Duration   `mapstructure:"request_timeout"`
	HistoryWindow   int             `mapstructure:"history_window"`
	DocumentCharCap int             `mapstructure:"document_char_cap"`
	ReportLanguage  string          `mapstructure:"report_language"`
	Ollama          OllamaConfig    `mapstructure:"ollama"`
	Gemini          GeminiConfig    `mapstructure:"gemini"`
	OpenAI          OpenAIConfig    `mapstructure:"openai"`
	DeepSeek        OpenAIConfig    `mapstructure:"deepseek"`
	Anthropic       AnthropicConfig `mapstructure:"anthropic"`
}

type OllamaConfig struct {
	Host         string `mapstructure:"host"`
	DefaultModel string `mapstructure:"default_model"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// OpenAIConfig configures an OpenAI-compatible chat completion service
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

type AnthropicConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

type StreamConfig struct {
	MinWords int `mapstructure:"min_words"`
}

type TTSConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	URL      string        `mapstructure:"url"`
	Voice    string        `mapstructure:"voice"`
	Speed    float64       `mapstructure:"speed"`
	Language string        `mapstructure:"language"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Storage drivers
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

type StorageConfig struct {
	Driver   string   `mapstructure:"driver"`
	LocalDir string   `mapstructure:"local_dir"`
	S3       S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Endpoint  string `mapstructure:"endpoint"`
}

type WorkersConfig struct {
	Size  int `mapstructure:"size"`
	Queue int `mapstructure:"queue"`
}

type EventsConfig struct {
	SubscriberBuffer int           `mapstructure:"subscriber_buffer"`
	QueueRetention   time.Duration `mapstructure:"queue_retention"`
}

type SecurityConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string        `mapstructure:"level"`
	Format string        `mapstructure:"format"`
	File   string        `mapstructure:"file"`
	MaxAge time.Duration `mapstructure:"max_age"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set config file path
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	// Override with environment variables
	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// OLLAMA_URL is accepted as an alias of OLLAMA_HOST
	if os.Getenv("OLLAMA_HOST") == "" {
		if alt := os.Getenv("OLLAMA_URL"); alt != "" {
			cfg.LLM.Ollama.Host = alt
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "10m")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.middleware_timeout", "10m")
	v.SetDefault("server.max_upload_bytes", 10<<20)
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Database
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "medanalyzer")
	v.SetDefault("database.database", "medanalyzer")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.sqlite_path", "./medanalyzer.db")

	// Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", "24h")

	// LLM
	v.SetDefault("llm.default_provider", "ollama")
	v.SetDefault("llm.model", "medgemma")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.top_p", 0.9)
	v.SetDefault("llm.num_predict", 300)
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.backoff_base", "600ms")
	v.SetDefault("llm.probe_timeout", "800ms")
	v.SetDefault("llm.request_timeout", "5m")
	v.SetDefault("llm.history_window", 5)
	v.SetDefault("llm.document_char_cap", 2000)
	v.SetDefault("llm.report_language", "en")
	v.SetDefault("llm.ollama.host", "http://localhost:11434")
	v.SetDefault("llm.ollama.default_model", "medgemma")
	v.SetDefault("llm.gemini.model", "gemini-2.5-flash")

	// Streaming
	v.SetDefault("stream.min_words", 10)

	// TTS
	v.SetDefault("tts.enabled", true)
	v.SetDefault("tts.url", "http://localhost:8880/synthesize")
	v.SetDefault("tts.voice", "af_heart")
	v.SetDefault("tts.speed", 1.0)
	v.SetDefault("tts.language", "en")
	v.SetDefault("tts.timeout", "2m")

	// Storage
	v.SetDefault("storage.driver", StorageLocal)
	v.SetDefault("storage.local_dir", "./media")
	v.SetDefault("storage.s3.region", "us-east-2")

	// Workers
	v.SetDefault("workers.size", 4)
	v.SetDefault("workers.queue", 64)

	// Events
	v.SetDefault("events.subscriber_buffer", 64)
	v.SetDefault("events.queue_retention", "5m")

	// Security
	v.SetDefault("security.rate_limit.requests_per_minute", 60)
	v.SetDefault("security.rate_limit.burst", 10)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_age", "168h")

	// Metrics
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Tracing
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "med-analyzer")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

func bindEnvVars(v *viper.Viper) {
	// Database
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.password", "POSTGRES_PASSWORD")
	v.BindEnv("database.host", "POSTGRES_HOST")
	v.BindEnv("database.mysql_dsn", "MYSQL_DSN")
	v.BindEnv("database.sqlite_path", "SQLITE_PATH")

	// Redis
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// LLM
	v.BindEnv("llm.model", "MODEL_NAME")
	v.BindEnv("llm.ollama.host", "OLLAMA_HOST")
	v.BindEnv("llm.gemini.api_key", "GEMINI_API_KEY")
	v.BindEnv("llm.openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("llm.openai.base_url", "OPENAI_BASE_URL")
	v.BindEnv("llm.deepseek.api_key", "DEEPSEEK_API_KEY")
	v.BindEnv("llm.anthropic.api_key", "ANTHROPIC_API_KEY")

	// TTS
	v.BindEnv("tts.url", "TTS_URL")

	// Storage
	v.BindEnv("storage.s3.access_key", "AWS_ACCESS_KEY")
	v.BindEnv("storage.s3.secret_key", "AWS_SECRET_KEY")
	v.BindEnv("storage.s3.region", "AWS_REGION")
	v.BindEnv("storage.s3.bucket", "BUCKET_NAME")

	// Observability
	v.BindEnv("tracing.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("logging.level", "LOG_LEVEL")
}
