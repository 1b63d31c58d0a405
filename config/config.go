// Package config provides comprehensive configuration management for NoteBase services.
//
// This package handles loading configuration from multiple sources with proper precedence:
//   - YAML configuration files
//   - Environment variables (configurable prefix)
//   - .env files
//   - Default values
//
// # Configuration Sources Priority
//
// Configuration is loaded in the following order (later sources override earlier ones):
//  1. Default values (set via SetConfigDefaults)
//  2. Configuration files (./config.yaml, ./configs/config.yaml, ~/.notebase/config.yaml, /etc/notebase/config.yaml)
//  3. .env files
//  4. Environment variables (configurable prefix, default: NOTEBASE_)
//
// # Usage Example
//
//	cfg, err := config.LoadConfig("notebase", "config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Server: %s:%d\n", cfg.Server.Host, cfg.Server.Port)
//
// # Environment Variables
//
// Environment variables override all other configuration sources.
// Use prefix and underscores for nested keys:
//   - NOTEBASE_SERVER_PORT=8080
//   - NOTEBASE_DATABASE_HOST=localhost
//   - NOTEBASE_BUS_BROKERS=kafka:9092
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Host is the server bind address (default: 0.0.0.0)
	Host string `mapstructure:"host"`

	// Port is the server listen port (default: 8080)
	Port int `mapstructure:"port"`

	// Prefix is the API route prefix (default: /api/v1)
	Prefix string `mapstructure:"prefix"`

	// BodyLimit is the maximum request body size (default: 100M)
	BodyLimit string `mapstructure:"body_limit"`

	// ReadTimeout is the maximum duration for reading requests
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration for writing responses
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// ShutdownTimeout is the maximum duration for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Debug enables debug logging and additional endpoints
	Debug bool `mapstructure:"debug"`
}

// DatabaseConfig contains postgres connection settings.
type DatabaseConfig struct {
	// Host is the postgres server host
	Host string `mapstructure:"host"`

	// Port is the postgres server port
	Port int `mapstructure:"port"`

	// User for database authentication
	User string `mapstructure:"user"`

	// Password for database authentication
	Password string `mapstructure:"password"`

	// Name is the database name to use
	Name string `mapstructure:"name"`

	// SSLMode is the postgres sslmode setting
	SSLMode string `mapstructure:"ssl_mode"`

	// MaxIdleConns is the idle connection pool size
	MaxIdleConns int `mapstructure:"max_idle_conns"`

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int `mapstructure:"max_open_conns"`
}

// DSN builds the postgres connection string from the individual fields.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// StorageConfig contains object store (MinIO / S3-compatible) settings.
type StorageConfig struct {
	// Endpoint is the object store endpoint URL (e.g., http://minio:9000)
	Endpoint string `mapstructure:"endpoint"`

	// AccessKey for object store authentication
	AccessKey string `mapstructure:"access_key"`

	// SecretKey for object store authentication
	SecretKey string `mapstructure:"secret_key"`

	// Bucket is the content bucket name
	Bucket string `mapstructure:"bucket"`

	// Region is the signing region (MinIO accepts any value here)
	Region string `mapstructure:"region"`

	// MaxRetries bounds the transient-error retry loop
	MaxRetries int `mapstructure:"max_retries"`
}

// BusConfig contains Kafka settings for the change-event topic.
type BusConfig struct {
	// Brokers is the comma-separated bootstrap server list
	Brokers string `mapstructure:"brokers"`

	// Topic is the change-event topic name
	Topic string `mapstructure:"topic"`

	// Group is the indexing worker consumer group id
	Group string `mapstructure:"group"`

	// PublishTimeout bounds a synchronous publish
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

// BrokerList splits the bootstrap server list into individual addresses.
func (c *BusConfig) BrokerList() []string {
	parts := strings.Split(c.Brokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// VectorConfig contains qdrant settings.
type VectorConfig struct {
	// Host is the qdrant server host
	Host string `mapstructure:"host"`

	// Port is the qdrant gRPC port (default: 6334)
	Port int `mapstructure:"port"`

	// Collection is the vector collection name
	Collection string `mapstructure:"collection"`

	// Dimension is the embedding vector size
	Dimension int `mapstructure:"dimension"`
}

// EmbeddingConfig contains embedding model settings.
type EmbeddingConfig struct {
	// APIKey authenticates against the embedding provider
	APIKey string `mapstructure:"api_key"`

	// Model is the embedding model name
	Model string `mapstructure:"model"`

	// Dimension is the embedding vector size
	Dimension int `mapstructure:"dimension"`
}

// WorkerConfig contains indexing worker settings.
type WorkerConfig struct {
	// BatchSize is the maximum number of events processed concurrently
	BatchSize int `mapstructure:"batch_size"`

	// PollInterval is the consumer poll wait
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// TaskTimeout bounds a single event's processing
	TaskTimeout time.Duration `mapstructure:"task_timeout"`

	// ChunkSize is the chunker target size in characters
	ChunkSize int `mapstructure:"chunk_size"`

	// ChunkOverlap is the chunker overlap in characters
	ChunkOverlap int `mapstructure:"chunk_overlap"`

	// RedisAddr is the dedupe cache address (empty disables dedupe)
	RedisAddr string `mapstructure:"redis_addr"`

	// DedupeTTL is how long an applied event is remembered
	DedupeTTL time.Duration `mapstructure:"dedupe_ttl"`

	// ReconcileInterval is the periodic consistency sweep interval
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
}

// LimitsConfig contains upload validation and fairness settings.
type LimitsConfig struct {
	// MaxPDFSizeBytes caps uploaded PDF files
	MaxPDFSizeBytes int64 `mapstructure:"max_pdf_size_bytes"`

	// MaxDOCXSizeBytes caps uploaded DOCX files
	MaxDOCXSizeBytes int64 `mapstructure:"max_docx_size_bytes"`

	// MaxTXTSizeBytes caps uploaded TXT files
	MaxTXTSizeBytes int64 `mapstructure:"max_txt_size_bytes"`

	// MinFileSizeBytes rejects truncated or empty uploads
	MinFileSizeBytes int64 `mapstructure:"min_file_size_bytes"`

	// MaxTotalUploadSizeBytes caps a whole multipart batch
	MaxTotalUploadSizeBytes int64 `mapstructure:"max_total_upload_size_bytes"`

	// AllowedFileTypes is the comma-separated extension allowlist
	AllowedFileTypes string `mapstructure:"allowed_file_types"`

	// MaxConcurrentProcessingPerUser is the per-user processing cap
	MaxConcurrentProcessingPerUser int `mapstructure:"max_concurrent_processing_per_user"`

	// MaxBinaryNullRatio is the NUL-byte ratio above which text input is
	// treated as binary
	MaxBinaryNullRatio float64 `mapstructure:"max_binary_null_ratio"`

	// URLProcessingTimeout bounds URL fetch plus markdown conversion
	URLProcessingTimeout time.Duration `mapstructure:"url_processing_timeout"`
}

// AllowedTypes splits the extension allowlist.
func (c *LimitsConfig) AllowedTypes() []string {
	parts := strings.Split(c.AllowedFileTypes, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MaxSizeFor returns the configured cap for a file extension.
func (c *LimitsConfig) MaxSizeFor(ext string) int64 {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "pdf":
		return c.MaxPDFSizeBytes
	case "docx":
		return c.MaxDOCXSizeBytes
	default:
		return c.MaxTXTSizeBytes
	}
}

// RetryClassConfig holds exponential backoff bounds for one dependency class.
type RetryClassConfig struct {
	// MaxAttempts is the total number of tries including the first
	MaxAttempts int `mapstructure:"max_attempts"`

	// BaseDelay is the first backoff delay
	BaseDelay time.Duration `mapstructure:"base_delay"`

	// MaxDelay caps the backoff delay
	MaxDelay time.Duration `mapstructure:"max_delay"`
}

// RetryConfig groups per-class retry settings.
type RetryConfig struct {
	Blob RetryClassConfig `mapstructure:"blob"`
	Bus  RetryClassConfig `mapstructure:"bus"`
	DB   RetryClassConfig `mapstructure:"db"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error)
	Level string `mapstructure:"level"`

	// Format is the log format (json, text)
	Format string `mapstructure:"format"`
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	// RateLimit is the maximum requests per second per client (0 = no limit)
	RateLimit float64 `mapstructure:"rate_limit"`

	// AllowedOrigins are the CORS allowed origins
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// JWTSecret is the secret key for verifying JWT tokens
	JWTSecret string `mapstructure:"jwt_secret"`
}

// ServiceConfig contains service-specific metadata.
type ServiceConfig struct {
	// Name is the service name
	Name string `mapstructure:"name"`

	// Version is the service version
	Version string `mapstructure:"version"`

	// Environment is the deployment environment (development, staging, production)
	Environment string `mapstructure:"environment"`
}

// Config is the full configuration for the NoteBase services. The API server
// and the indexing worker share one structure; each uses the sections it needs.
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Bus       BusConfig       `mapstructure:"bus"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Security  SecurityConfig  `mapstructure:"security"`
}

// Loader provides configuration loading functionality.
type Loader struct {
	v      *viper.Viper
	prefix string
}

// NewLoader creates a new configuration loader with the given environment prefix.
// The prefix is used for environment variables (e.g., "NOTEBASE" -> "NOTEBASE_SERVER_PORT").
func NewLoader(envPrefix string) *Loader {
	return &Loader{
		v:      viper.New(),
		prefix: envPrefix,
	}
}

// SetDefaults sets default configuration values.
// This should be called before Load().
func (l *Loader) SetDefaults(defaults map[string]interface{}) {
	for key, value := range defaults {
		l.v.SetDefault(key, value)
	}
}

// SetConfigDefaults sets the standard NoteBase defaults.
func (l *Loader) SetConfigDefaults() {
	l.v.SetDefault("service.name", "notebase")
	l.v.SetDefault("service.version", "dev")
	l.v.SetDefault("service.environment", "development")

	l.v.SetDefault("server.host", "0.0.0.0")
	l.v.SetDefault("server.port", 8080)
	l.v.SetDefault("server.prefix", "/api/v1")
	l.v.SetDefault("server.body_limit", "100M")
	l.v.SetDefault("server.read_timeout", "30s")
	l.v.SetDefault("server.write_timeout", "30s")
	l.v.SetDefault("server.shutdown_timeout", "10s")
	l.v.SetDefault("server.debug", false)

	l.v.SetDefault("database.host", "localhost")
	l.v.SetDefault("database.port", 5432)
	l.v.SetDefault("database.user", "postgres")
	l.v.SetDefault("database.password", "")
	l.v.SetDefault("database.name", "notebase")
	l.v.SetDefault("database.ssl_mode", "disable")
	l.v.SetDefault("database.max_idle_conns", 10)
	l.v.SetDefault("database.max_open_conns", 100)

	l.v.SetDefault("storage.endpoint", "http://localhost:9000")
	l.v.SetDefault("storage.access_key", "admin")
	l.v.SetDefault("storage.secret_key", "changeme")
	l.v.SetDefault("storage.bucket", "app-docs")
	l.v.SetDefault("storage.region", "us-east-1")
	l.v.SetDefault("storage.max_retries", 3)

	l.v.SetDefault("bus.brokers", "localhost:9092")
	l.v.SetDefault("bus.topic", "source_changes")
	l.v.SetDefault("bus.group", "indexing-worker-group")
	l.v.SetDefault("bus.publish_timeout", "10s")

	l.v.SetDefault("vector.host", "localhost")
	l.v.SetDefault("vector.port", 6334)
	l.v.SetDefault("vector.collection", "documents")
	l.v.SetDefault("vector.dimension", 1536)

	l.v.SetDefault("embedding.api_key", "")
	l.v.SetDefault("embedding.model", "text-embedding-3-small")
	l.v.SetDefault("embedding.dimension", 1536)

	l.v.SetDefault("worker.batch_size", 10)
	l.v.SetDefault("worker.poll_interval", "1s")
	l.v.SetDefault("worker.task_timeout", "300s")
	l.v.SetDefault("worker.chunk_size", 1000)
	l.v.SetDefault("worker.chunk_overlap", 200)
	l.v.SetDefault("worker.redis_addr", "")
	l.v.SetDefault("worker.dedupe_ttl", "24h")
	l.v.SetDefault("worker.reconcile_interval", "24h")

	l.v.SetDefault("limits.max_pdf_size_bytes", 10*1024*1024)
	l.v.SetDefault("limits.max_docx_size_bytes", 10*1024*1024)
	l.v.SetDefault("limits.max_txt_size_bytes", 10*1024*1024)
	l.v.SetDefault("limits.min_file_size_bytes", 100)
	l.v.SetDefault("limits.max_total_upload_size_bytes", 500*1024*1024)
	l.v.SetDefault("limits.allowed_file_types", "pdf,docx,txt")
	l.v.SetDefault("limits.max_concurrent_processing_per_user", 5)
	l.v.SetDefault("limits.max_binary_null_ratio", 0.1)
	l.v.SetDefault("limits.url_processing_timeout", "25s")

	l.v.SetDefault("retry.blob.max_attempts", 3)
	l.v.SetDefault("retry.blob.base_delay", "1s")
	l.v.SetDefault("retry.blob.max_delay", "10s")
	l.v.SetDefault("retry.bus.max_attempts", 5)
	l.v.SetDefault("retry.bus.base_delay", "1s")
	l.v.SetDefault("retry.bus.max_delay", "60s")
	l.v.SetDefault("retry.db.max_attempts", 5)
	l.v.SetDefault("retry.db.base_delay", "1s")
	l.v.SetDefault("retry.db.max_delay", "30s")

	l.v.SetDefault("logging.level", "info")
	l.v.SetDefault("logging.format", "json")

	l.v.SetDefault("security.rate_limit", 0)
	l.v.SetDefault("security.allowed_origins", []string{"*"})
	l.v.SetDefault("security.jwt_secret", "")
}

// Load reads configuration from file, .env, and environment variables.
// If cfgFile is empty, searches for config.yaml in standard locations.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (with prefix)
//  2. .env file
//  3. Configuration file
//  4. Default values
func (l *Loader) Load(cfgFile string, target interface{}) error {
	if cfgFile != "" {
		l.v.SetConfigFile(cfgFile)
	} else {
		l.v.SetConfigName("config")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		l.v.AddConfigPath("./configs")
		l.v.AddConfigPath("$HOME/.notebase")
		l.v.AddConfigPath("/etc/notebase")
	}

	if err := l.v.ReadInConfig(); err != nil {
		// Only fail on non-NotFound errors for explicit file paths
		if cfgFile != "" && !isFileNotFoundError(err) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		if cfgFile == "" {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	// Merge .env file if present
	l.v.SetConfigFile(".env")
	l.v.SetConfigType("env")
	_ = l.v.MergeInConfig() // Ignore if .env doesn't exist

	if l.prefix != "" {
		l.v.SetEnvPrefix(l.prefix)
	}
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if err := l.v.Unmarshal(target); err != nil {
		return fmt.Errorf("unable to decode config: %w", err)
	}

	return nil
}

// LoadConfig is a convenience function that loads configuration with standard defaults.
// The envPrefix is used for environment variables (e.g., "NOTEBASE" -> "NOTEBASE_SERVER_PORT").
func LoadConfig(envPrefix, cfgFile string) (*Config, error) {
	loader := NewLoader(envPrefix)
	loader.SetConfigDefaults()

	cfg := &Config{}
	if err := loader.Load(cfgFile, cfg); err != nil {
		return nil, err
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ValidateConfig validates the loaded configuration.
func ValidateConfig(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	if cfg.Database.Name != "" && cfg.Database.Host == "" {
		return fmt.Errorf("database host is required when a database name is specified")
	}

	if cfg.Worker.ChunkOverlap >= cfg.Worker.ChunkSize {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d",
			cfg.Worker.ChunkOverlap, cfg.Worker.ChunkSize)
	}

	if cfg.Limits.MinFileSizeBytes < 0 {
		return fmt.Errorf("min file size must be non-negative")
	}

	return nil
}

// isFileNotFoundError checks if an error is a file not found error.
func isFileNotFoundError(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr, os.ErrNotExist)
	}
	return false
}
