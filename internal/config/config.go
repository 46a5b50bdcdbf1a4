package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Qdrant        QdrantConfig        `mapstructure:"qdrant"`
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	Chat          ChatConfig          `mapstructure:"chat"`
	Enrichment    EnrichmentConfig    `mapstructure:"enrichment"`
	Resolver      ResolverConfig      `mapstructure:"resolver"`
	Fusion        FusionConfig        `mapstructure:"fusion"`
	Synapse       SynapseConfig       `mapstructure:"synapse"`
	Workflow      WorkflowConfig      `mapstructure:"workflow"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

type ServerConfig struct {
	Port              int        `mapstructure:"port"`
	Mode              string     `mapstructure:"mode"`
	MaxUploadMB       int        `mapstructure:"max_upload_mb"`
	AllowedExtensions []string   `mapstructure:"allowed_extensions"`
	CORS              CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres, sqlite
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	Path            string        `mapstructure:"path"` // sqlite file path
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the connection string for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type StorageConfig struct {
	Backend  string      `mapstructure:"backend"` // s3, minio, local
	S3       S3Config    `mapstructure:"s3"`
	MinIO    MinIOConfig `mapstructure:"minio"`
	LocalDir string      `mapstructure:"local_dir"`
}

type S3Config struct {
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
	Collection string `mapstructure:"collection"`
}

type TranscriptionConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	BackoffCap     time.Duration `mapstructure:"backoff_cap"`
	DetectEntities bool          `mapstructure:"detect_entities"`
}

type EmbeddingConfig struct {
	Provider        string        `mapstructure:"provider"` // jina, openai
	Model           string        `mapstructure:"model"`
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	NativeDimension int           `mapstructure:"native_dimension"`
	Dimension       int           `mapstructure:"dimension"` // padded/truncated target
	Timeout         time.Duration `mapstructure:"timeout"`
}

type ChatConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Model   string        `mapstructure:"model"`
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RateLimitConfig is one fixed-window budget: at most Limit requests per Window.
type RateLimitConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type EnrichmentConfig struct {
	EnabledSources  []string                   `mapstructure:"enabled_sources"`
	SourceTimeout   time.Duration              `mapstructure:"source_timeout"`
	SessionKey      string                     `mapstructure:"session_key"`
	BreakerCooldown time.Duration              `mapstructure:"breaker_cooldown"`
	RateLimits      map[string]RateLimitConfig `mapstructure:"rate_limits"`
}

type ResolverConfig struct {
	HighThreshold   float64 `mapstructure:"high_threshold"`
	MediumThreshold float64 `mapstructure:"medium_threshold"`
	UseLLM          bool    `mapstructure:"use_llm"`
}

type FusionConfig struct {
	TranscriptWeight   float64 `mapstructure:"transcript_weight"`
	ProfessionalWeight float64 `mapstructure:"professional_weight"`
	PersonalityWeight  float64 `mapstructure:"personality_weight"`
}

type SynapseConfig struct {
	Threshold float32 `mapstructure:"threshold"`
	TopK      int     `mapstructure:"top_k"`
}

type WorkflowConfig struct {
	Workers      int           `mapstructure:"workers"`
	QueueSize    int           `mapstructure:"queue_size"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	StageTimeout time.Duration `mapstructure:"stage_timeout"`
	Embedded     bool          `mapstructure:"embedded"` // run the engine inside the API process
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	FileOnly   bool   `mapstructure:"file_only"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// DefaultRateLimits returns the built-in per-source budgets, keyed by source
// tag. Values mirror the operational limits of each platform class; any entry
// can be overridden via enrichment.rate_limits in the config file.
func DefaultRateLimits() map[string]RateLimitConfig {
	return map[string]RateLimitConfig{
		"web_search":           {Limit: 100, Window: 24 * time.Hour},
		"image_social":         {Limit: 5, Window: time.Minute},
		"short_video_social":   {Limit: 3, Window: time.Minute},
		"microblog":            {Limit: 15, Window: 15 * time.Minute},
		"developer_platform":   {Limit: 60, Window: time.Hour},
		"professional_network": {Limit: 10, Window: time.Hour},
		"video_platform":       {Limit: 30, Window: time.Hour},
		"emerging_social":      {Limit: 10, Window: time.Hour},
	}
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.max_upload_mb", 50)
	v.SetDefault("server.allowed_extensions", []string{".wav", ".mp3", ".ogg", ".m4a"})
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/rapport.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "rapport")
	v.SetDefault("database.name", "rapport")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "./data/audio")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.bucket", "rapport-audio")
	v.SetDefault("storage.minio.endpoint", "localhost:9000")
	v.SetDefault("storage.minio.use_ssl", false)
	v.SetDefault("storage.minio.bucket", "rapport-audio")
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.use_tls", false)
	v.SetDefault("qdrant.collection", "persona_nodes")
	v.SetDefault("transcription.base_url", "https://api.deepgram.com/v1")
	v.SetDefault("transcription.model", "nova-2")
	v.SetDefault("transcription.timeout", 60*time.Second)
	v.SetDefault("transcription.max_retries", 5)
	v.SetDefault("transcription.backoff_base", 2*time.Second)
	v.SetDefault("transcription.backoff_cap", 600*time.Second)
	v.SetDefault("transcription.detect_entities", true)
	v.SetDefault("embedding.provider", "jina")
	v.SetDefault("embedding.model", "jina-embeddings-v3")
	v.SetDefault("embedding.base_url", "https://api.jina.ai/v1")
	v.SetDefault("embedding.native_dimension", 768)
	v.SetDefault("embedding.dimension", 1536)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("chat.enabled", true)
	v.SetDefault("chat.model", "gpt-4o-mini")
	v.SetDefault("chat.base_url", "https://api.openai.com/v1")
	v.SetDefault("chat.timeout", 45*time.Second)
	v.SetDefault("enrichment.enabled_sources", []string{
		"professional_network", "developer_platform", "microblog", "web_search",
	})
	v.SetDefault("enrichment.source_timeout", 20*time.Second)
	v.SetDefault("enrichment.session_key", "default_session")
	v.SetDefault("enrichment.breaker_cooldown", time.Hour)
	v.SetDefault("resolver.high_threshold", 0.8)
	v.SetDefault("resolver.medium_threshold", 0.6)
	v.SetDefault("resolver.use_llm", false)
	v.SetDefault("fusion.transcript_weight", 0.4)
	v.SetDefault("fusion.professional_weight", 0.4)
	v.SetDefault("fusion.personality_weight", 0.2)
	v.SetDefault("synapse.threshold", 0.70)
	v.SetDefault("synapse.top_k", 3)
	v.SetDefault("workflow.workers", 4)
	v.SetDefault("workflow.queue_size", 64)
	v.SetDefault("workflow.poll_interval", 3*time.Second)
	v.SetDefault("workflow.stage_timeout", 5*time.Minute)
	v.SetDefault("workflow.embedded", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age", 30)
	v.SetDefault("logging.compress", true)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("storage.s3.access_key", "AWS_ACCESS_KEY_ID")
	v.BindEnv("storage.s3.secret_key", "AWS_SECRET_ACCESS_KEY")
	v.BindEnv("storage.minio.access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("storage.minio.secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("qdrant.host", "QDRANT_HOST")
	v.BindEnv("qdrant.port", "QDRANT_PORT")
	v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")
	v.BindEnv("transcription.api_key", "DEEPGRAM_API_KEY")
	v.BindEnv("embedding.api_key", "JINA_API_KEY")
	v.BindEnv("chat.api_key", "OPENAI_API_KEY")
	v.BindEnv("chat.base_url", "OPENAI_BASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Fill in rate-limit defaults for tags the config file did not override.
	if cfg.Enrichment.RateLimits == nil {
		cfg.Enrichment.RateLimits = map[string]RateLimitConfig{}
	}
	for tag, rl := range DefaultRateLimits() {
		if _, ok := cfg.Enrichment.RateLimits[tag]; !ok {
			cfg.Enrichment.RateLimits[tag] = rl
		}
	}

	return &cfg, nil
}
