// Package config loads and holds the application configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Conf is the global configuration loaded from the YAML config file.
var Conf Config

// Config mirrors the structure of config.yaml.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Tika      TikaConfig      `mapstructure:"tika"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	Parties   []PartySeed     `mapstructure:"parties"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig groups the Postgres and Redis connection settings.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig holds the Postgres connection settings. The target
// database must have the pgvector extension installed.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig holds the TTLs for the two retrieval caches. Embeddings are
// long-lived because the underlying text rarely changes; search results
// expire sooner to bound staleness after re-ingestion.
type CacheConfig struct {
	EmbeddingTTL time.Duration `mapstructure:"embedding_ttl"`
	SearchTTL    time.Duration `mapstructure:"search_ttl"`
}

// RetrievalConfig holds the retrieval defaults and the comparison-mode
// cache polling policy.
type RetrievalConfig struct {
	DefaultLimit         int           `mapstructure:"default_limit"`
	DefaultMinSimilarity float64       `mapstructure:"default_min_similarity"`
	CachePollAttempts    int           `mapstructure:"cache_poll_attempts"`
	CachePollBaseDelay   time.Duration `mapstructure:"cache_poll_base_delay"`
}

// IngestionConfig holds the settings for the program ingestion pipeline.
type IngestionConfig struct {
	SourceDir    string `mapstructure:"source_dir"`
	ChunkSize    int    `mapstructure:"chunk_size"`
	ChunkOverlap int    `mapstructure:"chunk_overlap"`
}

// EmbeddingConfig holds the embedding model settings.
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig holds the chat model settings.
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
	Prompt     LLMPromptConfig     `mapstructure:"prompt"`
}

// LLMGenerationConfig tunes generation parameters (optional, zero = unset).
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMPromptConfig wraps the system prompt and context delimiters.
type LLMPromptConfig struct {
	Rules        string `mapstructure:"rules"`
	RefStart     string `mapstructure:"ref_start"`
	RefEnd       string `mapstructure:"ref_end"`
	NoResultText string `mapstructure:"no_result_text"`
}

// TikaConfig holds the Tika server settings used for PDF text extraction.
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// KafkaConfig holds the Kafka settings for the ingestion task topic.
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// MinIOConfig holds the object storage settings for uploaded program PDFs.
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// JWTConfig holds the token settings.
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig holds the logger settings.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// PartySeed is a static party reference entry seeded into the database
// on startup.
type PartySeed struct {
	Name      string `mapstructure:"name"`
	ShortCode string `mapstructure:"short_code"`
	Color     string `mapstructure:"color"`
}

// Init reads the YAML file at configPath and unmarshals it into Conf.
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("failed to read config file: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("failed to unmarshal config: %w", err))
	}
}

func setDefaults() {
	viper.SetDefault("cache.embedding_ttl", 7*24*time.Hour)
	viper.SetDefault("cache.search_ttl", 24*time.Hour)
	viper.SetDefault("retrieval.default_limit", 8)
	viper.SetDefault("retrieval.default_min_similarity", 0.6)
	viper.SetDefault("retrieval.cache_poll_attempts", 3)
	viper.SetDefault("retrieval.cache_poll_base_delay", 500*time.Millisecond)
	viper.SetDefault("ingestion.chunk_size", 1000)
	viper.SetDefault("ingestion.chunk_overlap", 100)
	viper.SetDefault("embedding.dimensions", 1536)
}
