// Package config provides configuration for the router service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ModeMock selects in-process fakes for the LLM, embedder and vector index.
const ModeMock = "MOCK"

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort    int      `yaml:"http_port"`
	APIKey      string   `yaml:"api_key"`
	CORSOrigins []string `yaml:"cors_origins"`
	Version     string   `yaml:"version"`

	// History and documents store
	DatabaseURL string `yaml:"database_url"`

	// SQL engine queried by the structured pipeline
	SQLEngineDriver string `yaml:"sql_engine_driver"`
	SQLEngineDSN    string `yaml:"sql_engine_dsn"`
	SQLSchemaFilter bool   `yaml:"sql_schema_filter"`

	// Vector index
	WeaviateHost     string `yaml:"weaviate_host"`
	WeaviateScheme   string `yaml:"weaviate_scheme"`
	WeaviateAPIKey   string `yaml:"weaviate_api_key"`
	VectorCollection string `yaml:"vector_collection"`
	VectorDimension  int    `yaml:"vector_dimension"`

	// Models
	OpenAIAPIKey   string `yaml:"openai_api_key"`
	OpenAIBaseURL  string `yaml:"openai_base_url"`
	ChatModel      string `yaml:"chat_model"`
	EmbeddingModel string `yaml:"embedding_model"`

	// Pipelines
	HistoryWindow int `yaml:"history_window"`
	RetrievalTopK int `yaml:"retrieval_top_k"`

	// Ingestion
	ChunkSize      int    `yaml:"chunk_size"`
	ChunkOverlap   int    `yaml:"chunk_overlap"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	EmbedPoolSize  int    `yaml:"embed_pool_size"`
	EmbedBatchSize int    `yaml:"embed_batch_size"`
	EmbedCacheDir  string `yaml:"embed_cache_dir"`

	// Timeouts
	LLMTimeout time.Duration `yaml:"-"`
	SQLTimeout time.Duration `yaml:"-"`

	// WebSocket settings
	WSPingInterval   time.Duration `yaml:"-"`
	WSWriteTimeout   time.Duration `yaml:"-"`
	WSReadTimeout    time.Duration `yaml:"-"`
	WSMaxMessageSize int64         `yaml:"ws_max_message_size"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// Mode is "MOCK" for offline operation.
	Mode string `yaml:"mode"`
}

// fileConfig carries the overlay keys that need conversion.
type fileConfig struct {
	Config       `yaml:",inline"`
	LLMTimeoutMS int `yaml:"llm_timeout_ms"`
	SQLTimeoutMS int `yaml:"sql_timeout_ms"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		HTTPPort:         8080,
		CORSOrigins:      []string{"*"},
		Version:          "1.0.0",
		DatabaseURL:      "file:ragrouter.db?cache=shared&mode=rwc",
		SQLEngineDriver:  "sqlite3",
		SQLEngineDSN:     "file:northwind.db?mode=ro",
		WeaviateHost:     "localhost:8081",
		WeaviateScheme:   "http",
		VectorCollection: "DocumentChunk",
		VectorDimension:  1536,
		OpenAIBaseURL:    "https://api.openai.com/v1",
		ChatModel:        "gpt-4o",
		EmbeddingModel:   "text-embedding-3-small",
		HistoryWindow:    10,
		RetrievalTopK:    5,
		ChunkSize:        2048,
		ChunkOverlap:     200,
		MaxUploadBytes:   50 * 1024 * 1024,
		EmbedPoolSize:    4,
		EmbedBatchSize:   100,
		LLMTimeout:       120 * time.Second,
		SQLTimeout:       30 * time.Second,
		WSPingInterval:   30 * time.Second,
		WSWriteTimeout:   10 * time.Second,
		WSReadTimeout:    60 * time.Second,
		WSMaxMessageSize: 65536,
		LogLevel:         "info",
	}
}

// Load loads configuration from CONFIG_FILE, when set, and then environment variables.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// IsMock reports whether offline fakes should be wired.
func (c *Config) IsMock() bool {
	return strings.EqualFold(c.Mode, ModeMock)
}

// WeaviateURL joins the scheme and host of the vector index.
func (c *Config) WeaviateURL() string {
	return c.WeaviateScheme + "://" + c.WeaviateHost
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	overlay := fileConfig{Config: *c}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	*c = overlay.Config
	if overlay.LLMTimeoutMS > 0 {
		c.LLMTimeout = time.Duration(overlay.LLMTimeoutMS) * time.Millisecond
	}
	if overlay.SQLTimeoutMS > 0 {
		c.SQLTimeout = time.Duration(overlay.SQLTimeoutMS) * time.Millisecond
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTPPort = getEnvInt("HTTP_PORT", c.HTTPPort)
	c.APIKey = getEnv("API_KEY", c.APIKey)
	c.CORSOrigins = getEnvList("CORS_ORIGINS", c.CORSOrigins)
	c.Version = getEnv("APP_VERSION", c.Version)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.SQLEngineDriver = getEnv("SQL_ENGINE_DRIVER", c.SQLEngineDriver)
	c.SQLEngineDSN = getEnv("SQL_ENGINE_DSN", c.SQLEngineDSN)
	c.SQLSchemaFilter = getEnvBool("SQL_SCHEMA_FILTER", c.SQLSchemaFilter)
	c.WeaviateHost = getEnv("WEAVIATE_HOST", c.WeaviateHost)
	c.WeaviateScheme = getEnv("WEAVIATE_SCHEME", c.WeaviateScheme)
	c.WeaviateAPIKey = getEnv("WEAVIATE_API_KEY", c.WeaviateAPIKey)
	c.VectorCollection = getEnv("VECTOR_COLLECTION", c.VectorCollection)
	c.VectorDimension = getEnvInt("VECTOR_DIMENSION", c.VectorDimension)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.ChatModel = getEnv("CHAT_MODEL", c.ChatModel)
	c.EmbeddingModel = getEnv("EMBEDDING_MODEL", c.EmbeddingModel)
	c.HistoryWindow = getEnvInt("HISTORY_WINDOW", c.HistoryWindow)
	c.RetrievalTopK = getEnvInt("RETRIEVAL_TOP_K", c.RetrievalTopK)
	c.ChunkSize = getEnvInt("CHUNK_SIZE", c.ChunkSize)
	c.ChunkOverlap = getEnvInt("CHUNK_OVERLAP", c.ChunkOverlap)
	c.MaxUploadBytes = int64(getEnvInt("MAX_UPLOAD_BYTES", int(c.MaxUploadBytes)))
	c.EmbedPoolSize = getEnvInt("EMBED_POOL_SIZE", c.EmbedPoolSize)
	c.EmbedBatchSize = getEnvInt("EMBED_BATCH_SIZE", c.EmbedBatchSize)
	c.EmbedCacheDir = getEnv("EMBED_CACHE_DIR", c.EmbedCacheDir)
	c.LLMTimeout = getEnvMillis("LLM_TIMEOUT_MS", c.LLMTimeout)
	c.SQLTimeout = getEnvMillis("SQL_TIMEOUT_MS", c.SQLTimeout)
	c.WSPingInterval = getEnvMillis("WS_PING_INTERVAL_MS", c.WSPingInterval)
	c.WSWriteTimeout = getEnvMillis("WS_WRITE_TIMEOUT_MS", c.WSWriteTimeout)
	c.WSReadTimeout = getEnvMillis("WS_READ_TIMEOUT_MS", c.WSReadTimeout)
	c.WSMaxMessageSize = int64(getEnvInt("WS_MAX_MESSAGE_SIZE", int(c.WSMaxMessageSize)))
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Mode = getEnv("RAGROUTER_MODE", c.Mode)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvMillis(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
