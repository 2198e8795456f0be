package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Valkey     ValkeyConfig
	MinIO      MinIOConfig
	Bedrock    BedrockConfig
	OpenRouter OpenRouterConfig
	LLM        LLMConfig
	Scheduler  SchedulerConfig
	Pipeline   PipelineConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type ValkeyConfig struct {
	Addr     string
	Password string
	DB       int
}

type MinIOConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	DropPrefix string
	UseSSL     bool
}

type BedrockConfig struct {
	Region  string
	ModelID string
}

type OpenRouterConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	Dimensions int
}

type LLMConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type SchedulerConfig struct {
	Interval     time.Duration
	WindowHours  int
	MaxBatchSize int
	CSVSweep     time.Duration
}

type PipelineConfig struct {
	ConfigPath string
	PromptDir  string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  time.Duration(getEnvInt("SERVER_READ_TIMEOUT_SECS", 30)) * time.Second,
			WriteTimeout: time.Duration(getEnvInt("SERVER_WRITE_TIMEOUT_SECS", 60)) * time.Second,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "threadscribe"),
			Password: getEnv("DB_PASSWORD", "threadscribe"),
			Name:     getEnv("DB_NAME", "threadscribe"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 5)),
		},
		Valkey: ValkeyConfig{
			Addr:     getEnv("VALKEY_ADDR", "localhost:6379"),
			Password: getEnv("VALKEY_PASSWORD", ""),
			DB:       getEnvInt("VALKEY_DB", 0),
		},
		MinIO: MinIOConfig{
			Endpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey:  getEnv("MINIO_ACCESS_KEY", "threadscribe"),
			SecretKey:  getEnv("MINIO_SECRET_KEY", "threadscribe123"),
			Bucket:     getEnv("MINIO_BUCKET", "threadscribe"),
			DropPrefix: getEnv("MINIO_DROP_PREFIX", "drops/"),
			UseSSL:     getEnvBool("MINIO_USE_SSL", false),
		},
		Bedrock: BedrockConfig{
			Region:  getEnv("BEDROCK_REGION", ""),
			ModelID: getEnv("BEDROCK_MODEL_ID", "cohere.embed-english-v4"),
		},
		OpenRouter: OpenRouterConfig{
			APIKey:     getEnv("OPENROUTER_API_KEY", ""),
			Model:      getEnv("OPENROUTER_EMBED_MODEL", ""),
			BaseURL:    getEnv("OPENROUTER_BASE_URL", ""),
			Dimensions: getEnvInt("OPENROUTER_EMBED_DIMENSIONS", 0),
		},
		LLM: LLMConfig{
			APIKey:  getEnv("LLM_API_KEY", os.Getenv("OPENROUTER_API_KEY")),
			Model:   getEnv("LLM_MODEL", ""),
			BaseURL: getEnv("LLM_BASE_URL", ""),
		},
		Scheduler: SchedulerConfig{
			Interval:     time.Duration(getEnvInt("SCHEDULER_INTERVAL_SECS", 300)) * time.Second,
			WindowHours:  getEnvInt("SCHEDULER_WINDOW_HOURS", 24),
			MaxBatchSize: getEnvInt("SCHEDULER_MAX_BATCH_SIZE", 500),
			CSVSweep:     time.Duration(getEnvInt("CSV_SWEEP_INTERVAL_SECS", 600)) * time.Second,
		},
		Pipeline: PipelineConfig{
			ConfigPath: getEnv("PIPELINE_CONFIG", ""),
			PromptDir:  getEnv("PROMPT_DIR", ""),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
