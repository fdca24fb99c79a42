package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Keys     APIKeys
	Ai       AIConfig
	Upload   UploadConfig
	Chat     ChatConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	ClientURL          string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

type DatabaseConfig struct {
	Connection string
}

type APIKeys struct {
	OpenAI string
	Mem0   string
}

type AIConfig struct {
	LLMProvider   string // "openai" or "ollama"
	LLMModel      string // e.g. "gpt-4o-mini", "llama3"
	TitleModel    string // cheap model for fire-and-forget titles
	OpenAIBaseURL string
	OllamaBaseURL string
	MemoryBaseURL string
	MemoryOrgID   string
	MemoryProject string
	HistoryBudget int           // max prompt tokens sent per completion
	StreamTimeout time.Duration // upper bound for one streamed reply
}

type UploadConfig struct {
	BaseURL   string // CDN upload endpoint
	CDNPrefix string // public URL prefix for stored files
	PublicKey string
}

type ChatConfig struct {
	ListRefreshInterval time.Duration // background revalidation of the sidebar cache
	SettleDelay         time.Duration // Transitioning -> Persisted settle window
	MaxTitleLength      int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Keys: APIKeys{
			OpenAI: getEnv("OPENAI_API_KEY", ""),
			Mem0:   getEnv("MEM0_API_KEY", ""),
		},
		Ai: AIConfig{
			LLMProvider:   getEnv("LLM_PROVIDER", "openai"),
			LLMModel:      getEnv("LLM_MODEL", "gpt-4o-mini"),
			TitleModel:    getEnv("TITLE_MODEL", "gpt-3.5-turbo"),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			MemoryBaseURL: getEnv("MEM0_BASE_URL", "https://api.mem0.ai"),
			MemoryOrgID:   getEnv("MEM0_ORG_ID", ""),
			MemoryProject: getEnv("MEM0_PROJECT_ID", ""),
			HistoryBudget: getEnvAsInt("HISTORY_TOKEN_BUDGET", 8000),
			StreamTimeout: getEnvAsDuration("STREAM_TIMEOUT", 30*time.Second),
		},
		Upload: UploadConfig{
			BaseURL:   getEnv("UPLOADCARE_BASE_URL", "https://upload.uploadcare.com"),
			CDNPrefix: getEnv("UPLOADCARE_CDN_PREFIX", "https://ucarecdn.com"),
			PublicKey: getEnv("UPLOADCARE_PUBLIC_KEY", ""),
		},
		Chat: ChatConfig{
			ListRefreshInterval: getEnvAsDuration("LIST_REFRESH_INTERVAL", 30*time.Second),
			SettleDelay:         getEnvAsDuration("TRANSITION_SETTLE_DELAY", time.Second),
			MaxTitleLength:      getEnvAsInt("MAX_TITLE_LENGTH", 200),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
