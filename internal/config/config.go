package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v6"
)

type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	ProviderOpenAI LLMProvider = "openai"
	ProviderYandex LLMProvider = "yandex"
)

type Config struct {
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN,required"`
	AdminChatID      int64  `env:"ADMIN_CHAT_ID"`

	// LLM settings
	LLMProvider      LLMProvider `env:"LLM_PROVIDER" envDefault:"gemini"`
	GeminiAPIKey     string      `env:"GEMINI_API_KEY"`
	GeminiModel      string      `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash"`
	OpenAIAPIKey     string      `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string      `env:"OPENAI_BASE_URL"`
	OpenAIModel      string      `env:"OPENAI_MODEL" envDefault:"gpt-3.5-turbo"`
	YandexOAuthToken string      `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string      `env:"YANDEX_FOLDER_ID"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Prompts
	SystemPromptPath string `env:"SYSTEM_PROMPT_PATH" envDefault:"prompts/system_prompt.txt"`

	// Storage
	StorageBackend  string `env:"STORAGE_BACKEND" envDefault:"file"`
	DataDir         string `env:"DATA_DIR" envDefault:"data"`
	SQLitePath      string `env:"SQLITE_PATH" envDefault:"data/relay.db"`
	HistoryFilePath string `env:"HISTORY_FILE_PATH" envDefault:"data/history.json"`

	// Conversation window
	MaxHistory int `env:"MAX_HISTORY" envDefault:"5"`
	ReplyLimit int `env:"REPLY_LIMIT" envDefault:"4096"`

	// Reporting
	TickInterval    time.Duration `env:"TICK_INTERVAL" envDefault:"30s"`
	DailyCutoffHour int           `env:"DAILY_CUTOFF_HOUR" envDefault:"23"`

	// Keep-alive web server
	Port int `env:"PORT" envDefault:"8080"`
}

func New() *Config {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}
