package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"      validate:"required"`
	Task     TaskConfig     `mapstructure:"task"     validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"             validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level"        validate:"required,oneof=debug info warn error"`
	LogFormat       string        `mapstructure:"log_format"       validate:"omitempty,oneof=json console"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret        string        `mapstructure:"jwt_secret"         validate:"required,min=32"`
	TokenLifetime    time.Duration `mapstructure:"token_lifetime"`
	BcryptCost       int           `mapstructure:"bcrypt_cost"        validate:"omitempty,gte=4,lte=31"`
	SignupBalance    int           `mapstructure:"signup_balance"     validate:"gte=0"`
	PaymentWebhookID string        `mapstructure:"payment_webhook_id"`
}

// LLMConfig contains all generation-provider related settings.
type LLMConfig struct {
	GeminiAPIKey   string        `mapstructure:"gemini_api_key"  validate:"required"`
	GeminiModel    string        `mapstructure:"gemini_model"    validate:"required"`
	OpenAIAPIKey   string        `mapstructure:"openai_api_key"`
	OpenAIModel    string        `mapstructure:"openai_model"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// TaskConfig contains settings for the background task subsystem.
type TaskConfig struct {
	WorkerCount  int           `mapstructure:"worker_count"  validate:"required,gt=0"`
	QueueSize    int           `mapstructure:"queue_size"    validate:"required,gt=0"`
	StaleTaskAge time.Duration `mapstructure:"stale_task_age"`
}
