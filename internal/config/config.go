package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"development"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	JWTSecret   string `envconfig:"JWT_SECRET" required:"true"`

	// LLM upstream. When OpenAIKeySecretName is set the API key is fetched
	// from Secret Manager at startup and OpenAIAPIKey is ignored.
	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string `envconfig:"OPENAI_BASE_URL"`
	OpenAIKeySecretName string `envconfig:"OPENAI_KEY_SECRET_NAME"`
	GCPProjectID        string `envconfig:"GCP_PROJECT_ID"`

	// Speech recognizer upstream.
	DeepgramAPIKey string `envconfig:"DEEPGRAM_API_KEY" required:"true"`
	DeepgramWSURL  string `envconfig:"DEEPGRAM_WS_URL" default:"wss://api.deepgram.com/v1/listen"`

	// Usage event fan-out. Publishing is disabled when the topic is empty.
	UsageEventTopic string `envconfig:"USAGE_EVENT_TOPIC"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"*"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
