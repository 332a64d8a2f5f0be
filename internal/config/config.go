package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Provider names accepted by the *_PROVIDER settings.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
	ProviderMock   = "mock"
)

// Document store backends.
const (
	DocumentStoreLocal = "local"
	DocumentStoreR2    = "r2"
	DocumentStoreGCS   = "gcs"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Host     string `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	HTTPPort int    `envconfig:"SERVER_HTTP_PORT" default:"4000"`
	GRPCPort int    `envconfig:"SERVER_GRPC_PORT" default:"4001"`

	Environment string `envconfig:"SERVER_ENV" default:"development"`

	// Timeouts
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"90s"`
	IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// AI gateway routing
	LessonProvider     string        `envconfig:"LESSON_PROVIDER" default:"gemini"`
	SpeechProvider     string        `envconfig:"SPEECH_PROVIDER" default:"gemini"`
	TranscribeProvider string        `envconfig:"TRANSCRIBE_PROVIDER" default:"gemini"`
	EvaluateProvider   string        `envconfig:"EVALUATE_PROVIDER" default:"gemini"`
	PartnerProvider    string        `envconfig:"PARTNER_PROVIDER" default:"gemini"`
	AIRequestTimeout   time.Duration `envconfig:"AI_REQUEST_TIMEOUT" default:"45s"`

	// Gemini
	GeminiAPIKey      string `envconfig:"GEMINI_API_KEY"`
	GeminiSAPath      string `envconfig:"GEMINI_SA_PATH"`
	GCPProjectID      string `envconfig:"GCP_PROJECT_ID"`
	GCPLocation       string `envconfig:"GCP_LOCATION" default:"asia-northeast3"`
	GeminiTextModel   string `envconfig:"GEMINI_TEXT_MODEL" default:"gemini-2.5-flash"`
	GeminiSpeechModel string `envconfig:"GEMINI_SPEECH_MODEL" default:"gemini-2.5-flash-preview-tts"`
	GeminiVoice       string `envconfig:"GEMINI_VOICE" default:"Kore"`

	// OpenAI. Setting AZURE_OPENAI_ENDPOINT sends the openai provider to an
	// Azure OpenAI resource instead, with model names used as deployments.
	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`
	OpenAIChatModel     string `envconfig:"OPENAI_CHAT_MODEL" default:"gpt-4o-mini"`
	OpenAISpeechModel   string `envconfig:"OPENAI_SPEECH_MODEL" default:"tts-1"`
	OpenAIVoice         string `envconfig:"OPENAI_VOICE" default:"alloy"`
	AzureOpenAIEndpoint string `envconfig:"AZURE_OPENAI_ENDPOINT"`
	AzureOpenAIKey      string `envconfig:"AZURE_OPENAI_KEY"`

	// Azure AI Speech
	AzureAISpeechKey   string `envconfig:"AZURE_AI_SPEECH_KEY"`
	AzureServiceRegion string `envconfig:"AZURE_SERVICE_REGION"`

	// Redis
	RedisURL string `envconfig:"REDIS_URL"`

	// Documents
	DocumentStore  string `envconfig:"DOCUMENT_STORE" default:"local"`
	DocumentDir    string `envconfig:"DOCUMENT_DIR" default:"pdfs"`
	DocumentPrefix string `envconfig:"DOCUMENT_PREFIX" default:"pdfs/"`
	GCSBucketName  string `envconfig:"GCS_BUCKET_NAME"`

	// Cloudflare R2
	CloudflareAccessKeyID string `envconfig:"CLOUDFLARE_ACCESS_KEY_ID"`
	CloudflareSecretKey   string `envconfig:"CLOUDFLARE_SECRET_ACCESS_KEY"`
	CloudflareR2Endpoint  string `envconfig:"CLOUDFLARE_R2_ENDPOINT"`
	CloudflarePublicURL   string `envconfig:"CLOUDFLARE_PUBLIC_URL"`
	CloudflareBucketName  string `envconfig:"CLOUDFLARE_BUCKET_NAME"`

	// Sessions
	SessionIdleTTL       time.Duration `envconfig:"SESSION_IDLE_TTL" default:"2h"`
	SessionSweepInterval time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"5m"`

	// Practice
	SentenceGameMaxBlanks         int           `envconfig:"SENTENCE_GAME_MAX_BLANKS" default:"3"`
	WordGameAdvanceDelay          time.Duration `envconfig:"WORD_GAME_ADVANCE_DELAY" default:"1500ms"`
	WordGameAllowDuplicateMeaning bool          `envconfig:"WORD_GAME_ALLOW_DUPLICATE_MEANINGS" default:"false"`

	// Roleplay
	RoleplayConnectDelay time.Duration `envconfig:"ROLEPLAY_CONNECT_DELAY" default:"1500ms"`
	RoleplayGreeting     string        `envconfig:"ROLEPLAY_GREETING" default:"Hello! I heard a little about your day. Can you tell me more about it?"`
	RoleplayReplyTimeout time.Duration `envconfig:"ROLEPLAY_REPLY_TIMEOUT" default:"10s"`
	RoleplayReplyTTL     time.Duration `envconfig:"ROLEPLAY_REPLY_TTL" default:"60s"`

	// CORS
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	CORSAllowedMethods []string `envconfig:"CORS_ALLOWED_METHODS" default:"GET,POST,PUT,DELETE,OPTIONS"`
	CORSAllowedHeaders []string `envconfig:"CORS_ALLOWED_HEADERS" default:"Accept,Content-Type,X-Request-ID"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks provider names and numeric bounds.
func (c *Config) Validate() error {
	providers := map[string]string{
		"LESSON_PROVIDER":     c.LessonProvider,
		"SPEECH_PROVIDER":     c.SpeechProvider,
		"TRANSCRIBE_PROVIDER": c.TranscribeProvider,
		"PARTNER_PROVIDER":    c.PartnerProvider,
	}
	for key, p := range providers {
		switch p {
		case ProviderGemini, ProviderOpenAI, ProviderMock:
		default:
			return fmt.Errorf("%s: unknown provider %q", key, p)
		}
	}
	switch c.EvaluateProvider {
	case ProviderGemini, ProviderOpenAI, ProviderAzure, ProviderMock:
	default:
		return fmt.Errorf("EVALUATE_PROVIDER: unknown provider %q", c.EvaluateProvider)
	}

	switch c.DocumentStore {
	case DocumentStoreLocal, DocumentStoreR2, DocumentStoreGCS:
	default:
		return fmt.Errorf("DOCUMENT_STORE: unknown backend %q", c.DocumentStore)
	}

	if c.SentenceGameMaxBlanks < 1 {
		return fmt.Errorf("SENTENCE_GAME_MAX_BLANKS must be at least 1")
	}
	if c.AIRequestTimeout <= 0 {
		return fmt.Errorf("AI_REQUEST_TIMEOUT must be positive")
	}
	return nil
}

// HTTPAddress returns the HTTP server address.
func (c *Config) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// GRPCAddress returns the gRPC server address.
func (c *Config) GRPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// UsesProvider reports whether any gateway operation is routed to name.
func (c *Config) UsesProvider(name string) bool {
	for _, p := range []string{c.LessonProvider, c.SpeechProvider, c.TranscribeProvider, c.EvaluateProvider, c.PartnerProvider} {
		if p == name {
			return true
		}
	}
	return false
}
