package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	PostgreSQL   PostgreSQLConfig
	Catalog      CatalogConfig
	Redis        RedisConfig
	NATS         NATSConfig
	Server       ServerConfig
	Guardrail    GuardrailConfig
	Conversation ConversationConfig
	Ranking      RankingConfig
	Breaker      BreakerConfig
	Logging      LoggingConfig
	OpenAI       OpenAIConfig
	Anthropic    AnthropicConfig
}

// PostgreSQLConfig holds PostgreSQL database configuration
type PostgreSQLConfig struct {
	DSN                string // full connection string, preferred when set
	Host               string
	Port               int
	User               string
	Password           string
	Database           string
	SSLMode            string
	MaxConnections     int
	MaxIdleConnections int
	Enabled            bool // a DSN or host was configured
}

// CatalogConfig holds the in-memory catalog source, used when no database is configured
type CatalogConfig struct {
	File string // JSON array of vehicles
}

// RedisConfig holds the session store connection. Empty Addr keeps sessions in memory.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	KeyPrefix  string
	SessionTTL time.Duration
}

// NATSConfig holds the event publisher connection. Empty URL disables publishing.
type NATSConfig struct {
	URL           string
	Token         string
	SubjectPrefix string
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	GinMode        string
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
	RequestsPerMin int // per client IP, across the whole HTTP surface
}

// GuardrailConfig holds the message screening thresholds
type GuardrailConfig struct {
	MaxInputLength   int
	MaxOutputLength  int
	RateLimitCount   int
	RateLimitWindow  time.Duration
	SweepInterval    time.Duration
	MaxSpecialRatio  float64
	MaxRepeatedChars int
}

// ConversationConfig holds per-conversation limits
type ConversationConfig struct {
	HistoryLimit        int
	RecommendationLimit int
	ExtractionTimeout   time.Duration
	TurnTimeout         time.Duration
}

// RankingConfig holds hybrid ranking weights
type RankingConfig struct {
	SemanticWeight float64
	CriteriaWeight float64
	MaxLimit       int
}

// BreakerConfig configures the circuit breakers around ranking strategies and
// inference providers
type BreakerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// OpenAIConfig holds OpenAI-compatible API configuration
type OpenAIConfig struct {
	APIKey              string
	APIBase             string
	ChatModel           string // model for extraction and replies
	ChatMaxTokens       int
	EmbeddingModel      string
	EmbeddingDimensions int
	BatchSize           int
	Timeout             time.Duration
	Enabled             bool
}

// AnthropicConfig holds the secondary inference provider configuration
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Enabled bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (optional)
	_ = godotenv.Load()

	cfg := &Config{
		PostgreSQL: PostgreSQLConfig{
			DSN:                getEnv("DATABASE_URL", getEnv("PG_DSN", "")),
			Host:               getEnv("PG_HOST", "localhost"),
			Port:               getEnvAsInt("PG_PORT", 5432),
			User:               getEnv("PG_USER", "postgres"),
			Password:           getEnv("PG_PASSWORD", ""),
			Database:           getEnv("PG_DATABASE", "carmatch"),
			SSLMode:            getEnv("PG_SSLMODE", "disable"),
			MaxConnections:     getEnvAsInt("PG_MAX_CONNECTIONS", 25),
			MaxIdleConnections: getEnvAsInt("PG_MAX_IDLE_CONNECTIONS", 5),
			Enabled:            getEnv("DATABASE_URL", getEnv("PG_DSN", getEnv("PG_HOST", ""))) != "",
		},
		Catalog: CatalogConfig{
			File: getEnv("CATALOG_FILE", ""),
		},
		Redis: RedisConfig{
			Addr:       getEnv("REDIS_ADDR", ""),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         getEnvAsInt("REDIS_DB", 0),
			KeyPrefix:  getEnv("REDIS_KEY_PREFIX", "carmatch:session:"),
			SessionTTL: getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		},
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", ""),
			Token:         getEnv("NATS_TOKEN", ""),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "carmatch"),
		},
		Server: ServerConfig{
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			GinMode:        getEnv("GIN_MODE", "release"),
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
			RequestsPerMin: getEnvAsInt("HTTP_REQUESTS_PER_MINUTE", 600),
		},
		Guardrail: GuardrailConfig{
			MaxInputLength:   getEnvAsInt("GUARD_MAX_INPUT_LENGTH", 1000),
			MaxOutputLength:  getEnvAsInt("GUARD_MAX_OUTPUT_LENGTH", 4096),
			RateLimitCount:   getEnvAsInt("GUARD_RATE_LIMIT_COUNT", 10),
			RateLimitWindow:  getEnvAsDuration("GUARD_RATE_LIMIT_WINDOW", 60*time.Second),
			SweepInterval:    getEnvAsDuration("GUARD_SWEEP_INTERVAL", 5*time.Minute),
			MaxSpecialRatio:  getEnvAsFloat("GUARD_MAX_SPECIAL_RATIO", 0.30),
			MaxRepeatedChars: getEnvAsInt("GUARD_MAX_REPEATED_CHARS", 10),
		},
		Conversation: ConversationConfig{
			HistoryLimit:        getEnvAsInt("CONVERSATION_HISTORY_LIMIT", 20),
			RecommendationLimit: getEnvAsInt("RECOMMENDATION_LIMIT", 5),
			ExtractionTimeout:   getEnvAsDuration("EXTRACTION_TIMEOUT", 15*time.Second),
			TurnTimeout:         getEnvAsDuration("TURN_TIMEOUT", 45*time.Second),
		},
		Ranking: RankingConfig{
			SemanticWeight: getEnvAsFloat("RANK_WEIGHT_SEMANTIC", 0.4),
			CriteriaWeight: getEnvAsFloat("RANK_WEIGHT_CRITERIA", 0.6),
			MaxLimit:       getEnvAsInt("RANK_MAX_LIMIT", 50),
		},
		Breaker: BreakerConfig{
			FailureThreshold: getEnvAsInt("BREAKER_FAILURE_THRESHOLD", 3),
			Cooldown:         getEnvAsDuration("BREAKER_COOLDOWN", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		OpenAI: OpenAIConfig{
			APIKey:              getEnv("OPENAI_API_KEY", ""),
			APIBase:             getEnv("OPENAI_API_BASE", "https://api.openai.com/v1"),
			ChatModel:           getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			ChatMaxTokens:       getEnvAsInt("OPENAI_CHAT_MAX_TOKENS", 600),
			EmbeddingModel:      getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimensions: getEnvAsInt("OPENAI_EMBEDDING_DIMENSIONS", 1536),
			BatchSize:           getEnvAsInt("OPENAI_BATCH_SIZE", 100),
			Timeout:             getEnvAsDuration("OPENAI_TIMEOUT", 20*time.Second),
			Enabled:             getEnv("OPENAI_API_KEY", "") != "",
		},
		Anthropic: AnthropicConfig{
			APIKey:  getEnv("ANTHROPIC_API_KEY", ""),
			BaseURL: getEnv("ANTHROPIC_BASE_URL", ""),
			Model:   getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
			Timeout: getEnvAsDuration("ANTHROPIC_TIMEOUT", 20*time.Second),
			Enabled: getEnv("ANTHROPIC_API_KEY", "") != "",
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	var problems []string
	if c.Guardrail.MaxInputLength <= 0 || c.Guardrail.MaxOutputLength <= 0 {
		problems = append(problems, "guardrail length limits must be positive")
	}
	if c.Guardrail.RateLimitCount <= 0 || c.Guardrail.RateLimitWindow <= 0 {
		problems = append(problems, "guardrail rate limit must be positive")
	}
	if c.Ranking.SemanticWeight < 0 || c.Ranking.CriteriaWeight < 0 ||
		c.Ranking.SemanticWeight+c.Ranking.CriteriaWeight <= 0 {
		problems = append(problems, "ranking weights must be non-negative and not both zero")
	}
	if c.Conversation.RecommendationLimit <= 0 {
		problems = append(problems, "recommendation limit must be positive")
	}
	if c.Breaker.FailureThreshold <= 0 {
		problems = append(problems, "breaker failure threshold must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// GetPostgreSQLDSN returns PostgreSQL connection string
func (c *Config) GetPostgreSQLDSN() string {
	if c.PostgreSQL.DSN != "" {
		return c.PostgreSQL.DSN
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgreSQL.Host,
		c.PostgreSQL.Port,
		c.PostgreSQL.User,
		c.PostgreSQL.Password,
		c.PostgreSQL.Database,
		c.PostgreSQL.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer value for %s, using default %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid float value for %s, using default %f", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Printf("Warning: Invalid duration value for %s, using default %s", key, defaultValue)
	return defaultValue
}
