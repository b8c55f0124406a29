package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Server   ServerConfig
	Capture  CaptureConfig
	Slack    SlackConfig
	Tracing  TracingConfig
	Log      LogConfig
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings. An empty Addr disables the
// event intake channel and the live trail feed.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// JWTConfig holds JWT authentication settings.
type JWTConfig struct {
	Secret string //nolint:gosec // G117: JWT signing secret config
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// CaptureConfig holds change capture settings.
type CaptureConfig struct {
	ConsoleActorID  int64
	RemarkParam     string
	Benchmark       bool
	DefaultLanguage language.Tag
	// Languages are offered to Accept-Language negotiation; DefaultLanguage first.
	Languages     []language.Tag
	PolicyFile    string
	AutoMigrate   bool
	EventsChannel string
	Table         string
}

// SlackConfig holds Slack notification settings. An empty BotToken disables
// notifications.
type SlackConfig struct {
	BotToken string //nolint:gosec // G117: Slack token config
	Channel  string
}

// TracingConfig holds OpenTelemetry settings. OTLPEndpoint is a full OTLP/HTTP
// traces URL; empty disables export.
type TracingConfig struct {
	OTLPEndpoint string
	Environment  string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first without overriding variables that are
// already set.
// Defaults are safe for local development only. In production,
// sensitive values (JWT secret, DB password) must be set explicitly.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config.Load: .env: %w", err)
	}

	dbPort, err := getEnvInt("AUDITTRAIL_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("AUDITTRAIL_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("AUDITTRAIL_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("AUDITTRAIL_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("AUDITTRAIL_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	consoleActor, err := getEnvInt("AUDITTRAIL_CONSOLE_ACTOR_ID", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	benchmark, err := getEnvBool("AUDITTRAIL_BENCHMARK", true)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	autoMigrate, err := getEnvBool("AUDITTRAIL_AUTO_MIGRATE", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	languages, err := getEnvLanguages("AUDITTRAIL_LANGUAGES", getEnv("AUDITTRAIL_DEFAULT_LANGUAGE", "en"))
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("AUDITTRAIL_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("AUDITTRAIL_DB_USER", "audittrail"),
			Password: getEnv("AUDITTRAIL_DB_PASSWORD", ""),
			DBName:   getEnv("AUDITTRAIL_DB_NAME", "audittrail_dev"),
			SSLMode:  getEnv("AUDITTRAIL_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("AUDITTRAIL_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("AUDITTRAIL_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret: getEnv("AUDITTRAIL_JWT_SECRET", ""),
		},
		Server: ServerConfig{
			Addr:         getEnv("AUDITTRAIL_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  getEnvList("AUDITTRAIL_CORS_ORIGINS", []string{"http://localhost:5173"}),
		},
		Capture: CaptureConfig{
			ConsoleActorID:  int64(consoleActor),
			RemarkParam:     getEnv("AUDITTRAIL_REMARK_PARAM", "__change_remark"),
			Benchmark:       benchmark,
			DefaultLanguage: languages[0],
			Languages:       languages,
			PolicyFile:      getEnv("AUDITTRAIL_POLICY_FILE", "policies.yaml"),
			AutoMigrate:     autoMigrate,
			EventsChannel:   getEnv("AUDITTRAIL_EVENTS_CHANNEL", "audittrail:events"),
			Table:           getEnv("AUDITTRAIL_TABLE", "audit_trail_entry"),
		},
		Slack: SlackConfig{
			BotToken: getEnv("AUDITTRAIL_SLACK_BOT_TOKEN", ""),
			Channel:  getEnv("AUDITTRAIL_SLACK_CHANNEL", ""),
		},
		Tracing: TracingConfig{
			OTLPEndpoint: getEnv("AUDITTRAIL_OTLP_ENDPOINT", ""),
			Environment:  getEnv("AUDITTRAIL_ENVIRONMENT", "development"),
		},
		Log: LogConfig{
			Level:  getEnv("AUDITTRAIL_LOG_LEVEL", "info"),
			Format: getEnv("AUDITTRAIL_LOG_FORMAT", "json"),
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	// JWT secret is required (no insecure default).
	if c.JWT.Secret == "" {
		return errors.New("AUDITTRAIL_JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("AUDITTRAIL_JWT_SECRET must be at least 32 characters")
	}

	if c.Database.SSLMode == "disable" {
		log.Warn().Msg("AUDITTRAIL_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	// Bounds checks.
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("AUDITTRAIL_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("AUDITTRAIL_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("AUDITTRAIL_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("AUDITTRAIL_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Capture.RemarkParam == "" {
		return errors.New("AUDITTRAIL_REMARK_PARAM must not be empty")
	}
	if c.Capture.Table == "" {
		return errors.New("AUDITTRAIL_TABLE must not be empty")
	}
	if c.Redis.Addr != "" && c.Capture.EventsChannel == "" {
		return errors.New("AUDITTRAIL_EVENTS_CHANNEL must not be empty when Redis is configured")
	}
	if c.Slack.BotToken != "" && c.Slack.Channel == "" {
		return errors.New("AUDITTRAIL_SLACK_CHANNEL is required when AUDITTRAIL_SLACK_BOT_TOKEN is set")
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// getEnvLanguages parses a list of BCP 47 tags. The default language always
// comes first and is not repeated.
func getEnvLanguages(key, defaultLang string) ([]language.Tag, error) {
	def, err := language.Parse(defaultLang)
	if err != nil {
		return nil, fmt.Errorf("parsing AUDITTRAIL_DEFAULT_LANGUAGE=%q: %w", defaultLang, err)
	}

	tags := []language.Tag{def}
	for _, s := range getEnvList(key, nil) {
		tag, err := language.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parsing %s entry %q: %w", key, s, err)
		}
		if tag != def {
			tags = append(tags, tag)
		}
	}
	return tags, nil
}
