package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/matchsight/matchsight/internal/platform/logging"
)

// Config stores runtime configuration for the service.
type Config struct {
	AppEnv                     string
	ServiceName                string
	ServiceVersion             string
	HTTPAddr                   string
	ReadTimeout                time.Duration
	WriteTimeout               time.Duration
	CORSAllowedOrigins         []string
	SwaggerEnabled             bool
	PprofEnabled               bool
	PprofAddr                  string
	UptraceEnabled             bool
	UptraceDSN                 string
	PyroscopeEnabled           bool
	PyroscopeServerAddress     string
	PyroscopeAppName           string
	PyroscopeAuthToken         string
	PyroscopeBasicAuthUser     string
	PyroscopeBasicAuthPassword string
	PyroscopeUploadRate        time.Duration
	DBEnabled                  bool
	DBURL                      string
	SportsAPIKey               string
	FootballBaseURL            string
	SportsTimeout              time.Duration
	SportsCacheTTL             time.Duration
	SportsCircuitEnabled       bool
	SportsCircuitFailureCount  int
	SportsCircuitOpenTimeout   time.Duration
	SportsCircuitHalfOpenMax   int
	GroqAPIKey                 string
	GroqModel                  string
	GroqFallbackModel          string
	GroqMaxRetries             int
	GroqBaseTimeout            time.Duration
	GroqTemperature            float64
	GroqMaxTokens              int
	GroqCircuitEnabled         bool
	GroqCircuitFailureCount    int
	GroqCircuitOpenTimeout     time.Duration
	GroqCircuitHalfOpenMax     int
	LogLevel                   logging.Level
}

// Load reads configuration from the environment. Provider API keys are
// optional here so the service can start and report MISSING_API_KEY per
// request instead of refusing to boot.
func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	swaggerDefault := "true"
	if appEnv == EnvProd {
		swaggerDefault = "false"
	}

	swaggerEnabled, err := strconv.ParseBool(getEnv("SWAGGER_ENABLED", swaggerDefault))
	if err != nil {
		return Config{}, fmt.Errorf("parse SWAGGER_ENABLED: %w", err)
	}

	uptraceEnabled, err := strconv.ParseBool(getEnv("UPTRACE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPTRACE_ENABLED: %w", err)
	}
	uptraceDSN := strings.TrimSpace(getEnv("UPTRACE_DSN", ""))
	if uptraceEnabled && uptraceDSN == "" {
		return Config{}, fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}

	pprofEnabled, err := strconv.ParseBool(getEnv("PPROF_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PPROF_ENABLED: %w", err)
	}
	pprofAddr := strings.TrimSpace(getEnv("PPROF_ADDR", ":6060"))
	if pprofEnabled && pprofAddr == "" {
		return Config{}, fmt.Errorf("PPROF_ADDR is required when PPROF_ENABLED=true")
	}

	pyroscopeEnabled, err := strconv.ParseBool(getEnv("PYROSCOPE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_ENABLED: %w", err)
	}
	pyroscopeServerAddress := strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", ""))
	if pyroscopeEnabled && pyroscopeServerAddress == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
	}
	pyroscopeUploadRate, err := time.ParseDuration(getEnv("PYROSCOPE_UPLOAD_RATE", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_UPLOAD_RATE: %w", err)
	}
	if pyroscopeUploadRate <= 0 {
		return Config{}, fmt.Errorf("PYROSCOPE_UPLOAD_RATE must be > 0")
	}

	dbEnabled, err := strconv.ParseBool(getEnv("DB_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse DB_ENABLED: %w", err)
	}
	dbURL := strings.TrimSpace(getEnv("DB_URL", ""))
	if dbEnabled && dbURL == "" {
		return Config{}, fmt.Errorf("DB_URL is required when DB_ENABLED=true")
	}

	sportsTimeout, err := time.ParseDuration(getEnv("API_SPORTS_TIMEOUT", "20s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse API_SPORTS_TIMEOUT: %w", err)
	}
	if sportsTimeout <= 0 {
		return Config{}, fmt.Errorf("API_SPORTS_TIMEOUT must be > 0")
	}
	sportsCacheTTL, err := time.ParseDuration(getEnv("API_SPORTS_CACHE_TTL", "24h"))
	if err != nil {
		return Config{}, fmt.Errorf("parse API_SPORTS_CACHE_TTL: %w", err)
	}
	if sportsCacheTTL <= 0 {
		return Config{}, fmt.Errorf("API_SPORTS_CACHE_TTL must be > 0")
	}
	sportsCircuitEnabled, err := strconv.ParseBool(getEnv("API_SPORTS_CIRCUIT_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse API_SPORTS_CIRCUIT_ENABLED: %w", err)
	}
	sportsCircuitFailureCount, err := getEnvAsInt("API_SPORTS_CIRCUIT_FAILURE_COUNT", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse API_SPORTS_CIRCUIT_FAILURE_COUNT: %w", err)
	}
	if sportsCircuitFailureCount < 1 {
		return Config{}, fmt.Errorf("API_SPORTS_CIRCUIT_FAILURE_COUNT must be >= 1")
	}
	sportsCircuitOpenTimeout, err := time.ParseDuration(getEnv("API_SPORTS_CIRCUIT_OPEN_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse API_SPORTS_CIRCUIT_OPEN_TIMEOUT: %w", err)
	}
	if sportsCircuitOpenTimeout <= 0 {
		return Config{}, fmt.Errorf("API_SPORTS_CIRCUIT_OPEN_TIMEOUT must be > 0")
	}
	sportsCircuitHalfOpenMax, err := getEnvAsInt("API_SPORTS_CIRCUIT_HALF_OPEN_MAX_REQ", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse API_SPORTS_CIRCUIT_HALF_OPEN_MAX_REQ: %w", err)
	}
	if sportsCircuitHalfOpenMax < 1 {
		return Config{}, fmt.Errorf("API_SPORTS_CIRCUIT_HALF_OPEN_MAX_REQ must be >= 1")
	}

	groqMaxRetries, err := getEnvAsInt("GROQ_MAX_RETRIES", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse GROQ_MAX_RETRIES: %w", err)
	}
	if groqMaxRetries < 0 {
		return Config{}, fmt.Errorf("GROQ_MAX_RETRIES must be >= 0")
	}
	groqBaseTimeout, err := time.ParseDuration(getEnv("GROQ_BASE_TIMEOUT", "20s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse GROQ_BASE_TIMEOUT: %w", err)
	}
	if groqBaseTimeout <= 0 {
		return Config{}, fmt.Errorf("GROQ_BASE_TIMEOUT must be > 0")
	}
	groqTemperature, err := getEnvAsFloat("GROQ_TEMPERATURE", 0.3)
	if err != nil {
		return Config{}, fmt.Errorf("parse GROQ_TEMPERATURE: %w", err)
	}
	if groqTemperature < 0 || groqTemperature > 2 {
		return Config{}, fmt.Errorf("GROQ_TEMPERATURE must be between 0 and 2")
	}
	groqMaxTokens, err := getEnvAsInt("GROQ_MAX_TOKENS", 1200)
	if err != nil {
		return Config{}, fmt.Errorf("parse GROQ_MAX_TOKENS: %w", err)
	}
	if groqMaxTokens < 1 {
		return Config{}, fmt.Errorf("GROQ_MAX_TOKENS must be >= 1")
	}
	groqCircuitEnabled, err := strconv.ParseBool(getEnv("GROQ_CIRCUIT_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse GROQ_CIRCUIT_ENABLED: %w", err)
	}
	groqCircuitFailureCount, err := getEnvAsInt("GROQ_CIRCUIT_FAILURE_COUNT", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse GROQ_CIRCUIT_FAILURE_COUNT: %w", err)
	}
	if groqCircuitFailureCount < 1 {
		return Config{}, fmt.Errorf("GROQ_CIRCUIT_FAILURE_COUNT must be >= 1")
	}
	groqCircuitOpenTimeout, err := time.ParseDuration(getEnv("GROQ_CIRCUIT_OPEN_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse GROQ_CIRCUIT_OPEN_TIMEOUT: %w", err)
	}
	if groqCircuitOpenTimeout <= 0 {
		return Config{}, fmt.Errorf("GROQ_CIRCUIT_OPEN_TIMEOUT must be > 0")
	}
	groqCircuitHalfOpenMax, err := getEnvAsInt("GROQ_CIRCUIT_HALF_OPEN_MAX_REQ", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse GROQ_CIRCUIT_HALF_OPEN_MAX_REQ: %w", err)
	}
	if groqCircuitHalfOpenMax < 1 {
		return Config{}, fmt.Errorf("GROQ_CIRCUIT_HALF_OPEN_MAX_REQ must be >= 1")
	}

	readTimeout, err := time.ParseDuration(getEnv("APP_READ_TIMEOUT", "10s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse APP_READ_TIMEOUT: %w", err)
	}
	writeTimeout, err := time.ParseDuration(getEnv("APP_WRITE_TIMEOUT", "60s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse APP_WRITE_TIMEOUT: %w", err)
	}

	cfg := Config{
		AppEnv:                     appEnv,
		ServiceName:                getEnv("APP_SERVICE_NAME", "matchsight-api"),
		ServiceVersion:             getEnv("APP_SERVICE_VERSION", "dev"),
		HTTPAddr:                   getEnv("APP_HTTP_ADDR", ":8080"),
		ReadTimeout:                readTimeout,
		WriteTimeout:               writeTimeout,
		CORSAllowedOrigins:         splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		SwaggerEnabled:             swaggerEnabled,
		PprofEnabled:               pprofEnabled,
		PprofAddr:                  pprofAddr,
		UptraceEnabled:             uptraceEnabled,
		UptraceDSN:                 uptraceDSN,
		PyroscopeEnabled:           pyroscopeEnabled,
		PyroscopeServerAddress:     pyroscopeServerAddress,
		PyroscopeAuthToken:         strings.TrimSpace(getEnv("PYROSCOPE_AUTH_TOKEN", "")),
		PyroscopeBasicAuthUser:     strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_USER", "")),
		PyroscopeBasicAuthPassword: strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", "")),
		PyroscopeUploadRate:        pyroscopeUploadRate,
		DBEnabled:                  dbEnabled,
		DBURL:                      dbURL,
		SportsAPIKey:               strings.TrimSpace(getEnv("API_SPORTS_KEY", "")),
		FootballBaseURL:            strings.TrimSpace(getEnv("API_FOOTBALL_BASE_URL", "")),
		SportsTimeout:              sportsTimeout,
		SportsCacheTTL:             sportsCacheTTL,
		SportsCircuitEnabled:       sportsCircuitEnabled,
		SportsCircuitFailureCount:  sportsCircuitFailureCount,
		SportsCircuitOpenTimeout:   sportsCircuitOpenTimeout,
		SportsCircuitHalfOpenMax:   sportsCircuitHalfOpenMax,
		GroqAPIKey:                 strings.TrimSpace(getEnv("GROQ_API_KEY", "")),
		GroqModel:                  strings.TrimSpace(getEnv("GROQ_MODEL", "")),
		GroqFallbackModel:          strings.TrimSpace(getEnv("GROQ_FALLBACK_MODEL", "")),
		GroqMaxRetries:             groqMaxRetries,
		GroqBaseTimeout:            groqBaseTimeout,
		GroqTemperature:            groqTemperature,
		GroqMaxTokens:              groqMaxTokens,
		GroqCircuitEnabled:         groqCircuitEnabled,
		GroqCircuitFailureCount:    groqCircuitFailureCount,
		GroqCircuitOpenTimeout:     groqCircuitOpenTimeout,
		GroqCircuitHalfOpenMax:     groqCircuitHalfOpenMax,
		LogLevel:                   parseLogLevel(getEnv("APP_LOG_LEVEL", "info")),
	}
	cfg.PyroscopeAppName = strings.TrimSpace(getEnv("PYROSCOPE_APP_NAME", cfg.ServiceName))
	if cfg.PyroscopeEnabled && cfg.PyroscopeAppName == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_APP_NAME cannot be empty when PYROSCOPE_ENABLED=true")
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		return Config{}, fmt.Errorf("CORS_ALLOWED_ORIGINS cannot be empty")
	}

	return cfg, nil
}

func parseLogLevel(v string) logging.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func getEnvAsFloat(key string, fallback float64) (float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}

	return out
}

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}
