package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	Port           string
	DatabaseURL    string
	AuthSecret     string
	StoragePath    string
	StorageBaseURL string
	GeoIPDBPath    string

	// Engine selection and credentials.
	EnginePriority    []string
	ReplicateAPIToken string
	ReplicateModel    string
	HFAPIToken        string
	HFModel           string
	LocalModelPath    string
	Device            string

	// Shared sampling parameters handed to every engine.
	Resolution        int
	NumOutputs        int
	InferenceSteps    int
	GuidanceScale     float64
	Strength          float64
	ConditioningScale float64
	MaxRetries        int
	GenerationTimeout time.Duration

	// Per-user quota settings.
	FreeDailyLimit int
	CooldownSecs   int
	HourlyCeiling  int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	CORSOrigins      []string
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		AuthSecret:     os.Getenv("AUTH_SECRET"),
		StoragePath:    getEnv("STORAGE_PATH", "./data/designs"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),
		GeoIPDBPath:    os.Getenv("GEOIP_DB_PATH"),

		EnginePriority:    splitList(getEnv("ENGINE_PRIORITY", "REPLICATE,HF_INFERENCE,LOCAL_SDXL,STANDALONE")),
		ReplicateAPIToken: os.Getenv("REPLICATE_API_TOKEN"),
		ReplicateModel:    os.Getenv("REPLICATE_MODEL"),
		HFAPIToken:        os.Getenv("HF_API_TOKEN"),
		HFModel:           os.Getenv("HF_MODEL"),
		LocalModelPath:    getEnv("LOCAL_MODEL_PATH", "./models/sdxl"),
		Device:            getEnv("DEVICE", "cpu"),

		Resolution:        getEnvInt("RESOLUTION", 512),
		NumOutputs:        getEnvInt("NUM_OUTPUTS", 3),
		InferenceSteps:    getEnvInt("NUM_INFERENCE_STEPS", 30),
		GuidanceScale:     getEnvFloat("GUIDANCE_SCALE", 7.5),
		Strength:          getEnvFloat("STRENGTH", 0.8),
		ConditioningScale: getEnvFloat("CONDITIONING_SCALE", 0.9),
		MaxRetries:        getEnvInt("MAX_RETRIES", 3),
		GenerationTimeout: time.Second * time.Duration(getEnvInt("GENERATION_TIMEOUT_SECONDS", 120)),

		FreeDailyLimit: getEnvInt("FREE_DAILY_LIMIT", 5),
		CooldownSecs:   getEnvInt("COOLDOWN_SECONDS", 30),
		HourlyCeiling:  getEnvInt("HOURLY_CEILING", 0),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 180)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSOrigins:      splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.AuthSecret == "" {
		return nil, fmt.Errorf("AUTH_SECRET is required")
	}
	if len(cfg.EnginePriority) == 0 {
		return nil, fmt.Errorf("ENGINE_PRIORITY must list at least one engine")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
