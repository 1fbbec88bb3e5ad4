package config

import (
	"time"

	"github.com/arre-ops/arre_server/cmd/utils"
)

type Config struct {
	PublicHost string
	ListenAddr string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	SSLMode    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// External collaborators
	TaskStoreURL string
	LLMAgentURL  string

	// Auth
	AuthMode   string // "none", "bearer", "trusted_header"
	APIToken   string
	AdminToken string

	// Routing defaults
	DefaultWorkspace string
	// Dedup interval applied to AI-selected tooltasks that carry no trigger rule
	AIDedupInterval time.Duration

	// Request deadlines per mode
	ProcessDeadline    time.Duration
	AutonomousDeadline time.Duration

	// AI selector knobs
	VectorTopK          int
	VectorCandidatePool int
	SimilarityFloor     float64
	LLMSelectTimeout    time.Duration
	LLMPlanTimeout      time.Duration

	// Matcher index staleness window
	MatcherStaleness time.Duration

	// APM Configuration
	DDService   string
	DDEnv       string
	DDVersion   string
	DDAgentHost string
}

// Load reads configuration from the environment. Called after any .env
// file has been loaded so both sources are visible.
func Load() Config {
	return Config{
		PublicHost: utils.GetEnv("PUBLIC_HOST", "http://localhost"),
		ListenAddr: utils.GetEnv("LISTEN_ADDR", ":8080"),

		DBHost:     utils.GetEnv("DB_HOST", "localhost"),
		DBPort:     utils.GetEnv("DB_PORT", "5432"),
		DBUser:     utils.GetEnv("DB_USER", "arre"),
		DBPassword: utils.GetEnv("DB_PASSWORD", "arrepassword"),
		DBName:     utils.GetEnv("DB_NAME", "arre"),
		SSLMode:    utils.GetEnv("DB_SSLMODE", "disable"),

		RedisAddr:     utils.GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: utils.GetEnv("REDIS_PASSWORD", ""),
		RedisDB:       utils.GetEnvInt("REDIS_DB", 0),

		TaskStoreURL: utils.GetEnv("TASK_STORE_URL", "http://localhost:9090"),
		LLMAgentURL:  utils.GetEnv("LLM_AGENT_URL", "http://localhost:9000"),

		AuthMode:   utils.GetEnv("ARRE_AUTH_MODE", "none"),
		APIToken:   utils.GetEnv("ARRE_API_TOKEN", ""),
		AdminToken: utils.GetEnv("ARRE_ADMIN_TOKEN", ""),

		DefaultWorkspace: utils.GetEnv("ARRE_DEFAULT_WORKSPACE", "default"),
		AIDedupInterval:  utils.GetEnvDuration("ARRE_AI_DEDUP_INTERVAL", 5*time.Minute),

		ProcessDeadline:    utils.GetEnvDuration("ARRE_PROCESS_DEADLINE", 60*time.Second),
		AutonomousDeadline: utils.GetEnvDuration("ARRE_AUTONOMOUS_DEADLINE", 120*time.Second),

		VectorTopK:          utils.GetEnvInt("ARRE_VECTOR_TOP_K", 3),
		VectorCandidatePool: utils.GetEnvInt("ARRE_VECTOR_POOL", 10),
		SimilarityFloor:     utils.GetEnvFloat("ARRE_SIMILARITY_FLOOR", 0.70),
		LLMSelectTimeout:    utils.GetEnvDuration("ARRE_LLM_SELECT_TIMEOUT", 20*time.Second),
		LLMPlanTimeout:      utils.GetEnvDuration("ARRE_LLM_PLAN_TIMEOUT", 60*time.Second),

		MatcherStaleness: utils.GetEnvDuration("ARRE_MATCHER_STALENESS", 60*time.Second),

		DDService:   utils.GetEnv("DD_SERVICE", "arre"),
		DDEnv:       utils.GetEnv("DD_ENV", "development"),
		DDVersion:   utils.GetEnv("DD_VERSION", "1.0.0"),
		DDAgentHost: utils.GetEnv("DD_AGENT_HOST", "localhost"),
	}
}
