package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/riskibarqy/manager-sync/internal/platform/logging"
)

const (
	BudgetStorePostgres = "postgres"
	BudgetStoreRedis    = "redis"
	BudgetStoreMemory   = "memory"
)

// Config stores runtime configuration for the service.
type Config struct {
	AppEnv                         string
	ServiceName                    string
	ServiceVersion                 string
	HTTPAddr                       string
	ReadTimeout                    time.Duration
	WriteTimeout                   time.Duration
	ShutdownTimeout                time.Duration
	LogLevel                       logging.Level
	DBURL                          string
	DBDisablePreparedBinary        bool
	InternalJobToken               string
	PartnerAPIBaseURL              string
	PartnerAPIKey                  string
	PartnerAPITimeout              time.Duration
	PartnerAPISlowThreshold        time.Duration
	PartnerAPIMaxRetries           int
	PartnerAPIRateLimitMaxRetries  int
	PartnerAPIBackoffBase          time.Duration
	PartnerAPIMaxBackoff           time.Duration
	PartnerAPIRateLimitDefaultWait time.Duration
	PartnerAPIRateLimitMaxWait     time.Duration
	PartnerAPIPageSize             int
	PartnerAPIPageDelay            time.Duration
	PartnerAPICircuitEnabled       bool
	PartnerAPICircuitFailureCount  int
	PartnerAPICircuitOpenTimeout   time.Duration
	PartnerAPICircuitHalfOpenMax   int
	PartnerAPIValidateCacheTTL     time.Duration
	APIBudgetDailyLimit            int64
	APIBudgetReserve               int64
	APIBudgetStore                 string
	RedisAddr                      string
	RedisPassword                  string
	RedisDB                        int
	SyncBatchSize                  int
	SchedulerEnabled               bool
	SchedulerInterval              time.Duration
	ScheduleCriticalLead           time.Duration
	ScheduleCriticalLag            time.Duration
	ScheduleCriticalInterval       time.Duration
	BootstrapGames                 []BootstrapGame
	SyncEventsEnabled              bool
	KafkaBrokers                   []string
	KafkaSyncTopic                 string
	UptraceEnabled                 bool
	UptraceDSN                     string
	PyroscopeEnabled               bool
	PyroscopeServerAddress         string
	PyroscopeAppName               string
	PyroscopeAuthToken             string
	PyroscopeBasicAuthUser         string
	PyroscopeBasicAuthPassword     string
	PyroscopeUploadRate            time.Duration
	PprofEnabled                   bool
	PprofAddr                      string
}

// BootstrapGame is a game registered at startup so a fresh store has
// something to sync.
type BootstrapGame struct {
	SubsiteKey          string
	GameKey             string
	SyncIntervalMinutes int
}

// UsesDatabase reports whether repositories are backed by Postgres. An empty
// DB_URL runs everything in memory.
func (c Config) UsesDatabase() bool {
	return strings.TrimSpace(c.DBURL) != ""
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:                 appEnv,
		ServiceName:            getEnv("APP_SERVICE_NAME", "manager-sync"),
		ServiceVersion:         getEnv("APP_SERVICE_VERSION", "dev"),
		HTTPAddr:               getEnv("APP_HTTP_ADDR", ":8080"),
		LogLevel:               logging.ParseLevel(getEnv("APP_LOG_LEVEL", "info")),
		DBURL:                  strings.TrimSpace(getEnv("DB_URL", "")),
		InternalJobToken:       strings.TrimSpace(getEnv("INTERNAL_JOB_TOKEN", "")),
		PartnerAPIBaseURL:      strings.TrimSpace(getEnv("PARTNER_API_BASE_URL", "")),
		PartnerAPIKey:          strings.TrimSpace(getEnv("PARTNER_API_KEY", "")),
		RedisAddr:              strings.TrimSpace(getEnv("REDIS_ADDR", "localhost:6379")),
		RedisPassword:          getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:           splitCSV(getEnv("KAFKA_BROKERS", "")),
		KafkaSyncTopic:         strings.TrimSpace(getEnv("KAFKA_SYNC_TOPIC", "manager-sync.game-synced")),
		PyroscopeServerAddress: strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", "")),
		PyroscopeAuthToken:     strings.TrimSpace(getEnv("PYROSCOPE_AUTH_TOKEN", "")),
		PyroscopeBasicAuthUser: strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_USER", "")),
		PprofAddr:              strings.TrimSpace(getEnv("PPROF_ADDR", ":6060")),
	}
	cfg.PyroscopeBasicAuthPassword = strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", ""))
	cfg.PyroscopeAppName = strings.TrimSpace(getEnv("PYROSCOPE_APP_NAME", cfg.ServiceName))

	durations := []struct {
		key       string
		fallback  string
		dst       *time.Duration
		allowZero bool
	}{
		{key: "APP_READ_TIMEOUT", fallback: "10s", dst: &cfg.ReadTimeout},
		{key: "APP_WRITE_TIMEOUT", fallback: "15m", dst: &cfg.WriteTimeout},
		{key: "APP_SHUTDOWN_TIMEOUT", fallback: "30s", dst: &cfg.ShutdownTimeout},
		{key: "PARTNER_API_TIMEOUT", fallback: "30s", dst: &cfg.PartnerAPITimeout},
		{key: "PARTNER_API_SLOW_THRESHOLD", fallback: "5s", dst: &cfg.PartnerAPISlowThreshold},
		{key: "PARTNER_API_BACKOFF_BASE", fallback: "1s", dst: &cfg.PartnerAPIBackoffBase},
		{key: "PARTNER_API_MAX_BACKOFF", fallback: "1m", dst: &cfg.PartnerAPIMaxBackoff},
		{key: "PARTNER_API_RATE_LIMIT_DEFAULT_WAIT", fallback: "10s", dst: &cfg.PartnerAPIRateLimitDefaultWait},
		{key: "PARTNER_API_RATE_LIMIT_MAX_WAIT", fallback: "1m", dst: &cfg.PartnerAPIRateLimitMaxWait},
		{key: "PARTNER_API_PAGE_DELAY", fallback: "200ms", dst: &cfg.PartnerAPIPageDelay, allowZero: true},
		{key: "PARTNER_API_CIRCUIT_OPEN_TIMEOUT", fallback: "30s", dst: &cfg.PartnerAPICircuitOpenTimeout},
		{key: "PARTNER_API_VALIDATE_CACHE_TTL", fallback: "5m", dst: &cfg.PartnerAPIValidateCacheTTL, allowZero: true},
		{key: "SCHEDULER_INTERVAL", fallback: "1m", dst: &cfg.SchedulerInterval},
		{key: "SCHEDULE_CRITICAL_LEAD", fallback: "1h", dst: &cfg.ScheduleCriticalLead, allowZero: true},
		{key: "SCHEDULE_CRITICAL_LAG", fallback: "30m", dst: &cfg.ScheduleCriticalLag, allowZero: true},
		{key: "SCHEDULE_CRITICAL_INTERVAL", fallback: "5m", dst: &cfg.ScheduleCriticalInterval},
		{key: "PYROSCOPE_UPLOAD_RATE", fallback: "15s", dst: &cfg.PyroscopeUploadRate},
	}
	for _, d := range durations {
		value, err := time.ParseDuration(getEnv(d.key, d.fallback))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		if value < 0 || (value == 0 && !d.allowZero) {
			return Config{}, fmt.Errorf("%s must be > 0", d.key)
		}
		*d.dst = value
	}

	ints := []struct {
		key      string
		fallback int
		min      int
		dst      *int
	}{
		{key: "PARTNER_API_MAX_RETRIES", fallback: 3, min: 0, dst: &cfg.PartnerAPIMaxRetries},
		{key: "PARTNER_API_RATE_LIMIT_MAX_RETRIES", fallback: 2, min: 0, dst: &cfg.PartnerAPIRateLimitMaxRetries},
		{key: "PARTNER_API_PAGE_SIZE", fallback: 100, min: 1, dst: &cfg.PartnerAPIPageSize},
		{key: "PARTNER_API_CIRCUIT_FAILURE_COUNT", fallback: 5, min: 1, dst: &cfg.PartnerAPICircuitFailureCount},
		{key: "PARTNER_API_CIRCUIT_HALF_OPEN_MAX_REQ", fallback: 1, min: 1, dst: &cfg.PartnerAPICircuitHalfOpenMax},
		{key: "REDIS_DB", fallback: 0, min: 0, dst: &cfg.RedisDB},
		{key: "SYNC_BATCH_SIZE", fallback: 100, min: 1, dst: &cfg.SyncBatchSize},
	}
	for _, item := range ints {
		value, err := getEnvAsInt(item.key, item.fallback)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", item.key, err)
		}
		if value < item.min {
			return Config{}, fmt.Errorf("%s must be >= %d", item.key, item.min)
		}
		*item.dst = value
	}

	bools := []struct {
		key      string
		fallback string
		dst      *bool
	}{
		{key: "DB_DISABLE_PREPARED_BINARY_RESULT", fallback: "true", dst: &cfg.DBDisablePreparedBinary},
		{key: "PARTNER_API_CIRCUIT_ENABLED", fallback: "true", dst: &cfg.PartnerAPICircuitEnabled},
		{key: "SCHEDULER_ENABLED", fallback: "true", dst: &cfg.SchedulerEnabled},
		{key: "SYNC_EVENTS_ENABLED", fallback: "false", dst: &cfg.SyncEventsEnabled},
		{key: "UPTRACE_ENABLED", fallback: "false", dst: &cfg.UptraceEnabled},
		{key: "PYROSCOPE_ENABLED", fallback: "false", dst: &cfg.PyroscopeEnabled},
		{key: "PPROF_ENABLED", fallback: "false", dst: &cfg.PprofEnabled},
	}
	for _, b := range bools {
		value, err := strconv.ParseBool(getEnv(b.key, b.fallback))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", b.key, err)
		}
		*b.dst = value
	}

	dailyLimit, err := getEnvAsInt64("API_BUDGET_DAILY_LIMIT", 1000)
	if err != nil {
		return Config{}, fmt.Errorf("parse API_BUDGET_DAILY_LIMIT: %w", err)
	}
	if dailyLimit < 1 {
		return Config{}, fmt.Errorf("API_BUDGET_DAILY_LIMIT must be >= 1")
	}
	reserve, err := getEnvAsInt64("API_BUDGET_RESERVE", 50)
	if err != nil {
		return Config{}, fmt.Errorf("parse API_BUDGET_RESERVE: %w", err)
	}
	if reserve < 0 || reserve > dailyLimit {
		return Config{}, fmt.Errorf("API_BUDGET_RESERVE must be between 0 and API_BUDGET_DAILY_LIMIT")
	}
	cfg.APIBudgetDailyLimit = dailyLimit
	cfg.APIBudgetReserve = reserve

	defaultStore := BudgetStoreMemory
	if cfg.UsesDatabase() {
		defaultStore = BudgetStorePostgres
	}
	cfg.APIBudgetStore, err = parseBudgetStore(getEnv("API_BUDGET_STORE", defaultStore))
	if err != nil {
		return Config{}, err
	}
	if cfg.APIBudgetStore == BudgetStorePostgres && !cfg.UsesDatabase() {
		return Config{}, fmt.Errorf("DB_URL is required when API_BUDGET_STORE=postgres")
	}
	if cfg.APIBudgetStore == BudgetStoreRedis && cfg.RedisAddr == "" {
		return Config{}, fmt.Errorf("REDIS_ADDR is required when API_BUDGET_STORE=redis")
	}

	cfg.BootstrapGames, err = parseBootstrapGames(getEnv("BOOTSTRAP_GAMES", ""))
	if err != nil {
		return Config{}, fmt.Errorf("parse BOOTSTRAP_GAMES: %w", err)
	}

	if cfg.PartnerAPIBaseURL == "" {
		return Config{}, fmt.Errorf("PARTNER_API_BASE_URL is required")
	}
	if cfg.PartnerAPIKey == "" {
		return Config{}, fmt.Errorf("PARTNER_API_KEY is required")
	}
	if cfg.PartnerAPIRateLimitMaxWait < cfg.PartnerAPIRateLimitDefaultWait {
		return Config{}, fmt.Errorf("PARTNER_API_RATE_LIMIT_MAX_WAIT must be >= PARTNER_API_RATE_LIMIT_DEFAULT_WAIT")
	}
	// 0 disables 429 retries; otherwise the 429 ceiling stays below the generic one.
	if cfg.PartnerAPIRateLimitMaxRetries > 0 && cfg.PartnerAPIRateLimitMaxRetries >= cfg.PartnerAPIMaxRetries {
		return Config{}, fmt.Errorf("PARTNER_API_RATE_LIMIT_MAX_RETRIES must be < PARTNER_API_MAX_RETRIES")
	}
	if appEnv == EnvProd && cfg.InternalJobToken == "" {
		return Config{}, fmt.Errorf("INTERNAL_JOB_TOKEN is required when APP_ENV=prod")
	}
	if cfg.SyncEventsEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return Config{}, fmt.Errorf("KAFKA_BROKERS is required when SYNC_EVENTS_ENABLED=true")
		}
		if cfg.KafkaSyncTopic == "" {
			return Config{}, fmt.Errorf("KAFKA_SYNC_TOPIC is required when SYNC_EVENTS_ENABLED=true")
		}
	}

	cfg.UptraceDSN = strings.TrimSpace(getEnv("UPTRACE_DSN", ""))
	if cfg.UptraceDSN == "" {
		cfg.UptraceDSN = parseUptraceDSNFromOTLPHeaders(getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""))
	}
	if cfg.UptraceEnabled && cfg.UptraceDSN == "" {
		return Config{}, fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}
	if cfg.PyroscopeEnabled && cfg.PyroscopeServerAddress == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
	}
	if cfg.PyroscopeEnabled && cfg.PyroscopeAppName == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_APP_NAME cannot be empty when PYROSCOPE_ENABLED=true")
	}
	if cfg.PprofEnabled && cfg.PprofAddr == "" {
		return Config{}, fmt.Errorf("PPROF_ADDR is required when PPROF_ENABLED=true")
	}

	return cfg, nil
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

func getEnvAsInt64(key string, fallback int64) (int64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	return strconv.ParseInt(value, 10, 64)
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

// parseBootstrapGames reads "subsite/game:minutes" items separated by commas.
// The interval defaults to 60 minutes when omitted.
func parseBootstrapGames(raw string) ([]BootstrapGame, error) {
	var out []BootstrapGame
	for _, item := range splitCSV(raw) {
		ref, minutesText, hasMinutes := strings.Cut(item, ":")
		subsite, gameKey, ok := strings.Cut(strings.TrimSpace(ref), "/")
		subsite, gameKey = strings.TrimSpace(subsite), strings.TrimSpace(gameKey)
		if !ok || subsite == "" || gameKey == "" {
			return nil, fmt.Errorf("invalid item %q, expected subsite/game[:minutes]", item)
		}

		minutes := 60
		if hasMinutes {
			value, err := strconv.Atoi(strings.TrimSpace(minutesText))
			if err != nil {
				return nil, fmt.Errorf("invalid interval in item %q: %w", item, err)
			}
			minutes = value
		}

		out = append(out, BootstrapGame{
			SubsiteKey:          subsite,
			GameKey:             gameKey,
			SyncIntervalMinutes: minutes,
		})
	}
	return out, nil
}

func parseBudgetStore(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case BudgetStorePostgres, BudgetStoreRedis, BudgetStoreMemory:
		return value, nil
	default:
		return "", fmt.Errorf("invalid API_BUDGET_STORE %q: valid values are %s, %s, %s", v, BudgetStorePostgres, BudgetStoreRedis, BudgetStoreMemory)
	}
}

func parseUptraceDSNFromOTLPHeaders(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	items := strings.Split(raw, ",")
	for _, item := range items {
		parts := strings.SplitN(strings.TrimSpace(item), "=", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(parts[0]), "uptrace-dsn") {
			value := strings.TrimSpace(parts[1])
			return strings.Trim(value, "\"'")
		}
	}

	return ""
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
