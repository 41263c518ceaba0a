package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/darthrootbeer/movie-heat/internal/domain"
)

const (
	configPathEnv     = "MOVIEHEAT_CONFIG"
	logLevelEnv       = "MOVIEHEAT_LOG_LEVEL"
	omdbAPIKeyEnv     = "OMDB_API_KEY"
	tmdbAPIKeyEnv     = "TMDB_API_KEY"
	databaseDSNEnv    = "DATABASE_DSN"
	redisAddrEnv      = "REDIS_ADDR"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"

	dotEnvFile = ".env"
)

// Provider kinds understood by the application wiring.
const (
	KindOMDbIMDb       = "omdb-imdb"
	KindOMDbMetacritic = "omdb-metacritic"
	KindTMDB           = "tmdb"
	KindRTCritics      = "rt-critics"
	KindRTAudience     = "rt-audience"
	KindLetterboxd     = "letterboxd"
	KindCinemaScore    = "cinemascore"
)

// Cache backends.
const (
	CacheMemory   = "memory"
	CacheSQLite   = "sqlite"
	CachePostgres = "postgres"
	CacheRedis    = "redis"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Engine        EngineConfig       `yaml:"engine"`
	Providers     []ProviderConfig   `yaml:"providers"`
	Cache         CacheConfig        `yaml:"cache"`
	Catalog       CatalogConfig      `yaml:"catalog"`
	Server        ServerConfig       `yaml:"server"`
	Schedule      ScheduleConfig     `yaml:"schedule"`
	Notifications NotificationConfig `yaml:"notifications"`
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EngineConfig tunes fetching, matching and aggregation.
type EngineConfig struct {
	Concurrency  int            `yaml:"concurrency"`
	BatchTimeout time.Duration  `yaml:"batchTimeout"`
	MinSources   int            `yaml:"minSources"`
	Retry        RetryConfig    `yaml:"retry"`
	Matching     MatchingConfig `yaml:"matching"`
}

// RetryConfig bounds retries of transient provider failures.
type RetryConfig struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseDelay   time.Duration `yaml:"baseDelay"`
	MaxDelay    time.Duration `yaml:"maxDelay"`
}

// MatchingConfig holds entity-resolution thresholds.
type MatchingConfig struct {
	YearWindow          int     `yaml:"yearWindow"`
	SimilarityThreshold float64 `yaml:"similarityThreshold"`
	AmbiguityEpsilon    float64 `yaml:"ambiguityEpsilon"`
}

// ProviderConfig describes one rating provider.
type ProviderConfig struct {
	ID          string        `yaml:"id"`
	Kind        string        `yaml:"kind"`
	Enabled     *bool         `yaml:"enabled"`
	Weight      float64       `yaml:"weight"`
	TTL         time.Duration `yaml:"ttl"`
	Endpoint    string        `yaml:"endpoint"`
	APIKey      string        `yaml:"apiKey"`
	MaxInFlight int           `yaml:"maxInFlight"`
}

// IsEnabled treats an unset flag as enabled.
func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// CacheConfig picks the record store.
type CacheConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	DSN           string `yaml:"dsn"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDb"`
}

// CatalogConfig filters the TMDB latest-releases lookup.
type CatalogConfig struct {
	APIKey       string `yaml:"apiKey"`
	Region       string `yaml:"region"`
	Language     string `yaml:"language"`
	WindowDays   int    `yaml:"windowDays"`
	ReleaseTypes string `yaml:"releaseTypes"`
	MinRuntime   int    `yaml:"minRuntime"`
	MinVotes     int    `yaml:"minVotes"`
	Limit        int    `yaml:"limit"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ScheduleConfig defines how often the latest-releases run repeats.
type ScheduleConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Enabled reports whether both credentials are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// Load reads .env, the YAML file at path (or $MOVIEHEAT_CONFIG) and
// environment overrides, then validates the result.
func Load(path string) (Config, error) {
	if err := loadDotEnv(dotEnvFile); err != nil {
		return Config{}, err
	}

	cfg := defaultConfig()
	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		var fileCfg Config
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg = mergeConfig(cfg, fileCfg)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadDotEnv sets variables from path that are not already set. A missing
// file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	omdbKey := os.Getenv(omdbAPIKeyEnv)
	tmdbKey := os.Getenv(tmdbAPIKeyEnv)
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.APIKey != "" {
			continue
		}
		switch p.Kind {
		case KindOMDbIMDb, KindOMDbMetacritic:
			p.APIKey = omdbKey
		case KindTMDB:
			p.APIKey = tmdbKey
		}
	}
	if c.Catalog.APIKey == "" {
		c.Catalog.APIKey = tmdbKey
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Cache.DSN = v
	}
	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Cache.RedisAddr = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

// EnabledProviders returns the providers that take part in a run, in
// configuration order.
func (c Config) EnabledProviders() []ProviderConfig {
	out := make([]ProviderConfig, 0, len(c.Providers))
	for _, p := range c.Providers {
		if p.IsEnabled() {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports every configuration problem at once, wrapped in
// domain.ErrConfiguration.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		add("logging.format %q must be text or json", c.Logging.Format)
	}

	if c.Engine.Concurrency <= 0 {
		add("engine.concurrency must be positive")
	}
	if c.Engine.Retry.MaxAttempts < 1 {
		add("engine.retry.maxAttempts must be at least 1")
	}
	if c.Engine.Retry.BaseDelay < 0 || c.Engine.Retry.MaxDelay < 0 {
		add("engine.retry delays must not be negative")
	}
	if t := c.Engine.Matching.SimilarityThreshold; t <= 0 || t > 1 {
		add("engine.matching.similarityThreshold %v must be in (0,1]", t)
	}
	if c.Engine.Matching.YearWindow < 0 {
		add("engine.matching.yearWindow must not be negative")
	}

	enabled := c.EnabledProviders()
	if len(enabled) == 0 {
		add("at least one provider must be enabled")
	}
	seen := make(map[string]struct{}, len(enabled))
	for _, p := range enabled {
		name := p.ID
		if name == "" {
			add("provider of kind %q has no id", p.Kind)
			name = p.Kind
		}
		if _, dup := seen[name]; dup {
			add("provider %q configured twice", name)
		}
		seen[name] = struct{}{}

		switch p.Kind {
		case KindOMDbIMDb, KindOMDbMetacritic, KindTMDB:
			if p.APIKey == "" {
				add("provider %q needs an api key", name)
			}
		case KindRTCritics, KindRTAudience, KindLetterboxd, KindCinemaScore:
		default:
			add("provider %q has unknown kind %q", name, p.Kind)
		}
		if p.Weight <= 0 || p.Weight > 1 {
			add("provider %q weight %v must be in (0,1]", name, p.Weight)
		}
		if p.TTL <= 0 {
			add("provider %q ttl must be positive", name)
		}
		if p.MaxInFlight < 0 {
			add("provider %q maxInFlight must not be negative", name)
		}
	}

	switch c.Cache.Backend {
	case CacheMemory:
	case CacheSQLite:
		if c.Cache.Path == "" {
			add("cache.path is required for the sqlite backend")
		}
	case CachePostgres:
		if c.Cache.DSN == "" {
			add("cache.dsn (or %s) is required for the postgres backend", databaseDSNEnv)
		}
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			add("cache.redisAddr (or %s) is required for the redis backend", redisAddrEnv)
		}
	default:
		add("unknown cache backend %q", c.Cache.Backend)
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrConfiguration, strings.Join(problems, "; "))
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Engine.Concurrency != 0 {
		base.Engine.Concurrency = override.Engine.Concurrency
	}
	if override.Engine.BatchTimeout != 0 {
		base.Engine.BatchTimeout = override.Engine.BatchTimeout
	}
	if override.Engine.MinSources != 0 {
		base.Engine.MinSources = override.Engine.MinSources
	}
	if override.Engine.Retry.MaxAttempts != 0 {
		base.Engine.Retry.MaxAttempts = override.Engine.Retry.MaxAttempts
	}
	if override.Engine.Retry.BaseDelay != 0 {
		base.Engine.Retry.BaseDelay = override.Engine.Retry.BaseDelay
	}
	if override.Engine.Retry.MaxDelay != 0 {
		base.Engine.Retry.MaxDelay = override.Engine.Retry.MaxDelay
	}
	if override.Engine.Matching.YearWindow != 0 {
		base.Engine.Matching.YearWindow = override.Engine.Matching.YearWindow
	}
	if override.Engine.Matching.SimilarityThreshold != 0 {
		base.Engine.Matching.SimilarityThreshold = override.Engine.Matching.SimilarityThreshold
	}
	if override.Engine.Matching.AmbiguityEpsilon != 0 {
		base.Engine.Matching.AmbiguityEpsilon = override.Engine.Matching.AmbiguityEpsilon
	}

	if len(override.Providers) > 0 {
		base.Providers = mergeProviders(override.Providers)
	}

	if override.Cache.Backend != "" {
		base.Cache.Backend = override.Cache.Backend
	}
	if override.Cache.Path != "" {
		base.Cache.Path = override.Cache.Path
	}
	if override.Cache.DSN != "" {
		base.Cache.DSN = override.Cache.DSN
	}
	if override.Cache.RedisAddr != "" {
		base.Cache.RedisAddr = override.Cache.RedisAddr
	}
	if override.Cache.RedisPassword != "" {
		base.Cache.RedisPassword = override.Cache.RedisPassword
	}
	if override.Cache.RedisDB != 0 {
		base.Cache.RedisDB = override.Cache.RedisDB
	}

	if override.Catalog.APIKey != "" {
		base.Catalog.APIKey = override.Catalog.APIKey
	}
	if override.Catalog.Region != "" {
		base.Catalog.Region = override.Catalog.Region
	}
	if override.Catalog.Language != "" {
		base.Catalog.Language = override.Catalog.Language
	}
	if override.Catalog.WindowDays != 0 {
		base.Catalog.WindowDays = override.Catalog.WindowDays
	}
	if override.Catalog.ReleaseTypes != "" {
		base.Catalog.ReleaseTypes = override.Catalog.ReleaseTypes
	}
	if override.Catalog.MinRuntime != 0 {
		base.Catalog.MinRuntime = override.Catalog.MinRuntime
	}
	if override.Catalog.MinVotes != 0 {
		base.Catalog.MinVotes = override.Catalog.MinVotes
	}
	if override.Catalog.Limit != 0 {
		base.Catalog.Limit = override.Catalog.Limit
	}

	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}
	if override.Schedule.Interval != 0 {
		base.Schedule.Interval = override.Schedule.Interval
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	return base
}

// mergeProviders fills unset fields of configured providers from the stock
// provider of the same kind. Configured providers replace the stock list.
func mergeProviders(configured []ProviderConfig) []ProviderConfig {
	stock := make(map[string]ProviderConfig)
	for _, p := range defaultProviders() {
		stock[p.Kind] = p
	}

	out := make([]ProviderConfig, 0, len(configured))
	for _, p := range configured {
		if def, ok := stock[p.Kind]; ok {
			if p.ID == "" {
				p.ID = def.ID
			}
			if p.Weight == 0 {
				p.Weight = def.Weight
			}
			if p.TTL == 0 {
				p.TTL = def.TTL
			}
			if p.MaxInFlight == 0 {
				p.MaxInFlight = def.MaxInFlight
			}
		}
		out = append(out, p)
	}
	return out
}

func defaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{ID: "imdb", Kind: KindOMDbIMDb, Weight: 1.0, TTL: 24 * time.Hour, MaxInFlight: 4},
		{ID: "metacritic", Kind: KindOMDbMetacritic, Weight: 0.9, TTL: 24 * time.Hour, MaxInFlight: 4},
		{ID: "tmdb", Kind: KindTMDB, Weight: 0.7, TTL: 12 * time.Hour, MaxInFlight: 4},
		{ID: "rt-critics", Kind: KindRTCritics, Weight: 1.0, TTL: 12 * time.Hour, MaxInFlight: 2},
		{ID: "rt-audience", Kind: KindRTAudience, Weight: 0.8, TTL: 12 * time.Hour, MaxInFlight: 2},
		{ID: "letterboxd", Kind: KindLetterboxd, Weight: 0.7, TTL: 12 * time.Hour, MaxInFlight: 2},
		{ID: "cinemascore", Kind: KindCinemaScore, Weight: 0.8, TTL: 72 * time.Hour, MaxInFlight: 2},
	}
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Engine: EngineConfig{
			Concurrency:  8,
			BatchTimeout: 2 * time.Minute,
			MinSources:   1,
			Retry:        RetryConfig{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second},
			Matching:     MatchingConfig{YearWindow: 1, SimilarityThreshold: 0.7, AmbiguityEpsilon: 0.05},
		},
		Providers: defaultProviders(),
		Cache:     CacheConfig{Backend: CacheSQLite, Path: "movieheat.db"},
		Catalog: CatalogConfig{
			Region:       "US",
			Language:     "en-US",
			WindowDays:   7,
			ReleaseTypes: "2|3",
			MinRuntime:   40,
			MinVotes:     5,
			Limit:        15,
		},
		Server:   ServerConfig{Addr: ":8080"},
		Schedule: ScheduleConfig{Interval: 24 * time.Hour},
	}
}
