package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

const (
	DefaultNewsSourceURL  = "https://www.cls.cn/nodeapi/telegraphList"
	DefaultOpenAIBaseURL  = "https://api.deepseek.com"
	DefaultOpenAIModel    = "deepseek-chat"
	DefaultAnthropicModel = "claude-sonnet-4-5-20250929"
)

type Config struct {
	LLMProvider         string `yaml:"llm_provider"`
	LLMModel            string `yaml:"llm_model"`
	LLMAPIKey           string `yaml:"llm_api_key"`
	LLMBaseURL          string `yaml:"llm_base_url"`
	LLMChunkSize        int    `yaml:"llm_chunk_size"`
	LLMChunkDelayMillis int    `yaml:"llm_chunk_delay_ms"`
	LLMMaxTokens        int    `yaml:"llm_max_tokens"`
	ClassifyMaxAttempts int    `yaml:"classify_max_attempts"`
	// Manual override; when empty the rolling hot-sector context is used.
	MarketContext string `yaml:"market_context"`
	TaxonomyPath  string `yaml:"taxonomy_path"`

	NewsSourceURL           string   `yaml:"news_source_url"`
	FetchLimit              int      `yaml:"fetch_limit"`
	BackfillCount           int      `yaml:"backfill_count"`
	PollIntervalMinutes     int      `yaml:"poll_interval_minutes"`
	BriefTimes              []string `yaml:"brief_times"`
	SchedulerBackoffSeconds int      `yaml:"scheduler_backoff_seconds"`
	SeenCapacity            int      `yaml:"seen_capacity"`

	DBPath                     string `yaml:"db_path"`
	BriefOutputDir             string `yaml:"brief_output_dir"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`

	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackChannelID string `yaml:"slack_channel_id"`
	MetricsAddr    string `yaml:"metrics_addr"`

	Timezone string         `yaml:"timezone"`
	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

func LoadConfig() Config {
	var cfg Config

	// .env is optional; real env vars always win.
	_ = godotenv.Load()

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.LLMAPIKey, "LLM_API_KEY")
	envOverride(&cfg.LLMBaseURL, "LLM_BASE_URL")
	envOverrideInt(&cfg.LLMChunkSize, "LLM_CHUNK_SIZE")
	envOverrideInt(&cfg.LLMChunkDelayMillis, "LLM_CHUNK_DELAY_MS")
	envOverrideInt(&cfg.LLMMaxTokens, "LLM_MAX_TOKENS")
	envOverrideInt(&cfg.ClassifyMaxAttempts, "CLASSIFY_MAX_ATTEMPTS")
	envOverrideAllowEmpty(&cfg.MarketContext, "MARKET_CONTEXT")
	envOverride(&cfg.TaxonomyPath, "TAXONOMY_PATH")
	envOverride(&cfg.NewsSourceURL, "NEWS_SOURCE_URL")
	envOverrideInt(&cfg.FetchLimit, "FETCH_LIMIT")
	envOverrideInt(&cfg.BackfillCount, "BACKFILL_COUNT")
	envOverrideInt(&cfg.PollIntervalMinutes, "POLL_INTERVAL_MINUTES")
	envOverrideInt(&cfg.SchedulerBackoffSeconds, "SCHEDULER_BACKOFF_SECONDS")
	envOverrideInt(&cfg.SeenCapacity, "SEEN_CAPACITY")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.BriefOutputDir, "BRIEF_OUTPUT_DIR")
	envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverride(&cfg.MetricsAddr, "METRICS_ADDR")
	envOverride(&cfg.Timezone, "TIMEZONE")

	// Provider-specific key names are accepted for convenience.
	if cfg.LLMAPIKey == "" {
		envOverride(&cfg.LLMAPIKey, "DEEPSEEK_API_KEY")
	}
	if cfg.LLMAPIKey == "" {
		envOverride(&cfg.LLMAPIKey, "OPENAI_API_KEY")
	}
	if cfg.LLMAPIKey == "" {
		envOverride(&cfg.LLMAPIKey, "ANTHROPIC_API_KEY")
	}

	if times := os.Getenv("BRIEF_TIMES"); times != "" {
		cfg.BriefTimes = nil
		for _, bt := range strings.Split(times, ",") {
			bt = strings.TrimSpace(bt)
			if bt != "" {
				cfg.BriefTimes = append(cfg.BriefTimes, bt)
			}
		}
	}

	applyDefaults(&cfg)

	if cfg.LLMAPIKey == "" {
		log.Fatalf("Required config 'llm_api_key' is not set (via config.yaml or env var)")
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("invalid timezone '%s': %v", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	if err := validate(cfg); err != nil {
		log.Fatalf("%v", err)
	}

	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "openai"
	}
	if cfg.LLMModel == "" {
		switch cfg.LLMProvider {
		case "anthropic":
			cfg.LLMModel = DefaultAnthropicModel
		default:
			cfg.LLMModel = DefaultOpenAIModel
		}
	}
	if cfg.LLMBaseURL == "" && cfg.LLMProvider == "openai" {
		cfg.LLMBaseURL = DefaultOpenAIBaseURL
	}
	if cfg.LLMChunkSize == 0 {
		cfg.LLMChunkSize = 5
	}
	if cfg.LLMChunkDelayMillis == 0 {
		cfg.LLMChunkDelayMillis = 1000
	}
	if cfg.LLMMaxTokens == 0 {
		cfg.LLMMaxTokens = 4000
	}
	if cfg.ClassifyMaxAttempts == 0 {
		cfg.ClassifyMaxAttempts = 3
	}
	if cfg.NewsSourceURL == "" {
		cfg.NewsSourceURL = DefaultNewsSourceURL
	}
	if cfg.FetchLimit == 0 {
		cfg.FetchLimit = 20
	}
	if cfg.BackfillCount == 0 {
		cfg.BackfillCount = 100
	}
	if cfg.PollIntervalMinutes == 0 {
		cfg.PollIntervalMinutes = 2
	}
	if len(cfg.BriefTimes) == 0 {
		cfg.BriefTimes = []string{"08:30", "12:00"}
	}
	if cfg.SchedulerBackoffSeconds == 0 {
		cfg.SchedulerBackoffSeconds = 5
	}
	if cfg.SeenCapacity == 0 {
		cfg.SeenCapacity = 2000
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./newsradar.db"
	}
	if cfg.BriefOutputDir == "" {
		cfg.BriefOutputDir = "./briefs"
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Asia/Shanghai"
	}
}

func validate(cfg Config) error {
	switch cfg.LLMProvider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("llm_provider must be 'anthropic' or 'openai', got '%s'", cfg.LLMProvider)
	}
	for _, bt := range cfg.BriefTimes {
		if _, _, err := ParseClock(bt); err != nil {
			return fmt.Errorf("invalid brief_times entry '%s': %v", bt, err)
		}
	}
	if cfg.LLMChunkSize < 1 {
		return fmt.Errorf("invalid llm_chunk_size '%d': must be >= 1", cfg.LLMChunkSize)
	}
	if cfg.LLMChunkDelayMillis < 0 {
		return fmt.Errorf("invalid llm_chunk_delay_ms '%d': must be >= 0", cfg.LLMChunkDelayMillis)
	}
	if cfg.ClassifyMaxAttempts < 1 {
		return fmt.Errorf("invalid classify_max_attempts '%d': must be >= 1", cfg.ClassifyMaxAttempts)
	}
	if cfg.FetchLimit < 1 || cfg.BackfillCount < 1 {
		return fmt.Errorf("invalid fetch_limit/backfill_count '%d/%d': must be >= 1", cfg.FetchLimit, cfg.BackfillCount)
	}
	if cfg.PollIntervalMinutes < 1 {
		return fmt.Errorf("invalid poll_interval_minutes '%d': must be >= 1", cfg.PollIntervalMinutes)
	}
	if cfg.SeenCapacity < 1 {
		return fmt.Errorf("invalid seen_capacity '%d': must be >= 1", cfg.SeenCapacity)
	}
	if cfg.ExternalHTTPTimeoutSeconds < 5 {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.SlackBotToken != "" && cfg.SlackChannelID == "" {
		return fmt.Errorf("slack_bot_token is set but slack_channel_id is not")
	}
	return nil
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}

func (c Config) ChunkDelay() time.Duration {
	return time.Duration(c.LLMChunkDelayMillis) * time.Millisecond
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMinutes) * time.Minute
}

func (c Config) SchedulerBackoff() time.Duration {
	return time.Duration(c.SchedulerBackoffSeconds) * time.Second
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (int, int, error) {
	var hour, min int
	_, err := fmt.Sscanf(s, "%d:%d", &hour, &min)
	if err != nil {
		return 0, 0, err
	}
	if hour < 0 || hour > 23 || min < 0 || min > 59 {
		return 0, 0, fmt.Errorf("time out of range: %02d:%02d", hour, min)
	}
	return hour, min, nil
}
