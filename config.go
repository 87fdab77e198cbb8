package main

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	UserEmail string `yaml:"user_email"`

	GoogleClientID     string `yaml:"google_client_id"`
	GoogleClientSecret string `yaml:"google_client_secret"`
	GoogleRefreshToken string `yaml:"google_refresh_token"`

	Classifier      string `yaml:"classifier"` // "keyword" or "llm"
	LLMModel        string `yaml:"llm_model"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`

	CompletionMarker           string  `yaml:"completion_marker"`
	LookbackDays               int     `yaml:"lookback_days"`
	MaxMessages                int     `yaml:"max_messages"`
	MatchAcceptanceThreshold   float64 `yaml:"match_acceptance_threshold"`
	RequestConfidenceThreshold float64 `yaml:"request_confidence_threshold"`
	MaxConcurrentDispatch      int     `yaml:"max_concurrent_dispatch"`
	CCSenderOnReply            *bool   `yaml:"cc_sender_on_reply"`

	ScoreWeightLexical float64 `yaml:"score_weight_lexical"`
	ScoreWeightTopic   float64 `yaml:"score_weight_topic"`
	ScoreWeightRecency float64 `yaml:"score_weight_recency"`

	ExternalCallTimeoutSeconds int `yaml:"external_call_timeout_seconds"`

	DBPath          string `yaml:"db_path"`
	ReportOutputDir string `yaml:"report_output_dir"`

	SlackBotToken   string `yaml:"slack_bot_token"`
	ReportChannelID string `yaml:"report_channel_id"`

	RunDay   string `yaml:"run_day"`  // optional: empty means run once and exit
	RunTime  string `yaml:"run_time"` // HH:MM, used with run_day
	Timezone string `yaml:"timezone"`

	Location *time.Location `yaml:"-"`
}

func LoadConfig() Config {
	var cfg Config

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

	// Env vars override YAML values
	envOverride(&cfg.UserEmail, "USER_EMAIL")
	envOverride(&cfg.GoogleClientID, "GOOGLE_CLIENT_ID")
	envOverride(&cfg.GoogleClientSecret, "GOOGLE_CLIENT_SECRET")
	envOverride(&cfg.GoogleRefreshToken, "GOOGLE_REFRESH_TOKEN")
	envOverride(&cfg.Classifier, "CLASSIFIER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.CompletionMarker, "COMPLETION_MARKER")
	envOverrideInt(&cfg.LookbackDays, "LOOKBACK_DAYS")
	envOverrideInt(&cfg.MaxMessages, "MAX_MESSAGES")
	envOverrideFloat(&cfg.MatchAcceptanceThreshold, "MATCH_ACCEPTANCE_THRESHOLD")
	envOverrideFloat(&cfg.RequestConfidenceThreshold, "REQUEST_CONFIDENCE_THRESHOLD")
	envOverrideInt(&cfg.MaxConcurrentDispatch, "MAX_CONCURRENT_DISPATCH")
	envOverrideBool(&cfg.CCSenderOnReply, "CC_SENDER_ON_REPLY")
	envOverrideFloat(&cfg.ScoreWeightLexical, "SCORE_WEIGHT_LEXICAL")
	envOverrideFloat(&cfg.ScoreWeightTopic, "SCORE_WEIGHT_TOPIC")
	envOverrideFloat(&cfg.ScoreWeightRecency, "SCORE_WEIGHT_RECENCY")
	envOverrideInt(&cfg.ExternalCallTimeoutSeconds, "EXTERNAL_CALL_TIMEOUT_SECONDS")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.ReportOutputDir, "REPORT_OUTPUT_DIR")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.ReportChannelID, "REPORT_CHANNEL_ID")
	envOverride(&cfg.RunDay, "RUN_DAY")
	envOverride(&cfg.RunTime, "RUN_TIME")
	envOverride(&cfg.Timezone, "TIMEZONE")

	// Defaults
	if cfg.Classifier == "" {
		cfg.Classifier = "keyword"
	}
	if cfg.CompletionMarker == "" {
		cfg.CompletionMarker = "Done"
	}
	if cfg.LookbackDays == 0 {
		cfg.LookbackDays = 7
	}
	if cfg.MaxMessages == 0 {
		cfg.MaxMessages = 100
	}
	if cfg.MatchAcceptanceThreshold == 0 {
		cfg.MatchAcceptanceThreshold = 0.6
	}
	if cfg.RequestConfidenceThreshold == 0 {
		cfg.RequestConfidenceThreshold = 0.5
	}
	if cfg.MaxConcurrentDispatch == 0 {
		cfg.MaxConcurrentDispatch = 3
	}
	if cfg.CCSenderOnReply == nil {
		v := true
		cfg.CCSenderOnReply = &v
	}
	if cfg.ScoreWeightLexical == 0 && cfg.ScoreWeightTopic == 0 && cfg.ScoreWeightRecency == 0 {
		cfg.ScoreWeightLexical = 0.6
		cfg.ScoreWeightTopic = 0.25
		cfg.ScoreWeightRecency = 0.15
	}
	if cfg.ExternalCallTimeoutSeconds == 0 {
		cfg.ExternalCallTimeoutSeconds = 60
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./donedelivered.db"
	}
	if cfg.ReportOutputDir == "" {
		cfg.ReportOutputDir = "./reports"
	}
	if cfg.RunTime == "" {
		cfg.RunTime = "09:00"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	// Validate required fields
	required := map[string]string{
		"user_email":           cfg.UserEmail,
		"google_client_id":     cfg.GoogleClientID,
		"google_client_secret": cfg.GoogleClientSecret,
		"google_refresh_token": cfg.GoogleRefreshToken,
		"anthropic_api_key":    cfg.AnthropicAPIKey,
	}
	for name, val := range required {
		if val == "" {
			log.Fatalf("Required config '%s' is not set (via config.yaml or env var)", name)
		}
	}

	switch cfg.Classifier {
	case "keyword", "llm":
	default:
		log.Fatalf("classifier must be 'keyword' or 'llm', got '%s'", cfg.Classifier)
	}

	if cfg.LookbackDays < 1 {
		log.Fatalf("invalid lookback_days '%d': must be >= 1", cfg.LookbackDays)
	}
	if cfg.MatchAcceptanceThreshold < 0 || cfg.MatchAcceptanceThreshold > 1 {
		log.Fatalf("invalid match_acceptance_threshold '%f': must be between 0 and 1", cfg.MatchAcceptanceThreshold)
	}
	if cfg.RequestConfidenceThreshold < 0 || cfg.RequestConfidenceThreshold > 1 {
		log.Fatalf("invalid request_confidence_threshold '%f': must be between 0 and 1", cfg.RequestConfidenceThreshold)
	}
	if cfg.MaxConcurrentDispatch < 1 {
		log.Fatalf("invalid max_concurrent_dispatch '%d': must be >= 1", cfg.MaxConcurrentDispatch)
	}
	if cfg.ScoreWeightLexical < 0 || cfg.ScoreWeightTopic < 0 || cfg.ScoreWeightRecency < 0 {
		log.Fatalf("score weights must not be negative")
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

	if cfg.RunDay != "" {
		if _, ok := dayMap[strings.ToLower(cfg.RunDay)]; !ok {
			log.Fatalf("invalid run_day '%s'", cfg.RunDay)
		}
		if _, _, err := parseClock(cfg.RunTime); err != nil {
			log.Fatalf("invalid run_time '%s': %v", cfg.RunTime, err)
		}
	}

	return cfg
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
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

func envOverrideFloat(field *float64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func envOverrideBool(field **bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = &parsed
	}
}

// CCSender reports whether replies should CC the account owner.
func (c Config) CCSender() bool {
	if c.CCSenderOnReply == nil {
		return true
	}
	return *c.CCSenderOnReply
}

// LookbackWindow is the age beyond which open requests expire.
func (c Config) LookbackWindow() time.Duration {
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}

// ExternalCallTimeout bounds each call to an external collaborator.
func (c Config) ExternalCallTimeout() time.Duration {
	return time.Duration(c.ExternalCallTimeoutSeconds) * time.Second
}

// ScoreWeights bundles the tunable scoring policy for the relevance scorer.
func (c Config) ScoreWeights() ScoreWeights {
	return ScoreWeights{
		Lexical: c.ScoreWeightLexical,
		Topic:   c.ScoreWeightTopic,
		Recency: c.ScoreWeightRecency,
	}
}
