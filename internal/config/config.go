// Package config loads service settings from an optional YAML file and the
// environment. Environment variables override values from the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendSQLite   = "sqlite"
	BackendDynamoDB = "dynamodb"

	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	App     AppConfig     `yaml:"app"`
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	LLM     LLMConfig     `yaml:"llm"`
	Chat    ChatConfig    `yaml:"chat"`
	Logging LoggingConfig `yaml:"logging"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
}

type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

type StoreConfig struct {
	Backend      string `yaml:"backend"`
	DatabasePath string `yaml:"database_path"`
	StateTable   string `yaml:"state_table"`
}

type LLMConfig struct {
	Provider      string `yaml:"provider"`
	GeminiAPIKey  string `yaml:"gemini_api_key"`
	GeminiModel   string `yaml:"gemini_model"`
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIModel   string `yaml:"openai_model"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	// ParamPrefix, when set, locates the credential in SSM Parameter Store.
	ParamPrefix string `yaml:"param_prefix"`

	TimeoutRaw string        `yaml:"timeout"`
	Timeout    time.Duration `yaml:"-"`
}

type ChatConfig struct {
	HistoryLimit int `yaml:"history_limit"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:        "AI Career Planning API",
			Version:     "0.1.0",
			Description: "AI-powered career planning application",
		},
		Server: ServerConfig{HTTPAddr: ":8000"},
		Store: StoreConfig{
			Backend:      BackendSQLite,
			DatabasePath: "career_planner.db",
		},
		LLM: LLMConfig{
			Provider:    ProviderGemini,
			GeminiModel: "gemini-1.5-flash",
			OpenAIModel: "gpt-4o-mini",
			TimeoutRaw:  "30s",
		},
		Chat:    ChatConfig{HistoryLimit: 10},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and the environment, in that order. ${VAR} references
// in the file are expanded before parsing.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("config: parse file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	timeout, err := time.ParseDuration(cfg.LLM.TimeoutRaw)
	if err != nil {
		return nil, fmt.Errorf("config: parse llm timeout %q: %w", cfg.LLM.TimeoutRaw, err)
	}
	cfg.LLM.Timeout = timeout

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with the variable's value, or the empty
// string when unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"APP_NAME":           &cfg.App.Name,
		"APP_VERSION":        &cfg.App.Version,
		"APP_DESCRIPTION":    &cfg.App.Description,
		"HTTP_ADDR":          &cfg.Server.HTTPAddr,
		"STORE_BACKEND":      &cfg.Store.Backend,
		"DATABASE_PATH":      &cfg.Store.DatabasePath,
		"STATE_TABLE":        &cfg.Store.StateTable,
		"LLM_PROVIDER":       &cfg.LLM.Provider,
		"GEMINI_API_KEY":     &cfg.LLM.GeminiAPIKey,
		"GEMINI_MODEL":       &cfg.LLM.GeminiModel,
		"OPENAI_API_KEY":     &cfg.LLM.OpenAIAPIKey,
		"OPENAI_MODEL":       &cfg.LLM.OpenAIModel,
		"OPENAI_BASE_URL":    &cfg.LLM.OpenAIBaseURL,
		"PARAM_PREFIX":       &cfg.LLM.ParamPrefix,
		"GENERATION_TIMEOUT": &cfg.LLM.TimeoutRaw,
		"LOG_LEVEL":          &cfg.Logging.Level,
		"LOG_FORMAT":         &cfg.Logging.Format,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	if v := strings.TrimSpace(os.Getenv("CHAT_HISTORY_LIMIT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: parse CHAT_HISTORY_LIMIT %q: %w", v, err)
		}
		cfg.Chat.HistoryLimit = n
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	c.Store.Backend = strings.ToLower(c.Store.Backend)
	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.DatabasePath == "" {
			return errors.New("store.database_path is required for the sqlite backend")
		}
	case BackendDynamoDB:
		if c.Store.StateTable == "" {
			return errors.New("store.state_table is required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	c.LLM.Provider = strings.ToLower(c.LLM.Provider)
	if c.LLM.Provider != ProviderGemini && c.LLM.Provider != ProviderOpenAI {
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.LLM.Timeout <= 0 {
		return errors.New("llm.timeout must be positive")
	}
	if c.Chat.HistoryLimit <= 0 {
		return errors.New("chat.history_limit must be positive")
	}
	if c.Server.HTTPAddr == "" {
		return errors.New("server.http_addr is required")
	}
	return nil
}
