// Package config loads the grading dispatch core's configuration from a
// YAML file with environment-variable overrides layered on top, following
// the same load-then-override shape as the rest of the OCX-derived stack.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// Config holds every option recognized by the core (spec.md §6.5).
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Pool    PoolConfig    `yaml:"pool"`
	Budget  BudgetConfig  `yaml:"rate_budget"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Image   ImageConfig   `yaml:"image"`
	Flood   FloodConfig   `yaml:"flood"`
	Redis   RedisConfig   `yaml:"redis"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Prompts PromptConfig  `yaml:"prompts"`
}

type ServerConfig struct {
	Port             string   `yaml:"port"`
	ReadTimeoutSec   int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec  int      `yaml:"write_timeout_sec"`
	IdleTimeoutSec   int      `yaml:"idle_timeout_sec"`
	ShutdownTimeoutSec int    `yaml:"shutdown_timeout_sec"`
	CORSAllowOrigins []string `yaml:"cors_allow_origins"`
	MaxUploadBytes   int64    `yaml:"max_upload_bytes"`
}

// PoolConfig governs the CredentialPool (§4.1, §6.5).
type PoolConfig struct {
	StorageType          string   `yaml:"storage_type"` // "in-process" | "shared-remote"
	APIKeys              []string `yaml:"api_keys"`
	BorrowTimeoutSeconds int      `yaml:"borrow_timeout_seconds"`
	KeyCooldownSeconds   int      `yaml:"key_cooldown_seconds"`
}

// BudgetConfig governs the RateBudget sliding window (§4.2, §6.5).
type BudgetConfig struct {
	WindowSeconds int `yaml:"window_seconds"`
	MaxRequests   int `yaml:"max_requests"`
}

// DispatchConfig governs the Dispatcher (§4.3, §6.5).
type DispatchConfig struct {
	MaxConcurrent        int `yaml:"max_concurrent"`
	RetryCount           int `yaml:"retry_count"`
	MaxCharactersPerBatch int `yaml:"max_characters_per_batch"`
}

// ImageConfig governs preprocessing (§4.4.1, §6.5).
type ImageConfig struct {
	MaxImageSize          int `yaml:"max_image_size"`
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
}

// FloodConfig governs the per-user flood limiter (§4.6).
type FloodConfig struct {
	WindowMinutes int `yaml:"window_minutes"`
	MaxCalls      int `yaml:"max_calls"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type UpstreamConfig struct {
	MultiAgentEnabled bool `yaml:"multi_agent_enabled"`
}

// PromptConfig optionally points at external prompt files; the core only
// ever consumes the loaded text as an opaque string, never their source.
// Left blank, the built-in default prompts apply.
type PromptConfig struct {
	WholePagePromptFile  string `yaml:"whole_page_prompt_file"`
	SingleCharPromptFile string `yaml:"single_char_prompt_file"`
}

// Default returns the configuration with every default from spec.md §6.5.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               "8080",
			ReadTimeoutSec:      30,
			WriteTimeoutSec:     190,
			IdleTimeoutSec:      120,
			ShutdownTimeoutSec:  15,
			CORSAllowOrigins:    []string{"*"},
			MaxUploadBytes:      10 << 20,
		},
		Pool: PoolConfig{
			StorageType:          "in-process",
			BorrowTimeoutSeconds: 120,
			KeyCooldownSeconds:   60,
		},
		Budget: BudgetConfig{
			WindowSeconds: 60,
			MaxRequests:   50,
		},
		Dispatch: DispatchConfig{
			MaxConcurrent:         15,
			RetryCount:            3,
			MaxCharactersPerBatch: 30,
		},
		Image: ImageConfig{
			MaxImageSize:          512,
			RequestTimeoutSeconds: 30,
		},
		Flood: FloodConfig{
			WindowMinutes: 5,
			MaxCalls:      20,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
	}
}

// Load reads a YAML config file (if it exists) over the defaults, then
// applies GRADING_* environment variable overrides, mirroring the
// load-YAML-then-apply-env-overrides shape used elsewhere in this stack.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			slog.Warn("config file not found, using defaults", "path", path)
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRADING_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("GRADING_API_KEYS"); v != "" {
		cfg.Pool.APIKeys = splitCSV(v)
	}
	if v := os.Getenv("GRADING_STORAGE_TYPE"); v != "" {
		cfg.Pool.StorageType = v
	}
	if v := envInt("GRADING_MAX_CONCURRENT"); v != 0 {
		cfg.Dispatch.MaxConcurrent = v
	}
	if v := envInt("GRADING_RETRY_COUNT"); v != 0 {
		cfg.Dispatch.RetryCount = v
	}
	if v := envInt("GRADING_KEY_COOLDOWN_SECONDS"); v != 0 {
		cfg.Pool.KeyCooldownSeconds = v
	}
	if v := envInt("GRADING_RATE_LIMIT_WINDOW_SECONDS"); v != 0 {
		cfg.Budget.WindowSeconds = v
	}
	if v := envInt("GRADING_RATE_LIMIT_MAX_REQUESTS"); v != 0 {
		cfg.Budget.MaxRequests = v
	}
	if v := envInt("GRADING_KEY_BORROW_TIMEOUT_SECONDS"); v != 0 {
		cfg.Pool.BorrowTimeoutSeconds = v
	}
	if v := envInt("GRADING_MAX_CHARACTERS_PER_BATCH"); v != 0 {
		cfg.Dispatch.MaxCharactersPerBatch = v
	}
	if v := envInt("GRADING_MAX_IMAGE_SIZE"); v != 0 {
		cfg.Image.MaxImageSize = v
	}
	if v := envInt("GRADING_REQUEST_TIMEOUT_SECONDS"); v != 0 {
		cfg.Image.RequestTimeoutSeconds = v
	}
	if v := os.Getenv("GRADING_MULTI_AGENT_ENABLED"); v != "" {
		cfg.Upstream.MultiAgentEnabled = v == "true"
	}
	if v := os.Getenv("GRADING_REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = v == "true"
	}
	if v := os.Getenv("GRADING_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer env override, ignoring", "key", key, "value", v)
		return 0
	}
	return n
}
