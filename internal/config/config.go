package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Backend names accepted by the "backend" key.
const (
	BackendEcho        = "echo"
	BackendLlamaServer = "llama-server"
	BackendLlama       = "llama"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by Defaults through Merge.
type Config struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr"`
	MaxBodyBytes int64  `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`

	Backend           string `json:"backend" yaml:"backend" toml:"backend"`
	LlamaServerURL    string `json:"llama_server_url" yaml:"llama_server_url" toml:"llama_server_url"`
	LlamaServerAPIKey string `json:"llama_server_api_key" yaml:"llama_server_api_key" toml:"llama_server_api_key"`
	ModelsDir         string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	Model             string `json:"model" yaml:"model" toml:"model"`
	LlamaCtx          int    `json:"llama_ctx" yaml:"llama_ctx" toml:"llama_ctx"`
	LlamaThreads      int    `json:"llama_threads" yaml:"llama_threads" toml:"llama_threads"`

	GenerateTimeoutSeconds int `json:"generate_timeout_seconds" yaml:"generate_timeout_seconds" toml:"generate_timeout_seconds"`
	MaxQueueDepth          int `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	QueueWaitSeconds       int `json:"queue_wait_seconds" yaml:"queue_wait_seconds" toml:"queue_wait_seconds"`
	ShutdownTimeoutSeconds int `json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds" toml:"shutdown_timeout_seconds"`

	LogLevel      string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat     string `json:"log_format" yaml:"log_format" toml:"log_format"`
	LogFile       string `json:"log_file" yaml:"log_file" toml:"log_file"`
	LogMaxSizeMB  int    `json:"log_max_size_mb" yaml:"log_max_size_mb" toml:"log_max_size_mb"`
	LogMaxBackups int    `json:"log_max_backups" yaml:"log_max_backups" toml:"log_max_backups"`
	LogMaxAgeDays int    `json:"log_max_age_days" yaml:"log_max_age_days" toml:"log_max_age_days"`

	// Pointers distinguish "false" from "unset".
	CORSEnabled    *bool    `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins    []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	MetricsEnabled *bool    `json:"metrics_enabled" yaml:"metrics_enabled" toml:"metrics_enabled"`
}

// Defaults returns the configuration used when nothing else is specified.
func Defaults() Config {
	return Config{
		Addr:                   "127.0.0.1:8080",
		MaxBodyBytes:           1 << 20,
		Backend:                BackendLlamaServer,
		LlamaServerURL:         "http://127.0.0.1:8081",
		ModelsDir:              "~/models/llm",
		LlamaCtx:               2048,
		ShutdownTimeoutSeconds: 10,
		LogLevel:               "info",
		LogFormat:              "console",
		LogMaxSizeMB:           100,
		LogMaxBackups:          3,
		LogMaxAgeDays:          28,
		CORSEnabled:            boolPtr(false),
		MetricsEnabled:         boolPtr(true),
	}
}

// Merge returns base with every non-zero field of over applied on top.
func Merge(base, over Config) Config {
	out := base
	setStr(&out.Addr, over.Addr)
	setInt64(&out.MaxBodyBytes, over.MaxBodyBytes)
	setStr(&out.Backend, over.Backend)
	setStr(&out.LlamaServerURL, over.LlamaServerURL)
	setStr(&out.LlamaServerAPIKey, over.LlamaServerAPIKey)
	setStr(&out.ModelsDir, over.ModelsDir)
	setStr(&out.Model, over.Model)
	setInt(&out.LlamaCtx, over.LlamaCtx)
	setInt(&out.LlamaThreads, over.LlamaThreads)
	setInt(&out.GenerateTimeoutSeconds, over.GenerateTimeoutSeconds)
	setInt(&out.MaxQueueDepth, over.MaxQueueDepth)
	setInt(&out.QueueWaitSeconds, over.QueueWaitSeconds)
	setInt(&out.ShutdownTimeoutSeconds, over.ShutdownTimeoutSeconds)
	setStr(&out.LogLevel, over.LogLevel)
	setStr(&out.LogFormat, over.LogFormat)
	setStr(&out.LogFile, over.LogFile)
	setInt(&out.LogMaxSizeMB, over.LogMaxSizeMB)
	setInt(&out.LogMaxBackups, over.LogMaxBackups)
	setInt(&out.LogMaxAgeDays, over.LogMaxAgeDays)
	if over.CORSEnabled != nil {
		out.CORSEnabled = boolPtr(*over.CORSEnabled)
	}
	if len(over.CORSOrigins) > 0 {
		out.CORSOrigins = append([]string(nil), over.CORSOrigins...)
	}
	if over.MetricsEnabled != nil {
		out.MetricsEnabled = boolPtr(*over.MetricsEnabled)
	}
	return out
}

// envPrefix is prepended to the upper-cased key name, e.g. FOUNDATIONSD_ADDR.
const envPrefix = "FOUNDATIONSD_"

// ApplyEnv overrides fields from environment variables named after the config
// keys. Empty variables are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		return nil
	}
	var errs []error
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(envPrefix + key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v := strings.TrimSpace(getenv(envPrefix + key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
			return
		}
		*dst = n
	}
	flag := func(key string, dst **bool) {
		v := strings.TrimSpace(getenv(envPrefix + key))
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
			return
		}
		*dst = boolPtr(b)
	}

	str("ADDR", &c.Addr)
	if v := strings.TrimSpace(getenv(envPrefix + "MAX_BODY_BYTES")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sMAX_BODY_BYTES: %w", envPrefix, err))
		} else {
			c.MaxBodyBytes = n
		}
	}
	str("BACKEND", &c.Backend)
	str("LLAMA_SERVER_URL", &c.LlamaServerURL)
	str("LLAMA_SERVER_API_KEY", &c.LlamaServerAPIKey)
	str("MODELS_DIR", &c.ModelsDir)
	str("MODEL", &c.Model)
	num("LLAMA_CTX", &c.LlamaCtx)
	num("LLAMA_THREADS", &c.LlamaThreads)
	num("GENERATE_TIMEOUT_SECONDS", &c.GenerateTimeoutSeconds)
	num("MAX_QUEUE_DEPTH", &c.MaxQueueDepth)
	num("QUEUE_WAIT_SECONDS", &c.QueueWaitSeconds)
	num("SHUTDOWN_TIMEOUT_SECONDS", &c.ShutdownTimeoutSeconds)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("LOG_FILE", &c.LogFile)
	num("LOG_MAX_SIZE_MB", &c.LogMaxSizeMB)
	num("LOG_MAX_BACKUPS", &c.LogMaxBackups)
	num("LOG_MAX_AGE_DAYS", &c.LogMaxAgeDays)
	flag("CORS_ENABLED", &c.CORSEnabled)
	if v := strings.TrimSpace(getenv(envPrefix + "CORS_ORIGINS")); v != "" {
		c.CORSOrigins = SplitCSV(v)
	}
	flag("METRICS_ENABLED", &c.MetricsEnabled)
	return errors.Join(errs...)
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("max_body_bytes must be positive"))
	}
	switch c.Backend {
	case BackendEcho:
	case BackendLlamaServer:
		u, err := url.Parse(c.LlamaServerURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("llama_server_url must be an absolute URL, got %q", c.LlamaServerURL))
		}
	case BackendLlama:
		if c.Model == "" && c.ModelsDir == "" {
			errs = append(errs, errors.New("llama backend needs model or models_dir"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q (want %s, %s or %s)", c.Backend, BackendEcho, BackendLlamaServer, BackendLlama))
	}
	for name, v := range map[string]int{
		"llama_ctx":                c.LlamaCtx,
		"llama_threads":            c.LlamaThreads,
		"generate_timeout_seconds": c.GenerateTimeoutSeconds,
		"max_queue_depth":          c.MaxQueueDepth,
		"queue_wait_seconds":       c.QueueWaitSeconds,
		"shutdown_timeout_seconds": c.ShutdownTimeoutSeconds,
		"log_max_size_mb":          c.LogMaxSizeMB,
		"log_max_backups":          c.LogMaxBackups,
		"log_max_age_days":         c.LogMaxAgeDays,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log_format must be json or console, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// CORSOn reports whether CORS is enabled.
func (c Config) CORSOn() bool { return c.CORSEnabled != nil && *c.CORSEnabled }

// MetricsOn reports whether /metrics is served. Unset means on.
func (c Config) MetricsOn() bool { return c.MetricsEnabled == nil || *c.MetricsEnabled }

// SplitCSV splits a comma-separated list, trimming blanks.
func SplitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func boolPtr(b bool) *bool { return &b }

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setInt64(dst *int64, v int64) {
	if v != 0 {
		*dst = v
	}
}
