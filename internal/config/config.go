// Package config loads the engine configuration from YAML with ${VAR} and
// ${VAR:-default} environment expansion, typed fields and explicit defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kestrelworks/raglet/internal/domain"
	"github.com/kestrelworks/raglet/internal/provider"
	"github.com/kestrelworks/raglet/internal/transport/httpx"
)

// Config holds the raglet configuration.
type Config struct {
	Provider   ProviderConfig   `yaml:"provider"`
	Generation GenerationConfig `yaml:"generation"`
	Citations  CitationsConfig  `yaml:"citations"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Storage    StorageConfig    `yaml:"storage"`
	HTTP       HTTPConfig       `yaml:"http"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ProviderConfig selects and parameterizes the model backend.
type ProviderConfig struct {
	Name          string  `yaml:"name"` // openai, openai-compatible, gemini, ollama
	BaseURL       string  `yaml:"base_url"`
	APIKey        string  `yaml:"api_key"`
	ChatModel     string  `yaml:"chat_model"`
	EmbedModel    string  `yaml:"embed_model"`
	TimeoutMs     int     `yaml:"timeout_ms"`
	StreamStallMs int     `yaml:"stream_stall_ms"`
	MaxRetries    int     `yaml:"max_retries"`
	BaseDelayMs   int     `yaml:"base_delay_ms"`
	BackoffFactor float64 `yaml:"backoff_factor"`
}

// GenerationConfig holds the generation knobs, mapped per provider.
type GenerationConfig struct {
	Temperature    float32      `yaml:"temperature"`
	TopP           float32      `yaml:"top_p"`
	TopK           int          `yaml:"top_k"`
	CandidateCount int          `yaml:"candidate_count"`
	MaxTokens      int          `yaml:"max_tokens"`
	StopSequences  []string     `yaml:"stop_sequences"`
	TaskType       string       `yaml:"task_type"`             // Gemini embedding task type
	OutputDim      int          `yaml:"output_dimensionality"` // Gemini embedding dimensionality
	Safety         SafetyConfig `yaml:"safety"`
}

// SafetyConfig holds Gemini safety thresholds; empty fields use provider
// defaults.
type SafetyConfig struct {
	Harassment     string `yaml:"harassment"`
	HateSpeech     string `yaml:"hate_speech"`
	Sexual         string `yaml:"sexually_explicit"`
	Dangerous      string `yaml:"dangerous"`
	CivicIntegrity string `yaml:"civic_integrity"`
}

// CitationsConfig controls source attribution on chat replies.
type CitationsConfig struct {
	Show           *bool   `yaml:"show"`
	MaxFiles       int     `yaml:"max_files"`
	MatchThreshold float64 `yaml:"match_threshold"`
}

// ChunkingConfig holds the text splitter parameters.
type ChunkingConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	Overlap   int `yaml:"overlap"`
	Pad       int `yaml:"pad"`
}

// StorageConfig locates the persisted store and chat history files.
type StorageConfig struct {
	StorePath   string `yaml:"store_path"`
	HistoryPath string `yaml:"history_path"`
}

// HTTPConfig holds HTTP server settings for the serve surface.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
}

// Load reads configuration from path. A missing file yields the defaults;
// any other read or parse failure is an error.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		data = expandEnvVars(data)
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Provider.TimeoutMs <= 0 {
		c.Provider.TimeoutMs = 60000
	}
	if c.Provider.StreamStallMs <= 0 {
		c.Provider.StreamStallMs = 15000
	}
	if c.Provider.MaxRetries == 0 {
		c.Provider.MaxRetries = 2
	}
	if c.Provider.MaxRetries < 0 { // -1 disables retries
		c.Provider.MaxRetries = 0
	}
	if c.Provider.BaseDelayMs <= 0 {
		c.Provider.BaseDelayMs = 400
	}
	if c.Provider.BackoffFactor <= 0 {
		c.Provider.BackoffFactor = 2.0
	}
	if c.Citations.Show == nil {
		show := true
		c.Citations.Show = &show
	}
	if c.Citations.MaxFiles <= 0 {
		c.Citations.MaxFiles = 3
	}
	if c.Citations.MatchThreshold <= 0 {
		c.Citations.MatchThreshold = 0.12
	}
	if c.Chunking.ChunkSize <= 0 {
		c.Chunking.ChunkSize = 500
	}
	if c.Chunking.Overlap == 0 {
		c.Chunking.Overlap = 50
	}
	if c.Chunking.Overlap < 0 { // -1 disables overlap
		c.Chunking.Overlap = 0
	}
	if c.Chunking.Pad <= 0 {
		c.Chunking.Pad = 80
	}
	if c.Storage.StorePath == "" {
		c.Storage.StorePath = "raglet-store.json"
	}
	if c.Storage.HistoryPath == "" {
		c.Storage.HistoryPath = "raglet-history.json"
	}
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// Streaming chat responses can run long.
		c.HTTP.WriteTimeoutSec = 300
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if _, err := domain.ParseProvider(c.Provider.Name); err != nil {
		return err
	}
	if c.Chunking.Overlap >= c.Chunking.ChunkSize {
		return fmt.Errorf(
			"chunking.overlap (%d) must be smaller than chunking.chunk_size (%d)",
			c.Chunking.Overlap, c.Chunking.ChunkSize,
		)
	}
	if c.Citations.MatchThreshold > 1 {
		return fmt.Errorf("citations.match_threshold must be in (0,1], got %f", c.Citations.MatchThreshold)
	}
	if c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	return nil
}

// ProviderKind returns the validated provider.
func (c *Config) ProviderKind() domain.Provider {
	p, _ := domain.ParseProvider(c.Provider.Name)
	return p
}

// Timeout returns the request deadline.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Provider.TimeoutMs) * time.Millisecond
}

// StallTimeout returns the stream stall-abort window.
func (c *Config) StallTimeout() time.Duration {
	return time.Duration(c.Provider.StreamStallMs) * time.Millisecond
}

// RetryPolicy returns the transport retry policy.
func (c *Config) RetryPolicy() httpx.Policy {
	return httpx.Policy{
		MaxRetries:    c.Provider.MaxRetries,
		BaseDelay:     time.Duration(c.Provider.BaseDelayMs) * time.Millisecond,
		BackoffFactor: c.Provider.BackoffFactor,
	}
}

// ShowCitations reports whether chat replies get a citations block.
func (c *Config) ShowCitations() bool {
	return c.Citations.Show == nil || *c.Citations.Show
}

// AdapterSettings maps the config onto provider adapter settings.
func (c *Config) AdapterSettings() provider.Settings {
	return provider.Settings{
		Provider:             c.ProviderKind(),
		BaseURL:              c.Provider.BaseURL,
		APIKey:               c.Provider.APIKey,
		ChatModel:            c.Provider.ChatModel,
		EmbedModel:           c.Provider.EmbedModel,
		Temperature:          c.Generation.Temperature,
		TopP:                 c.Generation.TopP,
		TopK:                 c.Generation.TopK,
		CandidateCount:       c.Generation.CandidateCount,
		MaxTokens:            c.Generation.MaxTokens,
		StopSequences:        c.Generation.StopSequences,
		TaskType:             c.Generation.TaskType,
		OutputDimensionality: c.Generation.OutputDim,
		SafetyHarassment:     c.Generation.Safety.Harassment,
		SafetyHateSpeech:     c.Generation.Safety.HateSpeech,
		SafetySexual:         c.Generation.Safety.Sexual,
		SafetyDangerous:      c.Generation.Safety.Dangerous,
		SafetyCivicIntegrity: c.Generation.Safety.CivicIntegrity,
	}
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment
// variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
