package openai

import (
	"fmt"
	"os"
	"strconv"
)

const defaultHTTPTimeout = 300 // seconds; accommodates slow reasoning models

// Config holds the OpenAI-compatible client configuration.
type Config struct {
	APIKey      string
	BaseURL     string // empty = api.openai.com
	Model       string
	MaxTokens   int
	HTTPTimeout int // seconds
}

// Validate checks that the required fields are present.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("openai: LLM_API_KEY is required")
	}
	if c.Model == "" {
		return fmt.Errorf("openai: LLM_MODEL is required")
	}
	return nil
}

// NewConfigFromEnv builds a Config from LLM_* environment variables.
func NewConfigFromEnv() (*Config, error) {
	cfg := &Config{
		APIKey:      os.Getenv("LLM_API_KEY"),
		BaseURL:     os.Getenv("LLM_BASE_URL"),
		Model:       os.Getenv("LLM_MODEL"),
		HTTPTimeout: defaultHTTPTimeout,
	}
	if v := os.Getenv("LLM_MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("openai: parse LLM_MAX_TOKENS %q: %w", v, err)
		}
		cfg.MaxTokens = n
	}
	if v := os.Getenv("LLM_HTTP_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("openai: parse LLM_HTTP_TIMEOUT %q: %w", v, err)
		}
		cfg.HTTPTimeout = n
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
