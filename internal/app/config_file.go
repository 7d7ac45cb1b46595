package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig is the on-disk config-file schema, overlaid onto Config for
// any field the caller did not already set via flags or environment.
// Nested sections mirror Config's own grouping so the mapping stays
// obvious.
type FileConfig struct {
	LLM struct {
		BaseURL string `yaml:"base" json:"base"`
		Model   string `yaml:"model" json:"model"`
		APIKey  string `yaml:"key" json:"key"`
	} `yaml:"llm" json:"llm"`

	Engines struct {
		Brave      FileEngineConfig `yaml:"brave" json:"brave"`
		Tavily     FileEngineConfig `yaml:"tavily" json:"tavily"`
		DuckDuckGo FileEngineConfig `yaml:"duckduckgo" json:"duckduckgo"`
		SearxNG    FileEngineConfig `yaml:"searxng" json:"searxng"`
	} `yaml:"engines" json:"engines"`

	RateLimitInterval    time.Duration `yaml:"rateLimitInterval" json:"rateLimitInterval"`
	UserAgent            string        `yaml:"userAgent" json:"userAgent"`
	FetchTimeout         time.Duration `yaml:"fetchTimeout" json:"fetchTimeout"`
	MaxConcurrentScrapes int           `yaml:"maxConcurrentScrapes" json:"maxConcurrentScrapes"`
	MaxContentSize       int64         `yaml:"maxContentSize" json:"maxContentSize"`

	CacheDir        string        `yaml:"cacheDir" json:"cacheDir"`
	CacheTTL        time.Duration `yaml:"cacheTTL" json:"cacheTTL"`
	CacheMaxEntries int           `yaml:"cacheMaxEntries" json:"cacheMaxEntries"`

	ReportsDir          string `yaml:"reportsDir" json:"reportsDir"`
	OfflineFixturesPath string `yaml:"offlineFixturesPath" json:"offlineFixturesPath"`

	Verbose               bool `yaml:"verbose" json:"verbose"`
	InsecureSkipTLSVerify bool `yaml:"insecureSkipTLSVerify" json:"insecureSkipTLSVerify"`
}

// FileEngineConfig mirrors EngineConfig for the file schema.
type FileEngineConfig struct {
	Enabled    bool          `yaml:"enabled" json:"enabled"`
	APIKey     string        `yaml:"key" json:"key"`
	BaseURL    string        `yaml:"url" json:"url"`
	MaxResults int           `yaml:"maxResults" json:"maxResults"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries int           `yaml:"maxRetries" json:"maxRetries"`
}

// LoadConfigFile reads YAML or JSON into FileConfig based on path's
// extension, falling back to trying YAML then JSON for an unrecognized
// extension.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays fc onto cfg for every field still at its zero
// value, so flags and environment (applied first) always win.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}

	if cfg.LLMBaseURL == "" {
		cfg.LLMBaseURL = fc.LLM.BaseURL
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = fc.LLM.Model
	}
	if cfg.LLMAPIKey == "" {
		cfg.LLMAPIKey = fc.LLM.APIKey
	}

	applyFileEngine(&cfg.Engines.Brave, fc.Engines.Brave)
	applyFileEngine(&cfg.Engines.Tavily, fc.Engines.Tavily)
	applyFileEngine(&cfg.Engines.DuckDuckGo, fc.Engines.DuckDuckGo)
	applyFileEngine(&cfg.Engines.SearxNG, fc.Engines.SearxNG)

	if cfg.RateLimitInterval == 0 {
		cfg.RateLimitInterval = fc.RateLimitInterval
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = fc.UserAgent
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = fc.FetchTimeout
	}
	if cfg.MaxConcurrentScrapes == 0 {
		cfg.MaxConcurrentScrapes = fc.MaxConcurrentScrapes
	}
	if cfg.MaxContentSize == 0 {
		cfg.MaxContentSize = fc.MaxContentSize
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = fc.CacheDir
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = fc.CacheTTL
	}
	if cfg.CacheMaxEntries == 0 {
		cfg.CacheMaxEntries = fc.CacheMaxEntries
	}
	if cfg.ReportsDir == "" {
		cfg.ReportsDir = fc.ReportsDir
	}
	if cfg.OfflineFixturesPath == "" {
		cfg.OfflineFixturesPath = fc.OfflineFixturesPath
	}
	if !cfg.Verbose {
		cfg.Verbose = fc.Verbose
	}
	if !cfg.InsecureSkipTLSVerify {
		cfg.InsecureSkipTLSVerify = fc.InsecureSkipTLSVerify
	}
}

func applyFileEngine(e *EngineConfig, fc FileEngineConfig) {
	if !e.Enabled {
		e.Enabled = fc.Enabled
	}
	if e.APIKey == "" {
		e.APIKey = fc.APIKey
	}
	if e.BaseURL == "" {
		e.BaseURL = fc.BaseURL
	}
	if e.MaxResults == 0 {
		e.MaxResults = fc.MaxResults
	}
	if e.Timeout == 0 {
		e.Timeout = fc.Timeout
	}
	if e.MaxRetries == 0 {
		e.MaxRetries = fc.MaxRetries
	}
}
