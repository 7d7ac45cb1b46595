package app

import "time"

// EngineConfig configures one search engine adapter. Disabled engines
// are skipped entirely by the Searcher.
type EngineConfig struct {
	Enabled    bool
	APIKey     string
	BaseURL    string // only meaningful for self-hosted engines such as SearxNG
	MaxResults int
	Timeout    time.Duration
	MaxRetries int
}

// EnginesConfig bundles the per-engine settings for every adapter the
// Searcher may fan out to.
type EnginesConfig struct {
	Brave      EngineConfig
	Tavily     EngineConfig
	DuckDuckGo EngineConfig
	SearxNG    EngineConfig
}

// Config holds runtime configuration for the application. It is built
// once at process start (flags, then environment, then config file,
// then defaults) and passed by reference; nothing reads the
// environment after startup.
type Config struct {
	// LLM
	LLMBaseURL string
	LLMModel   string
	LLMAPIKey  string

	// Search
	Engines EnginesConfig

	// Fetch / rate limiting
	RateLimitInterval    time.Duration
	UserAgent            string
	FetchTimeout         time.Duration
	MaxConcurrentScrapes int
	MaxContentSize       int64

	// Cache
	CacheDir        string
	CacheTTL        time.Duration
	CacheMaxEntries int

	// Output
	ReportsDir string

	// OfflineFixturesPath, when set, adds a file-backed search provider
	// reading fixed JSON results from this path, for running a full
	// research cycle against recorded data instead of live engines.
	OfflineFixturesPath string

	// InsecureSkipTLSVerify disables certificate verification on the
	// shared HTTP client, for self-signed SearxNG or LLM endpoints.
	InsecureSkipTLSVerify bool

	// Behavior
	Verbose bool
}

// DefaultConfig returns a Config with every knob at its default.
func DefaultConfig() Config {
	return Config{
		RateLimitInterval:    time.Second,
		UserAgent:            "deepresearch/1.0 (+https://github.com/hyperifyio/deepresearch)",
		FetchTimeout:         30 * time.Second,
		MaxConcurrentScrapes: 5,
		MaxContentSize:       5 * 1024 * 1024,
		CacheDir:             ".deepresearch-cache",
		CacheTTL:             24 * time.Hour,
		CacheMaxEntries:      100,
		ReportsDir:           "reports",
		Engines: EnginesConfig{
			Brave:      EngineConfig{MaxResults: 10, Timeout: 30 * time.Second, MaxRetries: 3},
			Tavily:     EngineConfig{MaxResults: 10, Timeout: 30 * time.Second, MaxRetries: 3},
			DuckDuckGo: EngineConfig{MaxResults: 10, Timeout: 30 * time.Second, MaxRetries: 3},
			SearxNG:    EngineConfig{MaxResults: 10, Timeout: 30 * time.Second, MaxRetries: 3},
		},
	}
}

// FillDefaults sets every still-zero field of cfg to its default.
// Applied last in the precedence chain, so flags, environment, and the
// config file all win over it. When no search engine ended up enabled,
// DuckDuckGo is switched on as the zero-credential fallback.
func FillDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	def := DefaultConfig()
	if cfg.RateLimitInterval == 0 {
		cfg.RateLimitInterval = def.RateLimitInterval
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.MaxConcurrentScrapes == 0 {
		cfg.MaxConcurrentScrapes = def.MaxConcurrentScrapes
	}
	if cfg.MaxContentSize == 0 {
		cfg.MaxContentSize = def.MaxContentSize
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = def.CacheDir
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.CacheMaxEntries == 0 {
		cfg.CacheMaxEntries = def.CacheMaxEntries
	}
	if cfg.ReportsDir == "" {
		cfg.ReportsDir = def.ReportsDir
	}
	fillEngineDefaults(&cfg.Engines.Brave, def.Engines.Brave)
	fillEngineDefaults(&cfg.Engines.Tavily, def.Engines.Tavily)
	fillEngineDefaults(&cfg.Engines.DuckDuckGo, def.Engines.DuckDuckGo)
	fillEngineDefaults(&cfg.Engines.SearxNG, def.Engines.SearxNG)
	if !cfg.Engines.Brave.Enabled && !cfg.Engines.Tavily.Enabled &&
		!cfg.Engines.DuckDuckGo.Enabled && !cfg.Engines.SearxNG.Enabled {
		cfg.Engines.DuckDuckGo.Enabled = true
	}
}

func fillEngineDefaults(e *EngineConfig, def EngineConfig) {
	if e.MaxResults == 0 {
		e.MaxResults = def.MaxResults
	}
	if e.Timeout == 0 {
		e.Timeout = def.Timeout
	}
	if e.MaxRetries == 0 {
		e.MaxRetries = def.MaxRetries
	}
}
