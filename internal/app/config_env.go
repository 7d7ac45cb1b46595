package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvToConfig populates unset fields of cfg from environment variables.
// Values already set in cfg (from flags) take precedence over env: only
// zero-valued fields are filled in. The config file layer runs after this
// one, so env also wins over the file.
func ApplyEnvToConfig(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.LLMBaseURL == "" {
		cfg.LLMBaseURL = os.Getenv("LLM_BASE_URL")
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = os.Getenv("LLM_MODEL")
	}
	if cfg.LLMAPIKey == "" {
		cfg.LLMAPIKey = os.Getenv("LLM_API_KEY")
	}

	applyEngineEnv(&cfg.Engines.Brave, "BRAVE")
	applyEngineEnv(&cfg.Engines.Tavily, "TAVILY")
	applyEngineEnv(&cfg.Engines.DuckDuckGo, "DUCKDUCKGO")
	applyEngineEnv(&cfg.Engines.SearxNG, "SEARXNG")
	if cfg.Engines.SearxNG.BaseURL == "" {
		cfg.Engines.SearxNG.BaseURL = os.Getenv("SEARXNG_BASE_URL")
	}

	if cfg.RateLimitInterval == 0 {
		if d, ok := envDuration("RATE_LIMIT_INTERVAL"); ok {
			cfg.RateLimitInterval = d
		}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = os.Getenv("USER_AGENT")
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = os.Getenv("CACHE_DIR")
	}
	if cfg.CacheTTL == 0 {
		if s := os.Getenv("CACHE_TTL_SECONDS"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				cfg.CacheTTL = time.Duration(n) * time.Second
			}
		}
	}
	if cfg.CacheMaxEntries == 0 {
		if s := os.Getenv("CACHE_MAX_ENTRIES"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				cfg.CacheMaxEntries = n
			}
		}
	}
	if cfg.MaxConcurrentScrapes == 0 {
		if s := os.Getenv("MAX_CONCURRENT_SCRAPES"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				cfg.MaxConcurrentScrapes = n
			}
		}
	}
	if cfg.MaxContentSize == 0 {
		if s := os.Getenv("MAX_CONTENT_SIZE"); s != "" {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
				cfg.MaxContentSize = n
			}
		}
	}
	if !cfg.Verbose {
		cfg.Verbose = envBool("VERBOSE")
	}
	if !cfg.InsecureSkipTLSVerify {
		cfg.InsecureSkipTLSVerify = envBool("INSECURE_SKIP_TLS_VERIFY")
	}
	if cfg.OfflineFixturesPath == "" {
		cfg.OfflineFixturesPath = os.Getenv("OFFLINE_FIXTURES_PATH")
	}
}

// applyEngineEnv fills an EngineConfig's zero fields from
// "<PREFIX>_API_KEY", "<PREFIX>_ENABLED", "<PREFIX>_MAX_RESULTS",
// "<PREFIX>_TIMEOUT" and "<PREFIX>_MAX_RETRIES".
func applyEngineEnv(e *EngineConfig, prefix string) {
	if v := os.Getenv(prefix + "_API_KEY"); v != "" && e.APIKey == "" {
		e.APIKey = v
	}
	if s := os.Getenv(prefix + "_ENABLED"); s != "" {
		e.Enabled = parseBool(s)
	}
	if s := os.Getenv(prefix + "_MAX_RESULTS"); s != "" && e.MaxResults == 0 {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			e.MaxResults = n
		}
	}
	if e.Timeout == 0 {
		if d, ok := envDuration(prefix + "_TIMEOUT"); ok {
			e.Timeout = d
		}
	}
	if s := os.Getenv(prefix + "_MAX_RETRIES"); s != "" && e.MaxRetries == 0 {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			e.MaxRetries = n
		}
	}
}

func envDuration(key string) (time.Duration, bool) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, true
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, true
	}
	return 0, false
}

func envBool(key string) bool {
	return parseBool(os.Getenv(key))
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
