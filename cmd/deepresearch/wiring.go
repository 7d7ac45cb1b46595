package main

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/deepresearch/internal/analysis"
	"github.com/hyperifyio/deepresearch/internal/app"
	"github.com/hyperifyio/deepresearch/internal/cache"
	"github.com/hyperifyio/deepresearch/internal/fetch"
	"github.com/hyperifyio/deepresearch/internal/llm"
	"github.com/hyperifyio/deepresearch/internal/metrics"
	"github.com/hyperifyio/deepresearch/internal/orchestrator"
	"github.com/hyperifyio/deepresearch/internal/ratelimit"
	"github.com/hyperifyio/deepresearch/internal/robots"
	"github.com/hyperifyio/deepresearch/internal/scrape"
	"github.com/hyperifyio/deepresearch/internal/search"
	"github.com/hyperifyio/deepresearch/internal/synth"
)

// buildOrchestrator wires every stage of the pipeline from cfg: the
// LLM client, engine fanout, caches, and the scraper stack, handed to
// one Orchestrator.
func buildOrchestrator(cfg app.Config, reg *metrics.Registry) *orchestrator.Orchestrator {
	httpClient := app.NewHTTPClient(cfg)

	var client llm.Client
	if cfg.LLMModel != "" {
		oaCfg := openai.DefaultConfig(cfg.LLMAPIKey)
		if cfg.LLMBaseURL != "" {
			oaCfg.BaseURL = cfg.LLMBaseURL
		}
		client = &llm.OpenAIProvider{Inner: openai.NewClientWithConfig(oaCfg)}
	}

	fanout := &search.Fanout{
		Providers: buildProviders(cfg, httpClient),
		MaxHits:   10,
		Metrics:   reg,
	}

	robotsCache := &cache.HTTPCache{Dir: filepath.Join(cfg.CacheDir, "robots")}
	pageCache := &cache.Store{Dir: filepath.Join(cfg.CacheDir, "page"), TTL: cfg.CacheTTL, MaxEntries: cfg.CacheMaxEntries}
	llmCache := &cache.LLMCache{Dir: filepath.Join(cfg.CacheDir, "llm")}
	queryCache := &cache.Store{Dir: filepath.Join(cfg.CacheDir, "query"), TTL: cfg.CacheTTL, MaxEntries: cfg.CacheMaxEntries}
	// Expired entries are dropped once at startup; Set sweeps after that.
	_, _ = pageCache.Sweep(context.Background())
	_, _ = queryCache.Sweep(context.Background())

	scraper := &scrape.Scraper{
		Robots: &robots.Manager{
			HTTPClient: httpClient,
			Cache:      robotsCache,
			UserAgent:  cfg.UserAgent,
		},
		RateLimiter:   &ratelimit.Limiter{Interval: cfg.RateLimitInterval},
		FetchClient:   &fetch.Client{HTTPClient: httpClient, MaxAttempts: 3, PerRequestTimeout: cfg.FetchTimeout, MaxContentSize: cfg.MaxContentSize},
		PageCache:     pageCache,
		UserAgent:     cfg.UserAgent,
		MaxConcurrent: cfg.MaxConcurrentScrapes,
		Metrics:       reg,
	}

	return &orchestrator.Orchestrator{
		Analyzer:   &analysis.Analyzer{Client: client, Model: cfg.LLMModel},
		Searcher:   fanout,
		Scraper:    scraper,
		Synth:      &synth.Synthesizer{Client: client, Cache: llmCache},
		Model:      cfg.LLMModel,
		LLMClient:  client,
		MaxSources: 12,
		Metrics:    reg,
		QueryCache: queryCache,
	}
}

// buildProviders constructs one search.Provider per enabled engine
func buildProviders(cfg app.Config, httpClient *http.Client) []search.Provider {
	var providers []search.Provider

	e := cfg.Engines.Brave
	if e.Enabled {
		providers = append(providers, &search.Brave{APIKey: e.APIKey, HTTPClient: httpClient, UserAgent: cfg.UserAgent, MaxRetries: e.MaxRetries})
	}
	e = cfg.Engines.Tavily
	if e.Enabled {
		providers = append(providers, &search.Tavily{APIKey: e.APIKey, HTTPClient: httpClient, UserAgent: cfg.UserAgent, MaxRetries: e.MaxRetries})
	}
	e = cfg.Engines.DuckDuckGo
	if e.Enabled {
		providers = append(providers, &search.DuckDuckGo{HTTPClient: httpClient, UserAgent: cfg.UserAgent, MaxRetries: e.MaxRetries})
	}
	e = cfg.Engines.SearxNG
	if e.Enabled {
		providers = append(providers, &search.SearxNG{BaseURL: e.BaseURL, APIKey: e.APIKey, HTTPClient: httpClient, UserAgent: cfg.UserAgent, MaxRetries: e.MaxRetries})
	}
	if cfg.OfflineFixturesPath != "" {
		providers = append(providers, &search.FileProvider{Path: cfg.OfflineFixturesPath})
	}
	return providers
}

// pollInterval bounds how often a running research command re-checks
// GetStatus while waiting for a terminal state.
const pollInterval = 200 * time.Millisecond
