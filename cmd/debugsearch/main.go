// Command debugsearch runs one query through the configured engine
// fanout and prints the merged hits, for poking at engine credentials
// and dedup behavior without starting a full research run.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hyperifyio/deepresearch/internal/app"
	"github.com/hyperifyio/deepresearch/internal/search"
)

func main() {
	query := "What is love?"
	if len(os.Args) > 1 {
		query = os.Args[1]
	}

	var cfg app.Config
	app.ApplyEnvToConfig(&cfg)
	app.FillDefaults(&cfg)
	client := app.NewHTTPClient(cfg)

	var providers []search.Provider
	if e := cfg.Engines.Brave; e.Enabled {
		providers = append(providers, &search.Brave{APIKey: e.APIKey, HTTPClient: client, UserAgent: cfg.UserAgent})
	}
	if e := cfg.Engines.Tavily; e.Enabled {
		providers = append(providers, &search.Tavily{APIKey: e.APIKey, HTTPClient: client, UserAgent: cfg.UserAgent})
	}
	if e := cfg.Engines.SearxNG; e.Enabled {
		providers = append(providers, &search.SearxNG{BaseURL: e.BaseURL, APIKey: e.APIKey, HTTPClient: client, UserAgent: cfg.UserAgent})
	}
	if cfg.Engines.DuckDuckGo.Enabled || len(providers) == 0 {
		// DuckDuckGo needs no credentials, so there is always something
		// to debug against.
		providers = append(providers, &search.DuckDuckGo{HTTPClient: client, UserAgent: cfg.UserAgent})
	}

	fanout := &search.Fanout{
		Providers: providers,
		MaxHits:   10,
		Logger: func(engine string, err error) {
			fmt.Fprintf(os.Stderr, "engine %s: %v\n", engine, err)
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	hits := fanout.Search(ctx, query)
	fmt.Printf("%d hits for %q\n", len(hits), query)
	for i, h := range hits {
		fmt.Printf("%2d. [%s] %s\n    %s\n", i+1, h.Engine, h.Title, h.URL)
	}
}
