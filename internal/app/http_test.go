package app

import (
	"net/http"
	"testing"
	"time"
)

func asTransport(t *testing.T, c *http.Client) *http.Transport {
	t.Helper()
	tr, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("unexpected transport type %T", c.Transport)
	}
	return tr
}

func TestNewHTTPClient_ScalesPoolWithScrapeConcurrency(t *testing.T) {
	cfg := Config{MaxConcurrentScrapes: 20, FetchTimeout: 30 * time.Second}
	tr := asTransport(t, NewHTTPClient(cfg))
	if tr.MaxIdleConnsPerHost != 40 {
		t.Fatalf("MaxIdleConnsPerHost = %d, want 2x scrape concurrency", tr.MaxIdleConnsPerHost)
	}
}

func TestNewHTTPClient_KeepsFloorForTinyConfigs(t *testing.T) {
	cfg := Config{MaxConcurrentScrapes: 1, FetchTimeout: 30 * time.Second}
	tr := asTransport(t, NewHTTPClient(cfg))
	if tr.MaxIdleConnsPerHost < minIdlePerHost {
		t.Fatalf("MaxIdleConnsPerHost = %d, want at least %d", tr.MaxIdleConnsPerHost, minIdlePerHost)
	}
}

func TestNewHTTPClient_TimeoutBackstopsFetchTimeout(t *testing.T) {
	c := NewHTTPClient(Config{FetchTimeout: 15 * time.Second})
	if c.Timeout != 30*time.Second {
		t.Fatalf("Timeout = %v, want 2x fetch timeout", c.Timeout)
	}
	if got := NewHTTPClient(Config{}).Timeout; got != 60*time.Second {
		t.Fatalf("zero-config Timeout = %v, want the 60s default", got)
	}
}

func TestNewHTTPClient_TLSVerificationToggle(t *testing.T) {
	strict := asTransport(t, NewHTTPClient(Config{}))
	if strict.TLSClientConfig != nil && strict.TLSClientConfig.InsecureSkipVerify {
		t.Fatal("verification must stay on by default")
	}
	loose := asTransport(t, NewHTTPClient(Config{InsecureSkipTLSVerify: true}))
	if loose.TLSClientConfig == nil || !loose.TLSClientConfig.InsecureSkipVerify {
		t.Fatal("InsecureSkipTLSVerify must disable verification")
	}
}
