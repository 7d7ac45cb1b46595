package app

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// minIdlePerHost keeps a useful warm pool even for a config that runs
// one scrape at a time: engine fanout and robots fetches share it.
const minIdlePerHost = 8

// NewHTTPClient returns the HTTP client shared by every engine adapter
// and the scraper's fetch client, so connection pooling is not
// duplicated per component. Pool sizing follows the config: the idle
// pool per host scales with the scrape concurrency the limiter will
// actually allow, and connection caps stay off since politeness is the
// per-host rate limiter's job, not the transport's.
func NewHTTPClient(cfg Config) *http.Client {
	idlePerHost := cfg.MaxConcurrentScrapes * 2
	if idlePerHost < minIdlePerHost {
		idlePerHost = minIdlePerHost
	}

	dialTimeout := cfg.FetchTimeout / 6
	if dialTimeout <= 0 || dialTimeout > 10*time.Second {
		dialTimeout = 5 * time.Second
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          0,
		MaxIdleConnsPerHost:   idlePerHost,
		MaxConnsPerHost:       0,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   dialTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if cfg.InsecureSkipTLSVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	// The client timeout is a backstop behind fetch.Client's own
	// per-request deadline: twice the fetch timeout so a slow redirect
	// chain still has room, never zero.
	timeout := 2 * cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
