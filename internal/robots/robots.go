// Package robots decides whether a URL may be fetched under the
// crawler's identity. Policies are fetched once per host, revalidated
// through the HTTP cache, and held in memory for a bounded window; any
// fetch outcome other than a parseable 200 degrades to allow-all.
package robots

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/hyperifyio/deepresearch/internal/cache"
)

// Source says where a Get answer came from, mostly for logging and
// cache bookkeeping in tests.
type Source int

const (
	SourceNetwork Source = iota
	SourceMemory
	SourceCache304
)

// Rules is one host's parsed robots.txt: the Groups slice for
// introspection, plus the robotstxt matcher the allow/delay queries
// delegate to. The zero value allows everything.
type Rules struct {
	Groups []Group

	data *robotstxt.RobotsData
}

// Group is one User-agent block with its patterns.
type Group struct {
	Agents     []string
	Allow      []string
	Disallow   []string
	CrawlDelay *time.Duration
}

// Manager fetches, caches, and answers robots.txt questions. The
// in-memory map is last-write-wins under mu; duplicate concurrent
// loads of the same host are harmless.
type Manager struct {
	HTTPClient *http.Client
	Cache      *cache.HTTPCache
	UserAgent  string
	// EntryExpiry bounds how long a host's rules stay in memory before
	// the next Get revalidates. Zero means 30 minutes.
	EntryExpiry time.Duration
	// AllowPrivateHosts permits loopback and RFC1918 targets, needed by
	// tests against httptest servers.
	AllowPrivateHosts bool

	mu  sync.Mutex
	mem map[string]memEntry
	now func() time.Time
}

type memEntry struct {
	rules  Rules
	expiry time.Time
}

// Allowed reports whether pageURL may be fetched by this crawler
// identity, resolving the host's robots.txt as needed. Resolution
// failures degrade to allow.
func (m *Manager) Allowed(ctx context.Context, pageURL *url.URL) bool {
	if m == nil || pageURL == nil {
		return true
	}
	robotsURL := pageURL.Scheme + "://" + pageURL.Host + "/robots.txt"
	rules, _, err := m.Get(ctx, robotsURL)
	if err != nil {
		return true
	}
	return rules.IsAllowed(m.UserAgent, pageURL.EscapedPath())
}

// Get returns the rules for robotsURL, from memory when fresh,
// revalidated through the HTTP cache otherwise.
func (m *Manager) Get(ctx context.Context, robotsURL string) (Rules, Source, error) {
	if m.now == nil {
		m.now = time.Now
	}
	if m.mem == nil {
		m.mem = make(map[string]memEntry)
	}
	u, err := url.Parse(robotsURL)
	if err != nil {
		return Rules{}, SourceNetwork, fmt.Errorf("parse url: %w", err)
	}
	if !isHTTPScheme(u) {
		return Rules{}, SourceNetwork, fmt.Errorf("unsupported url scheme: %q", robotsURL)
	}
	if !m.AllowPrivateHosts && isLocalOrPrivateHost(u.Hostname()) {
		return Rules{}, SourceNetwork, fmt.Errorf("private host not allowed: %s", u.Hostname())
	}

	m.mu.Lock()
	if ent, ok := m.mem[robotsURL]; ok && m.now().Before(ent.expiry) {
		r := ent.rules
		m.mu.Unlock()
		return r, SourceMemory, nil
	}
	m.mu.Unlock()

	return m.fetchRules(ctx, robotsURL)
}

// fetchRules performs the conditional network fetch and memoizes
// whatever it decides, allow-all included.
func (m *Manager) fetchRules(ctx context.Context, robotsURL string) (Rules, Source, error) {
	var etag, lastMod string
	if m.Cache != nil {
		if meta, err := m.Cache.LoadMeta(ctx, robotsURL); err == nil && meta != nil {
			etag = meta.ETag
			lastMod = meta.LastModified
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return Rules{}, SourceNetwork, fmt.Errorf("new request: %w", err)
	}
	if m.UserAgent != "" {
		req.Header.Set("User-Agent", m.UserAgent)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastMod != "" {
		req.Header.Set("If-Modified-Since", lastMod)
	}

	client := m.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		// Unreachable host: allow-all, memoized so the fetch is not
		// retried on every call.
		m.storeMem(robotsURL, Rules{})
		return Rules{}, SourceNetwork, nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && m.Cache != nil:
		body, err := m.Cache.LoadBody(ctx, robotsURL)
		if err != nil {
			return Rules{}, SourceCache304, fmt.Errorf("load cached robots: %w", err)
		}
		rules := parseRobots(string(body))
		m.storeMem(robotsURL, rules)
		return rules, SourceCache304, nil
	case resp.StatusCode != http.StatusOK:
		// 5xx, 401, 403, and every other non-200: allow-all.
		m.storeMem(robotsURL, Rules{})
		return Rules{}, SourceNetwork, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Rules{}, SourceNetwork, fmt.Errorf("read robots: %w", err)
	}
	if m.Cache != nil {
		_ = m.Cache.Save(ctx, robotsURL, "text/plain", resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"), data)
	}
	rules := parseRobots(string(data))
	m.storeMem(robotsURL, rules)
	return rules, SourceNetwork, nil
}

func (m *Manager) storeMem(key string, rules Rules) {
	exp := m.EntryExpiry
	if exp <= 0 {
		exp = 30 * time.Minute
	}
	m.mu.Lock()
	m.mem[key] = memEntry{rules: rules, expiry: m.now().Add(exp)}
	m.mu.Unlock()
}

// parseRobots builds both halves of Rules: the matcher via
// robotstxt.FromString, and the Groups view from a tolerant line scan
// (unknown keys and junk lines are skipped). A file that yields
// nothing allows everything.
func parseRobots(text string) Rules {
	return Rules{Groups: parseGroups(text), data: compileMatcher(text)}
}

func parseGroups(text string) []Group {
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var groups []Group
	current := Group{}
	flush := func() {
		if len(current.Agents) == 0 && len(current.Allow) == 0 && len(current.Disallow) == 0 && current.CrawlDelay == nil {
			return
		}
		groups = append(groups, current)
		current = Group{}
	}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:colon]))
		val := strings.TrimSpace(line[colon+1:])
		switch key {
		case "user-agent", "useragent":
			// A user-agent line after rules starts a new group; stacked
			// user-agent lines share one group.
			if len(current.Agents) > 0 && (len(current.Allow) > 0 || len(current.Disallow) > 0 || current.CrawlDelay != nil) {
				flush()
			}
			current.Agents = append(current.Agents, strings.ToLower(val))
		case "allow":
			current.Allow = append(current.Allow, val)
		case "disallow":
			current.Disallow = append(current.Disallow, val)
		case "crawl-delay", "crawldelay":
			if s := strings.TrimSpace(val); s != "" {
				if d, err := time.ParseDuration(s + "s"); err == nil {
					dd := d
					current.CrawlDelay = &dd
				}
			}
		}
	}
	flush()
	return groups
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func isLocalOrPrivateHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "localhost" || h == "localhost.localdomain" || h == "::1" || h == "[::1]" {
		return true
	}
	if ip := net.ParseIP(h); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
	}
	return false
}
