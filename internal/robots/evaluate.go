package robots

import (
	"time"

	"github.com/temoto/robotstxt"
)

// Matching is delegated to github.com/temoto/robotstxt, which
// implements longest-match precedence with "*" wildcards and "$" end
// anchors. Rules keeps its own parsed Groups only for introspection
// (tests and logging); the matcher consumes the raw robots.txt text.

// IsAllowed reports whether ua may fetch path under these rules. A
// fully-empty ruleset (no robots.txt found, or fetching it failed)
// allows everything.
func (r Rules) IsAllowed(ua, path string) bool {
	if r.data == nil {
		return true
	}
	group := r.data.FindGroup(ua)
	if group == nil {
		return true
	}
	return group.Test(path)
}

// CrawlDelayFor returns the Crawl-delay declared by the group selected
// for ua, or nil if none applies.
func (r Rules) CrawlDelayFor(ua string) *time.Duration {
	if r.data == nil {
		return nil
	}
	group := r.data.FindGroup(ua)
	if group == nil || group.CrawlDelay <= 0 {
		return nil
	}
	d := group.CrawlDelay
	return &d
}

// compileMatcher parses text into the robotstxt matcher. A file the
// parser rejects degrades to allow-all (nil matcher), consistent with
// how fetch failures are handled.
func compileMatcher(text string) *robotstxt.RobotsData {
	data, err := robotstxt.FromString(text)
	if err != nil {
		return nil
	}
	return data
}
