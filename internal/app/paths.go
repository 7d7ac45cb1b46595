package app

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// ReportOutputPath returns a stable Markdown output path under the
// reports directory for one research run: a slugified prefix of the
// query plus the request ID, so repeated runs of the same query never
// collide.
func ReportOutputPath(cfg Config, requestID, query string) string {
	root := strings.TrimSpace(cfg.ReportsDir)
	if root == "" {
		root = "reports"
	}
	query = strings.TrimSpace(query)
	if query == "" {
		query = "query"
	}
	slug := slugify(query)
	if slug == "" {
		h := sha256.Sum256([]byte(strings.ToLower(query)))
		slug = hex.EncodeToString(h[:])[:12]
	}
	id := strings.TrimSpace(requestID)
	if id == "" {
		id = "run"
	}
	name := slug + "-" + id + ".md"
	return filepath.Join(root, name)
}

// ResultsJSONPath mirrors ReportOutputPath for the JSON snapshot a
// completed run is persisted as, so a later CLI invocation (status,
// results, cite) can inspect it by request ID without re-running.
func ResultsJSONPath(cfg Config, requestID, query string) string {
	md := ReportOutputPath(cfg, requestID, query)
	return strings.TrimSuffix(md, filepath.Ext(md)) + ".json"
}

// FindResultsJSON locates a previously-written results snapshot for
// requestID under cfg.ReportsDir, since the slug prefix derived from the
// original query is not known to a later, separate invocation.
func FindResultsJSON(cfg Config, requestID string) (string, error) {
	root := strings.TrimSpace(cfg.ReportsDir)
	if root == "" {
		root = "reports"
	}
	matches, err := filepath.Glob(filepath.Join(root, "*-"+requestID+".json"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no results found for request %q", requestID)
	}
	return matches[0], nil
}

// slugify lowercases s and replaces every run of non-alphanumeric
// characters with a single hyphen, trimming leading/trailing hyphens
// and capping the result at 60 characters so filenames stay readable.
func slugify(s string) string {
	var b strings.Builder
	lastHyphen := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if len(out) > 60 {
		out = strings.Trim(out[:60], "-")
	}
	return out
}
