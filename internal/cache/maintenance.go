package cache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Maintenance helpers for the namespaces that have no built-in
// eviction: the HTTP response cache (meta/body pairs) and the LLM
// response cache (single .json files). The Store namespaces bound
// themselves on every Set and need none of this.

// ClearNamespace removes a namespace directory and all contents, then
// recreates it so the path stays a valid empty cache location.
func ClearNamespace(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("empty dir")
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// SweepHTTPByAge deletes HTTP cache entries whose SavedAt is older than
// maxAge, removing both the meta file and its body. Unreadable or
// malformed meta files are skipped, not treated as errors.
func SweepHTTPByAge(dir string, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0
	err := walkFiles(dir, func(path, name string) {
		if !strings.HasSuffix(name, ".meta.json") {
			return
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return
		}
		var e HTTPEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return
		}
		if e.SavedAt.After(cutoff) {
			return
		}
		removed++
		_ = os.Remove(path)
		_ = os.Remove(strings.TrimSuffix(path, ".meta.json") + ".body")
	})
	return removed, err
}

// SweepLLMByAge deletes LLM cache entries older than maxAge by file
// mtime. Get touches mtime on access, so this is least-recently-used
// age, not write age.
func SweepLLMByAge(dir string, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0
	err := walkFiles(dir, func(path, name string) {
		if !isLLMEntry(name) {
			return
		}
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.ModTime().UTC().After(cutoff) {
			return
		}
		removed++
		_ = os.Remove(path)
	})
	return removed, err
}

// agedEntry is one evictable unit: an HTTP meta/body pair or a single
// LLM file, with the newest mtime among its files.
type agedEntry struct {
	paths []string
	mtime time.Time
	bytes int64
}

// BoundHTTPCache evicts least-recently-touched HTTP entries until the
// namespace fits under maxBytes and maxCount. A non-positive limit
// disables that dimension. Returns the number of entries removed.
func BoundHTTPCache(dir string, maxBytes int64, maxCount int) (int, error) {
	entries, err := collectHTTPEntries(dir)
	if err != nil {
		return 0, err
	}
	return evictOldest(entries, maxBytes, maxCount)
}

// BoundLLMCache is BoundHTTPCache for the LLM namespace, where each
// entry is a single .json file.
func BoundLLMCache(dir string, maxBytes int64, maxCount int) (int, error) {
	entries, err := collectLLMEntries(dir)
	if err != nil {
		return 0, err
	}
	return evictOldest(entries, maxBytes, maxCount)
}

func collectHTTPEntries(dir string) ([]agedEntry, error) {
	var entries []agedEntry
	err := walkFiles(dir, func(path, name string) {
		if !strings.HasSuffix(name, ".meta.json") {
			return
		}
		base := strings.TrimSuffix(path, ".meta.json")
		e := agedEntry{paths: []string{path, base + ".body"}}
		for _, p := range e.paths {
			info, err := os.Stat(p)
			if err != nil {
				continue
			}
			e.bytes += info.Size()
			if mt := info.ModTime().UTC(); mt.After(e.mtime) {
				e.mtime = mt
			}
		}
		entries = append(entries, e)
	})
	return entries, err
}

func collectLLMEntries(dir string) ([]agedEntry, error) {
	var entries []agedEntry
	err := walkFiles(dir, func(path, name string) {
		if !isLLMEntry(name) {
			return
		}
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		entries = append(entries, agedEntry{
			paths: []string{path},
			mtime: info.ModTime().UTC(),
			bytes: info.Size(),
		})
	})
	return entries, err
}

// evictOldest removes entries in ascending mtime order until both
// limits hold. Limits <= 0 are unbounded.
func evictOldest(entries []agedEntry, maxBytes int64, maxCount int) (int, error) {
	if maxBytes <= 0 && maxCount <= 0 {
		return 0, nil
	}
	var totalBytes int64
	for _, e := range entries {
		totalBytes += e.bytes
	}
	totalCount := len(entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].mtime.Before(entries[j].mtime) })

	over := func() bool {
		return (maxCount > 0 && totalCount > maxCount) ||
			(maxBytes > 0 && totalBytes > maxBytes)
	}
	removed := 0
	for _, e := range entries {
		if !over() {
			break
		}
		for _, p := range e.paths {
			_ = os.Remove(p)
		}
		totalBytes -= e.bytes
		totalCount--
		removed++
	}
	return removed, nil
}

// isLLMEntry reports whether name is an LLM cache file: a .json leaf
// that is not an HTTP .meta.json.
func isLLMEntry(name string) bool {
	return strings.HasSuffix(name, ".json") && !strings.HasSuffix(name, ".meta.json")
}

// walkFiles visits every regular file under dir. Walk errors on
// individual entries propagate; a missing dir is not an error.
func walkFiles(dir string, visit func(path, name string)) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("empty dir")
	}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		visit(path, d.Name())
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
