package utils

import (
	"encoding/json"
	"io/fs"
	"path/filepath"
	"sort"

	ds "github.com/bmatcuk/doublestar/v4"
)

// NormalizeJSON minifies JSON text for stable equality comparisons; when input is empty returns empty string.
func NormalizeJSON(s string) string {
	if len(s) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return s
	}
	return string(b)
}

// GlobRecursive walks base and matches files against a doublestar pattern (supports **).
func GlobRecursive(base, pattern string) ([]string, error) {
	matches := []string{}
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(base, path)
		ok, err := ds.PathMatch(pattern, rel)
		if err != nil {
			return err
		}
		if ok {
			matches = append(matches, path)
		}
		return nil
	})
	return matches, err
}

// CollectFiles returns the files under base matching any include pattern and
// no exclude pattern, as sorted slash-separated paths relative to base.
func CollectFiles(base string, include, exclude []string) ([]string, error) {
	if len(include) == 0 {
		include = []string{"**"}
	}
	seen := map[string]struct{}{}
	for _, pat := range include {
		paths, err := GlobRecursive(base, pat)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			rel, err := filepath.Rel(base, p)
			if err != nil {
				return nil, err
			}
			rel = filepath.ToSlash(rel)
			excluded := false
			for _, ex := range exclude {
				if ok, _ := ds.Match(ex, rel); ok {
					excluded = true
					break
				}
			}
			if !excluded {
				seen[rel] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for rel := range seen {
		out = append(out, rel)
	}
	sort.Strings(out)
	return out, nil
}
