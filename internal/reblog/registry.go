package reblog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

const (
	artistTagSuffix = " (イラストレータ)"
	circleTagSuffix = " (サークル)"
)

type registryEntry struct {
	URLs        []string `yaml:"urls"`
	ArtistNames []string `yaml:"artist_names"`
	CircleNames []string `yaml:"circle_names"`
}

type artistInfo struct {
	artistNames []string
	circleNames []string
}

// Registry maps artist page URLs to the tag names attached to a repost.
type Registry struct {
	byURL map[string]artistInfo
}

// LoadRegistry reads the artists file at path. A missing file yields an
// empty registry, since tagging is optional.
func LoadRegistry(path string) (*Registry, error) {
	registry := &Registry{byURL: make(map[string]artistInfo)}
	if path == "" {
		return registry, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return registry, nil
		}
		return nil, fmt.Errorf("read artists registry: %w", err)
	}

	var entries []registryEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse artists registry: %w", err)
	}

	for _, entry := range entries {
		info := artistInfo{
			artistNames: normalizeNames(entry.ArtistNames),
			circleNames: normalizeNames(entry.CircleNames),
		}
		for _, u := range entry.URLs {
			registry.byURL[u] = info
		}
	}
	return registry, nil
}

// Len reports how many URLs the registry covers.
func (r *Registry) Len() int {
	return len(r.byURL)
}

// TagsFor builds the tag list for a repost: artist names first, then circle
// names, in the order the artist URLs are given. Unknown URLs contribute
// nothing.
func (r *Registry) TagsFor(artistURLs []string) []string {
	var tags []string
	for _, u := range artistURLs {
		info, ok := r.byURL[u]
		if !ok {
			continue
		}
		for _, name := range info.artistNames {
			tags = append(tags, name+artistTagSuffix)
		}
	}
	for _, u := range artistURLs {
		info, ok := r.byURL[u]
		if !ok {
			continue
		}
		for _, name := range info.circleNames {
			tags = append(tags, name+circleTagSuffix)
		}
	}
	return tags
}

// normalizeNames applies NFKC so full-width and half-width spellings of the
// same name produce one tag form.
func normalizeNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, norm.NFKC.String(name))
	}
	return out
}
