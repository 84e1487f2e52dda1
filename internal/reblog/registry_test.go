package reblog

import (
	"path/filepath"
	"reflect"
	"testing"

	"nonalt/internal/testsupport"
)

const registryDoc = `
- urls:
    - https://www.pixiv.net/users/111
    - https://twitter.com/artist_a
  artist_names:
    - 絵師Ａ
- urls:
    - https://twitter.com/circle_b
  artist_names:
    - drawer-b
  circle_names:
    - サークルB
`

func loadTestRegistry(t *testing.T) *Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artists.yaml")
	testsupport.WriteArtists(t, path, registryDoc)
	registry, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	return registry
}

func TestTagsForOrdersArtistsBeforeCircles(t *testing.T) {
	registry := loadTestRegistry(t)
	tags := registry.TagsFor([]string{
		"https://twitter.com/circle_b",
		"https://www.pixiv.net/users/111",
		"https://unknown.example/nobody",
	})
	want := []string{
		"drawer-b (イラストレータ)",
		// NFKC folds the full-width A.
		"絵師A (イラストレータ)",
		"サークルB (サークル)",
	}
	if !reflect.DeepEqual(tags, want) {
		t.Fatalf("tags = %v, want %v", tags, want)
	}
}

func TestTagsForSharedEntryAcrossURLs(t *testing.T) {
	registry := loadTestRegistry(t)
	if registry.Len() != 3 {
		t.Fatalf("registry covers %d urls, want 3", registry.Len())
	}
	tags := registry.TagsFor([]string{"https://twitter.com/artist_a"})
	if !reflect.DeepEqual(tags, []string{"絵師A (イラストレータ)"}) {
		t.Fatalf("tags = %v", tags)
	}
}

func TestLoadRegistryMissingFileIsEmpty(t *testing.T) {
	registry, err := LoadRegistry(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if registry.Len() != 0 {
		t.Fatalf("expected empty registry, covers %d urls", registry.Len())
	}
	if tags := registry.TagsFor([]string{"https://twitter.com/artist_a"}); tags != nil {
		t.Fatalf("expected no tags, got %v", tags)
	}
}
