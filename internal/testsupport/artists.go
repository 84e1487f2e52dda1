package testsupport

import (
	"os"
	"testing"
)

// WriteArtists fills the config's artists registry path with the provided
// YAML document.
func WriteArtists(t testing.TB, path, yamlDoc string) {
	t.Helper()

	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatalf("write artists registry: %v", err)
	}
}
