package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// PlaylistItem is one #EXTINF/URL pair for WritePlaylist.
type PlaylistItem struct {
	Group string
	Title string
	URL   string
}

// WritePlaylist writes an M3U playlist containing items to path.
func WritePlaylist(t testing.TB, path string, items ...PlaylistItem) {
	t.Helper()

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	for _, item := range items {
		fmt.Fprintf(&b, "#EXTINF:-1 tvg-name=%q group-title=%q,%s\n%s\n", item.Title, item.Group, item.Title, item.URL)
	}
	WriteFile(t, path, b.String())
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// ReadFile returns the contents of path, failing the test when unreadable.
func ReadFile(t testing.TB, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// ListFiles returns every regular file under root with the given extension,
// relative to root and sorted.
func ListFiles(t testing.TB, root, ext string) []string {
	t.Helper()

	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ext {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("walk %s: %v", root, err)
	}
	return files
}
