package static

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testResolver(t *testing.T) (*Resolver, string) {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"index.html": "<html></html>",
		"app.css":    "body{}",
		"data.bin":   "\x00\x01\x02",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("fixture write failed: %v", err)
		}
	}
	// a file next to the root that traversal must never reach
	if err := os.WriteFile(filepath.Join(filepath.Dir(dir), "secret.txt"), []byte("nope"), 0o644); err != nil {
		t.Fatalf("fixture write failed: %v", err)
	}
	r, err := NewResolver(dir)
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	return r, dir
}

func TestResolveFile(t *testing.T) {
	r, _ := testResolver(t)
	data, ctype, err := r.Resolve("index.html")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if string(data) != "<html></html>" {
		t.Fatalf("data = %q", data)
	}
	if !strings.HasPrefix(ctype, "text/html") {
		t.Fatalf("content type = %q", ctype)
	}
}

func TestResolveUnknownExtension(t *testing.T) {
	r, _ := testResolver(t)
	_, ctype, err := r.Resolve("data.bin")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if ctype != "application/octet-stream" {
		t.Fatalf("content type = %q", ctype)
	}
}

func TestResolveMissing(t *testing.T) {
	r, _ := testResolver(t)
	if _, _, err := r.Resolve("nope.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestResolveDirectoryIsNotFound(t *testing.T) {
	r, dir := testResolver(t)
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if _, _, err := r.Resolve("sub"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound for directory, got %v", err)
	}
}

func TestTraversalForbidden(t *testing.T) {
	r, _ := testResolver(t)
	for _, p := range []string{
		"../secret.txt",
		"../../etc/passwd",
		"a/../../secret.txt",
	} {
		if _, _, err := r.Resolve(p); !errors.Is(err, ErrForbidden) {
			t.Fatalf("Resolve(%q): want ErrForbidden, got %v", p, err)
		}
	}
}
