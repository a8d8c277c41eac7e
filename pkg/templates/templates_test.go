package templates

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testRenderer(t *testing.T) *Renderer {
	t.Helper()
	dir := t.TempDir()
	pages := map[string]string{
		"index.html": "<h1>$title</h1><p>Served from ${host}</p>",
		"plain.txt":  "no variables here",
	}
	for name, content := range pages {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("fixture write failed: %v", err)
		}
	}
	return NewRenderer(dir)
}

func TestRenderSubstitution(t *testing.T) {
	r := testRenderer(t)
	out, err := r.Render("index.html", map[string]string{"title": "Home", "host": "localhost:9090"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if out != "<h1>Home</h1><p>Served from localhost:9090</p>" {
		t.Fatalf("out = %q", out)
	}
}

func TestRenderNoVariables(t *testing.T) {
	r := testRenderer(t)
	out, err := r.Render("plain.txt", nil)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if out != "no variables here" {
		t.Fatalf("out = %q", out)
	}
}

func TestRenderMissingContextKey(t *testing.T) {
	r := testRenderer(t)
	_, err := r.Render("index.html", map[string]string{"title": "Home"})
	if err == nil {
		t.Fatal("missing context key did not fail the render")
	}
	if !strings.Contains(err.Error(), "host") {
		t.Fatalf("error does not name the missing key: %v", err)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	r := testRenderer(t)
	if _, err := r.Render("ghost.html", nil); !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("want ErrTemplateNotFound, got %v", err)
	}
}

func TestRenderRejectsPathSeparators(t *testing.T) {
	r := testRenderer(t)
	for _, name := range []string{"../index.html", "a/b.html", `a\b.html`, ""} {
		if _, err := r.Render(name, nil); !errors.Is(err, ErrTemplateNotFound) {
			t.Fatalf("Render(%q): want ErrTemplateNotFound, got %v", name, err)
		}
	}
}
