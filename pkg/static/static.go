// Package static resolves request paths to file contents under a single
// configured root, with MIME type inference from the file extension.
package static

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrNotFound reports a path with no file under the root.
	ErrNotFound = errors.New("static file not found")
	// ErrForbidden reports a path that escapes the configured root.
	ErrForbidden = errors.New("path outside static root")
)

// Resolver serves files from one root directory. It never follows a path
// outside that root: traversal attempts fail with ErrForbidden.
type Resolver struct {
	root string
}

// NewResolver returns a resolver rooted at dir.
func NewResolver(dir string) (*Resolver, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("static root %s: %w", dir, err)
	}
	return &Resolver{root: abs}, nil
}

// Resolve maps a request path to file bytes and a content type.
func (r *Resolver) Resolve(requestPath string) ([]byte, string, error) {
	full := filepath.Join(r.root, filepath.FromSlash(requestPath))
	rel, err := filepath.Rel(r.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, "", fmt.Errorf("%w: %s", ErrForbidden, requestPath)
	}

	fi, err := os.Stat(full)
	if err != nil || fi.IsDir() {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, requestPath)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, requestPath)
	}

	ctype := mime.TypeByExtension(filepath.Ext(full))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	return data, ctype, nil
}
