// Package templates is a minimal string-substitution renderer: templates
// reference context values as $name or ${name}.
package templates

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrTemplateNotFound reports a render of an unknown template name.
var ErrTemplateNotFound = errors.New("template not found")

// Renderer loads templates by name from one directory.
type Renderer struct {
	dir string
}

// NewRenderer returns a renderer reading templates from dir.
func NewRenderer(dir string) *Renderer {
	return &Renderer{dir: dir}
}

// Render substitutes ctx values into the named template. Referencing a
// variable absent from ctx is an error rather than a silent empty string.
func (r *Renderer) Render(name string, ctx map[string]string) (string, error) {
	// template names are bare file names; anything with a separator is
	// treated as unknown
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	raw, err := os.ReadFile(filepath.Join(r.dir, name))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}

	var missing []string
	out := os.Expand(string(raw), func(key string) string {
		v, ok := ctx[key]
		if !ok {
			missing = append(missing, key)
		}
		return v
	})
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("template %s: missing context keys: %s", name, strings.Join(missing, ", "))
	}
	return out, nil
}
