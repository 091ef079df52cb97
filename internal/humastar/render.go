package humastar

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"sync"
)

// funcMap provides common template functions.
var funcMap = template.FuncMap{
	// dict creates a map from key-value pairs, useful for passing multiple values to nested templates
	"dict": func(values ...any) map[string]any {
		if len(values)%2 != 0 {
			return nil
		}
		m := make(map[string]any, len(values)/2)
		for i := 0; i < len(values); i += 2 {
			key, ok := values[i].(string)
			if !ok {
				continue
			}
			m[key] = values[i+1]
		}
		return m
	},
	// percent formats a 0-100 slider value as its readout text.
	"percent": func(v int) string {
		return fmt.Sprintf("%d%%", v)
	},
}

// Renderer manages HTML fragment templates.
type Renderer struct {
	fsys    fs.FS
	pattern string

	mu        sync.RWMutex
	templates *template.Template
}

// NewRenderer parses the fragment templates in fsys matching pattern,
// e.g. "fragments/*.html".
func NewRenderer(fsys fs.FS, pattern string) (*Renderer, error) {
	r := &Renderer{fsys: fsys, pattern: pattern}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.RenderToBuffer(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToBuffer renders a named template to a buffer.
func (r *Renderer) RenderToBuffer(buf *bytes.Buffer, name string, data any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.templates.ExecuteTemplate(buf, name, data)
}

// Reload re-parses the templates (useful for dev hot-reload with os.DirFS).
func (r *Renderer) Reload() error {
	tmpl, err := template.New("").Funcs(funcMap).ParseFS(r.fsys, r.pattern)
	if err != nil {
		return fmt.Errorf("parsing templates %s: %w", r.pattern, err)
	}

	r.mu.Lock()
	r.templates = tmpl
	r.mu.Unlock()

	return nil
}
