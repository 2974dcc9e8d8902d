package workflow

import (
	"embed"
	"fmt"
)

//go:embed templates/*.yaml
var bundledTemplatesFS embed.FS

// RegisterBundled parses and registers the code-review, research-brief,
// and single-task templates shipped with this package into r.
func RegisterBundled(r *Registry) error {
	entries, err := bundledTemplatesFS.ReadDir("templates")
	if err != nil {
		return fmt.Errorf("read bundled templates: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		raw, err := bundledTemplatesFS.ReadFile("templates/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read bundled template %q: %w", entry.Name(), err)
		}
		tmpl, err := ParseYAML(raw)
		if err != nil {
			return fmt.Errorf("parse bundled template %q: %w", entry.Name(), err)
		}
		r.Register(tmpl.name, tmpl)
	}
	return nil
}
