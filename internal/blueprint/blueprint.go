// Package blueprint renders template strings and files against cached
// argument values.
//
// Rendering never panics past this boundary: an undefined variable or a
// syntax error is logged and surfaced as an error value the caller must
// handle, and an empty values mapping is a pass-through that returns the
// content unchanged.
package blueprint

import (
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/kettleworks/dirigent/internal/log"
)

// Renderer renders blueprint content with Go template syntax. Values are
// addressed as {{.name}}; a reference to a value that was never supplied is
// a rendering failure, not an empty substitution.
type Renderer struct {
	logger *slog.Logger
}

// New returns a Renderer.
func New() *Renderer {
	return &Renderer{logger: log.WithComponent("blueprint")}
}

// Render substitutes values into content. An empty or nil values mapping
// returns content unchanged.
func (r *Renderer) Render(content string, values map[string]any) (string, error) {
	if len(values) == 0 {
		return content, nil
	}

	tmpl, err := template.New("blueprint").Option("missingkey=error").Parse(content)
	if err != nil {
		r.logger.Error("blueprint failure", "error", err)
		return "", fmt.Errorf("parse blueprint: %w", err)
	}

	var out strings.Builder
	if err := tmpl.Execute(&out, values); err != nil {
		r.logger.Error("blueprint failure", "error", err, "values", values)
		return "", fmt.Errorf("render blueprint: %w", err)
	}
	return out.String(), nil
}
