package entity

import "fmt"

// Renderer produces an entity's canonical display markup. The built-in
// renderer composes the stored title and body; richer render pipelines can
// replace it behind the analyzer's ContentRenderer interface.
type Renderer struct{}

// NewRenderer creates the default renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// RenderDefaultView returns the entity's default display markup. Rendering
// uses the entity's own language, not the caller's: langcode is accepted for
// interface parity but the stored body is already language-specific, so the
// output is deterministic regardless of caller locale.
func (r *Renderer) RenderDefaultView(e Entity, langcode string) (string, error) {
	if e.Title == "" {
		return e.Body, nil
	}
	return fmt.Sprintf("<h1>%s</h1>\n%s", e.Title, e.Body), nil
}
