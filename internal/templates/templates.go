// Package templates renders prompt and system templates against input
// case data. Rendering is strict: referencing a variable the input does
// not define is an error, never silently empty output.
package templates

import (
	"fmt"
	"strings"
	"text/template"
)

// Render executes the template source against data. Template variables use
// the standard {{.name}} syntax. A reference to a missing variable fails
// the render.
func Render(source string, data map[string]any) (string, error) {
	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(source)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}

	if data == nil {
		data = map[string]any{}
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering template: %w", err)
	}
	return buf.String(), nil
}
