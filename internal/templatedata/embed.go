// Package templatedata embeds the built-in report templates so the binary
// works without any template files on disk. The embedded filesystem is
// rooted at "templates/".
package templatedata

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/dusk-indust/chronicle/internal/tmpl"
)

// TemplateFS contains the embedded template files.
//
//go:embed templates/*.yaml
var TemplateFS embed.FS

// DefaultName is the template used when neither flag nor config names one.
const DefaultName = "research-report"

// Names lists the embedded template names, sorted.
func Names() []string {
	entries, err := fs.ReadDir(TemplateFS, "templates")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Load parses an embedded template by name.
func Load(name string) (*tmpl.Template, error) {
	data, err := TemplateFS.ReadFile("templates/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("templatedata: unknown template %q (have %s)", name, strings.Join(Names(), ", "))
	}
	return tmpl.Parse(data)
}

// WriteDefault returns the raw bytes of the default template, for `init`
// to seed a project-local copy the user can edit.
func WriteDefault() ([]byte, error) {
	return TemplateFS.ReadFile("templates/" + DefaultName + ".yaml")
}
