package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
)

//go:embed templates
var templatesFS embed.FS

// Template names, one file per kind under templates/.
const (
	KindMagicLink   = "magic_link"
	KindNewDeal     = "new_deal"
	KindStepUpdate  = "step_update"
	KindNewDocument = "new_document"
	KindInvitation  = "invitation"
)

// Templates holds one parsed set (layout + content) per message kind.
type Templates struct {
	sets map[string]*template.Template
}

func LoadTemplates() (*Templates, error) {
	layout, err := fs.ReadFile(templatesFS, "templates/layout.html")
	if err != nil {
		return nil, err
	}

	entries, err := fs.ReadDir(templatesFS, "templates")
	if err != nil {
		return nil, err
	}

	t := &Templates{sets: make(map[string]*template.Template)}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == "layout.html" {
			continue
		}
		content, err := fs.ReadFile(templatesFS, "templates/"+name)
		if err != nil {
			return nil, err
		}

		kind := name[:len(name)-len(".html")]
		set, err := template.New(kind).Parse(string(layout))
		if err != nil {
			return nil, fmt.Errorf("parsing layout for %s: %w", kind, err)
		}
		if _, err := set.Parse(string(content)); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", kind, err)
		}
		t.sets[kind] = set
	}

	return t, nil
}

func (t *Templates) Render(kind string, data any) (string, error) {
	set, ok := t.sets[kind]
	if !ok {
		return "", fmt.Errorf("unknown email template %q", kind)
	}
	var buf bytes.Buffer
	if err := set.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", kind, err)
	}
	return buf.String(), nil
}
