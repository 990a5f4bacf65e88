package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"setback/internal/domain"
)

// BuiltinPack names the content pack compiled into the binary.
const BuiltinPack = "builtin"

//go:embed packs/builtin.yml
var builtinPack []byte

// Pack is one content pack file.
type Pack struct {
	Templates []domain.ResponseTemplate `yaml:"templates"`
}

// ParsePack decodes a content pack and checks every template names a known category.
func ParsePack(name string, data []byte) (*Pack, error) {
	var p Pack
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid content pack %s: %w", name, err)
	}
	var problems []string
	for i, t := range p.Templates {
		if t.ID == "" {
			problems = append(problems, fmt.Sprintf("pack %s: template #%d has no id", name, i))
		}
		if !t.Category.Valid() {
			problems = append(problems, fmt.Sprintf("pack %s: template %s has unknown category %q", name, t.ID, t.Category))
		}
	}
	if len(problems) > 0 {
		return nil, &domain.ConfigurationError{Problems: problems}
	}
	return &p, nil
}

// LoadTemplates reads every configured content pack (relative paths resolve
// against workspace) plus inline templates, grouped by category in load order.
func (c *Config) LoadTemplates(workspace string) (map[domain.Category][]domain.ResponseTemplate, error) {
	out := make(map[domain.Category][]domain.ResponseTemplate)
	for _, name := range c.ContentPacks {
		data, err := readPack(workspace, name)
		if err != nil {
			return nil, err
		}
		pack, err := ParsePack(name, data)
		if err != nil {
			return nil, err
		}
		for _, t := range pack.Templates {
			out[t.Category] = append(out[t.Category], t)
		}
	}
	for _, t := range c.Templates {
		if !t.Category.Valid() {
			return nil, domain.NewConfigurationError("inline template %s has unknown category %q", t.ID, t.Category)
		}
		out[t.Category] = append(out[t.Category], t)
	}
	return out, nil
}

func readPack(workspace, name string) ([]byte, error) {
	if name == BuiltinPack {
		return builtinPack, nil
	}
	path := name
	if !filepath.IsAbs(path) {
		if workspace == "" {
			workspace = "."
		}
		path = filepath.Join(workspace, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read content pack %s: %w", name, err)
	}
	return data, nil
}
