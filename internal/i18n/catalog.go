package i18n

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed translations.yaml
var bundledTranslations []byte

// Catalog maps a language to its key -> string dictionary. English is the
// fallback for keys a language does not define.
type Catalog struct {
	entries map[Language]map[string]string
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the catalog bundled with the binary.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Parse(bundledTranslations)
	})
	return defaultCatalog, defaultErr
}

// Parse reads a YAML document of the form {lang: {key: text}}. Unknown
// language tags are rejected so typos do not silently vanish.
func Parse(data []byte) (*Catalog, error) {
	var raw map[string]map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse translations: %w", err)
	}
	c := &Catalog{entries: make(map[Language]map[string]string, len(raw))}
	for tag, dict := range raw {
		lang := Language(tag)
		if !lang.Valid() {
			return nil, fmt.Errorf("parse translations: %w: %q", ErrUnsupportedLanguage, tag)
		}
		c.entries[lang] = dict
	}
	return c, nil
}

// Lookup never fails: it falls back to English and then to the key itself.
func (c *Catalog) Lookup(lang Language, key string) string {
	if c != nil {
		if v, ok := c.entries[lang][key]; ok && v != "" {
			return v
		}
		if v, ok := c.entries[English][key]; ok && v != "" {
			return v
		}
	}
	return key
}

// Translations returns a fresh dictionary for lang with English filling the
// gaps. Callers may mutate the result.
func (c *Catalog) Translations(lang Language) map[string]string {
	out := make(map[string]string)
	if c == nil {
		return out
	}
	for k, v := range c.entries[English] {
		out[k] = v
	}
	for k, v := range c.entries[lang] {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
