// Package i18n renders user-facing message templates from embedded
// locale catalogs. Catalogs are flat key -> template maps; templates
// use {name} placeholders.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

//go:embed locales/*.json
var localeFS embed.FS

const DefaultLocale = "en"

// Params are the named values substituted into a template.
type Params map[string]string

// Bundle holds all loaded locale catalogs.
type Bundle struct {
	catalogs map[string]map[string]string
}

// Load parses every embedded locale file. The English catalog must be
// present since it is the fallback.
func Load() (*Bundle, error) {
	entries, err := fs.ReadDir(localeFS, "locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}
	b := &Bundle{catalogs: make(map[string]map[string]string, len(entries))}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := localeFS.ReadFile(path.Join("locales", name))
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", name, err)
		}
		var catalog map[string]string
		if err := json.Unmarshal(data, &catalog); err != nil {
			return nil, fmt.Errorf("parse locale %s: %w", name, err)
		}
		b.catalogs[strings.TrimSuffix(name, ".json")] = catalog
	}
	if _, ok := b.catalogs[DefaultLocale]; !ok {
		return nil, fmt.Errorf("fallback locale %q missing", DefaultLocale)
	}
	return b, nil
}

// Locales lists the loaded locale codes.
func (b *Bundle) Locales() []string {
	out := make([]string, 0, len(b.catalogs))
	for code := range b.catalogs {
		out = append(out, code)
	}
	return out
}

// Supported reports whether a locale catalog is loaded.
func (b *Bundle) Supported(locale string) bool {
	_, ok := b.catalogs[locale]
	return ok
}

// T renders a key in the given locale with {name} placeholders filled
// from params. Missing locale falls back to English; a missing key
// renders as the key itself so a broken catalog stays visible instead
// of silently dropping a message.
func (b *Bundle) T(locale, key string, params Params) string {
	catalog, ok := b.catalogs[locale]
	if !ok {
		catalog = b.catalogs[DefaultLocale]
	}
	tmpl, ok := catalog[key]
	if !ok {
		if tmpl, ok = b.catalogs[DefaultLocale][key]; !ok {
			return key
		}
	}
	if len(params) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(params)*2)
	for name, value := range params {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
