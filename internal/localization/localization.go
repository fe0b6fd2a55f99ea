// Package localization loads translated user-facing strings from JSON files
// and resolves them per language, falling back to English and then to the
// key itself.
package localization

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"
)

// DefaultLang is used when a request names no language or an unknown one.
const DefaultLang = "en"

//go:embed locales/*.json
var bundled embed.FS

// Localizer manages the translations for the application.
type Localizer struct {
	translations map[string]map[string]string
	mu           sync.RWMutex
}

// NewLocalizer loads every "<lang>.json" file in dir. An empty dir selects
// the bundled locales.
func NewLocalizer(dir string) (*Localizer, error) {
	if dir == "" {
		return NewLocalizerFS(bundled, "locales")
	}
	return NewLocalizerFS(os.DirFS(dir), ".")
}

// NewLocalizerFS is NewLocalizer over an arbitrary file system.
func NewLocalizerFS(fsys fs.FS, dir string) (*Localizer, error) {
	l := &Localizer{
		translations: make(map[string]map[string]string),
	}

	files, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read localization directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		data, err := fs.ReadFile(fsys, path.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read localization file %s: %w", file.Name(), err)
		}

		var translations map[string]string
		if err := json.Unmarshal(data, &translations); err != nil {
			return nil, fmt.Errorf("failed to parse localization file %s: %w", file.Name(), err)
		}

		l.translations[strings.TrimSuffix(file.Name(), ".json")] = translations
	}

	return l, nil
}

// GetString returns the localized string for a given key and language.
func (l *Localizer) GetString(lang, key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if value, ok := l.translations[Normalize(lang)][key]; ok {
		return value
	}
	if value, ok := l.translations[DefaultLang][key]; ok {
		return value
	}
	return key
}

// Has reports whether translations for lang are loaded.
func (l *Localizer) Has(lang string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.translations[Normalize(lang)]
	return ok
}

// Normalize reduces a language tag such as "es-CO" or "ES_co" to its
// primary subtag.
func Normalize(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i >= 0 {
		lang = lang[:i]
	}
	if lang == "" {
		return DefaultLang
	}
	return lang
}
