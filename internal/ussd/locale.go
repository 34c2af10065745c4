package ussd

import (
	"embed"
	"fmt"
	"io/fs"
	"path"

	"gopkg.in/yaml.v3"

	"mobilespo/internal/models"
)

// Unavailable is rendered when a key is missing even in English
const Unavailable = "Service unavailable"

//go:embed locales/*.yaml
var localeFS embed.FS

// localeFile is the on-disk shape of one language table
type localeFile struct {
	Language models.Language  `yaml:"language"`
	Texts    map[string]string `yaml:"texts"`
	Tips     []string          `yaml:"tips"`
}

// Locales holds the template tables for every language
type Locales struct {
	texts map[models.Language]map[string]string
	tips  map[models.Language][]string
}

// LoadLocales parses the embedded language tables
func LoadLocales() (*Locales, error) {
	return loadLocales(localeFS, "locales")
}

func loadLocales(fsys fs.FS, dir string) (*Locales, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list locale files: %w", err)
	}

	l := &Locales{
		texts: make(map[models.Language]map[string]string),
		tips:  make(map[models.Language][]string),
	}

	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".yaml" {
			continue
		}

		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}

		var file localeFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", entry.Name(), err)
		}
		if file.Language == "" {
			return nil, fmt.Errorf("locale file %s has no language", entry.Name())
		}

		l.texts[file.Language] = file.Texts
		if len(file.Tips) > 0 {
			l.tips[file.Language] = file.Tips
		}
	}

	if _, ok := l.texts[models.LanguageEnglish]; !ok {
		return nil, fmt.Errorf("english locale is required")
	}

	return l, nil
}

// Render returns the text for key in language, falling back to English and
// then to Unavailable. It never panics, even on a nil receiver.
func (l *Locales) Render(language models.Language, key string) string {
	if l == nil {
		return Unavailable
	}
	if text, ok := l.texts[language][key]; ok && text != "" {
		return text
	}
	if text, ok := l.texts[models.LanguageEnglish][key]; ok && text != "" {
		return text
	}
	return Unavailable
}

// Tips returns the health tips for language, falling back to English
func (l *Locales) Tips(language models.Language) []string {
	if l == nil {
		return nil
	}
	if tips, ok := l.tips[language]; ok {
		return tips
	}
	return l.tips[models.LanguageEnglish]
}
