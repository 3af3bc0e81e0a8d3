package i18n

import (
	"errors"
	"strings"
)

// Language is an interface language tag from the fixed supported set.
type Language string

const (
	English   Language = "en"
	Hindi     Language = "hi"
	Kannada   Language = "kn"
	Malayalam Language = "ml"
)

// DefaultLanguage is used when nothing was ever selected.
const DefaultLanguage = English

var ErrUnsupportedLanguage = errors.New("unsupported language")

var supported = []Language{English, Hindi, Kannada, Malayalam}

var displayNames = map[Language]string{
	English:   "English",
	Hindi:     "Hindi",
	Kannada:   "Kannada",
	Malayalam: "Malayalam",
}

// Supported returns the closed set of languages in display order.
func Supported() []Language {
	out := make([]Language, len(supported))
	copy(out, supported)
	return out
}

func (l Language) Valid() bool {
	_, ok := displayNames[l]
	return ok
}

func (l Language) DisplayName() string {
	if name, ok := displayNames[l]; ok {
		return name
	}
	return string(l)
}

// ParseLanguage accepts a tag ("hi") or an English display name ("Hindi"),
// case-insensitively.
func ParseLanguage(s string) (Language, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for _, l := range supported {
		if v == string(l) || v == strings.ToLower(displayNames[l]) {
			return l, nil
		}
	}
	return "", ErrUnsupportedLanguage
}
