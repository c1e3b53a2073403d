package search

import (
	"context"
	"unicode"

	"github.com/lexiqa/ragcore/core"
)

// Translator produces a translated variant of a query. When configured on
// the engine, Arabic and mixed queries are also searched in French so that
// French-language doctrine is reachable from Arabic queries.
type Translator interface {
	Translate(ctx context.Context, text string, target core.Language) (string, error)
}

// DetectLanguage classifies text by the share of Arabic-script letters
// among all letters. Digits and punctuation are ignored, so a citation
// like "الفصل 207" still reads as Arabic.
func DetectLanguage(text string) core.Language {
	var letters, arabic int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Arabic, r) {
			arabic++
		}
	}
	if letters == 0 {
		return core.LanguageMixed
	}
	ratio := float64(arabic) / float64(letters)
	switch {
	case ratio >= 0.7:
		return core.LanguageArabic
	case ratio <= 0.2:
		return core.LanguageFrench
	default:
		return core.LanguageMixed
	}
}
