package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lexiqa/ragcore/core"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name string
		text string
		want core.Language
	}{
		{"arabic", "ما هي عقوبة السرقة في القانون التونسي", core.LanguageArabic},
		{"arabic with digits", "الفصل 207 من المجلة الجزائية", core.LanguageArabic},
		{"french", "responsabilité civile du transporteur", core.LanguageFrench},
		{"french citation", "article 97 du code pénal", core.LanguageFrench},
		{"mixed", "عقوبة التدليس article 291 faux et usage de faux", core.LanguageMixed},
		{"digits only", "97 207", core.LanguageMixed},
		{"empty", "", core.LanguageMixed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLanguage(tt.text))
		})
	}
}
