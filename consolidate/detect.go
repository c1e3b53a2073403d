// Copyright 2026 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package consolidate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lexiqa/ragcore/core"
)

// Amendment phrasing in Tunisian legal texts.
// Arabic: "نقح الفصل 97 بموجب القانون عدد 14 لسنة 2025"
// French: "Modifié par Loi n°2025-14 du ..."
var (
	arAmendmentPattern = regexp.MustCompile(`(?:نقح|ألغي|عوض|أضيف|عدل)\s*(?:الفصل|الفصول)\s*((?:\d+(?:\s*مكرر)?[\s,و]*)+)(?:بموجب|بمقتضى)\s*(?:القانون|الأمر|المرسوم)\s*(?:الأساسي\s*)?عدد\s*(\d+)\s*لسنة\s*(\d{4})`)

	frAmendmentPattern = regexp.MustCompile(`(?i)(?:modifié|abrogé|remplacé|complété|amendé)e?s?\s*par\s*(?:la\s*|le\s*)?(?:loi|décret|arrêté)\s*(?:organique\s*)?n°?\s*(\d{4})-(\d+)`)

	arTotalAbrogationPattern = regexp.MustCompile(`(?:ألغيت|ألغي)\s*(?:هذا القانون|هذه المجلة|النص|القانون)\s*(?:بموجب|بمقتضى)`)

	frTotalAbrogationPattern = regexp.MustCompile(`(?i)(?:abrogé|abroge)\s*(?:dans son intégralité|en totalité|intégralement)`)

	// Articles cited just before a French amendment reference, e.g.
	// "les articles 97 et 207 modifiés par ...".
	frArticleContextPattern = regexp.MustCompile(`(?i)articles?\s*([\d\s,et]+)`)
)

// How far back to look for the article list preceding a French reference.
const frContextWindow = 100

// TierPolicy maps detection confidence to a tier. Thresholds are policy,
// not fact, so they stay configurable.
type TierPolicy struct {
	High   float64
	Medium float64
}

// DefaultTierPolicy returns the calibrated thresholds.
func DefaultTierPolicy() TierPolicy {
	return TierPolicy{High: 0.85, Medium: 0.7}
}

// Tier grades a confidence score.
func (p TierPolicy) Tier(confidence float64) core.ConfidenceTier {
	switch {
	case confidence >= p.High:
		return core.TierHigh
	case confidence >= p.Medium:
		return core.TierMedium
	default:
		return core.TierLow
	}
}

// DetectedAmendment is one amendment reference found in a scanned text.
type DetectedAmendment struct {
	AffectedArticles []string
	LawYear          string
	LawNumber        string
	Reference        string // human-readable form of the amending law
	Scope            core.AmendmentScope
	TotalAbrogation  bool
	Confidence       float64
}

// SourceKey returns the citation key of the amending law.
func (d *DetectedAmendment) SourceKey() string {
	return LawCitationKey(d.LawYear, d.LawNumber)
}

// DetectAmendments scans a text for amendment and abrogation references in
// Arabic and French. Matches referring to the same amending law are
// reported once.
func DetectAmendments(text string) []DetectedAmendment {
	total := arTotalAbrogationPattern.MatchString(text) || frTotalAbrogationPattern.MatchString(text)
	scope := core.ScopePartialModification
	if total {
		scope = core.ScopeTotalReplacement
	}

	var amendments []DetectedAmendment

	for _, m := range arAmendmentPattern.FindAllStringSubmatch(text, -1) {
		articles := ParseArticleList(m[1])
		amendments = append(amendments, DetectedAmendment{
			AffectedArticles: articles,
			LawYear:          m[3],
			LawNumber:        m[2],
			Reference:        fmt.Sprintf("القانون عدد %s لسنة %s", m[2], m[3]),
			Scope:            scope,
			TotalAbrogation:  total,
			Confidence:       confidence(articles, total),
		})
	}

	for _, idx := range frAmendmentPattern.FindAllStringSubmatchIndex(text, -1) {
		year := text[idx[2]:idx[3]]
		number := text[idx[4]:idx[5]]

		// The affected articles precede the reference in French phrasing.
		start := idx[0] - frContextWindow
		if start < 0 {
			start = 0
		}
		var articles []string
		if cm := frArticleContextPattern.FindStringSubmatch(text[start:idx[0]]); cm != nil {
			articles = ParseArticleList(cm[1])
		}

		amendments = append(amendments, DetectedAmendment{
			AffectedArticles: articles,
			LawYear:          year,
			LawNumber:        number,
			Reference:        fmt.Sprintf("Loi n°%s-%s", year, number),
			Scope:            scope,
			TotalAbrogation:  total,
			Confidence:       confidence(articles, total),
		})
	}

	seen := make(map[string]struct{}, len(amendments))
	unique := amendments[:0]
	for _, a := range amendments {
		key := a.LawYear + "-" + a.LawNumber
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, a)
	}
	return unique
}

// confidence scores a detection: the law reference itself is worth 0.8, an
// explicit article list and a total-abrogation phrase add 0.1 each.
func confidence(articles []string, total bool) float64 {
	c := 0.8
	if len(articles) > 0 {
		c += 0.1
	}
	if total {
		c += 0.1
	}
	if c > 1 {
		c = 1
	}
	return c
}

// ParseArticleList splits an article enumeration on Arabic and French
// conjunctions, e.g. "97, 207 و226 مكرر" yields ["97", "207", "226 مكرر"].
func ParseArticleList(text string) []string {
	replaced := strings.ReplaceAll(text, "و", ",")
	replaced = strings.ReplaceAll(replaced, "et", ",")
	replaced = strings.ReplaceAll(replaced, "ET", ",")
	parts := strings.Split(replaced, ",")
	articles := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Join(strings.Fields(p), " ")
		if p == "" || !strings.ContainsAny(p, "0123456789") {
			continue
		}
		articles = append(articles, p)
	}
	return articles
}
