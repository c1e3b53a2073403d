package consolidate

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/lexiqa/ragcore/core"
)

var (
	leadingNumberPattern = regexp.MustCompile(`^(\d+)`)
	blankLinesPattern    = regexp.MustCompile(`\n{3,}`)
	horizontalSpace      = regexp.MustCompile(`[ \t]+`)
)

// articleOrdinal extracts the numeric part of an article number for
// ordering. "226 مكرر" sorts right after "226".
func articleOrdinal(number string) (int, string) {
	m := leadingNumberPattern.FindString(number)
	if m == "" {
		return 0, number
	}
	n, _ := strconv.Atoi(m)
	return n, strings.TrimSpace(number[len(m):])
}

// SortArticles orders articles by numeric value, suffixed forms after the
// bare number.
func SortArticles(articles []core.ArticleUnit) {
	sort.SliceStable(articles, func(i, j int) bool {
		ni, si := articleOrdinal(articles[i].Number)
		nj, sj := articleOrdinal(articles[j].Number)
		if ni != nj {
			return ni < nj
		}
		return si < sj
	})
}

// AssembleStructure arranges articles into the generic single-book,
// single-chapter hierarchy used for instruments without a known book
// layout. Articles are ordered by number.
func AssembleStructure(articles []core.ArticleUnit) []core.Book {
	if len(articles) == 0 {
		return nil
	}
	sorted := make([]core.ArticleUnit, len(articles))
	copy(sorted, articles)
	SortArticles(sorted)
	return []core.Book{{
		Number:   1,
		Chapters: []core.Chapter{{Number: 1, Articles: sorted}},
	}}
}

// ConsolidatedText renders the structure as the canonical text that gets
// chunked and indexed: titles, then each article introduced by its number.
func ConsolidatedText(doc *core.LegalDocument) string {
	var b strings.Builder
	if doc.TitleAr != "" {
		b.WriteString(doc.TitleAr)
		b.WriteString("\n")
	}
	if doc.TitleFr != "" {
		b.WriteString(doc.TitleFr)
		b.WriteString("\n")
	}

	for _, book := range doc.Books {
		if book.TitleAr != "" || book.TitleFr != "" {
			b.WriteString("\n")
			if book.TitleAr != "" {
				b.WriteString(book.TitleAr)
				b.WriteString("\n")
			}
			if book.TitleFr != "" {
				b.WriteString(book.TitleFr)
				b.WriteString("\n")
			}
		}
		for _, chapter := range book.Chapters {
			if chapter.TitleAr != "" {
				b.WriteString("\n")
				b.WriteString(chapter.TitleAr)
				b.WriteString("\n")
			}
			for _, article := range chapter.Articles {
				b.WriteString("\nالفصل ")
				b.WriteString(article.Number)
				b.WriteString("\n")
				b.WriteString(article.Text)
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

// CleanArticleText trims the text and collapses runs of blank lines and
// horizontal whitespace left over from page extraction.
func CleanArticleText(text string) string {
	text = strings.TrimSpace(text)
	text = blankLinesPattern.ReplaceAllString(text, "\n\n")
	text = horizontalSpace.ReplaceAllString(text, " ")
	return text
}

// MissingArticles lists the bare article numbers from 1 through the
// expected count that are not yet linked. Suffixed articles count toward
// their base number.
func MissingArticles(doc *core.LegalDocument) []string {
	if doc.ExpectedArticles <= 0 {
		return nil
	}
	present := make(map[int]struct{})
	for _, book := range doc.Books {
		for _, chapter := range book.Chapters {
			for _, article := range chapter.Articles {
				n, _ := articleOrdinal(article.Number)
				if n > 0 {
					present[n] = struct{}{}
				}
			}
		}
	}
	var missing []string
	for n := 1; n <= doc.ExpectedArticles; n++ {
		if _, ok := present[n]; !ok {
			missing = append(missing, strconv.Itoa(n))
		}
	}
	return missing
}
