package chunking

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paragraphOfWords(n int, word string) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("%s%d", word, i)
	}
	return strings.Join(words, " ")
}

func TestSplit_EmptyText(t *testing.T) {
	assert.Nil(t, Split("", Options{}))
	assert.Nil(t, Split("   \n\n  ", Options{}))
}

func TestSplit_SingleSmallParagraph(t *testing.T) {
	text := paragraphOfWords(50, "mot")
	chunks := Split(text, Options{TargetWords: 100})

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, text, chunks[0].Content)
	assert.Equal(t, 50, chunks[0].WordCount)
	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, len(text), chunks[0].EndOffset)
}

func TestSplit_GreedyAccumulation(t *testing.T) {
	p1 := paragraphOfWords(60, "alpha")
	p2 := paragraphOfWords(60, "beta")
	p3 := paragraphOfWords(60, "gamma")
	text := p1 + "\n\n" + p2 + "\n\n" + p3

	chunks := Split(text, Options{TargetWords: 130, OverlapWords: 10})

	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0].Content, "alpha0")
	assert.Contains(t, chunks[0].Content, "beta59")
	assert.Contains(t, chunks[1].Content, "gamma0")
}

func TestSplit_OverlapCarriesContext(t *testing.T) {
	p1 := paragraphOfWords(100, "premier")
	p2 := paragraphOfWords(100, "second")
	text := p1 + "\n\n" + p2

	chunks := Split(text, Options{TargetWords: 110, OverlapWords: 10})

	require.Len(t, chunks, 2)
	// The second chunk starts with the last words of the first.
	assert.True(t, strings.HasPrefix(chunks[1].Content, "premier90"),
		"second chunk should open with overlap, got %q", chunks[1].Content[:40])
	// Fresh offsets still point at the second paragraph only.
	assert.Equal(t, len(p1)+2, chunks[1].StartOffset)
}

func TestSplit_FreshRegionsCoverSource(t *testing.T) {
	var paras []string
	for i := 0; i < 8; i++ {
		paras = append(paras, paragraphOfWords(70, fmt.Sprintf("w%d_", i)))
	}
	text := strings.Join(paras, "\n\n")

	chunks := Split(text, Options{TargetWords: 150, OverlapWords: 15})
	require.NotEmpty(t, chunks)

	// Concatenating the fresh regions reconstructs every paragraph.
	var rebuilt []string
	for _, c := range chunks {
		rebuilt = append(rebuilt, text[c.StartOffset:c.EndOffset])
	}
	joined := strings.Join(rebuilt, "\n\n")
	for i := 0; i < 8; i++ {
		for _, w := range []string{fmt.Sprintf("w%d_0", i), fmt.Sprintf("w%d_69", i)} {
			assert.Contains(t, joined, w)
		}
	}
}

func TestSplit_ArticleBoundaryStartsNewChunk(t *testing.T) {
	text := "الفصل 96 " + paragraphOfWords(50, "كلمة") +
		"\n\nالفصل 97 " + paragraphOfWords(50, "نص")

	chunks := Split(text, Options{TargetWords: 500})

	require.Len(t, chunks, 2, "an article heading must open a fresh chunk even under the word target")
	assert.Equal(t, "96", chunks[0].ArticleNumber)
	assert.Equal(t, "97", chunks[1].ArticleNumber)
	assert.False(t, strings.Contains(chunks[1].Content, "كلمة49"), "no overlap across article boundaries")
}

func TestSplit_FrenchArticleAnnotation(t *testing.T) {
	text := "Article 207 " + paragraphOfWords(45, "mot") +
		"\n\n" + paragraphOfWords(45, "suite")

	chunks := Split(text, Options{TargetWords: 60})

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "207", chunks[0].ArticleNumber)
	// Continuation paragraphs inherit the running article.
	assert.Equal(t, "207", chunks[1].ArticleNumber)
}

func TestSplit_OversizedParagraphSentences(t *testing.T) {
	var sentences []string
	for i := 0; i < 40; i++ {
		sentences = append(sentences, paragraphOfWords(10, fmt.Sprintf("s%d_", i))+".")
	}
	text := strings.Join(sentences, " ")

	chunks := Split(text, Options{TargetWords: 100, OverlapWords: 10})

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, c.WordCount, 130, "sentence split should respect the target plus overlap slack")
	}
}

func TestSplit_NoSentenceBoundariesWordWindows(t *testing.T) {
	text := paragraphOfWords(500, "word")

	chunks := Split(text, Options{TargetWords: 100, OverlapWords: 10})

	require.Greater(t, len(chunks), 1)
	assert.Contains(t, chunks[0].Content, "word0")
	assert.Contains(t, chunks[len(chunks)-1].Content, "word499")
}

func TestSplit_SmallFragmentsMergedNotDropped(t *testing.T) {
	big := paragraphOfWords(100, "grand")
	tiny := "disposition courte."
	text := big + "\n\n" + tiny

	chunks := Split(text, Options{TargetWords: 100})

	require.Len(t, chunks, 1, "a fragment under the minimum merges into its neighbor")
	assert.Contains(t, chunks[0].Content, "disposition courte.")
}

func TestSplit_LeadingSmallFragmentFoldsForward(t *testing.T) {
	tiny := "الفصل 5 ملغى."
	big := paragraphOfWords(100, "نص")
	// Oversize forces the big paragraph into its own chunk.
	chunks := Split(tiny+"\n\n"+big, Options{TargetWords: 60})

	require.NotEmpty(t, chunks)
	assert.Contains(t, chunks[0].Content, "ملغى")
	assert.Equal(t, "5", chunks[0].ArticleNumber)
}

func TestDetectArticleNumber(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"الفصل 97 يعاقب", "97"},
		{"فصل 12 نص", "12"},
		{"الفصل 226 مكرر نص", "226 مكرر"},
		{"Article 42 dispose", "42"},
		{"art. 13 bis prévoit", "13 bis"},
		{"ARTICLE 7 dispose", "7"},
		{"Considérant que l'article 5", ""},
		{"نص عادي", ""},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectArticleNumber(tt.text))
		})
	}
}

func TestDeriveOptions(t *testing.T) {
	opts := DeriveOptions(2000, 5.0)
	assert.Equal(t, 320, opts.TargetWords)
	assert.Equal(t, 48, opts.OverlapWords)

	// Zero average falls back to a default calibration.
	opts = DeriveOptions(1000, 0)
	assert.Greater(t, opts.TargetWords, 0)

	// Tiny budgets never go below the minimum chunk size.
	opts = DeriveOptions(100, 6)
	assert.Equal(t, MinChunkWords, opts.TargetWords)
}
