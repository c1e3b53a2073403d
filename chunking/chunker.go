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


package chunking

import (
	"math"
	"regexp"
	"strings"

	"github.com/lexiqa/ragcore/core"
)

// MinChunkWords is the minimum size of an emitted chunk. Smaller fragments
// are merged into a neighbor instead of being dropped, so short legal
// dispositions are preserved without polluting the index with stubs.
const MinChunkWords = 40

// Options controls how text is split.
type Options struct {
	// TargetWords is the soft word budget per chunk. Default: 250.
	TargetWords int

	// OverlapWords is how many trailing words of a chunk are repeated at
	// the start of the next one. Default: 15% of TargetWords.
	OverlapWords int

	// PreserveSentences splits oversized paragraphs on sentence boundaries
	// instead of raw word windows. Default: true (disable with the
	// NoSentences field below).
	NoSentences bool
}

func (o *Options) normalize() {
	if o.TargetWords <= 0 {
		o.TargetWords = 250
	}
	if o.OverlapWords <= 0 {
		o.OverlapWords = int(math.Floor(float64(o.TargetWords) * 0.15))
	}
	if o.OverlapWords >= o.TargetWords {
		o.OverlapWords = o.TargetWords / 2
	}
}

// DeriveOptions computes chunk sizing from a character budget. The word
// target leaves 20% headroom under maxChars for the overlap prefix and
// whitespace; avgCharsPerWord calibrates for the corpus (Arabic legal prose
// runs shorter per word than French).
func DeriveOptions(maxChars int, avgCharsPerWord float64) Options {
	if avgCharsPerWord <= 0 {
		avgCharsPerWord = 5.5
	}
	target := int(math.Floor(float64(maxChars) * 0.8 / avgCharsPerWord))
	if target < MinChunkWords {
		target = MinChunkWords
	}
	return Options{
		TargetWords:  target,
		OverlapWords: int(math.Floor(float64(target) * 0.15)),
	}
}

var (
	// Article headings anchor chunks to citable units.
	arArticlePattern = regexp.MustCompile(`^(?:الفصل|فصل)\s+(\d+(?:\s+مكرر)?)`)
	frArticlePattern = regexp.MustCompile(`(?i)^(?:Article|art\.?)\s+(\d+(?:\s*[-–]\s*\d+)?(?:\s+(?:bis|ter|quater))?)`)

	// Sentence boundaries include Arabic punctuation.
	sentencePattern  = regexp.MustCompile(`[^.!?؟،؛]+[.!?؟،؛]+\s*`)
	paragraphPattern = regexp.MustCompile(`\n\s*\n`)
)

// DetectArticleNumber returns the article number a paragraph opens with,
// or "" when the paragraph is not an article heading.
func DetectArticleNumber(paragraph string) string {
	p := strings.TrimSpace(paragraph)
	if m := arArticlePattern.FindStringSubmatch(p); m != nil {
		return m[1]
	}
	if m := frArticlePattern.FindStringSubmatch(p); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// paragraphSpan is a paragraph with its offsets in the source text.
type paragraphSpan struct {
	text  string
	start int
	end   int
}

func splitParagraphs(text string) []paragraphSpan {
	var spans []paragraphSpan
	pos := 0
	for _, sep := range paragraphPattern.FindAllStringIndex(text, -1) {
		if sep[0] > pos {
			spans = appendSpan(spans, text, pos, sep[0])
		}
		pos = sep[1]
	}
	if pos < len(text) {
		spans = appendSpan(spans, text, pos, len(text))
	}
	return spans
}

func appendSpan(spans []paragraphSpan, text string, start, end int) []paragraphSpan {
	raw := text[start:end]
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return spans
	}
	lead := strings.Index(raw, trimmed)
	return append(spans, paragraphSpan{
		text:  trimmed,
		start: start + lead,
		end:   start + lead + len(trimmed),
	})
}

// builder accumulates one chunk in progress.
type builder struct {
	content strings.Builder
	words   int
	start   int // offset of the first fresh (non-overlap) character
	end     int
	article string
	fresh   bool
}

func (b *builder) add(span paragraphSpan, sep string) {
	if b.content.Len() > 0 {
		b.content.WriteString(sep)
	}
	if !b.fresh {
		b.start = span.start
		b.fresh = true
	}
	b.content.WriteString(span.text)
	b.end = span.end
	b.words += countWords(span.text)
}

func (b *builder) seedOverlap(overlap string) {
	if overlap == "" {
		return
	}
	b.content.WriteString(overlap)
	b.words += countWords(overlap)
}

func countWords(s string) int {
	return len(strings.Fields(s))
}

// overlapTail returns the last n words of text, joined by single spaces.
func overlapTail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(text)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[len(words)-n:], " ")
}

// Split cuts text into chunks: greedy paragraph accumulation up to the word
// target, a fresh chunk at every article heading, sentence-level splitting
// for oversized paragraphs, and a word-window cut as the last resort.
//
// A chunk's Content may start with overlap text repeated from the previous
// chunk; StartOffset and EndOffset always delimit the fresh region, so the
// fresh regions of all chunks concatenate back to the full source text.
func Split(text string, opts Options) []core.Chunk {
	opts.normalize()

	if strings.TrimSpace(text) == "" {
		return nil
	}

	spans := splitParagraphs(text)

	var (
		chunks []core.Chunk
		cur    builder
	)

	flush := func(nextOverlap bool) string {
		if cur.content.Len() == 0 {
			return ""
		}
		content := cur.content.String()
		chunks = append(chunks, core.Chunk{
			Index:         len(chunks),
			Content:       content,
			WordCount:     countWords(content),
			CharCount:     len(content),
			StartOffset:   cur.start,
			EndOffset:     cur.end,
			ArticleNumber: cur.article,
		})
		article := cur.article
		cur = builder{article: article}
		if nextOverlap {
			return overlapTail(content, opts.OverlapWords)
		}
		return ""
	}

	for _, span := range spans {
		if article := DetectArticleNumber(span.text); article != "" {
			// Article boundary: close the running chunk without overlap
			// so the article starts clean.
			flush(false)
			cur.article = article
		}

		paraWords := countWords(span.text)

		if paraWords > opts.TargetWords {
			flush(false)
			article := cur.article
			for _, sub := range splitOversized(span, opts) {
				sub.Index = len(chunks)
				sub.ArticleNumber = article
				chunks = append(chunks, sub)
			}
			cur = builder{article: article}
			continue
		}

		if cur.words+paraWords > opts.TargetWords && cur.content.Len() > 0 {
			overlap := flush(true)
			cur.seedOverlap(overlap)
			cur.add(span, "\n\n")
			continue
		}

		cur.add(span, "\n\n")
	}
	flush(false)

	return mergeSmall(chunks)
}

// splitOversized cuts a single paragraph that exceeds the word target,
// preferring sentence boundaries.
func splitOversized(span paragraphSpan, opts Options) []core.Chunk {
	if !opts.NoSentences {
		if sentences := sentenceSpans(span); len(sentences) > 1 {
			return accumulate(sentences, opts, " ")
		}
	}
	return wordWindows(span, opts)
}

// sentenceSpans splits a paragraph into sentence spans with source offsets.
func sentenceSpans(span paragraphSpan) []paragraphSpan {
	idxs := sentencePattern.FindAllStringIndex(span.text, -1)
	if idxs == nil {
		return []paragraphSpan{span}
	}
	var out []paragraphSpan
	last := 0
	for _, ix := range idxs {
		out = appendSpan(out, span.text, ix[0], ix[1])
		last = ix[1]
	}
	if last < len(span.text) {
		out = appendSpan(out, span.text, last, len(span.text))
	}
	for i := range out {
		out[i].start += span.start
		out[i].end += span.start
	}
	return out
}

// accumulate greedily packs spans into chunks with overlap seeding.
func accumulate(spans []paragraphSpan, opts Options, sep string) []core.Chunk {
	var (
		chunks []core.Chunk
		cur    builder
	)

	flush := func() string {
		if cur.content.Len() == 0 {
			return ""
		}
		content := cur.content.String()
		chunks = append(chunks, core.Chunk{
			Index:       len(chunks),
			Content:     content,
			WordCount:   countWords(content),
			CharCount:   len(content),
			StartOffset: cur.start,
			EndOffset:   cur.end,
		})
		cur = builder{}
		return overlapTail(content, opts.OverlapWords)
	}

	for _, s := range spans {
		words := countWords(s.text)
		if cur.words+words > opts.TargetWords && cur.content.Len() > 0 {
			overlap := flush()
			cur.seedOverlap(overlap)
			cur.add(s, sep)
			continue
		}
		cur.add(s, sep)
	}
	if cur.content.Len() > 0 {
		flush()
	}

	return chunks
}

// wordWindows is the last-resort cut for text without sentence boundaries.
func wordWindows(span paragraphSpan, opts Options) []core.Chunk {
	words := strings.Fields(span.text)
	step := opts.TargetWords - opts.OverlapWords
	if step <= 0 {
		step = opts.TargetWords
	}

	var chunks []core.Chunk
	for i := 0; i < len(words); i += step {
		end := min(i+opts.TargetWords, len(words))
		content := strings.Join(words[i:end], " ")
		chunks = append(chunks, core.Chunk{
			Index:     len(chunks),
			Content:   content,
			WordCount: end - i,
			CharCount: len(content),
			// Offsets are approximate for word windows; the span bounds
			// keep coverage accounting intact.
			StartOffset: span.start,
			EndOffset:   span.end,
		})
		if end == len(words) {
			break
		}
	}
	return chunks
}

// mergeSmall folds under-sized chunks into a neighbor so no content is lost.
func mergeSmall(chunks []core.Chunk) []core.Chunk {
	if len(chunks) <= 1 {
		return chunks
	}

	var out []core.Chunk
	for _, c := range chunks {
		if c.WordCount >= MinChunkWords || len(out) == 0 {
			out = append(out, c)
			continue
		}
		prev := &out[len(out)-1]
		prev.Content = prev.Content + "\n\n" + c.Content
		prev.WordCount = countWords(prev.Content)
		prev.CharCount = len(prev.Content)
		prev.EndOffset = c.EndOffset
		if prev.ArticleNumber == "" {
			prev.ArticleNumber = c.ArticleNumber
		}
	}

	// A small leading chunk folds forward.
	if len(out) > 1 && out[0].WordCount < MinChunkWords {
		out[1].Content = out[0].Content + "\n\n" + out[1].Content
		out[1].WordCount = countWords(out[1].Content)
		out[1].CharCount = len(out[1].Content)
		out[1].StartOffset = out[0].StartOffset
		if out[1].ArticleNumber == "" {
			out[1].ArticleNumber = out[0].ArticleNumber
		}
		out = out[1:]
	}

	for i := range out {
		out[i].Index = i
	}
	return out
}
