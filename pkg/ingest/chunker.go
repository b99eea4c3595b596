package ingest

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/nstogner/coursemate/pkg/domain"
)

const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 100
)

// Chunker packs sentences into chunks of at most Size characters. About
// Overlap characters of trailing sentences are repeated at the start of
// the next chunk.
type Chunker struct {
	Size    int
	Overlap int
}

func DefaultChunker() Chunker {
	return Chunker{Size: DefaultChunkSize, Overlap: DefaultChunkOverlap}
}

// Chunks splits every section of doc and numbers the chunks across the
// whole course.
func (c Chunker) Chunks(doc *Document) []domain.Chunk {
	var chunks []domain.Chunk
	for _, sec := range doc.Sections {
		prefix := ""
		if sec.LessonNumber != nil {
			prefix = fmt.Sprintf("Course %s Lesson %d content: ", doc.Course.Title, *sec.LessonNumber)
		}
		for _, text := range c.Split(sec.Text) {
			chunks = append(chunks, domain.Chunk{
				CourseTitle:  doc.Course.Title,
				LessonNumber: sec.LessonNumber,
				Index:        len(chunks),
				Content:      prefix + text,
			})
		}
	}
	return chunks
}

// Split breaks text into overlapping chunks on sentence boundaries. A
// single sentence longer than Size becomes its own chunk.
func (c Chunker) Split(text string) []string {
	size := c.Size
	if size <= 0 {
		size = DefaultChunkSize
	}
	overlap := c.Overlap
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	sentences := splitSentences(text)
	var (
		chunks  []string
		current []string
		length  int
	)
	emit := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
		}
	}

	for _, s := range sentences {
		added := len(s)
		if len(current) > 0 {
			added++
		}
		if len(current) > 0 && length+added > size {
			emit()
			current, length = tail(current, overlap)
			if len(current) > 0 && length+1+len(s) > size {
				current, length = nil, 0
			}
			added = len(s)
			if len(current) > 0 {
				added++
			}
		}
		current = append(current, s)
		length += added
	}
	emit()
	return chunks
}

// tail returns the trailing sentences whose joined length fits in limit.
func tail(sentences []string, limit int) ([]string, int) {
	var (
		start  = len(sentences)
		length int
	)
	for i := len(sentences) - 1; i >= 0; i-- {
		add := len(sentences[i])
		if start < len(sentences) {
			add++
		}
		if length+add > limit {
			break
		}
		length += add
		start = i
	}
	out := append([]string(nil), sentences[start:]...)
	return out, length
}

// splitSentences splits on '.', '!' or '?' followed by whitespace and
// collapses internal whitespace.
func splitSentences(text string) []string {
	fields := strings.Fields(text)
	var (
		sentences []string
		current   []string
	)
	for _, f := range fields {
		current = append(current, f)
		if endsSentence(f) {
			sentences = append(sentences, strings.Join(current, " "))
			current = nil
		}
	}
	if len(current) > 0 {
		sentences = append(sentences, strings.Join(current, " "))
	}
	return sentences
}

func endsSentence(word string) bool {
	w := strings.TrimRightFunc(word, func(r rune) bool {
		return r == '"' || r == '\'' || r == ')' || unicode.Is(unicode.Pf, r)
	})
	if w == "" {
		return false
	}
	switch w[len(w)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}
