package text

import (
	"crypto/md5" // #nosec G501 -- used for content fingerprints, not security
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators is the split hierarchy: paragraph, line, word, character.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

var ErrInvalidWindow = errors.New("invalid chunk window")

// Splitter cuts text into windows of at most Size characters. Consecutive
// windows share at least Overlap characters. Every window is a contiguous
// substring of the input.
type Splitter struct {
	Size       int
	Overlap    int
	Separators []string
}

func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidWindow, size, overlap)
	}
	return &Splitter{Size: size, Overlap: overlap, Separators: DefaultSeparators}, nil
}

func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if runeLen(text) <= s.Size {
		return []string{text}
	}

	// Pieces partition text, so the open window is text[start:end] and the
	// last emitted one is text[prevStart:prevEnd].
	var (
		chunks     []string
		start, end int
		curLen     int
	)
	prevStart, prevEnd := -1, -1
	for _, p := range s.pieces(text, s.Separators, s.Size-s.Overlap) {
		pl := runeLen(p)
		if curLen > 0 && curLen+pl > s.Size {
			blank := strings.TrimSpace(text[start:end]) == ""
			switch {
			case blank && (prevStart < 0 || s.Overlap == 0):
				// Nothing to stay connected to; drop it.
				tail := s.tail(text[start:end], s.Size-pl)
				start, curLen = end-len(tail), runeLen(tail)
			case blank && s.Overlap+runeLen(text[prevEnd:end])+pl <= s.Size:
				// Keep the window open, anchored Overlap runes into the
				// previous one.
				start = runesBefore(text, prevEnd, s.Overlap)
				curLen = runeLen(text[start:end])
			default:
				w := start
				if blank {
					w = s.widen(text, prevStart, start, end)
				}
				chunks = append(chunks, text[w:end])
				prevStart, prevEnd = w, end

				tail := s.tail(text[w:end], s.Size-pl)
				start, curLen = end-len(tail), runeLen(tail)
			}
		}
		end += len(p)
		curLen += pl
	}
	if curLen > 0 && strings.TrimSpace(text[start:end]) != "" {
		chunks = append(chunks, text[start:end])
	}
	return chunks
}

// widen moves the start of a whitespace-only window back into the previous
// window, as far as Size allows, so it carries content. Whitespace runs
// longer than that leave the window as is.
func (s *Splitter) widen(text string, prevStart, start, end int) int {
	w := runesBefore(text, end, s.Size)
	if w < prevStart {
		w = prevStart
	}
	if strings.TrimSpace(text[w:end]) == "" {
		return start
	}
	return w
}

// pieces breaks text into atoms no longer than limit, trying separators in
// order and recursing into oversized parts with the remaining separators.
// Separators stay attached to the end of the part they terminate.
func (s *Splitter) pieces(text string, seps []string, limit int) []string {
	if runeLen(text) <= limit {
		return []string{text}
	}

	for i, sep := range seps {
		if sep == "" {
			break
		}
		if !strings.Contains(text, sep) {
			continue
		}

		var out []string
		for _, part := range strings.SplitAfter(text, sep) {
			if part == "" {
				continue
			}
			if runeLen(part) <= limit {
				out = append(out, part)
				continue
			}
			out = append(out, s.pieces(part, seps[i+1:], limit)...)
		}
		return out
	}

	return hardSlice(text, limit)
}

// tail picks the suffix of chunk that opens the next window: at least Overlap
// characters, at most budget, starting on the highest-priority separator
// boundary that fits, else exactly Overlap characters.
func (s *Splitter) tail(chunk string, budget int) string {
	if s.Overlap == 0 {
		return ""
	}

	for _, sep := range s.Separators {
		if sep == "" {
			break
		}
		end := len(chunk)
		for {
			idx := strings.LastIndex(chunk[:end], sep)
			if idx < 0 {
				break
			}
			suffix := chunk[idx+len(sep):]
			n := runeLen(suffix)
			if n >= s.Overlap {
				if n <= budget {
					return suffix
				}
				break
			}
			end = idx
		}
	}

	return chunk[runesBefore(chunk, len(chunk), s.Overlap):]
}

// hardSlice cuts text every size runes without re-encoding it.
func hardSlice(text string, size int) []string {
	var out []string
	for len(text) > 0 {
		cut := len(text)
		n := 0
		for i := range text {
			if n == size {
				cut = i
				break
			}
			n++
		}
		out = append(out, text[:cut])
		text = text[cut:]
	}
	return out
}

// runesBefore returns the byte offset n runes before end, or 0.
func runesBefore(text string, end, n int) int {
	for ; n > 0 && end > 0; n-- {
		_, size := utf8.DecodeLastRuneInString(text[:end])
		end -= size
	}
	return end
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// Chunk is the unit stored in and retrieved from the vector index.
type Chunk struct {
	ID             string `json:"id"`
	Text           string `json:"text"`
	SourceDocument string `json:"source_document"`
	ChunkIndex     int    `json:"chunk_index"`
	TotalChunks    int    `json:"total_chunks"`
	FileType       string `json:"file_type"`
}

// ChunkID is stable for a given position and content:
// chunk_<index>_<first 8 hex chars of md5(text)>.
func ChunkID(index int, text string) string {
	sum := md5.Sum([]byte(text)) // #nosec G401
	return fmt.Sprintf("chunk_%d_%s", index, hex.EncodeToString(sum[:])[:8])
}

// ChunkDocument splits one parsed document and stamps provenance on each piece.
func ChunkDocument(s *Splitter, source, fileType, text string) []Chunk {
	parts := s.Split(text)
	chunks := make([]Chunk, 0, len(parts))
	for i, p := range parts {
		chunks = append(chunks, Chunk{
			ID:             ChunkID(i, p),
			Text:           p,
			SourceDocument: source,
			ChunkIndex:     i,
			TotalChunks:    len(parts),
			FileType:       fileType,
		})
	}
	return chunks
}
