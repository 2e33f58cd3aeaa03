package services

import (
	"fmt"
	"regexp"
	"strings"

	"book-chatbot-backend/models"
	"book-chatbot-backend/utils"
)

// SourceMeta identifies where raw text came from.
type SourceMeta struct {
	File     string
	Metadata map[string]string
}

// Chunker splits raw book content into bounded chunks. Structural boundaries
// (markdown headings, then paragraphs) are preferred; a unit that still
// exceeds the max size falls back to fixed windows with overlap. Chunking is
// deterministic: the same input always yields the same boundaries and ids.
type Chunker struct {
	maxChunkSize   int
	overlap        int
	minChunkSize   int
	headingRegex   *regexp.Regexp
	paragraphRegex *regexp.Regexp
}

func NewChunker(maxChunkSize, overlap, minChunkSize int) *Chunker {
	return &Chunker{
		maxChunkSize:   maxChunkSize,
		overlap:        overlap,
		minChunkSize:   minChunkSize,
		headingRegex:   regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`),
		paragraphRegex: regexp.MustCompile(`\n\n+`),
	}
}

// Chunk splits rawText into ContentChunks carrying source metadata.
func (ck *Chunker) Chunk(rawText string, meta SourceMeta) []models.ContentChunk {
	sections := ck.splitSections(rawText)

	var chunks []models.ContentChunk
	order := 0
	for _, sec := range sections {
		for i, text := range ck.chunkSection(sec.body) {
			location := fmt.Sprintf("%s#%d", sec.heading, i)
			chunk := models.ContentChunk{
				ID:             utils.ChunkHash(meta.File, location, text),
				Text:           text,
				SourceFile:     meta.File,
				SourceLocation: location,
				Order:          order,
				Metadata:       meta.Metadata,
			}
			chunks = append(chunks, chunk)
			order++
		}
	}
	return chunks
}

// ChunkFrom resumes chunking from a previous offset, letting ingestion
// restart mid-corpus without recomputing earlier work.
func (ck *Chunker) ChunkFrom(rawText string, meta SourceMeta, offset int) []models.ContentChunk {
	chunks := ck.Chunk(rawText, meta)
	if offset >= len(chunks) {
		return nil
	}
	return chunks[offset:]
}

type section struct {
	heading string
	body    string
}

// splitSections breaks markdown into heading-delimited sections. Content
// before the first heading lands in an "intro" section.
func (ck *Chunker) splitSections(text string) []section {
	locs := ck.headingRegex.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return []section{{heading: "intro", body: text}}
	}

	var sections []section
	if head := strings.TrimSpace(text[:locs[0][0]]); head != "" {
		sections = append(sections, section{heading: "intro", body: head})
	}
	for i, loc := range locs {
		heading := strings.TrimSpace(text[loc[2]:loc[3]])
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := strings.TrimSpace(text[loc[1]:end])
		if body == "" {
			continue
		}
		sections = append(sections, section{heading: heading, body: body})
	}
	return sections
}

// chunkSection packs paragraphs into chunks up to the max size, windowing
// any single paragraph that is itself oversized.
func (ck *Chunker) chunkSection(body string) []string {
	paragraphs := ck.paragraphRegex.Split(body, -1)

	var out []string
	current := new(strings.Builder)

	flush := func() {
		if current.Len() > 0 {
			out = append(out, current.String())
			current = new(strings.Builder)
		}
	}

	for _, paragraph := range paragraphs {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		if len(paragraph) > ck.maxChunkSize {
			flush()
			out = append(out, ck.window(paragraph)...)
			continue
		}

		if current.Len() > 0 && current.Len()+len(paragraph) > ck.maxChunkSize && current.Len() >= ck.minChunkSize {
			flush()
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(paragraph)
	}
	flush()

	return out
}

// window slices oversized text into fixed-size pieces with slight overlap so
// sentences straddling a boundary survive in at least one chunk.
func (ck *Chunker) window(text string) []string {
	step := ck.maxChunkSize - ck.overlap
	if step <= 0 {
		step = ck.maxChunkSize
	}

	var out []string
	for start := 0; start < len(text); start += step {
		end := start + ck.maxChunkSize
		if end > len(text) {
			end = len(text)
		}
		out = append(out, text[start:end])
		if end == len(text) {
			break
		}
	}
	return out
}
