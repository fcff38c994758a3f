package vecstore

import (
	"crypto/sha256"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	KindBlock   = "block"
	KindSection = "section"

	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// SkipDirs are never descended into while indexing or watching.
var SkipDirs = map[string]bool{
	".git": true, "node_modules": true, "__pycache__": true, "venv": true,
	".venv": true, "dist": true, "build": true, ".tox": true, "vendor": true,
	".mypy_cache": true, ".pytest_cache": true, ".ruff_cache": true,
	".lidco": true, ".idea": true,
}

var extensionLanguage = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".java": "java",
	".rs":   "rust",
	".c":    "c",
	".cpp":  "cpp",
	".rb":   "ruby",
	".md":   "markdown",
}

// LanguageFor returns the language of path, or "" when the extension is
// not indexed.
func LanguageFor(path string) string {
	return extensionLanguage[strings.ToLower(filepath.Ext(path))]
}

// ChunkFile picks the chunker for the file's language.
func ChunkFile(source, text string, size, overlap int) []Chunk {
	lang := LanguageFor(source)
	switch lang {
	case "":
		return nil
	case "markdown":
		return ChunkMarkdown(source, text, size)
	default:
		return ChunkCode(source, text, lang, size, overlap)
	}
}

// ChunkCode splits source code into line-aligned windows of roughly size
// characters. Consecutive windows share at least overlap characters of
// trailing lines so a symbol cut at a boundary still appears whole in one
// of them.
func ChunkCode(source, text, language string, size, overlap int) []Chunk {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	now := time.Now()
	var chunks []Chunk
	for start := 0; start < len(lines); {
		end, chars := start, 0
		for end < len(lines) && chars < size {
			chars += len(lines[end])
			end++
		}

		window := lines[start:end]
		content := strings.Join(window, "")
		c := makeChunk(source, content, now)
		c.Language = language
		c.Kind = KindBlock
		c.Name = guessName(window, source)
		c.StartLine = start + 1
		c.EndLine = end
		chunks = append(chunks, c)

		if end >= len(lines) {
			break
		}

		kept, keptChars := 0, 0
		for i := len(window) - 1; i >= 0 && keptChars < overlap; i-- {
			keptChars += len(window[i])
			kept++
		}
		start += max(1, len(window)-kept)
	}
	return chunks
}

// guessName looks for a declaration in the first lines of a window and
// falls back to the file name.
func guessName(lines []string, source string) string {
	prefixes := []string{"func ", "def ", "async def ", "class ", "function ", "type ", "fn ", "pub fn "}
	for i, line := range lines {
		if i >= 10 {
			break
		}
		s := strings.TrimSpace(line)
		for _, p := range prefixes {
			if !strings.HasPrefix(s, p) {
				continue
			}
			rest := strings.TrimPrefix(s, p)
			// Go methods: func (r *T) Name(
			if p == "func " && strings.HasPrefix(rest, "(") {
				if j := strings.Index(rest, ")"); j >= 0 {
					rest = strings.TrimSpace(rest[j+1:])
				}
			}
			if name := strings.FieldsFunc(rest, func(r rune) bool {
				return r == '(' || r == ' ' || r == ':' || r == '{' || r == '<' || r == '['
			}); len(name) > 0 {
				return name[0]
			}
		}
	}
	return filepath.Base(source)
}

// ChunkMarkdown splits markdown text into chunks at semantic boundaries.
// Splits first by ## headers, then sub-splits long sections by paragraphs.
// Each chunk gets a deterministic ID: sha256(source + ":" + text)[:12].
func ChunkMarkdown(source, text string, maxChars int) []Chunk {
	if maxChars <= 0 {
		maxChars = 800
	}

	sections := splitByHeaders(text)
	now := time.Now()

	var chunks []Chunk
	offset := 0
	for _, section := range sections {
		base := offset
		offset += len(section)

		section = strings.TrimSpace(section)
		if section == "" {
			continue
		}
		heading := headingOf(section)

		parts := []string{section}
		if len(section) > maxChars {
			parts = splitByParagraphs(section, maxChars)
		}
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			c := makeChunk(source, part, now)
			c.Language = "markdown"
			c.Kind = KindSection
			c.Name = heading
			c.StartLine = lineAt(text, base, part)
			c.EndLine = c.StartLine + strings.Count(part, "\n")
			chunks = append(chunks, c)
		}
	}
	return chunks
}

func headingOf(section string) string {
	first, _, _ := strings.Cut(section, "\n")
	if strings.HasPrefix(first, "#") {
		return strings.TrimSpace(strings.TrimLeft(first, "#"))
	}
	return ""
}

// lineAt returns the 1-based line where part first appears in text at or
// after byte offset from.
func lineAt(text string, from int, part string) int {
	i := strings.Index(text[from:], part)
	if i < 0 {
		return strings.Count(text[:from], "\n") + 1
	}
	return strings.Count(text[:from+i], "\n") + 1
}

// splitByHeaders splits text at ## header boundaries, keeping the header with its content.
func splitByHeaders(text string) []string {
	lines := strings.Split(text, "\n")
	var sections []string
	var current strings.Builder

	for i, line := range lines {
		if strings.HasPrefix(line, "## ") && current.Len() > 0 {
			sections = append(sections, current.String())
			current.Reset()
		}
		current.WriteString(line)
		if i < len(lines)-1 {
			current.WriteByte('\n')
		}
	}
	if current.Len() > 0 {
		sections = append(sections, current.String())
	}
	return sections
}

// splitByParagraphs splits text at double-newline boundaries, respecting maxChars.
func splitByParagraphs(text string, maxChars int) []string {
	paragraphs := strings.Split(text, "\n\n")
	var parts []string
	var current strings.Builder

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		if current.Len() > 0 && current.Len()+len(p)+2 > maxChars {
			parts = append(parts, current.String())
			current.Reset()
		}

		// An oversized paragraph becomes its own part.
		if current.Len() == 0 && len(p) > maxChars {
			parts = append(parts, p)
			continue
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

func makeChunk(source, text string, now time.Time) Chunk {
	return Chunk{
		ID:        chunkID(source, text),
		Text:      text,
		Source:    source,
		UpdatedAt: now,
	}
}

func chunkID(source, text string) string {
	h := sha256.Sum256([]byte(source + ":" + text))
	return fmt.Sprintf("%x", h[:6]) // 12 hex chars
}
