package vecstore

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkMarkdown_ByHeaders(t *testing.T) {
	md := "# Title\n\nIntro.\n\n## Section A\n\nContent A.\n"

	chunks := ChunkMarkdown("docs/guide.md", md, 800)
	require.Len(t, chunks, 2)

	assert.Equal(t, "# Title\n\nIntro.", chunks[0].Text)
	assert.Equal(t, "Title", chunks[0].Name)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 3, chunks[0].EndLine)

	assert.Equal(t, "## Section A\n\nContent A.", chunks[1].Text)
	assert.Equal(t, "Section A", chunks[1].Name)
	assert.Equal(t, 5, chunks[1].StartLine)
	assert.Equal(t, 7, chunks[1].EndLine)

	for _, c := range chunks {
		assert.Equal(t, "markdown", c.Language)
		assert.Equal(t, KindSection, c.Kind)
		assert.Equal(t, "docs/guide.md", c.Source)
	}
}

func TestChunkMarkdown_LongSectionSplitsByParagraph(t *testing.T) {
	var b strings.Builder
	b.WriteString("## Big Section\n\n")
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, "This is paragraph number %d. It has some content.\n\n", i)
	}

	chunks := ChunkMarkdown("test.md", b.String(), 200)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.Equal(t, "test.md", c.Source)
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, "Big Section", c.Name)
	}
}

func TestChunkMarkdown_DeterministicIDs(t *testing.T) {
	md := "## Hello\n\nWorld"
	c1 := ChunkMarkdown("src.md", md, 800)
	c2 := ChunkMarkdown("src.md", md, 800)

	require.Len(t, c2, len(c1))
	for i := range c1 {
		assert.Equal(t, c1[i].ID, c2[i].ID)
	}
}

func TestChunkMarkdown_Empty(t *testing.T) {
	assert.Empty(t, ChunkMarkdown("test.md", "", 800))
}

func TestChunkID_Uniqueness(t *testing.T) {
	assert.NotEqual(t, chunkID("a.md", "hello"), chunkID("b.md", "hello"))
	assert.NotEqual(t, chunkID("a.md", "hello"), chunkID("a.md", "world"))
	assert.Len(t, chunkID("a.md", "hello"), 12)
}

func TestChunkCode_WindowsOverlap(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}

	// Every line is 7 bytes: windows of 3 lines sharing 1 line.
	chunks := ChunkCode("main.go", b.String(), "go", 21, 7)
	require.Len(t, chunks, 5)

	starts := make([]int, len(chunks))
	ends := make([]int, len(chunks))
	for i, c := range chunks {
		starts[i] = c.StartLine
		ends[i] = c.EndLine
		assert.Equal(t, KindBlock, c.Kind)
		assert.Equal(t, "go", c.Language)
	}
	assert.Equal(t, []int{1, 3, 5, 7, 9}, starts)
	assert.Equal(t, []int{3, 5, 7, 9, 10}, ends)
	assert.Equal(t, "line 0\nline 1\nline 2\n", chunks[0].Text)
	assert.Equal(t, "line 8\nline 9\n", chunks[4].Text)
}

func TestChunkCode_BlankText(t *testing.T) {
	assert.Nil(t, ChunkCode("main.go", " \n\n", "go", 100, 10))
}

func TestChunkCode_OverlapNotSmallerThanSizeIsIgnored(t *testing.T) {
	chunks := ChunkCode("a.py", "a = 1\nb = 2\nc = 3\n", "python", 6, 50)
	require.Len(t, chunks, 3)
	assert.Equal(t, 2, chunks[1].StartLine)
}

func TestGuessName(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  string
	}{
		{"go method", []string{"// Start runs.\n", "func (s *Server) Start(ctx context.Context) error {\n"}, "Start"},
		{"go func", []string{"func helper() {\n"}, "helper"},
		{"go type", []string{"type Config struct {\n"}, "Config"},
		{"python class", []string{"class Foo(Base):\n"}, "Foo"},
		{"python async", []string{"    async def fetch(self):\n"}, "fetch"},
		{"rust", []string{"pub fn parse<T>(s: &str) -> T {\n"}, "parse"},
		{"fallback", []string{"x := 1\n"}, "util.go"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, guessName(tt.lines, "pkg/util.go"))
		})
	}
}

func TestLanguageFor(t *testing.T) {
	assert.Equal(t, "go", LanguageFor("cmd/main.go"))
	assert.Equal(t, "python", LanguageFor("app/Models.PY"))
	assert.Equal(t, "markdown", LanguageFor("README.md"))
	assert.Equal(t, "", LanguageFor("image.png"))
}

func TestChunkFile_Dispatch(t *testing.T) {
	md := ChunkFile("README.md", "## Usage\n\nRun it.", 100, 10)
	require.Len(t, md, 1)
	assert.Equal(t, KindSection, md[0].Kind)

	code := ChunkFile("main.go", "package main\n\nfunc main() {}\n", 100, 10)
	require.Len(t, code, 1)
	assert.Equal(t, KindBlock, code[0].Kind)
	assert.Equal(t, "main", code[0].Name)

	assert.Nil(t, ChunkFile("logo.svg", "<svg/>", 100, 10))
}
