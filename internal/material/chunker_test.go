package material

import (
	"strings"
	"testing"
)

func TestSplitShortText(t *testing.T) {
	c := NewChunker(DefaultChunkSize, DefaultChunkOverlap)

	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"whitespace only", "  \n\t  ", 0},
		{"fits in one chunk", "A short lecture note.", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Split(tt.text)
			if len(got) != tt.want {
				t.Errorf("Split() returned %d chunks, want %d", len(got), tt.want)
			}
		})
	}
}

func TestSplitLongText(t *testing.T) {
	c := NewChunker(400, 100)

	var sb strings.Builder
	for i := 0; i < 30; i++ {
		sb.WriteString("The cell membrane regulates what enters and leaves the cell. ")
	}
	chunks := c.Split(sb.String())

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) > 400 {
			t.Errorf("chunk %d exceeds size: %d chars", i, len(chunk))
		}
		if chunk != strings.TrimSpace(chunk) {
			t.Errorf("chunk %d carries outer whitespace", i)
		}
	}
}

func TestSplitOverlap(t *testing.T) {
	c := NewChunker(300, 80)

	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("Enzymes lower the activation energy of reactions. ")
	}
	chunks := c.Split(sb.String())
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	// The tail of one chunk reappears at the head of the next.
	tail := chunks[0][len(chunks[0])-20:]
	if !strings.Contains(chunks[1], strings.TrimSpace(tail)) {
		t.Error("consecutive chunks should overlap")
	}
}

func TestSplitPrefersParagraphBreaks(t *testing.T) {
	c := NewChunker(300, 0)

	para := strings.Repeat("First paragraph sentence. ", 10)
	text := para + "\n\n" + strings.Repeat("Second paragraph sentence. ", 10)
	chunks := c.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if strings.Contains(chunks[0], "Second paragraph") {
		t.Error("first chunk should stop at the paragraph break")
	}
}

func TestNewChunkerClamps(t *testing.T) {
	c := NewChunker(50, 500)
	if c.size != minChunkSize {
		t.Errorf("size = %d, want %d", c.size, minChunkSize)
	}
	if c.overlap >= c.size/2 {
		t.Errorf("overlap %d should be clamped below half the size", c.overlap)
	}
}

func TestSplitTerminates(t *testing.T) {
	// Pathological input without any whitespace or punctuation.
	c := NewChunker(250, 100)
	chunks := c.Split(strings.Repeat("x", 5000))
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	total := 0
	for _, chunk := range chunks {
		total += len(chunk)
	}
	if total < 5000 {
		t.Errorf("chunks should cover the input, covered %d of 5000", total)
	}
}
