package chunker

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// Options controls how text is split.
type Options struct {
	// ChunkSize is the window length in characters. Non-positive means DefaultChunkSize.
	ChunkSize int

	// Overlap is the number of characters shared by consecutive windows.
	// Negative means no overlap. An overlap >= ChunkSize is reduced to ChunkSize/4.
	Overlap int

	// Tabular switches to row-based splitting with the header repeated in every chunk.
	Tabular bool
}

func (o Options) normalised() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	if o.Overlap >= o.ChunkSize {
		o.Overlap = o.ChunkSize / 4
	}
	return o
}

// Split cuts text into ordered, overlapping chunks.
//
// Empty text yields nil. Text no longer than the chunk size yields a
// single chunk holding the whole text. The window stops after the chunk
// that reaches the end of the text, so the last chunk is never wholly
// contained in the previous one.
//
// In tabular mode the text is split into rows. If it cannot be parsed
// as CSV the character window is used instead.
func Split(text string, opts Options) []string {
	if text == "" {
		return nil
	}
	opts = opts.normalised()

	if opts.Tabular {
		if chunks, ok := splitTable(text, opts.ChunkSize, opts.Overlap); ok {
			return chunks
		}
	}
	return splitChars(text, opts.ChunkSize, opts.Overlap)
}

// splitChars windows over runes so multi-byte characters are never cut.
func splitChars(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	step := size - overlap
	chunks := make([]string, 0, len(runes)/step+1)
	for start := 0; ; start += step {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// windows returns [start,end) pairs over n items using the same
// termination rule as the character window.
func windows(n, size, overlap int) [][2]int {
	if n <= size {
		return [][2]int{{0, n}}
	}

	step := size - overlap
	out := make([][2]int, 0, n/step+1)
	for start := 0; ; start += step {
		end := min(start+size, n)
		out = append(out, [2]int{start, end})
		if end == n {
			break
		}
	}
	return out
}
