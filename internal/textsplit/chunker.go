package textsplit

import "strings"

// Piece is one emitted chunk. Invariant: source[CharStart:CharEnd] == Content.
type Piece struct {
	Content    string
	CharStart  int
	CharEnd    int
	ChunkIndex int
	TokenCount int
}

// Chunker accumulates line segments into a chunk until the next segment would
// push it past chunkSize tokens, prepending an overlap window of roughly
// overlap tokens from the previous chunk. Lines are never split, so a single
// line longer than chunkSize, or an overlap window plus one line, is emitted
// whole and can exceed chunkSize. Offsets are byte positions into the
// original text.
type Chunker struct {
	enc       Encoding
	chunkSize int
	overlap   int
}

func NewChunker(enc Encoding, chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	return &Chunker{enc: enc, chunkSize: chunkSize, overlap: overlap}
}

type segment struct {
	start int
	text  string
}

// Chunk splits text into pieces. Empty or whitespace-only input yields nil.
func (c *Chunker) Chunk(text string) []Piece {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var pieces []Piece
	curStart, curEnd := 0, 0
	curTokens := 0
	open := false
	idx := 0

	for _, seg := range segmentLines(text) {
		segTokens := c.enc.CountTokens(seg.text)
		segEnd := seg.start + len(seg.text)

		if open && curTokens+segTokens > c.chunkSize {
			if p, ok := c.emit(text, curStart, curEnd, idx); ok {
				pieces = append(pieces, p)
				idx++
			}
			curStart = c.overlapStart(text, curStart, seg.start)
			curEnd = segEnd
			curTokens = c.enc.CountTokens(text[curStart:curEnd])
			continue
		}

		if !open {
			curStart = seg.start
			open = true
		}
		curEnd = segEnd
		curTokens += segTokens
	}

	if open {
		if p, ok := c.emit(text, curStart, curEnd, idx); ok {
			pieces = append(pieces, p)
		}
	}
	return pieces
}

// segmentLines splits at line boundaries, each segment keeping its trailing
// newline so that segments exactly tile the input.
func segmentLines(text string) []segment {
	var segs []segment
	pos := 0
	for pos < len(text) {
		nl := strings.IndexByte(text[pos:], '\n')
		var seg string
		if nl < 0 {
			seg = text[pos:]
		} else {
			seg = text[pos : pos+nl+1]
		}
		segs = append(segs, segment{start: pos, text: seg})
		pos += len(seg)
	}
	return segs
}

// emit produces a piece for text[start:end] with trailing whitespace removed
// and CharEnd adjusted to keep the slice identity exact.
func (c *Chunker) emit(text string, start, end, index int) (Piece, bool) {
	content := strings.TrimRight(text[start:end], " \t\r\n\v\f")
	if strings.TrimSpace(content) == "" {
		return Piece{}, false
	}
	return Piece{
		Content:    content,
		CharStart:  start,
		CharEnd:    start + len(content),
		ChunkIndex: index,
		TokenCount: c.enc.CountTokens(content),
	}, true
}

// overlapStart computes where the next chunk begins: the last overlap tokens
// of the previous window, extended left to the nearest whitespace so the cut
// never lands mid-word.
func (c *Chunker) overlapStart(text string, chunkStart, segStart int) int {
	if c.overlap == 0 {
		return segStart
	}
	prev := text[chunkStart:segStart]
	tokens := c.enc.Encode(prev)
	if len(tokens) <= c.overlap {
		return chunkStart
	}
	tail := c.enc.Decode(tokens[len(tokens)-c.overlap:])
	start := segStart - len(tail)
	if start < chunkStart {
		start = chunkStart
	}
	for start > chunkStart && !isSpace(text[start-1]) {
		start--
	}
	return start
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
