// Package textsplit splits extracted text into overlapping token-bounded
// chunks while tracking exact byte offsets into the source.
package textsplit

import (
	"github.com/pkoukk/tiktoken-go"
)

// Encoding is the tokenizer seam. Implementations must partition the input:
// Decode(Encode(s)) == s, and any token-suffix of Encode(s) decodes to the
// corresponding byte-suffix of s.
type Encoding interface {
	Encode(text string) []int
	Decode(tokens []int) string
	CountTokens(text string) int
}

type tiktokenEncoding struct {
	tk *tiktoken.Tiktoken
}

// NewCL100KEncoding returns the cl100k_base BPE encoding used by the
// text-embedding-3 family.
func NewCL100KEncoding() (Encoding, error) {
	tk, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &tiktokenEncoding{tk: tk}, nil
}

func (e *tiktokenEncoding) Encode(text string) []int {
	return e.tk.Encode(text, nil, nil)
}

func (e *tiktokenEncoding) Decode(tokens []int) string {
	return e.tk.Decode(tokens)
}

func (e *tiktokenEncoding) CountTokens(text string) int {
	return len(e.tk.Encode(text, nil, nil))
}
