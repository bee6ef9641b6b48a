// Package vectorizer implements the local feature-hashing embedding used as
// the default and as the fallback when a provider embedding is unavailable.
// Hash collisions between tokens are expected and accepted.
package vectorizer

import (
	"math"
	"strings"
)

// DefaultDim is the vector length used when none is configured.
const DefaultDim = 256

// Embed maps text to an L2-normalized term-frequency vector of length dim
// using a djb2 hash of each token. Input with no tokens yields the zero
// vector.
func Embed(text string, dim int) []float32 {
	if dim <= 0 {
		dim = DefaultDim
	}
	vec := make([]float32, dim)

	for _, tok := range Tokenize(text) {
		vec[hashToken(tok)%uint32(dim)]++
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// Tokenize lowercases text, collapses every run of characters outside
// [a-z0-9] into a single space, and returns the non-empty fields.
func Tokenize(text string) []string {
	var b strings.Builder
	b.Grow(len(text))
	inSep := false
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			inSep = false
		} else if !inSep {
			b.WriteByte(' ')
			inSep = true
		}
	}
	return strings.Fields(b.String())
}

// hashToken is djb2 over the token bytes, truncated to 32 bits.
func hashToken(tok string) uint32 {
	var h uint32 = 5381
	for i := 0; i < len(tok); i++ {
		h = h*33 + uint32(tok[i])
	}
	return h
}
