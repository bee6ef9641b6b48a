package vectorizer

import (
	"math"
	"reflect"
	"testing"
)

func TestEmbed_UnitNorm(t *testing.T) {
	texts := []string{
		"the quick brown fox",
		"Hello, World! Hello again.",
		"a",
		"numbers 123 and 456",
	}
	for _, text := range texts {
		t.Run(text, func(t *testing.T) {
			vec := Embed(text, 64)
			var sum float64
			for _, v := range vec {
				sum += float64(v) * float64(v)
			}
			if math.Abs(math.Sqrt(sum)-1.0) > 1e-5 {
				t.Errorf("L2 norm = %f, want 1.0", math.Sqrt(sum))
			}
		})
	}
}

func TestEmbed_NoTokensYieldsZeroVector(t *testing.T) {
	for _, text := range []string{"", "   ", "!!! ---"} {
		vec := Embed(text, 32)
		if len(vec) != 32 {
			t.Fatalf("expected length 32, got %d", len(vec))
		}
		for i, v := range vec {
			if v != 0 {
				t.Errorf("input %q: vec[%d] = %f, want 0", text, i, v)
			}
		}
	}
}

func TestEmbed_Deterministic(t *testing.T) {
	a := Embed("retrieval augmented generation", 256)
	b := Embed("retrieval augmented generation", 256)
	if !reflect.DeepEqual(a, b) {
		t.Error("same input produced different vectors")
	}
}

func TestEmbed_DefaultDim(t *testing.T) {
	if got := len(Embed("text", 0)); got != DefaultDim {
		t.Errorf("expected default dimension %d, got %d", DefaultDim, got)
	}
}

func TestEmbed_CaseAndPunctuationInsensitive(t *testing.T) {
	a := Embed("Hello, World!", 128)
	b := Embed("hello world", 128)
	if !reflect.DeepEqual(a, b) {
		t.Error("tokenization should ignore case and punctuation")
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Hello, World!", []string{"hello", "world"}},
		{"a-b--c", []string{"a", "b", "c"}},
		{"  spaced   out  ", []string{"spaced", "out"}},
		{"...", nil},
		{"mix3d t0kens", []string{"mix3d", "t0kens"}},
	}
	for _, tt := range tests {
		got := Tokenize(tt.in)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHashToken_DJB2(t *testing.T) {
	// h("a") = 5381*33 + 'a' = 177670
	if got := hashToken("a"); got != 177670 {
		t.Errorf("hashToken(\"a\") = %d, want 177670", got)
	}
}
