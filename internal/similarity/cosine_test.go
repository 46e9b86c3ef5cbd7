package similarity

import "testing"

func TestTokenizeMixedScript(t *testing.T) {
	toks := Tokenize("Hello 世界 World123")
	want := []string{"hello", "世", "界", "world123"}
	if len(toks) != len(want) {
		t.Fatalf("got %v, want %v", toks, want)
	}
	for i := range want {
		if toks[i] != want[i] {
			t.Fatalf("got %v, want %v", toks, want)
		}
	}
}

func TestCosineIdenticalText(t *testing.T) {
	if got := Cosine("the quick brown fox", "the quick brown fox"); got < 0.999 {
		t.Fatalf("expected near-1 similarity for identical text, got %f", got)
	}
}

func TestCosineDisjointText(t *testing.T) {
	if got := Cosine("apples oranges", "走 路 跑"); got != 0 {
		t.Fatalf("expected 0 similarity for disjoint vocabularies, got %f", got)
	}
}

func TestCosineEmptyInputs(t *testing.T) {
	if got := Cosine("", ""); got != 0 {
		t.Fatalf("expected 0 similarity for two empty texts, got %f", got)
	}
	if got := Cosine("hello", ""); got != 0 {
		t.Fatalf("expected 0 similarity when one side is empty, got %f", got)
	}
}

func TestCosinePartialOverlap(t *testing.T) {
	got := Cosine("machine learning models", "machine learning pipelines")
	if got <= 0 || got >= 1 {
		t.Fatalf("expected partial overlap strictly between 0 and 1, got %f", got)
	}
}
