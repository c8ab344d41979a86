package llm

import (
	"context"
	"testing"
)

// fakeEmbedder returns a fixed vector per input and counts backend calls.
type fakeEmbedder struct {
	calls  int
	inputs [][]string
}

func (f *fakeEmbedder) Embeddings(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	f.calls++
	f.inputs = append(f.inputs, inputs)
	out := make([][]float32, len(inputs))
	for i, s := range inputs {
		out[i] = []float32{float32(len(s)), 1}
	}
	return out, nil
}

func TestCachingEmbedderSkipsBackendOnRepeat(t *testing.T) {
	fake := &fakeEmbedder{}
	c := NewCaching(fake, 16)
	ctx := context.Background()

	first, err := c.Embeddings(ctx, "m", []string{"heap property"})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := c.Embeddings(ctx, "m", []string{"heap property"})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if fake.calls != 1 {
		t.Fatalf("backend called %d times, want 1", fake.calls)
	}
	if len(second) != 1 || second[0][0] != first[0][0] {
		t.Fatalf("cached vector differs: %v vs %v", second, first)
	}
}

func TestCachingEmbedderFillsOnlyMisses(t *testing.T) {
	fake := &fakeEmbedder{}
	c := NewCaching(fake, 16)
	ctx := context.Background()

	if _, err := c.Embeddings(ctx, "m", []string{"aa"}); err != nil {
		t.Fatalf("warm: %v", err)
	}
	out, err := c.Embeddings(ctx, "m", []string{"aa", "bbbb"})
	if err != nil {
		t.Fatalf("mixed: %v", err)
	}
	if fake.calls != 2 {
		t.Fatalf("backend called %d times, want 2", fake.calls)
	}
	if got := fake.inputs[1]; len(got) != 1 || got[0] != "bbbb" {
		t.Fatalf("backend saw %v, want only the miss", got)
	}
	if out[0][0] != 2 || out[1][0] != 4 {
		t.Fatalf("merged output wrong: %v", out)
	}
}

func TestCachingEmbedderKeysByModel(t *testing.T) {
	fake := &fakeEmbedder{}
	c := NewCaching(fake, 16)
	ctx := context.Background()

	c.Embeddings(ctx, "m1", []string{"x"})
	c.Embeddings(ctx, "m2", []string{"x"})
	if fake.calls != 2 {
		t.Fatalf("same input under different models must miss: %d calls", fake.calls)
	}
}
