package llm

import "context"

// Embedder produces embedding vectors for texts. Used online for queries and
// offline when ingesting materials.
type Embedder interface {
	Embeddings(ctx context.Context, model string, inputs []string) ([][]float32, error)
}
