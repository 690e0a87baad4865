package phrasing

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/philippgille/chromem-go"

	"github.com/stride-io/stride/internal/policy"
	"github.com/stride-io/stride/pkg/protocol"
)

const embeddingDims = 128

// Index selects customer-facing policy phrasing by semantic similarity
// between the customer's utterance and each rule's explanation text. The
// selection only decorates the reason string; it never changes a decision.
type Index struct {
	collection *chromem.Collection
}

// NewIndex builds an in-memory index over the table's rule explanations.
func NewIndex(table *policy.Table) (*Index, error) {
	db := chromem.NewDB()
	collection, err := db.GetOrCreateCollection("policy-phrasing", nil, hashEmbedding)
	if err != nil {
		return nil, fmt.Errorf("phrasing: create collection: %w", err)
	}

	docs := make([]chromem.Document, 0, len(table.Rules))
	for _, r := range table.Rules {
		if r.Explanation == "" {
			continue
		}
		docs = append(docs, chromem.Document{
			ID:       r.Name,
			Metadata: map[string]string{"category": string(r.Category)},
			Content:  r.Explanation,
		})
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("phrasing: table %s has no explanations", table.Version)
	}
	if err := collection.AddDocuments(context.Background(), docs, 1); err != nil {
		return nil, fmt.Errorf("phrasing: add documents: %w", err)
	}
	return &Index{collection: collection}, nil
}

// Phrase returns the explanation text closest to the utterance within the
// given policy category.
func (ix *Index) Phrase(ctx context.Context, utterance string, category protocol.PolicyCategory) (string, error) {
	results, err := ix.collection.Query(ctx, utterance, 1,
		map[string]string{"category": string(category)}, nil)
	if err != nil {
		return "", fmt.Errorf("phrasing: query: %w", err)
	}
	if len(results) == 0 {
		return "", nil
	}
	return results[0].Content, nil
}

// hashEmbedding is a deterministic bag-of-tokens embedding: each token is
// hashed into one of embeddingDims buckets and the vector is L2-normalized.
// Identical text always embeds identically, which keeps phrasing selection
// reproducible without a network call.
func hashEmbedding(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, embeddingDims)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%embeddingDims]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}
