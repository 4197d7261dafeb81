package tokalign

import (
	"github.com/pkg/errors"

	"github.com/sassyYoda/MedicalTokAlign/embedding"
	"github.com/sassyYoda/MedicalTokAlign/tokenizers"
)

// EvalSimilarity maps each pair's target ids through the matrix, decodes
// both the mapped sequence and the source sequence with the source
// tokenizer, and reports the mean cosine similarity of their pooled
// embeddings. Unmapped ids decode as the tokenizer's unknown token.
func EvalSimilarity(pairs []Pair, matrix *Matrix, vectors *embedding.Vectors,
	decoder tokenizers.Tokenizer) (float64, error) {
	if len(pairs) == 0 {
		return 0, errors.New("no evaluation pairs")
	}
	unk := decoder.UnknownToken()
	var total float64
	for _, pair := range pairs {
		mapped, _ := matrix.Apply(pair.Target, unk)
		predText := decoder.Decode(mapped)
		sourceText := decoder.Decode(pair.Source)
		total += embedding.Cosine(
			vectors.Embed(predText, nil), vectors.Embed(sourceText, nil))
	}
	return total / float64(len(pairs)), nil
}
