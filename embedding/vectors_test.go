package embedding

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const vectorsFixture = `the 1.0 0.0
heart 0.0 1.0
failure 1.0 1.0
`

func TestLoadReader(t *testing.T) {
	vectors, err := LoadReader(strings.NewReader(vectorsFixture))
	assert.NoError(t, err)
	assert.Equal(t, 2, vectors.Dim())
	assert.Equal(t, 3, vectors.Len())

	vec, ok := vectors.Lookup("heart")
	assert.True(t, ok)
	assert.Equal(t, []float32{0, 1}, vec)

	_, ok = vectors.Lookup("kidney")
	assert.False(t, ok)
}

func TestLoadReaderDimensionMismatch(t *testing.T) {
	_, err := LoadReader(strings.NewReader("a 1.0 2.0\nb 1.0\n"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestLoadReaderBadComponent(t *testing.T) {
	_, err := LoadReader(strings.NewReader("a 1.0 x\n"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "bad component")
}

func TestEmbedMeanPooling(t *testing.T) {
	vectors, err := LoadReader(strings.NewReader(vectorsFixture))
	assert.NoError(t, err)

	pooled := vectors.Embed("the heart", nil)
	assert.InDeltaSlice(t, []float32{0.5, 0.5}, pooled, 1e-6)

	// Unknown words are skipped, not averaged in.
	pooled = vectors.Embed("the zzz", nil)
	assert.InDeltaSlice(t, []float32{1, 0}, pooled, 1e-6)

	// All-unknown text embeds to the zero vector.
	pooled = vectors.Embed("zzz yyy", nil)
	assert.Equal(t, []float32{0, 0}, pooled)
}

func TestEmbedCustomSplitter(t *testing.T) {
	vectors, err := LoadReader(strings.NewReader(vectorsFixture))
	assert.NoError(t, err)

	split := func(text string) []string {
		return strings.Split(text, "|")
	}
	pooled := vectors.Embed("heart|failure", split)
	assert.InDeltaSlice(t, []float32{0.5, 1}, pooled, 1e-6)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 1}, []float32{2, 2}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
}
