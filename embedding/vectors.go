// Package embedding loads GloVe-format word vectors and provides the
// pooling and similarity operations used for alignment scoring.
package embedding

import (
	"bufio"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Vectors is a dense word-vector table: one backing slice, a token to
// row index, and a fixed dimensionality set by the first row loaded.
type Vectors struct {
	rows map[string]int
	data []float32
	dim  int
}

// Splitter turns text into vector lookup keys.
type Splitter func(text string) []string

// Load reads a GloVe text file: one token per line followed by its
// space-separated components.
func Load(path string) (*Vectors, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open vectors %s", path)
	}
	defer file.Close()
	vectors, err := LoadReader(file)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return vectors, nil
}

// LoadReader parses GloVe text format. Every row must match the
// dimensionality of the first; a mismatch reports the offending line.
func LoadReader(r io.Reader) (*Vectors, error) {
	vectors := &Vectors{rows: make(map[string]int)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, errors.Errorf("line %d: no components", line)
		}
		token := fields[0]
		components := fields[1:]
		if vectors.dim == 0 {
			vectors.dim = len(components)
		} else if len(components) != vectors.dim {
			return nil, errors.Errorf(
				"line %d: %d components, want %d",
				line, len(components), vectors.dim)
		}
		row := make([]float32, vectors.dim)
		for i, field := range components {
			value, err := strconv.ParseFloat(field, 32)
			if err != nil {
				return nil, errors.Wrapf(err,
					"line %d: bad component %q", line, field)
			}
			row[i] = float32(value)
		}
		if at, ok := vectors.rows[token]; ok {
			copy(vectors.data[at*vectors.dim:], row)
			continue
		}
		vectors.rows[token] = len(vectors.rows)
		vectors.data = append(vectors.data, row...)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading vectors")
	}
	return vectors, nil
}

// Dim reports the vector dimensionality.
func (v *Vectors) Dim() int {
	return v.dim
}

// Len reports the number of tokens in the table.
func (v *Vectors) Len() int {
	return len(v.rows)
}

// Lookup returns the vector for token. The returned slice aliases the
// table; callers must not modify it.
func (v *Vectors) Lookup(token string) ([]float32, bool) {
	row, ok := v.rows[token]
	if !ok {
		return nil, false
	}
	return v.data[row*v.dim : (row+1)*v.dim], true
}

// Embed mean-pools the vectors of the keys split produces from text.
// A nil split falls back to whitespace fields. Keys missing from the
// table are skipped; if every key is missing the zero vector comes back.
func (v *Vectors) Embed(text string, split Splitter) []float32 {
	if split == nil {
		split = strings.Fields
	}
	pooled := make([]float32, v.dim)
	found := 0
	for _, key := range split(text) {
		vec, ok := v.Lookup(key)
		if !ok {
			continue
		}
		for i, component := range vec {
			pooled[i] += component
		}
		found++
	}
	if found > 1 {
		inv := 1 / float32(found)
		for i := range pooled {
			pooled[i] *= inv
		}
	}
	return pooled
}

// Cosine is the cosine similarity of a and b, which must share a length.
// Either vector being zero yields 0.
func Cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
