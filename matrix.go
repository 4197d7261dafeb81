package tokalign

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/sassyYoda/MedicalTokAlign/types"
)

// Matrix maps target-tokenizer ids to source-tokenizer ids. The JSON
// form keys target ids as decimal strings, the way the alignment trainer
// writes it.
type Matrix struct {
	mapping map[types.Token]types.Token
}

// LoadMatrix reads an alignment matrix JSON file.
func LoadMatrix(path string) (*Matrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read matrix %s", path)
	}
	raw := make(map[string]int64)
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "cannot unmarshal matrix %s", path)
	}
	matrix := &Matrix{mapping: make(map[types.Token]types.Token, len(raw))}
	for key, value := range raw {
		target, err := strconv.ParseUint(key, 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: bad target id %q", path, key)
		}
		if value < 0 {
			return nil, errors.Errorf("%s: negative source id %d for %q",
				path, value, key)
		}
		matrix.mapping[types.Token(target)] = types.Token(value)
	}
	return matrix, nil
}

// Len reports how many target ids the matrix covers.
func (m *Matrix) Len() int {
	return len(m.mapping)
}

// Lookup maps one target id.
func (m *Matrix) Lookup(target types.Token) (types.Token, bool) {
	source, ok := m.mapping[target]
	return source, ok
}

// Apply maps a target id sequence to source ids. Ids the matrix does not
// cover map to unk and are counted as misses.
func (m *Matrix) Apply(target types.Tokens, unk types.Token) (types.Tokens, int) {
	mapped := make(types.Tokens, len(target))
	missing := 0
	for i, id := range target {
		source, ok := m.mapping[id]
		if !ok {
			source = unk
			missing++
		}
		mapped[i] = source
	}
	return mapped, missing
}
