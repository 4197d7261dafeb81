// Package tokalign evaluates vocabulary-alignment matrices between
// language-model tokenizers: loading matrices and evaluation pair files,
// BLEU and embedding-similarity scoring, mapping diagnostics, and the
// parallel builder that produces pair files from a corpus.
package tokalign

import (
	"bufio"
	"bytes"
	"os"

	"github.com/pkg/errors"

	"github.com/sassyYoda/MedicalTokAlign/types"
)

// Pair is one evaluation line: the same text tokenized by the source and
// the target tokenizer.
type Pair struct {
	Source types.Tokens
	Target types.Tokens
}

// ReadPairs parses a TSV evaluation file: per line, space-separated
// source ids, a tab, space-separated target ids. Blank lines are
// skipped; extra columns are ignored.
func ReadPairs(path string) ([]Pair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read pairs %s", path)
	}
	var pairs []Pair
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		columns := bytes.Split(text, []byte{'\t'})
		if len(columns) < 2 {
			return nil, errors.Errorf(
				"%s line %d: want two tab-separated id lists", path, line)
		}
		source, err := types.ParseTokens(string(columns[0]))
		if err != nil {
			return nil, errors.Wrapf(err, "%s line %d", path, line)
		}
		target, err := types.ParseTokens(string(columns[1]))
		if err != nil {
			return nil, errors.Wrapf(err, "%s line %d", path, line)
		}
		pairs = append(pairs, Pair{Source: source, Target: target})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return pairs, nil
}
