// Package tokenizers loads the tokenizers whose vocabularies are being
// aligned. Artifacts resolve from a local directory or the Hugging Face
// hub; byte-level BPE and sentencepiece vocabularies are supported.
package tokenizers

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/sassyYoda/MedicalTokAlign/types"
)

// Tokenizer is the encode/decode capability the alignment tools consume.
// Implementations are safe for concurrent use only if stated; the pair
// builder constructs one instance per worker instead of sharing.
type Tokenizer interface {
	Encode(text string) types.Tokens
	Decode(tokens types.Tokens) string
	VocabSize() int
	UnknownToken() types.Token
}

// FromPretrained loads a tokenizer by Hugging Face model id or local
// directory. Remote artifacts are cached; present files are not fetched
// again. A directory with a tokenizer.model loads as sentencepiece,
// otherwise as byte-pair encoding.
func FromPretrained(id string) (Tokenizer, error) {
	dir, err := ResolveDir(id)
	if err != nil {
		return nil, err
	}
	if fileExists(filepath.Join(dir, "tokenizer.model")) {
		return NewSPTokenizer(filepath.Join(dir, "tokenizer.model"))
	}
	return NewBPETokenizer(dir)
}

// VocabSizeOf reports the vocabulary size for a model id or directory,
// preferring the configured vocab_size and falling back to counting the
// loaded vocabulary.
func VocabSizeOf(id string) (int, error) {
	dir, err := ResolveDir(id)
	if err != nil {
		return 0, err
	}
	if data, err := readArtifact(dir, "config.json"); err == nil {
		var config struct {
			VocabSize int `json:"vocab_size"`
		}
		if json.Unmarshal(data, &config) == nil && config.VocabSize > 0 {
			return config.VocabSize, nil
		}
	}
	tokenizer, err := FromPretrained(dir)
	if err != nil {
		return 0, errors.Wrapf(err, "no vocab_size in config and no loadable vocabulary for %s", id)
	}
	return tokenizer.VocabSize(), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
