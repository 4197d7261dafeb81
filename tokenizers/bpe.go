package tokenizers

import (
	"bufio"
	"bytes"
	"encoding/json"
	"math"
	"path"
	"regexp"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/sassyYoda/MedicalTokAlign/types"
)

// splitPattern is the GPT-2 pre-tokenization pattern, with the negative
// lookahead rewritten as `(\S){0}` so it compiles under RE2.
const splitPattern = "'s|'t|'re|'ve|'m|'ll|'d| ?\\p{L}+| ?\\p{N}+|" +
	" ?[^\\s\\p{L}\\p{N}]+|\\s+(\\S){0}|\\s+"

const encodeCacheSize = 65536

// BPETokenizer performs byte-pair encoding over a Hugging Face vocabulary.
// Byte-level vocabularies (GPT-2 lineage) route input bytes through the
// unicode translation table; classic vocabularies mark word boundaries with
// an end-of-word suffix instead.
type BPETokenizer struct {
	encoder     types.TokenMap
	decoder     map[types.Token][]byte
	bpeRanks    map[types.BytePair]float64
	specials    map[string]types.Token
	specialsPat *regexp.Regexp
	pattern     *regexp.Regexp
	byteToRune  [256]rune
	runeToByte  map[rune]byte
	byteLevel   bool
	endOfWord   string
	unk         types.Token
	cache       *lru.ARCCache
}

// NewBPETokenizer loads a byte-pair tokenizer from a directory holding
// either a tokenizer.json or a vocab.json plus merges.txt.
func NewBPETokenizer(dir string) (*BPETokenizer, error) {
	t := &BPETokenizer{
		encoder:  make(types.TokenMap),
		bpeRanks: make(map[types.BytePair]float64),
		specials: make(map[string]types.Token),
	}
	t.buildByteTables()

	var unkName string
	if fileExists(path.Join(dir, "vocab.json")) {
		name, err := t.loadSplitVocab(dir)
		if err != nil {
			return nil, err
		}
		unkName = name
	} else if fileExists(path.Join(dir, "tokenizer.json")) {
		name, err := t.loadTokenizerJSON(dir)
		if err != nil {
			return nil, err
		}
		unkName = name
	} else {
		return nil, errors.Errorf(
			"no vocab.json or tokenizer.json under %s", dir)
	}

	t.decoder = make(map[types.Token][]byte, len(t.encoder))
	for piece, id := range t.encoder {
		t.decoder[id] = []byte(piece)
		if !t.byteLevel && strings.ContainsRune(piece, 'Ġ') {
			t.byteLevel = true
		}
		if t.endOfWord == "" && strings.HasSuffix(piece, "</w>") {
			t.endOfWord = "</w>"
		}
	}

	if err := t.loadSpecials(dir); err != nil {
		return nil, err
	}
	t.unk = t.resolveUnknown(dir, unkName)

	pattern, err := regexp.Compile(splitPattern)
	if err != nil {
		return nil, errors.Wrap(err, "cannot compile split pattern")
	}
	t.pattern = pattern
	t.cache, _ = lru.NewARC(encodeCacheSize)
	return t, nil
}

// buildByteTables constructs the GPT-2 byte to unicode mapping: printable
// latin bytes map to themselves, the rest to code points from 256 up.
func (t *BPETokenizer) buildByteTables() {
	t.runeToByte = make(map[rune]byte, 256)
	direct := make(map[byte]bool, 256)
	for b := byte('!'); b <= byte('~'); b++ {
		direct[b] = true
	}
	for b := uint16('¡'); b <= uint16('¬'); b++ {
		direct[byte(b)] = true
	}
	for b := uint16('®'); b <= uint16('ÿ'); b++ {
		direct[byte(b)] = true
	}
	shifted := 0
	for b := 0; b < 256; b++ {
		r := rune(b)
		if !direct[byte(b)] {
			r = rune(256 + shifted)
			shifted++
		}
		t.byteToRune[b] = r
		t.runeToByte[r] = byte(b)
	}
}

func (t *BPETokenizer) loadSplitVocab(dir string) (unkName string, err error) {
	vocabData, err := readArtifact(dir, "vocab.json")
	if err != nil {
		return "", errors.Wrap(err, "cannot read vocab.json")
	}
	if err := json.Unmarshal(vocabData, &t.encoder); err != nil {
		return "", errors.Wrap(err, "cannot unmarshal vocab.json")
	}
	mergesData, err := readArtifact(dir, "merges.txt")
	if err != nil {
		return "", errors.Wrap(err, "cannot read merges.txt")
	}
	scanner := bufio.NewScanner(bytes.NewReader(mergesData))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	rank := 0
	firstLine := true
	for scanner.Scan() {
		line := scanner.Text()
		// Hugging Face merge tables open with a `#version:` header.
		if firstLine {
			firstLine = false
			if strings.HasPrefix(line, "#") {
				continue
			}
		}
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			return "", errors.Errorf("malformed merge rule %q", line)
		}
		t.bpeRanks[types.BytePair{Left: parts[0], Right: parts[1]}] =
			float64(rank)
		rank++
	}
	return "", scanner.Err()
}

func (t *BPETokenizer) loadTokenizerJSON(dir string) (unkName string, err error) {
	data, err := readArtifact(dir, "tokenizer.json")
	if err != nil {
		return "", errors.Wrap(err, "cannot read tokenizer.json")
	}
	var manifest struct {
		AddedTokens []struct {
			ID      types.Token `json:"id"`
			Content string      `json:"content"`
			Special bool        `json:"special"`
		} `json:"added_tokens"`
		Model struct {
			UnkToken string                 `json:"unk_token"`
			Vocab    map[string]types.Token `json:"vocab"`
			Merges   []json.RawMessage      `json:"merges"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return "", errors.Wrap(err, "cannot unmarshal tokenizer.json")
	}
	t.encoder = manifest.Model.Vocab
	// Merge rules appear either as "left right" strings or as two-element
	// arrays depending on the tokenizers version that wrote the file.
	for rank, raw := range manifest.Model.Merges {
		var pair types.BytePair
		var line string
		if json.Unmarshal(raw, &line) == nil {
			parts := strings.SplitN(line, " ", 2)
			if len(parts) != 2 {
				return "", errors.Errorf("malformed merge rule %q", line)
			}
			pair = types.BytePair{Left: parts[0], Right: parts[1]}
		} else {
			var sides []string
			if json.Unmarshal(raw, &sides) != nil || len(sides) != 2 {
				return "", errors.Errorf("malformed merge rule %s", raw)
			}
			pair = types.BytePair{Left: sides[0], Right: sides[1]}
		}
		t.bpeRanks[pair] = float64(rank)
	}
	for _, added := range manifest.AddedTokens {
		if _, ok := t.encoder[added.Content]; !ok {
			t.encoder[added.Content] = added.ID
		}
		if added.Special {
			t.specials[added.Content] = added.ID
		}
	}
	return manifest.Model.UnkToken, nil
}

// loadSpecials folds in specials.txt and special_tokens_map.json entries
// and compiles the removal pattern, longest token first.
func (t *BPETokenizer) loadSpecials(dir string) error {
	if data, err := readArtifact(dir, "specials.txt"); err == nil {
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			name := scanner.Text()
			if name == "" {
				continue
			}
			if id, ok := t.encoder[name]; ok {
				t.specials[name] = id
			}
		}
	}
	for _, name := range specialTokenStrings(dir) {
		if id, ok := t.encoder[name]; ok {
			t.specials[name] = id
		}
	}
	if len(t.specials) == 0 {
		return nil
	}
	names := make([]string, 0, len(t.specials))
	for name := range t.specials {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = regexp.QuoteMeta(name)
	}
	pat, err := regexp.Compile(strings.Join(quoted, "|"))
	if err != nil {
		return errors.Wrap(err, "cannot compile specials pattern")
	}
	t.specialsPat = pat
	return nil
}

// specialTokenStrings reads special_tokens_map.json, whose values are
// either bare strings or objects carrying a content field.
func specialTokenStrings(dir string) map[string]string {
	tokens := make(map[string]string)
	data, err := readArtifact(dir, "special_tokens_map.json")
	if err != nil {
		return tokens
	}
	var raw map[string]json.RawMessage
	if json.Unmarshal(data, &raw) != nil {
		return tokens
	}
	for key, value := range raw {
		var name string
		if json.Unmarshal(value, &name) == nil {
			tokens[key] = name
			continue
		}
		var wrapped struct {
			Content string `json:"content"`
		}
		if json.Unmarshal(value, &wrapped) == nil && wrapped.Content != "" {
			tokens[key] = wrapped.Content
		}
	}
	return tokens
}

func (t *BPETokenizer) resolveUnknown(dir string, unkName string) types.Token {
	if unkName == "" {
		unkName = specialTokenStrings(dir)["unk_token"]
	}
	if unkName == "" {
		if data, err := readArtifact(dir, "tokenizer_config.json"); err == nil {
			config := make(map[string]json.RawMessage)
			if json.Unmarshal(data, &config) == nil {
				if raw, ok := config["unk_token"]; ok {
					var name string
					if json.Unmarshal(raw, &name) == nil {
						unkName = name
					}
				}
			}
		}
	}
	for _, candidate := range []string{unkName, "<unk>", "<|endoftext|>"} {
		if candidate == "" {
			continue
		}
		if id, ok := t.encoder[candidate]; ok {
			return id
		}
	}
	return 0
}

// Encode tokenizes text into vocabulary ids. Special tokens are cut out
// before pre-tokenization and mapped directly.
func (t *BPETokenizer) Encode(text string) types.Tokens {
	tokens := make(types.Tokens, 0, len(text)/4+1)
	for _, seg := range t.splitSpecials(text) {
		if seg.special {
			tokens = append(tokens, t.specials[seg.text])
			continue
		}
		for _, word := range t.pattern.FindAllString(seg.text, -1) {
			tokens = append(tokens, t.encodeWord(word)...)
		}
	}
	return tokens
}

type segment struct {
	text    string
	special bool
}

func (t *BPETokenizer) splitSpecials(text string) []segment {
	if t.specialsPat == nil {
		return []segment{{text: text}}
	}
	var segments []segment
	last := 0
	for _, loc := range t.specialsPat.FindAllStringIndex(text, -1) {
		if loc[0] > last {
			segments = append(segments, segment{text: text[last:loc[0]]})
		}
		segments = append(segments,
			segment{text: text[loc[0]:loc[1]], special: true})
		last = loc[1]
	}
	if last < len(text) {
		segments = append(segments, segment{text: text[last:]})
	}
	return segments
}

func (t *BPETokenizer) encodeWord(word string) types.Tokens {
	if cached, ok := t.cache.Get(word); ok {
		return cached.(types.Tokens)
	}
	var symbols []string
	if t.byteLevel {
		translated := make([]rune, 0, len(word))
		for _, b := range []byte(word) {
			translated = append(translated, t.byteToRune[b])
		}
		symbols = strings.Split(string(translated), "")
	} else {
		// Classic vocabularies carry no whitespace pieces; word
		// boundaries come back as end-of-word suffixes on decode.
		trimmed := strings.TrimSpace(word)
		if trimmed == "" {
			tokens := types.Tokens{}
			t.cache.Add(word, tokens)
			return tokens
		}
		symbols = strings.Split(trimmed, "")
		if t.endOfWord != "" {
			symbols[len(symbols)-1] += t.endOfWord
		}
	}
	pieces := t.merge(symbols)
	tokens := make(types.Tokens, 0, len(pieces))
	for _, piece := range pieces {
		if id, ok := t.encoder[piece]; ok {
			tokens = append(tokens, id)
		} else {
			tokens = append(tokens, t.unk)
		}
	}
	t.cache.Add(word, tokens)
	return tokens
}

// merge repeatedly fuses the adjacent pair with the lowest rank until no
// ranked pair remains.
func (t *BPETokenizer) merge(symbols []string) []string {
	for len(symbols) > 1 {
		best := types.BytePair{}
		bestRank := math.Inf(1)
		for i := 0; i < len(symbols)-1; i++ {
			pair := types.BytePair{Left: symbols[i], Right: symbols[i+1]}
			if rank, ok := t.bpeRanks[pair]; ok && rank < bestRank {
				bestRank = rank
				best = pair
			}
		}
		if math.IsInf(bestRank, 1) {
			break
		}
		fused := make([]string, 0, len(symbols))
		for i := 0; i < len(symbols); {
			if i < len(symbols)-1 &&
				symbols[i] == best.Left && symbols[i+1] == best.Right {
				fused = append(fused, best.Left+best.Right)
				i += 2
			} else {
				fused = append(fused, symbols[i])
				i++
			}
		}
		symbols = fused
	}
	return symbols
}

// Decode maps tokens back to text. Byte-level pieces run through the
// reverse unicode table; end-of-word suffixes become spaces.
func (t *BPETokenizer) Decode(tokens types.Tokens) string {
	var joined bytes.Buffer
	for _, token := range tokens {
		if piece, ok := t.decoder[token]; ok {
			joined.Write(piece)
		}
	}
	text := joined.String()
	if t.byteLevel {
		raw := make([]byte, 0, len(text))
		for _, r := range text {
			if b, ok := t.runeToByte[r]; ok {
				raw = append(raw, b)
			}
		}
		return string(raw)
	}
	if t.endOfWord != "" {
		text = strings.TrimSuffix(text, t.endOfWord)
		text = strings.ReplaceAll(text, t.endOfWord, " ")
	}
	return text
}

func (t *BPETokenizer) VocabSize() int {
	return len(t.encoder)
}

func (t *BPETokenizer) UnknownToken() types.Token {
	return t.unk
}
