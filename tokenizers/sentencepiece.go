package tokenizers

import (
	"encoding/hex"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/vikesh-raj/go-sentencepiece-encoder/sentencepiece"
	"google.golang.org/protobuf/proto"

	"github.com/sassyYoda/MedicalTokAlign/types"
)

const spaceMarker = "▁"

type pieceRepr struct {
	text    string
	control bool
}

// SPTokenizer encodes text against a sentencepiece model using greedy
// longest-match over the piece table, with byte pieces as the fallback for
// anything the table does not cover.
type SPTokenizer struct {
	pieces      map[string]types.Token
	reprs       []pieceRepr
	byteTokens  [256]types.Token
	hasBytes    bool
	maxPieceLen int
	unk         types.Token
}

// NewSPTokenizer loads a serialized sentencepiece model proto.
func NewSPTokenizer(path string) (*SPTokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read %s", path)
	}
	var model sentencepiece.ModelProto
	if err := proto.Unmarshal(data, &model); err != nil {
		return nil, errors.Wrapf(err, "cannot unmarshal %s", path)
	}

	t := &SPTokenizer{
		pieces: make(map[string]types.Token, len(model.GetPieces())),
		reprs:  make([]pieceRepr, len(model.GetPieces())),
	}
	for idx, piece := range model.GetPieces() {
		id := types.Token(idx)
		repr := piece.GetPiece()
		switch piece.GetType() {
		case sentencepiece.ModelProto_SentencePiece_BYTE:
			// Byte pieces look like `<0xAB>`.
			raw, decodeErr := hex.DecodeString(repr[3:5])
			if decodeErr != nil {
				return nil, errors.Wrapf(decodeErr,
					"malformed byte piece %q", repr)
			}
			t.byteTokens[raw[0]] = id
			t.hasBytes = true
			t.reprs[idx] = pieceRepr{text: string(raw)}
		case sentencepiece.ModelProto_SentencePiece_CONTROL:
			t.reprs[idx] = pieceRepr{text: repr, control: true}
			t.addPiece(repr, id)
		case sentencepiece.ModelProto_SentencePiece_UNKNOWN:
			t.unk = id
			t.reprs[idx] = pieceRepr{text: repr, control: true}
		default:
			t.reprs[idx] = pieceRepr{text: repr}
			t.addPiece(repr, id)
		}
	}
	if len(t.pieces) == 0 {
		return nil, errors.Errorf("no usable pieces in %s", path)
	}
	return t, nil
}

func (t *SPTokenizer) addPiece(repr string, id types.Token) {
	if _, ok := t.pieces[repr]; ok {
		return
	}
	t.pieces[repr] = id
	if n := utf8.RuneCountInString(repr); n > t.maxPieceLen {
		t.maxPieceLen = n
	}
}

// Encode normalizes spaces to the word marker and greedily consumes the
// longest matching piece at each position. Unmatched runes fall back to
// byte pieces when the model provides them, else the unknown token.
func (t *SPTokenizer) Encode(text string) types.Tokens {
	normalized := spaceMarker + strings.ReplaceAll(text, " ", spaceMarker)
	runes := []rune(normalized)
	tokens := make(types.Tokens, 0, len(runes)/3+1)
	for i := 0; i < len(runes); {
		limit := len(runes) - i
		if limit > t.maxPieceLen {
			limit = t.maxPieceLen
		}
		matched := 0
		var id types.Token
		for n := limit; n >= 1; n-- {
			if candidate, ok := t.pieces[string(runes[i:i+n])]; ok {
				matched, id = n, candidate
				break
			}
		}
		if matched == 0 {
			if t.hasBytes {
				for _, b := range []byte(string(runes[i])) {
					tokens = append(tokens, t.byteTokens[b])
				}
			} else {
				tokens = append(tokens, t.unk)
			}
			i++
			continue
		}
		tokens = append(tokens, id)
		i += matched
	}
	return tokens
}

// Decode concatenates piece text, dropping control pieces, and converts
// word markers back to spaces.
func (t *SPTokenizer) Decode(tokens types.Tokens) string {
	var joined strings.Builder
	for _, token := range tokens {
		if int(token) >= len(t.reprs) {
			continue
		}
		repr := t.reprs[token]
		if repr.control {
			continue
		}
		joined.WriteString(repr.text)
	}
	text := strings.ReplaceAll(joined.String(), spaceMarker, " ")
	return strings.TrimPrefix(text, " ")
}

func (t *SPTokenizer) VocabSize() int {
	return len(t.reprs)
}

func (t *SPTokenizer) UnknownToken() types.Token {
	return t.unk
}
