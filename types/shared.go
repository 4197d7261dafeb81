package types

type Token uint32
type Tokens []Token
type TokenMap map[string]Token

// BytePair is a candidate merge of two adjacent vocabulary pieces.
type BytePair struct {
	Left  string
	Right string
}
