package types

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// String renders tokens as the space-separated decimal id list used by
// pair files.
func (tokens Tokens) String() string {
	if len(tokens) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(tokens) * 6)
	for idx := range tokens {
		if idx != 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.FormatUint(uint64(tokens[idx]), 10))
	}
	return sb.String()
}

// ParseTokens parses a space-separated decimal id list. Empty input
// yields an empty sequence.
func ParseTokens(s string) (Tokens, error) {
	fields := strings.Fields(s)
	tokens := make(Tokens, 0, len(fields))
	for _, field := range fields {
		id, err := strconv.ParseUint(field, 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "bad token id %q", field)
		}
		tokens = append(tokens, Token(id))
	}
	return tokens, nil
}
