package corpus

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/sassyYoda/MedicalTokAlign/tokenizers"
)

const (
	DefaultMinChars     = 50
	DefaultTargetTokens = int64(1_000_000_000)
)

// Reason says why the filter rejected a document.
type Reason string

const (
	ReasonEmpty Reason = "empty"
	ReasonShort Reason = "short"
)

// Filter is the acceptance judgement applied to every candidate abstract.
type Filter struct {
	MinChars int
}

func NewFilter() Filter {
	return Filter{MinChars: DefaultMinChars}
}

// Keep reports whether the whitespace-trimmed text passes, and the
// rejection reason when it does not. Placeholder-length abstracts are
// rejected as short.
func (f Filter) Keep(text string) (bool, Reason) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false, ReasonEmpty
	}
	if utf8.RuneCountInString(trimmed) < f.MinChars {
		return false, ReasonShort
	}
	return true, ""
}

// Stats tracks what a Writer kept and dropped.
type Stats struct {
	Documents    int64
	Tokens       int64
	SkippedEmpty int64
	SkippedShort int64
}

func (s Stats) Summary() string {
	return fmt.Sprintf("kept %s documents, %s tokens, skipped %s empty, %s short",
		humanize.Comma(s.Documents), humanize.Comma(s.Tokens),
		humanize.Comma(s.SkippedEmpty), humanize.Comma(s.SkippedShort))
}

// Writer is a token-budgeted JSONL sink: accepted documents are written
// as `{"text": ...}` lines until TargetTokens is reached.
type Writer struct {
	Filter       Filter
	TargetTokens int64

	// Progress, when set, observes the running stats after every
	// document Add examines.
	Progress func(Stats)

	tokenizer tokenizers.Tokenizer
	enc       *json.Encoder
	stats     Stats
}

// NewWriter wraps out with the default filter and token budget, counting
// tokens with the given tokenizer.
func NewWriter(out io.Writer, tokenizer tokenizers.Tokenizer) *Writer {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	return &Writer{
		Filter:       NewFilter(),
		TargetTokens: DefaultTargetTokens,
		tokenizer:    tokenizer,
		enc:          enc,
	}
}

// Add filters text, writes it when accepted, and reports whether the
// token budget has been reached.
func (w *Writer) Add(text string) (done bool, err error) {
	defer func() {
		if w.Progress != nil {
			w.Progress(w.stats)
		}
	}()
	trimmed := strings.TrimSpace(text)
	if keep, reason := w.Filter.Keep(trimmed); !keep {
		switch reason {
		case ReasonEmpty:
			w.stats.SkippedEmpty++
		case ReasonShort:
			w.stats.SkippedShort++
		}
		return w.full(), nil
	}
	count := int64(len(w.tokenizer.Encode(trimmed)))
	if err := w.enc.Encode(Document{Text: trimmed}); err != nil {
		return w.full(), errors.Wrap(err, "writing corpus document")
	}
	w.stats.Documents++
	w.stats.Tokens += count
	return w.full(), nil
}

func (w *Writer) full() bool {
	return w.stats.Tokens >= w.TargetTokens
}

func (w *Writer) Stats() Stats {
	return w.stats
}

// Fill drains docs into w until the budget is hit or the iterator ends.
// limit > 0 caps how many documents are examined, accepted or not.
func Fill(w *Writer, docs DocumentIterator, limit int64) error {
	examined := int64(0)
	for {
		if limit > 0 && examined >= limit {
			return nil
		}
		text, err := docs()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		examined++
		done, err := w.Add(text)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}
