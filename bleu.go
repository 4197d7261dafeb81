package tokalign

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/sassyYoda/MedicalTokAlign/tokenizers"
	"github.com/sassyYoda/MedicalTokAlign/types"
)

// Weights are the BLEU n-gram weights, orders 1 through 4.
type Weights [4]float64

// BLEU1 scores unigram overlap only, the alignment literature's default.
var BLEU1 = Weights{1, 0, 0, 0}

// ParseWeights parses a comma-separated weight list; exactly four values.
func ParseWeights(s string) (Weights, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 4 {
		return Weights{}, errors.Errorf(
			"want 4 BLEU weights (orders 1-4), got %d", len(fields))
	}
	var weights Weights
	for i, field := range fields {
		value, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return Weights{}, errors.Wrapf(err, "bad BLEU weight %q", field)
		}
		weights[i] = value
	}
	return weights, nil
}

// unkWord marks an unmapped target id in the BLEU candidate; as a word
// it can never match a numeric source id.
const unkWord = "<UNK>"

// MappedTokenStat describes one heavily-mapped-to source id.
type MappedTokenStat struct {
	ID          types.Token
	Occurrences int64
	FanIn       int
	Surface     string
}

// BLEUReport is the score plus the mapping diagnostics accumulated while
// evaluating.
type BLEUReport struct {
	MeanBLEU      float64
	Pairs         int
	MatrixSize    int
	TargetTokens  int64
	MissingTokens int64
	UniqueSources int
	TotalMapped   int64
	TopMapped     []MappedTokenStat
}

// MissingPercent is the share of target token occurrences the matrix
// does not cover.
func (r *BLEUReport) MissingPercent() float64 {
	total := r.TargetTokens
	if total < 1 {
		total = 1
	}
	return 100 * float64(r.MissingTokens) / float64(total)
}

// Summary renders the diagnostics block the eval CLI prints.
func (r *BLEUReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "alignment matrix: %s target ids\n",
		humanize.Comma(int64(r.MatrixSize)))
	fmt.Fprintf(&b, "target tokens: %s, missing: %s (%.2f%%)\n",
		humanize.Comma(r.TargetTokens), humanize.Comma(r.MissingTokens),
		r.MissingPercent())
	perSource := float64(r.TotalMapped)
	if r.UniqueSources > 0 {
		perSource /= float64(r.UniqueSources)
	}
	fmt.Fprintf(&b,
		"mapped occurrences: %s onto %s distinct source ids (%.2f per id)\n",
		humanize.Comma(r.TotalMapped), humanize.Comma(int64(r.UniqueSources)),
		perSource)
	if len(r.TopMapped) > 0 {
		b.WriteString("most mapped-to source ids:\n")
		for _, stat := range r.TopMapped {
			share := 0.0
			if r.TotalMapped > 0 {
				share = 100 * float64(stat.Occurrences) / float64(r.TotalMapped)
			}
			fmt.Fprintf(&b, "  %d", stat.ID)
			if stat.Surface != "" {
				fmt.Fprintf(&b, " (%q)", stat.Surface)
			}
			fmt.Fprintf(&b, ": %s occurrences (%.2f%%), fan-in %d\n",
				humanize.Comma(stat.Occurrences), share, stat.FanIn)
		}
	}
	fmt.Fprintf(&b, "average bleu: %v\n", r.MeanBLEU)
	return b.String()
}

// EvalBLEU maps each pair's target ids through the matrix and scores the
// mapped sequence against the source sequence, ids as words. decoder is
// optional; when present the top mapped ids carry decoded surface forms.
func EvalBLEU(pairs []Pair, matrix *Matrix, weights Weights,
	decoder tokenizers.Tokenizer) (*BLEUReport, error) {
	if len(pairs) == 0 {
		return nil, errors.New("no evaluation pairs")
	}
	report := &BLEUReport{Pairs: len(pairs), MatrixSize: matrix.Len()}
	occurrences := make(map[types.Token]int64)
	fanIn := make(map[types.Token]map[types.Token]struct{})

	var totalBLEU float64
	for _, pair := range pairs {
		reference := idWords(pair.Source)
		candidate := make([]string, len(pair.Target))
		for i, targetID := range pair.Target {
			report.TargetTokens++
			sourceID, ok := matrix.Lookup(targetID)
			if !ok {
				report.MissingTokens++
				candidate[i] = unkWord
				continue
			}
			candidate[i] = strconv.FormatUint(uint64(sourceID), 10)
			occurrences[sourceID]++
			targets, ok := fanIn[sourceID]
			if !ok {
				targets = make(map[types.Token]struct{})
				fanIn[sourceID] = targets
			}
			targets[targetID] = struct{}{}
		}
		totalBLEU += sentenceBLEU(reference, candidate, weights)
	}
	report.MeanBLEU = totalBLEU / float64(len(pairs))
	report.UniqueSources = len(occurrences)
	for _, count := range occurrences {
		report.TotalMapped += count
	}
	report.TopMapped = topMapped(occurrences, fanIn, decoder, 10)
	return report, nil
}

func idWords(ids types.Tokens) []string {
	words := make([]string, len(ids))
	for i, id := range ids {
		words[i] = strconv.FormatUint(uint64(id), 10)
	}
	return words
}

func topMapped(occurrences map[types.Token]int64,
	fanIn map[types.Token]map[types.Token]struct{},
	decoder tokenizers.Tokenizer, n int) []MappedTokenStat {
	stats := make([]MappedTokenStat, 0, len(occurrences))
	for id, count := range occurrences {
		stats = append(stats, MappedTokenStat{
			ID:          id,
			Occurrences: count,
			FanIn:       len(fanIn[id]),
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Occurrences != stats[j].Occurrences {
			return stats[i].Occurrences > stats[j].Occurrences
		}
		return stats[i].ID < stats[j].ID
	})
	if len(stats) > n {
		stats = stats[:n]
	}
	if decoder != nil {
		for i := range stats {
			stats[i].Surface = decoder.Decode(types.Tokens{stats[i].ID})
		}
	}
	return stats
}

// sentenceBLEU scores one candidate against one reference with modified
// n-gram precisions and a brevity penalty. No smoothing: a zero
// precision at any weighted order zeroes the sentence score.
func sentenceBLEU(reference, candidate []string, weights Weights) float64 {
	if len(candidate) == 0 {
		return 0
	}
	var logSum float64
	for order := 1; order <= 4; order++ {
		weight := weights[order-1]
		if weight == 0 {
			continue
		}
		precision := modifiedPrecision(reference, candidate, order)
		if precision == 0 {
			return 0
		}
		logSum += weight * math.Log(precision)
	}
	return brevityPenalty(len(reference), len(candidate)) * math.Exp(logSum)
}

func countNGrams(words []string, order int) map[string]int64 {
	counts := make(map[string]int64)
	for i := 0; i+order <= len(words); i++ {
		counts[strings.Join(words[i:i+order], " ")]++
	}
	return counts
}

// modifiedPrecision clips candidate n-gram counts by their reference
// counts, per the standard BLEU definition.
func modifiedPrecision(reference, candidate []string, order int) float64 {
	candidateCounts := countNGrams(candidate, order)
	if len(candidateCounts) == 0 {
		return 0
	}
	referenceCounts := countNGrams(reference, order)
	var clipped, total int64
	for gram, count := range candidateCounts {
		total += count
		limit := referenceCounts[gram]
		if count < limit {
			limit = count
		}
		clipped += limit
	}
	return float64(clipped) / float64(total)
}

func brevityPenalty(referenceLen, candidateLen int) float64 {
	if candidateLen >= referenceLen {
		return 1
	}
	if candidateLen == 0 {
		return 0
	}
	return math.Exp(1 - float64(referenceLen)/float64(candidateLen))
}
