package cooccur

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/stat/distuv"
)

func makeRecords(n int) []Record {
	records := make([]Record, n)
	for i := range records {
		records[i] = Record{
			Word1: int32(i + 1),
			Word2: int32(2*i + 1),
			Value: float32(i) + 0.5,
		}
	}
	return records
}

func sortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Word1 != records[j].Word1 {
			return records[i].Word1 < records[j].Word1
		}
		if records[i].Word2 != records[j].Word2 {
			return records[i].Word2 < records[j].Word2
		}
		return records[i].Value < records[j].Value
	})
}

func sortedCopy(records []Record) []Record {
	dup := append([]Record(nil), records...)
	sortRecords(dup)
	return dup
}

func writeFixture(dir string, records []Record) string {
	path := filepath.Join(dir, "cooccurrence.bin")
	if err := WriteFile(path, records); err != nil {
		log.Fatal(err)
	}
	return path
}

func getFileSize(path string) int64 {
	fileInfo, err := os.Stat(path)
	if err != nil {
		log.Fatal(err)
	}
	return fileInfo.Size()
}

func quietShuffler(seed int64) Shuffler {
	shuffler := NewShuffler()
	shuffler.Verbosity = 0
	shuffler.Rand = rand.New(rand.NewSource(seed))
	return shuffler
}

func TestShufflePermutation(t *testing.T) {
	dir, err := os.MkdirTemp("", "cooccur")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	input := makeRecords(1000)
	inPath := writeFixture(dir, input)
	outPath := filepath.Join(dir, "shuffled.bin")

	shuffler := quietShuffler(42)
	assert.NoError(t, shuffler.Shuffle(inPath, outPath))

	output, err := ReadFile(outPath)
	assert.NoError(t, err)
	assert.Equal(t, len(input), len(output))
	assert.Equal(t, int64(len(input)*RecordSize), getFileSize(outPath))
	assert.Equal(t, sortedCopy(input), sortedCopy(output))
	assert.NotEqual(t, input, output)
	// input untouched
	assert.Equal(t, int64(len(input)*RecordSize), getFileSize(inPath))
}

func TestShuffleChunkBudgets(t *testing.T) {
	dir, err := os.MkdirTemp("", "cooccur")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	input := makeRecords(257)
	inPath := writeFixture(dir, input)
	fileSize := int64(len(input) * RecordSize)
	expected := sortedCopy(input)

	budgetTests := []struct {
		name   string
		budget int64
	}{
		{"tiny", 5},
		{"one record", RecordSize},
		{"unaligned", 100},
		{"just under", fileSize - 1},
		{"exact", fileSize},
		{"large", 1 << 20},
	}
	for testIdx := range budgetTests {
		test := budgetTests[testIdx]
		outPath := filepath.Join(dir, fmt.Sprintf("out_%d.bin", testIdx))
		shuffler := quietShuffler(int64(testIdx) + 7)
		shuffler.MemoryBudget = test.budget
		if err := shuffler.Shuffle(inPath, outPath); err != nil {
			t.Fatalf("%s: %v", test.name, err)
		}
		output, err := ReadFile(outPath)
		assert.NoError(t, err)
		assert.Equal(t, expected, sortedCopy(output), test.name)
	}
}

func TestShuffleTrailingBytes(t *testing.T) {
	dir, err := os.MkdirTemp("", "cooccur")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	input := makeRecords(3)
	inPath := writeFixture(dir, input)
	// 3 complete records plus one stray byte, 37 bytes total
	file, err := os.OpenFile(inPath, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatal(err)
	}
	if _, err := file.Write([]byte{0xFF}); err != nil {
		log.Fatal(err)
	}
	file.Close()
	assert.Equal(t, int64(37), getFileSize(inPath))

	outPath := filepath.Join(dir, "lenient.bin")
	shuffler := quietShuffler(3)
	assert.NoError(t, shuffler.Shuffle(inPath, outPath))
	assert.Equal(t, int64(36), getFileSize(outPath))
	output, err := ReadFile(outPath)
	assert.NoError(t, err)
	assert.Equal(t, sortedCopy(input), sortedCopy(output))

	strictOut := filepath.Join(dir, "strict.bin")
	strict := quietShuffler(3)
	strict.Strict = true
	err = strict.Shuffle(inPath, strictOut)
	assert.ErrorIs(t, err, ErrTruncated)
	_, statErr := os.Stat(strictOut)
	assert.True(t, os.IsNotExist(statErr))
}

func TestShuffleConcrete(t *testing.T) {
	dir, err := os.MkdirTemp("", "cooccur")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	input := []Record{
		{Word1: 1, Word2: 2, Value: 0.5},
		{Word1: 3, Word2: 4, Value: 1.5},
		{Word1: 5, Word2: 6, Value: 2.5},
	}
	inPath := writeFixture(dir, input)
	assert.Equal(t, int64(36), getFileSize(inPath))
	outPath := filepath.Join(dir, "shuffled.bin")

	orderings := make(map[string]bool)
	for seed := int64(1); seed <= 20; seed++ {
		shuffler := quietShuffler(seed)
		assert.NoError(t, shuffler.Shuffle(inPath, outPath))
		output, err := ReadFile(outPath)
		assert.NoError(t, err)
		assert.Equal(t, int64(36), getFileSize(outPath))
		assert.Equal(t, sortedCopy(input), sortedCopy(output))
		orderings[fmt.Sprint(output)] = true
	}
	// 20 seeded runs of 3 records settling on one ordering would mean
	// the permutation source is not being used at all
	assert.True(t, len(orderings) >= 2,
		"expected different seeds to produce different orderings")
}

func TestShuffleEmptyInput(t *testing.T) {
	dir, err := os.MkdirTemp("", "cooccur")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	inPath := writeFixture(dir, nil)
	outPath := filepath.Join(dir, "shuffled.bin")
	shuffler := quietShuffler(1)
	assert.NoError(t, shuffler.Shuffle(inPath, outPath))
	assert.Equal(t, int64(0), getFileSize(outPath))
}

func TestShuffleMissingInput(t *testing.T) {
	dir, err := os.MkdirTemp("", "cooccur")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "absent.bin")
	outPath := filepath.Join(dir, "shuffled.bin")
	shuffler := quietShuffler(1)
	err = shuffler.Shuffle(inPath, outPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "absent.bin")
	_, statErr := os.Stat(outPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestShuffleUniformity(t *testing.T) {
	const (
		runs = 12000
		n    = 4
	)
	dir, err := os.MkdirTemp("", "cooccur")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	inPath := writeFixture(dir, makeRecords(n))
	outPath := filepath.Join(dir, "shuffled.bin")

	shuffler := quietShuffler(1337)
	var counts [n][n]int
	for run := 0; run < runs; run++ {
		if err := shuffler.Shuffle(inPath, outPath); err != nil {
			log.Fatal(err)
		}
		output, err := ReadFile(outPath)
		if err != nil {
			log.Fatal(err)
		}
		for pos := range output {
			counts[pos][output[pos].Word1-1]++
		}
	}

	expected := float64(runs) / n
	chi2 := 0.0
	for pos := 0; pos < n; pos++ {
		for rec := 0; rec < n; rec++ {
			diff := float64(counts[pos][rec]) - expected
			chi2 += diff * diff / expected
		}
	}
	// doubly stochastic position-by-record table has (n-1)^2 degrees of
	// freedom; the threshold is generous so only a genuinely biased
	// shuffle trips it
	critical := distuv.ChiSquared{K: (n - 1) * (n - 1)}.Quantile(1 - 1e-6)
	log.Printf("chi-square %0.2f over %d runs, critical %0.2f",
		chi2, runs, critical)
	if chi2 > critical {
		log.Printf(
			"position frequencies deviate from uniform: %f > %f",
			chi2, critical,
		)
		t.Fail()
	}
}

func BenchmarkShuffle(b *testing.B) {
	dir, err := os.MkdirTemp("", "cooccur")
	if err != nil {
		b.Fatal(err)
	}
	defer os.RemoveAll(dir)

	records := makeRecords(1 << 17)
	inPath := filepath.Join(dir, "bench.bin")
	if err := WriteFile(inPath, records); err != nil {
		b.Fatal(err)
	}
	outPath := filepath.Join(dir, "bench_shuffled.bin")
	shuffler := quietShuffler(1)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := shuffler.Shuffle(inPath, outPath); err != nil {
			b.Fatal(err)
		}
	}
	b.StopTimer()
	start := time.Now()
	if err := shuffler.Shuffle(inPath, outPath); err != nil {
		b.Fatal(err)
	}
	duration := time.Since(start)
	b.Logf("%v records shuffled in %v, %0.2f records/sec",
		len(records), duration,
		float64(len(records))/duration.Seconds())
}
