// Package cooccur shuffles the binary co-occurrence files consumed by
// GloVe-style embedding trainers. Files are flat sequences of fixed-width
// records with no header; shuffling rewrites the same multiset of records
// in a uniformly random order.
package cooccur

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	progressbar "github.com/schollz/progressbar/v3"
)

// DefaultMemoryBudget caps a single read call at 4096 MB unless
// overridden.
const DefaultMemoryBudget = 4096 << 20

// ErrTruncated reports an input whose size is not a multiple of
// RecordSize.
var ErrTruncated = errors.New("file size is not a multiple of the record size")

// Shuffler rewrites a co-occurrence file with its records in a uniformly
// random order. The memory budget bounds how much raw file data a single
// read call may return; the decoded record collection itself always holds
// every record in the file, so peak memory remains proportional to the
// record count regardless of the budget.
type Shuffler struct {
	// MemoryBudget is the soft ceiling, in bytes, on one read call.
	MemoryBudget int64
	// Verbosity: 0 silent, 1 summary lines, 2 adds progress output.
	Verbosity int
	// Strict rejects truncated inputs instead of dropping the partial
	// trailing record.
	Strict bool
	// Rand supplies the permutation source; nil seeds from the clock.
	Rand *rand.Rand
}

// NewShuffler returns a Shuffler with the default memory budget and full
// verbosity.
func NewShuffler() Shuffler {
	return Shuffler{
		MemoryBudget: DefaultMemoryBudget,
		Verbosity:    2,
	}
}

// Shuffle reads every complete record from inputPath, applies an unbiased
// Fisher-Yates permutation, and writes the result to outputPath,
// truncating it if it exists. The input file is never modified. On error
// a partially written output is left in place; callers must not assume
// atomicity.
func (s Shuffler) Shuffle(inputPath, outputPath string) error {
	start := time.Now()

	in, err := os.Open(inputPath)
	if err != nil {
		return errors.Wrapf(err, "open %s", inputPath)
	}
	defer in.Close()

	fileSize, err := in.Seek(0, io.SeekEnd)
	if err != nil {
		return errors.Wrapf(err, "size %s", inputPath)
	}
	if _, err = in.Seek(0, io.SeekStart); err != nil {
		return errors.Wrapf(err, "rewind %s", inputPath)
	}

	if extra := fileSize % RecordSize; extra != 0 {
		if s.Strict {
			return errors.Wrapf(ErrTruncated,
				"%s: %d trailing bytes", inputPath, extra)
		}
		log.Printf("WARNING: %s: size %d is not a multiple of %d, "+
			"dropping %d trailing bytes", inputPath, fileSize,
			RecordSize, extra)
	}
	totalRecords := fileSize / RecordSize

	if s.Verbosity >= 1 {
		fmt.Printf("shuffling %s records (%s) from %s\n",
			humanize.Comma(totalRecords),
			humanize.Bytes(uint64(fileSize)), inputPath)
	}

	records, err := s.readRecords(in, fileSize)
	if err != nil {
		return err
	}

	rng := s.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	rng.Shuffle(len(records), func(i, j int) {
		records[i], records[j] = records[j], records[i]
	})

	var bar *progressbar.ProgressBar
	if s.Verbosity >= 2 {
		bar = recordsBar(int64(len(records)), "writing")
	}
	if err := writeRecords(outputPath, records, bar); err != nil {
		return err
	}

	if s.Verbosity >= 1 {
		duration := time.Since(start).Seconds()
		fmt.Printf("wrote %d records to %s in %0.2fs, %0.2f records/s\n",
			len(records), outputPath, duration,
			float64(len(records))/duration)
	}
	return nil
}

// readRecords decodes the entire file into memory. Reads never exceed the
// memory budget and are aligned down to a record boundary, so no record
// straddles a chunk; residue bytes shorter than a record are dropped.
func (s Shuffler) readRecords(in *os.File, fileSize int64) ([]Record, error) {
	budget := s.MemoryBudget
	if budget <= 0 {
		budget = DefaultMemoryBudget
	}
	chunkSize := budget - budget%RecordSize
	if chunkSize < RecordSize {
		chunkSize = RecordSize
	}

	totalRecords := fileSize / RecordSize
	records := make([]Record, 0, totalRecords)

	var bar *progressbar.ProgressBar
	if s.Verbosity >= 2 {
		bar = recordsBar(totalRecords, "decoding")
	}

	if fileSize <= budget {
		buf := make([]byte, fileSize)
		if _, err := io.ReadFull(in, buf); err != nil {
			return nil, errors.Wrap(err, "read input")
		}
		for off := 0; off+RecordSize <= len(buf); off += RecordSize {
			records = append(records, decodeRecord(buf[off:off+RecordSize]))
		}
		finishBar(bar, int64(len(records)))
		return records, nil
	}

	buf := make([]byte, chunkSize)
	var consumed int64
	for consumed < fileSize {
		want := chunkSize
		if remaining := fileSize - consumed; remaining < want {
			want = remaining
		}
		n, err := io.ReadFull(in, buf[:want])
		if err != nil {
			return nil, errors.Wrapf(err, "read input at byte %d", consumed)
		}
		chunk := buf[:n]
		decoded := 0
		for off := 0; off+RecordSize <= len(chunk); off += RecordSize {
			records = append(records, decodeRecord(chunk[off:off+RecordSize]))
			decoded++
		}
		consumed += int64(n)
		if bar != nil {
			bar.Add64(int64(decoded))
		}
	}
	finishBar(bar, 0)
	return records, nil
}

// writeRecords streams records to path through a buffered writer. A
// write failure leaves the partial output behind.
func writeRecords(path string, records []Record,
	bar *progressbar.ProgressBar) error {
	out, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	w := bufio.NewWriterSize(out, 1<<18)
	var scratch [RecordSize]byte
	for idx := range records {
		encodeRecord(scratch[:], records[idx])
		if _, err := w.Write(scratch[:]); err != nil {
			out.Close()
			return errors.Wrapf(err, "write %s", path)
		}
		if bar != nil && (idx+1)%(1<<20) == 0 {
			bar.Add64(1 << 20)
		}
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	if err := out.Close(); err != nil {
		return errors.Wrapf(err, "close %s", path)
	}
	finishBar(bar, 0)
	return nil
}

func recordsBar(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stdout),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("rec"),
		progressbar.OptionThrottle(250*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func finishBar(bar *progressbar.ProgressBar, add int64) {
	if bar == nil {
		return
	}
	if add > 0 {
		bar.Add64(add)
	}
	bar.Finish()
}
