package tokalign

import (
	"bufio"
	"context"
	"io"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/sassyYoda/MedicalTokAlign/corpus"
	"github.com/sassyYoda/MedicalTokAlign/tokenizers"
)

// BuildPairs encodes every document with both tokenizers and writes one
// tab-separated pair line per document, in input order. workers <= 0
// uses NumCPU+1. Returns the number of pairs written.
func BuildPairs(ctx context.Context, docs corpus.DocumentIterator,
	sourceID, targetID string, out io.Writer, workers int) (int64, error) {
	if workers <= 0 {
		workers = runtime.NumCPU() + 1
	}
	// Resolve both tokenizers once so the workers construct from local
	// files instead of racing over downloads.
	sourceDir, err := tokenizers.ResolveDir(sourceID)
	if err != nil {
		return 0, err
	}
	targetDir, err := tokenizers.ResolveDir(targetID)
	if err != nil {
		return 0, err
	}

	type job struct {
		seq  int64
		text string
	}
	type encoded struct {
		seq  int64
		line string
	}
	jobs := make(chan job, workers)
	results := make(chan encoded, workers)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer close(jobs)
		for seq := int64(0); ; seq++ {
			text, err := docs()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			select {
			case jobs <- job{seq: seq, text: text}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	var encoders sync.WaitGroup
	encoders.Add(workers)
	for i := 0; i < workers; i++ {
		group.Go(func() error {
			defer encoders.Done()
			sourceTok, err := tokenizers.FromPretrained(sourceDir)
			if err != nil {
				return err
			}
			targetTok, err := tokenizers.FromPretrained(targetDir)
			if err != nil {
				return err
			}
			for j := range jobs {
				line := sourceTok.Encode(j.text).String() + "\t" +
					targetTok.Encode(j.text).String() + "\n"
				select {
				case results <- encoded{seq: j.seq, line: line}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		encoders.Wait()
		close(results)
	}()

	var written int64
	group.Go(func() error {
		writer := bufio.NewWriterSize(out, 1<<20)
		pending := make(map[int64]string)
		next := int64(0)
		for r := range results {
			pending[r.seq] = r.line
			for {
				line, ok := pending[next]
				if !ok {
					break
				}
				if _, err := writer.WriteString(line); err != nil {
					return errors.Wrap(err, "writing pairs")
				}
				delete(pending, next)
				next++
				written++
			}
		}
		return errors.Wrap(writer.Flush(), "flushing pairs")
	})

	if err := group.Wait(); err != nil {
		return written, err
	}
	return written, nil
}
