package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/sassyYoda/MedicalTokAlign/corpus"
	"github.com/sassyYoda/MedicalTokAlign/tokenizers"
)

func main() {
	outPath := flag.String("out", "",
		"output JSONL path, a .gz suffix enables compression")
	tokenizerID := flag.String("tokenizer", "EleutherAI/pythia-1b",
		"tokenizer used for the token budget")
	targetTokens := flag.Int64("target-tokens", corpus.DefaultTargetTokens,
		"stop once this many tokens are kept")
	minChars := flag.Int("min-chars", corpus.DefaultMinChars,
		"drop abstracts shorter than this many characters")
	pubgetDir := flag.String("pubget-dir", "",
		"pubget data directory to read abstracts from")
	query := flag.String("query", corpus.DefaultQuery,
		"PubMed query passed to pubget")
	runPubget := flag.Bool("run-pubget", false,
		"invoke pubget before reading the extraction")
	dataset := flag.String("dataset", "",
		"hosted dataset id to stream instead of pubget")
	config := flag.String("config", "default", "hosted dataset config")
	split := flag.String("split", "train", "hosted dataset split")
	limit := flag.Int64("limit", 0,
		"examine at most this many documents, 0 is no cap")
	flag.Parse()

	if *outPath == "" {
		flag.Usage()
		log.Fatal("Must provide -out")
	}
	if (*pubgetDir == "") == (*dataset == "") {
		flag.Usage()
		log.Fatal("Must provide exactly one of -pubget-dir or -dataset")
	}

	ctx := context.Background()
	var docs corpus.DocumentIterator
	if *pubgetDir != "" {
		if *runPubget {
			if pgErr := corpus.RunPubget(ctx, *pubgetDir, *query); pgErr != nil {
				log.Fatalf("pubget failed: %v", pgErr)
			}
		}
		csvPath, findErr := corpus.FindExtractedCSV(*pubgetDir)
		if findErr != nil {
			log.Fatalf("no extraction under %s: %v", *pubgetDir, findErr)
		}
		var csvErr error
		docs, csvErr = corpus.ReadPubgetCSV(csvPath)
		if csvErr != nil {
			log.Fatalf("cannot read %s: %v", csvPath, csvErr)
		}
	} else {
		source := corpus.NewDatasetSource(*dataset)
		source.Config = *config
		source.Split = *split
		docs = source.Rows(ctx)
	}

	tok, err := tokenizers.FromPretrained(*tokenizerID)
	if err != nil {
		log.Fatalf("cannot load tokenizer %s: %v", *tokenizerID, err)
	}
	out, err := corpus.OpenOutput(*outPath)
	if err != nil {
		log.Fatal(err)
	}

	writer := corpus.NewWriter(out, tok)
	writer.TargetTokens = *targetTokens
	writer.Filter.MinChars = *minChars
	bar := progressbar.Default(*targetTokens, "tokens")
	writer.Progress = func(stats corpus.Stats) {
		_ = bar.Set64(stats.Tokens)
	}

	begin := time.Now()
	if err := corpus.Fill(writer, docs, *limit); err != nil {
		out.Close()
		log.Fatalf("corpus build failed: %v", err)
	}
	if err := out.Close(); err != nil {
		log.Fatalf("closing %s: %v", *outPath, err)
	}
	_ = bar.Finish()
	duration := time.Since(begin).Seconds()
	stats := writer.Stats()
	log.Printf("%d tokens in %0.2fs, %0.2f tokens/s", stats.Tokens, duration,
		float64(stats.Tokens)/duration)
	fmt.Println(stats.Summary())
}
