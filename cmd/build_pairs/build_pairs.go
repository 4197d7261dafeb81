package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/dustin/go-humanize"

	tokalign "github.com/sassyYoda/MedicalTokAlign"
	"github.com/sassyYoda/MedicalTokAlign/corpus"
)

func main() {
	inPath := flag.String("in", "", "JSONL corpus to encode")
	outPath := flag.String("out", "", "TSV pair file to write")
	source := flag.String("source", "EleutherAI/pythia-1b",
		"source tokenizer id or local directory")
	target := flag.String("target", "google/gemma-2b",
		"target tokenizer id or local directory")
	workers := flag.Int("workers", 0, "encoder goroutines, 0 means NumCPU+1")
	limit := flag.Int64("limit", 0,
		"encode at most this many documents, 0 is no cap")
	flag.Parse()

	if *inPath == "" || *outPath == "" {
		flag.Usage()
		log.Fatal("Must provide -in and -out")
	}

	docs, err := corpus.ReadJSONL(*inPath)
	if err != nil {
		log.Fatal(err)
	}
	out, err := corpus.OpenOutput(*outPath)
	if err != nil {
		log.Fatal(err)
	}
	begin := time.Now()
	written, err := tokalign.BuildPairs(context.Background(),
		corpus.Limit(docs, *limit), *source, *target, out, *workers)
	if err != nil {
		out.Close()
		log.Fatalf("pair build failed: %v", err)
	}
	if err := out.Close(); err != nil {
		log.Fatalf("closing %s: %v", *outPath, err)
	}
	duration := time.Since(begin).Seconds()
	log.Printf("%d pairs in %0.2fs, %0.2f pairs/s", written, duration,
		float64(written)/duration)
	fmt.Printf("Wrote %s pairs to %s\n", humanize.Comma(written), *outPath)
}
