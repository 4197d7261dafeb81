package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/sassyYoda/MedicalTokAlign/tokenizers"
)

func main() {
	tokenizerID := flag.String("tokenizer", "",
		"tokenizer id to fetch from the hub")
	destDir := flag.String("dir", "",
		"destination directory, empty uses the shared cache")
	flag.Parse()

	if *tokenizerID == "" {
		flag.Usage()
		log.Fatal("Must provide -tokenizer")
	}

	dir := *destDir
	if dir == "" {
		resolved, err := tokenizers.ResolveDir(*tokenizerID)
		if err != nil {
			log.Fatalf("fetch failed: %v", err)
		}
		dir = resolved
	} else if err := tokenizers.FetchInto(*tokenizerID, dir); err != nil {
		log.Fatalf("fetch failed: %v", err)
	}
	fmt.Printf("Fetched %s into %s\n", *tokenizerID, dir)
}
