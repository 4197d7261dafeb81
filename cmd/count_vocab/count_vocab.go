package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/sassyYoda/MedicalTokAlign/tokenizers"
)

func main() {
	tokenizerID := flag.String("tokenizer", "google/gemma-2b",
		"tokenizer id or local directory")
	flag.Parse()

	size, err := tokenizers.VocabSizeOf(*tokenizerID)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(size)
}
