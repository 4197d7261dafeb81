package main

import (
	"flag"
	"fmt"
	"log"

	tokalign "github.com/sassyYoda/MedicalTokAlign"
	"github.com/sassyYoda/MedicalTokAlign/embedding"
	"github.com/sassyYoda/MedicalTokAlign/tokenizers"
)

func main() {
	evalType := flag.String("e", "bleu",
		"evaluation type, bleu or similarity")
	matrixPath := flag.String("m", "", "alignment matrix JSON")
	pairsPath := flag.String("f", "", "evaluation pair TSV")
	tokenizerID := flag.String("t", "EleutherAI/pythia-1b",
		"source tokenizer, decodes id surfaces")
	weightsArg := flag.String("w", "1,0,0,0", "BLEU weights for orders 1-4")
	vectorsPath := flag.String("vectors", "",
		"word vector text file, required for similarity")
	flag.Parse()

	if *matrixPath == "" || *pairsPath == "" {
		flag.Usage()
		log.Fatal("Must provide -m and -f")
	}

	matrix, err := tokalign.LoadMatrix(*matrixPath)
	if err != nil {
		log.Fatal(err)
	}
	pairs, err := tokalign.ReadPairs(*pairsPath)
	if err != nil {
		log.Fatal(err)
	}
	decoder, err := tokenizers.FromPretrained(*tokenizerID)
	if err != nil {
		log.Fatalf("cannot load tokenizer %s: %v", *tokenizerID, err)
	}

	switch *evalType {
	case "bleu":
		weights, err := tokalign.ParseWeights(*weightsArg)
		if err != nil {
			log.Fatal(err)
		}
		report, err := tokalign.EvalBLEU(pairs, matrix, weights, decoder)
		if err != nil {
			log.Fatalf("evaluation failed: %v", err)
		}
		fmt.Print(report.Summary())
	case "similarity":
		if *vectorsPath == "" {
			flag.Usage()
			log.Fatal("Must provide -vectors for similarity")
		}
		vectors, err := embedding.Load(*vectorsPath)
		if err != nil {
			log.Fatal(err)
		}
		score, err := tokalign.EvalSimilarity(pairs, matrix, vectors, decoder)
		if err != nil {
			log.Fatalf("evaluation failed: %v", err)
		}
		fmt.Printf("average similarity: %v\n", score)
	default:
		log.Fatalf("unknown evaluation type %q", *evalType)
	}
}
