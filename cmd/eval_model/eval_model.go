package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/sassyYoda/MedicalTokAlign/corpus"
	"github.com/sassyYoda/MedicalTokAlign/lm"
)

type promptList []string

func (p *promptList) String() string { return strings.Join(*p, "; ") }

func (p *promptList) Set(value string) error {
	*p = append(*p, value)
	return nil
}

func main() {
	var prompts promptList
	model := flag.String("model", "", "model label for the report")
	server := flag.String("server", lm.DefaultServer,
		"inference server base URL")
	dataset := flag.String("dataset", "",
		"JSONL corpus for perplexity evaluation")
	numSamples := flag.Int("num-samples", lm.DefaultNumSamples,
		"documents to score for perplexity")
	maxLength := flag.Int("max-length", lm.DefaultMaxLength,
		"token truncation length when scoring")
	promptsFile := flag.String("prompts-file", "",
		"JSON file holding an array of prompts")
	flag.Var(&prompts, "prompt", "literal generation prompt, repeatable")
	maxNewTokens := flag.Int("max-new-tokens", 100,
		"tokens to generate per prompt")
	temperature := flag.Float64("temperature", 0.7, "sampling temperature")
	topP := flag.Float64("top-p", 0.9, "nucleus sampling mass")
	flag.Parse()

	if *model == "" {
		flag.Usage()
		log.Fatal("Must provide -model")
	}

	ctx := context.Background()
	client := lm.NewClient(*server)
	rule := strings.Repeat("=", 60)

	if *dataset != "" {
		docs, err := corpus.ReadJSONL(*dataset)
		if err != nil {
			log.Fatal(err)
		}
		ppl, err := lm.Perplexity(ctx, client, docs, *numSamples, *maxLength)
		if err != nil {
			log.Fatalf("perplexity evaluation failed: %v", err)
		}
		fmt.Println(rule)
		fmt.Printf("Evaluation Results: %s\n", *model)
		fmt.Println(rule)
		fmt.Printf("Average Loss: %.4f\n", math.Log(ppl))
		fmt.Printf("Perplexity: %.2f\n", ppl)
		fmt.Println(rule)
		fmt.Println()
	}

	if *promptsFile != "" {
		loaded, err := lm.LoadPrompts(*promptsFile)
		if err != nil {
			log.Fatal(err)
		}
		prompts = loaded
	}
	if len(prompts) == 0 {
		prompts = lm.DefaultPrompts
	}

	opts := lm.GenOpts{
		MaxNewTokens: *maxNewTokens,
		Temperature:  *temperature,
		TopP:         *topP,
	}
	samples, err := lm.GenerateSamples(ctx, client, prompts, opts)
	if err != nil {
		log.Fatalf("generation failed: %v", err)
	}
	fmt.Println(rule)
	fmt.Println("Text Generation Samples:")
	fmt.Println(rule)
	fmt.Println()
	for i, sample := range samples {
		fmt.Printf("Prompt %d: %s\n", i+1, sample.Prompt)
		fmt.Printf("Generated: %s\n", sample.Text)
		fmt.Println(strings.Repeat("-", 60))
		fmt.Println()
	}
}
