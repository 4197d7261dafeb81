package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"

	"github.com/sassyYoda/MedicalTokAlign/cooccur"
)

func main() {
	memoryMB := flag.Float64("memory", 4096,
		"soft ceiling in megabytes on a single read of the input file")
	verbose := flag.Int("verbose", 2,
		"verbosity, 0 (silent) to 2 (detailed)")
	seed := flag.Int64("seed", 0,
		"shuffle seed, 0 seeds from the clock")
	strict := flag.Bool("strict", false,
		"fail on inputs whose size is not a multiple of the record size")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(),
			"Usage: %s [flags] input_file output_file\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(1)
	}
	inputPath := flag.Arg(0)
	outputPath := flag.Arg(1)

	shuffler := cooccur.NewShuffler()
	shuffler.MemoryBudget = int64(*memoryMB * 1024 * 1024)
	shuffler.Verbosity = *verbose
	shuffler.Strict = *strict
	if *seed != 0 {
		shuffler.Rand = rand.New(rand.NewSource(*seed))
	}

	if err := shuffler.Shuffle(inputPath, outputPath); err != nil {
		log.Fatalf("shuffle failed: %v", err)
	}
}
