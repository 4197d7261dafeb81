package tokalign

import (
	"bytes"
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/sassyYoda/MedicalTokAlign/types"
)

func buildFixtureDir(vocab string) (string, func()) {
	dir, err := os.MkdirTemp("", "pairs")
	if err != nil {
		log.Fatal(err)
	}
	files := map[string]string{
		"vocab.json": vocab,
		"merges.txt": "#version: 0.2\n",
	}
	for name, contents := range files {
		err = os.WriteFile(filepath.Join(dir, name), []byte(contents), 0644)
		if err != nil {
			log.Fatal(err)
		}
	}
	return dir, func() { os.RemoveAll(dir) }
}

func sliceDocs(texts []string) func() (string, error) {
	next := 0
	return func() (string, error) {
		if next >= len(texts) {
			return "", io.EOF
		}
		text := texts[next]
		next++
		return text, nil
	}
}

func TestBuildPairsOrderAndFormat(t *testing.T) {
	srcDir, cleanSrc := buildFixtureDir(
		`{"a":0,"b":1,"c":2,"a</w>":3,"b</w>":4,"c</w>":5,"<unk>":6}`)
	defer cleanSrc()
	tgtDir, cleanTgt := buildFixtureDir(
		`{"a":100,"b":101,"c":102,"a</w>":103,"b</w>":104,"c</w>":105,"<unk>":106}`)
	defer cleanTgt()

	base := []string{"ab", "ba", "abc"}
	texts := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		texts = append(texts, base[i%3])
	}

	var out bytes.Buffer
	written, err := BuildPairs(
		context.Background(), sliceDocs(texts), srcDir, tgtDir, &out, 3)
	assert.NoError(t, err)
	assert.Equal(t, int64(12), written)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	assert.Len(t, lines, 12)
	expected := []string{
		"0 4\t100 104",
		"1 3\t101 103",
		"0 1 5\t100 101 105",
	}
	for i, line := range lines {
		assert.Equal(t, expected[i%3], line, "line %d", i)
	}

	// The produced file reads back as evaluation pairs.
	pairsPath, cleanup := tempFile("pairs.tsv", out.String())
	defer cleanup()
	pairs, err := ReadPairs(pairsPath)
	assert.NoError(t, err)
	assert.Len(t, pairs, 12)
	assert.Equal(t, types.Tokens{0, 4}, pairs[0].Source)
	assert.Equal(t, types.Tokens{100, 104}, pairs[0].Target)
}

func TestBuildPairsPropagatesReadError(t *testing.T) {
	srcDir, cleanSrc := buildFixtureDir(
		`{"a":0,"b":1,"a</w>":2,"b</w>":3,"<unk>":4}`)
	defer cleanSrc()
	tgtDir, cleanTgt := buildFixtureDir(
		`{"a":10,"b":11,"a</w>":12,"b</w>":13,"<unk>":14}`)
	defer cleanTgt()

	calls := 0
	docs := func() (string, error) {
		calls++
		if calls > 2 {
			return "", errors.New("broken stream")
		}
		return "ab", nil
	}

	var out bytes.Buffer
	_, err := BuildPairs(context.Background(), docs, srcDir, tgtDir, &out, 2)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "broken stream")
}
