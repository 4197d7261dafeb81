package lm

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sassyYoda/MedicalTokAlign/corpus"
)

const fragmentCompletion = " elevated troponin levels and ST elevation" +
	" were observed on admission. And then"

type stub struct {
	server    *httptest.Server
	scores    map[string]Score
	lastScore scoreRequest
	lastGen   generateRequest
}

func newStub(scores map[string]Score) *stub {
	s := &stub{scores: scores}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/score", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&s.lastScore); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		score, ok := s.scores[s.lastScore.Text]
		if !ok {
			http.Error(w, "cannot score", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(score)
	})
	mux.HandleFunc("/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&s.lastGen); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(generateResponse{
			Text: s.lastGen.Prompt + fragmentCompletion,
		})
	})
	s.server = httptest.NewServer(mux)
	return s
}

func TestClientScore(t *testing.T) {
	s := newStub(map[string]Score{"alpha": {NLLSum: 2, TokenCount: 2}})
	defer s.server.Close()

	client := NewClient(s.server.URL)
	score, err := client.Score(context.Background(), "alpha", 512)
	assert.NoError(t, err)
	assert.Equal(t, Score{NLLSum: 2, TokenCount: 2}, score)
	assert.Equal(t, 512, s.lastScore.MaxTokens)
}

func TestClientSurfacesErrorBody(t *testing.T) {
	s := newStub(nil)
	defer s.server.Close()

	client := NewClient(s.server.URL)
	_, err := client.Score(context.Background(), "anything", 512)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cannot score")
}

func TestPerplexity(t *testing.T) {
	s := newStub(map[string]Score{
		"alpha": {NLLSum: 2, TokenCount: 2},
		"beta":  {NLLSum: 4, TokenCount: 2},
	})
	defer s.server.Close()

	// The unscoreable middle document is skipped, not fatal.
	docs := sliceDocs([]string{"alpha", "bad", "beta"})
	ppl, err := Perplexity(
		context.Background(), NewClient(s.server.URL), docs, 10, 512)
	assert.NoError(t, err)
	assert.InDelta(t, math.Exp(1.5), ppl, 1e-9)
}

func TestPerplexityAllFailed(t *testing.T) {
	s := newStub(nil)
	defer s.server.Close()

	docs := sliceDocs([]string{"bad", "worse"})
	_, err := Perplexity(
		context.Background(), NewClient(s.server.URL), docs, 10, 512)
	assert.Error(t, err)
}

func TestPerplexityHonorsSampleCap(t *testing.T) {
	s := newStub(map[string]Score{"alpha": {NLLSum: 1, TokenCount: 1}})
	defer s.server.Close()

	served := 0
	docs := corpus.DocumentIterator(func() (string, error) {
		served++
		return "alpha", nil
	})
	ppl, err := Perplexity(
		context.Background(), NewClient(s.server.URL), docs, 3, 512)
	assert.NoError(t, err)
	assert.InDelta(t, math.Exp(1), ppl, 1e-9)
	assert.Equal(t, 3, served)
}

func TestGenerateSamples(t *testing.T) {
	s := newStub(nil)
	defer s.server.Close()

	prompts := []string{"The patient presented with"}
	samples, err := GenerateSamples(
		context.Background(), NewClient(s.server.URL), prompts,
		DefaultGenOpts())
	assert.NoError(t, err)
	assert.Len(t, samples, 1)
	assert.Equal(t, prompts[0], samples[0].Prompt)
	assert.Equal(t,
		"elevated troponin levels and ST elevation were observed on admission.",
		samples[0].Text)

	assert.Equal(t, 100, s.lastGen.MaxNewTokens)
	assert.InDelta(t, 0.7, s.lastGen.Temperature, 1e-9)
	assert.InDelta(t, 0.9, s.lastGen.TopP, 1e-9)
}

func TestTrimIncomplete(t *testing.T) {
	complete := "Aspirin lowers fever."
	assert.Equal(t, complete, TrimIncomplete(complete))
	assert.Equal(t, "", TrimIncomplete(""))

	// A lone unterminated sentence has nothing safe to cut.
	fragment := "Elevated troponin without"
	assert.Equal(t, fragment, TrimIncomplete(fragment))

	// Cutting the fragment would discard most of the text.
	dominant := "The assay was repeated. Subsequent measurements of the"
	assert.Equal(t, dominant, TrimIncomplete(dominant))

	trimmable := "Elevated troponin levels and ST elevation were" +
		" observed on admission. And then"
	assert.Equal(t,
		"Elevated troponin levels and ST elevation were observed on admission.",
		TrimIncomplete(trimmable))
}

func TestLoadPrompts(t *testing.T) {
	dir, err := os.MkdirTemp("", "lm")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "prompts.json")
	err = os.WriteFile(path,
		[]byte(`["First prompt", "Second prompt"]`), 0644)
	if err != nil {
		log.Fatal(err)
	}
	prompts, err := LoadPrompts(path)
	assert.NoError(t, err)
	assert.Equal(t, []string{"First prompt", "Second prompt"}, prompts)

	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, []byte(`[]`), 0644); err != nil {
		log.Fatal(err)
	}
	_, err = LoadPrompts(empty)
	assert.Error(t, err)

	_, err = LoadPrompts(filepath.Join(dir, "absent.json"))
	assert.Error(t, err)
}

func sliceDocs(texts []string) corpus.DocumentIterator {
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
