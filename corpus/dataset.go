package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	DefaultDataset      = "uiyunkim-hub/pubmed-abstract"
	DefaultDatasetField = "abstract"

	datasetsServerURL = "https://datasets-server.huggingface.co"
	datasetPageSize   = 100
)

// DatasetSource streams rows of a hosted dataset through the Hugging
// Face datasets-server rows API, client-side rate limited.
type DatasetSource struct {
	Dataset string
	Config  string
	Split   string
	Field   string
	BaseURL string

	client *http.Client
}

// NewDatasetSource returns a source for the named dataset with the
// defaults the PubMed corpus uses. An empty dataset selects
// DefaultDataset.
func NewDatasetSource(dataset string) DatasetSource {
	if dataset == "" {
		dataset = DefaultDataset
	}
	return DatasetSource{
		Dataset: dataset,
		Config:  "default",
		Split:   "train",
		Field:   DefaultDatasetField,
		BaseURL: datasetsServerURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type datasetPage struct {
	Rows []struct {
		Row map[string]json.RawMessage `json:"row"`
	} `json:"rows"`
	NumRowsTotal int64 `json:"num_rows_total"`
}

// Rows returns an iterator over the configured field of every row,
// fetching pages lazily.
func (src DatasetSource) Rows(ctx context.Context) DocumentIterator {
	if src.client == nil {
		src.client = &http.Client{Timeout: 60 * time.Second}
	}
	limiter := rate.NewLimiter(rate.Every(500*time.Millisecond), 1)
	var pending []string
	offset := int64(0)
	total := int64(-1)
	return func() (string, error) {
		for len(pending) == 0 {
			if total >= 0 && offset >= total {
				return "", io.EOF
			}
			if err := limiter.Wait(ctx); err != nil {
				return "", errors.Wrap(err, "dataset rate limit")
			}
			page, err := src.fetchPage(ctx, offset)
			if err != nil {
				return "", err
			}
			total = page.NumRowsTotal
			if len(page.Rows) == 0 {
				return "", io.EOF
			}
			for _, row := range page.Rows {
				raw, ok := row.Row[src.Field]
				if !ok {
					return "", errors.Errorf(
						"dataset %s rows have no %q field",
						src.Dataset, src.Field)
				}
				var text *string
				if json.Unmarshal(raw, &text) == nil && text != nil {
					pending = append(pending, *text)
				} else {
					pending = append(pending, "")
				}
			}
			offset += int64(len(page.Rows))
		}
		doc := pending[0]
		pending = pending[1:]
		return doc, nil
	}
}

func (src DatasetSource) fetchPage(ctx context.Context, offset int64) (*datasetPage, error) {
	query := url.Values{}
	query.Set("dataset", src.Dataset)
	query.Set("config", src.Config)
	query.Set("split", src.Split)
	query.Set("offset", fmt.Sprintf("%d", offset))
	query.Set("length", fmt.Sprintf("%d", datasetPageSize))
	uri := src.BaseURL + "/rows?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", uri, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building rows request")
	}
	if auth := os.Getenv("HF_API_TOKEN"); auth != "" {
		req.Header.Add("Authorization", "Bearer "+auth)
	}
	resp, err := src.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s rows at offset %d",
			src.Dataset, offset)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("rows API status %d for %s: %s",
			resp.StatusCode, src.Dataset, string(body))
	}
	var page datasetPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, errors.Wrap(err, "decoding rows response")
	}
	return &page, nil
}
