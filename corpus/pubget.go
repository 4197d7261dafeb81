package corpus

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// DefaultQuery selects every PubMed article carrying an abstract.
const DefaultQuery = "*[All Fields] AND hasabstract[filter]"

const extractedDirName = "subset_allArticles_extractedData"

// RunPubget invokes the external pubget binary to download and extract a
// PubMed query into dataDir. Output streams through to the caller's
// terminal; this can run for hours on broad queries.
func RunPubget(ctx context.Context, dataDir string, query string) error {
	if query == "" {
		query = DefaultQuery
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return errors.Wrapf(err, "cannot create %s", dataDir)
	}
	cmd := exec.CommandContext(ctx, "pubget", "run", dataDir, "-q", query)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	log.Printf("Running: %s", strings.Join(cmd.Args, " "))
	return errors.Wrap(cmd.Run(), "pubget run")
}

// FindExtractedCSV locates the text.csv of a pubget extraction under
// dataDir: first the standard query_*/<extracted>/text.csv layout, then
// a recursive search for older layouts.
func FindExtractedCSV(dataDir string) (string, error) {
	matches, err := filepath.Glob(
		filepath.Join(dataDir, "query_*", extractedDirName, "text.csv"))
	if err == nil && len(matches) > 0 {
		sort.Strings(matches)
		return matches[0], nil
	}
	var found string
	walkErr := filepath.WalkDir(dataDir,
		func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !entry.IsDir() && entry.Name() == "text.csv" &&
				filepath.Base(filepath.Dir(path)) == extractedDirName {
				found = path
				return fs.SkipAll
			}
			return nil
		})
	if walkErr != nil {
		return "", errors.Wrapf(walkErr, "searching %s", dataDir)
	}
	if found == "" {
		return "", errors.Errorf("no pubget text.csv under %s", dataDir)
	}
	return found, nil
}

// ReadPubgetCSV streams the abstract column of a pubget text.csv. The
// file closes itself when the iterator is drained or errors.
func ReadPubgetCSV(path string) (DocumentIterator, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open %s", path)
	}
	reader := csv.NewReader(bufio.NewReaderSize(file, 256*1024))
	header, err := reader.Read()
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "reading %s header", path)
	}
	column := -1
	for i, name := range header {
		if name == "abstract" {
			column = i
			break
		}
	}
	if column < 0 {
		file.Close()
		return nil, errors.Errorf("no abstract column in %s (columns: %s)",
			path, strings.Join(header, ", "))
	}
	return func() (string, error) {
		record, err := reader.Read()
		if err == io.EOF {
			file.Close()
			return "", io.EOF
		}
		if err != nil {
			file.Close()
			return "", errors.Wrapf(err, "reading %s", path)
		}
		if column >= len(record) {
			return "", nil
		}
		return record[column], nil
	}, nil
}
