// Package corpus acquires, filters, and writes the pretraining corpora
// the alignment experiments run over: pubget PubMed extractions, hosted
// datasets, and token-budgeted JSONL output.
package corpus

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// Document is one corpus line: `{"text": ...}`.
type Document struct {
	Text string `json:"text"`
}

// DocumentIterator yields documents until it returns io.EOF.
type DocumentIterator func() (string, error)

// ReadJSONL streams the text field of each line of a JSONL corpus file,
// transparently decompressing `.gz` names. The file closes itself when
// the iterator is drained or errors.
func ReadJSONL(path string) (DocumentIterator, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open corpus %s", path)
	}
	var reader io.Reader = bufio.NewReaderSize(file, 1<<20)
	closeAll := func() { file.Close() }
	if strings.HasSuffix(path, ".gz") {
		unzipped, gzErr := gzip.NewReader(reader)
		if gzErr != nil {
			file.Close()
			return nil, errors.Wrapf(gzErr, "cannot open gzip corpus %s", path)
		}
		reader = unzipped
		closeAll = func() {
			unzipped.Close()
			file.Close()
		}
	}
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	return func() (string, error) {
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var doc Document
			if err := json.Unmarshal(line, &doc); err != nil {
				closeAll()
				return "", errors.Wrap(err, "malformed corpus line")
			}
			return doc.Text, nil
		}
		err := scanner.Err()
		closeAll()
		if err != nil {
			return "", errors.Wrap(err, "reading corpus")
		}
		return "", io.EOF
	}, nil
}

// Limit caps docs at n documents. n <= 0 leaves docs unchanged.
func Limit(docs DocumentIterator, n int64) DocumentIterator {
	if n <= 0 {
		return docs
	}
	var seen int64
	return func() (string, error) {
		if seen >= n {
			return "", io.EOF
		}
		seen++
		return docs()
	}
}

// OpenOutput creates path for writing, creating parent directories and
// layering gzip compression when the name ends in .gz.
func OpenOutput(path string) (io.WriteCloser, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "cannot create %s", dir)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot create %s", path)
	}
	if strings.HasSuffix(path, ".gz") {
		return &gzipWriteCloser{zip: gzip.NewWriter(file), file: file}, nil
	}
	return file, nil
}

type gzipWriteCloser struct {
	zip  *gzip.Writer
	file *os.File
}

func (w *gzipWriteCloser) Write(p []byte) (int, error) {
	return w.zip.Write(p)
}

func (w *gzipWriteCloser) Close() error {
	if err := w.zip.Close(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
