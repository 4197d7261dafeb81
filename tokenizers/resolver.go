package tokenizers

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

const hubBaseURL = "https://huggingface.co"

// tokenizerArtifacts are the files resolved for a model id. None are
// individually required at fetch time; the loaders report what is missing
// for their format.
var tokenizerArtifacts = []string{
	"config.json",
	"tokenizer.json",
	"vocab.json",
	"merges.txt",
	"special_tokens_map.json",
	"tokenizer_config.json",
	"specials.txt",
	"tokenizer.model",
}

// writeCounter counts the bytes written through it and reports download
// progress every 10 seconds.
type writeCounter struct {
	Total uint64
	Last  time.Time
	Path  string
	Size  uint64
}

func (wc *writeCounter) Write(p []byte) (int, error) {
	n := len(p)
	wc.Total += uint64(n)
	if time.Since(wc.Last).Seconds() > 10 {
		wc.Last = time.Now()
		log.Printf("Downloading %s... %s / %s completed.",
			wc.Path, humanize.Bytes(wc.Total), humanize.Bytes(wc.Size))
	}
	return n, nil
}

// ResolveDir returns a local directory holding the tokenizer artifacts for
// id. An existing directory passes through unchanged; a model id resolves
// against huggingface.co into the user cache, skipping files already
// present at the advertised size.
func ResolveDir(id string) (string, error) {
	if info, err := os.Stat(id); err == nil && info.IsDir() {
		return id, nil
	}
	cacheRoot, err := os.UserCacheDir()
	if err != nil {
		return "", errors.Wrap(err, "no user cache directory")
	}
	dir := path.Join(cacheRoot, "medicaltokalign", "tokenizers",
		strings.ReplaceAll(id, "/", "--"))
	if err := FetchInto(id, dir); err != nil {
		return "", err
	}
	return dir, nil
}

// FetchInto downloads every available tokenizer artifact for id into
// dir, skipping files already present at the advertised size.
func FetchInto(id string, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "cannot create %s", dir)
	}
	found := 0
	for _, name := range tokenizerArtifacts {
		fetched, err := fetchArtifact(id, name, dir)
		if err != nil {
			return err
		}
		if fetched {
			found++
		}
	}
	if found == 0 {
		return errors.Errorf("no tokenizer artifacts found for %s", id)
	}
	return nil
}

// fetchArtifact ensures dir holds name for the given model id. Returns
// whether the artifact is present; a remote 404 is a skip, not an error.
func fetchArtifact(id string, name string, dir string) (bool, error) {
	uri := hubBaseURL + "/" + id + "/resolve/main/" + name
	target := path.Join(dir, name)

	size, err := remoteSize(uri)
	if err != nil {
		if fileExists(target) {
			return true, nil
		}
		var status httpStatusError
		if errors.As(err, &status) && status.code == http.StatusNotFound {
			return false, nil
		}
		return false, errors.Wrapf(err, "cannot resolve %s/%s", id, name)
	}
	if info, statErr := os.Stat(target); statErr == nil && uint64(info.Size()) == size {
		return true, nil
	}

	body, err := fetchHTTP(uri)
	if err != nil {
		return false, errors.Wrapf(err, "cannot retrieve %s/%s", id, name)
	}
	defer body.Close()

	tmp := target + ".downloading"
	out, err := os.Create(tmp)
	if err != nil {
		return false, errors.Wrapf(err, "error opening %s for write", tmp)
	}
	counter := &writeCounter{
		Last: time.Now(),
		Path: fmt.Sprintf("%s/%s", id, name),
		Size: size,
	}
	downloaded, err := io.Copy(out, io.TeeReader(body, counter))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return false, errors.Wrapf(err, "error downloading %s", name)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return false, errors.Wrapf(err, "error placing %s", target)
	}
	log.Printf("Downloaded %s/%s... %s completed.",
		id, name, humanize.Bytes(uint64(downloaded)))
	return true, nil
}

type httpStatusError struct {
	code int
}

func (e httpStatusError) Error() string {
	return fmt.Sprintf("HTTP status code %d", e.code)
}

func fetchHTTP(uri string) (io.ReadCloser, error) {
	req, err := http.NewRequest("GET", uri, nil)
	if err != nil {
		return nil, err
	}
	if auth := os.Getenv("HF_API_TOKEN"); auth != "" {
		req.Header.Add("Authorization", "Bearer "+auth)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, httpStatusError{resp.StatusCode}
	}
	return resp.Body, nil
}

func remoteSize(uri string) (uint64, error) {
	req, err := http.NewRequest("HEAD", uri, nil)
	if err != nil {
		return 0, err
	}
	if auth := os.Getenv("HF_API_TOKEN"); auth != "" {
		req.Header.Add("Authorization", "Bearer "+auth)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, httpStatusError{resp.StatusCode}
	}
	size, _ := strconv.ParseUint(resp.Header.Get("Content-Length"), 10, 64)
	return size, nil
}

// readArtifact reads a file under dir through a read-only mapping, handing
// back a copy so the mapping can be released immediately.
func readArtifact(dir string, name string) ([]byte, error) {
	file, err := os.Open(path.Join(dir, name))
	if err != nil {
		return nil, err
	}
	defer file.Close()
	mapped, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		// Zero-length files cannot be mapped on some platforms.
		return io.ReadAll(file)
	}
	data := make([]byte, len(mapped))
	copy(data, mapped)
	if err := mapped.Unmap(); err != nil {
		return nil, errors.Wrapf(err, "error unmapping %s", name)
	}
	return data, nil
}
