package cooccur

import (
	"encoding/binary"
	"math"
	"os"

	"github.com/pkg/errors"
)

// Record is one co-occurrence observation between two vocabulary entries
// and its accumulated weight, in the layout emitted by GloVe-family
// co-occurrence builders.
type Record struct {
	Word1 int32
	Word2 int32
	Value float32
}

// RecordSize is the fixed on-disk width of a Record: two int32 ids and a
// float32 weight, little-endian, no padding.
const RecordSize = 12

func decodeRecord(b []byte) Record {
	return Record{
		Word1: int32(binary.LittleEndian.Uint32(b[0:4])),
		Word2: int32(binary.LittleEndian.Uint32(b[4:8])),
		Value: math.Float32frombits(binary.LittleEndian.Uint32(b[8:12])),
	}
}

func encodeRecord(b []byte, rec Record) {
	binary.LittleEndian.PutUint32(b[0:4], uint32(rec.Word1))
	binary.LittleEndian.PutUint32(b[4:8], uint32(rec.Word2))
	binary.LittleEndian.PutUint32(b[8:12], math.Float32bits(rec.Value))
}

// ReadFile decodes every complete record in path, in file order. Trailing
// bytes that do not form a complete record are ignored.
func ReadFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	records := make([]Record, 0, len(data)/RecordSize)
	for off := 0; off+RecordSize <= len(data); off += RecordSize {
		records = append(records, decodeRecord(data[off:off+RecordSize]))
	}
	return records, nil
}

// WriteFile encodes records to path in the fixed 12-byte layout,
// truncating any existing file.
func WriteFile(path string, records []Record) error {
	return writeRecords(path, records, nil)
}
