// Package codec compresses and decompresses byte blobs with a pluggable
// algorithm (C1). Compression is only applied when it actually shrinks
// the payload past the package constant DefaultMargin; otherwise the raw
// bytes are stored under Algorithm NONE. The margin is not configurable
// per call or per namespace.
package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/aman-cerp/corpuscore/internal/errors"
)

// Algorithm names a compression codec.
type Algorithm string

const (
	AlgorithmNone Algorithm = "NONE"
	AlgorithmZSTD Algorithm = "ZSTD"
	AlgorithmLZ4  Algorithm = "LZ4"
	AlgorithmGZIP Algorithm = "GZIP"
)

// DefaultMargin is the minimum fraction of size a compressed payload
// must save over the raw payload before compression is kept; below it
// the raw bytes are stored with Algorithm NONE.
const DefaultMargin = 0.05

// AutoPick selects a default algorithm by payload size: ZSTD for large
// payloads (better ratio, amortized cost), LZ4 when latency-sensitive
// (small/medium payloads touched on the hot read path), and NONE for
// tiny payloads where compression overhead dominates.
func AutoPick(size int) Algorithm {
	switch {
	case size < 256:
		return AlgorithmNone
	case size < 64*1024:
		return AlgorithmLZ4
	default:
		return AlgorithmZSTD
	}
}

// Compress compresses data with algo. If the compressed result does not
// save at least DefaultMargin over the raw size, the raw bytes are
// returned instead with AlgorithmNone (so callers must persist the
// algorithm actually used, not the one requested).
func Compress(data []byte, algo Algorithm) ([]byte, Algorithm, error) {
	if algo == AlgorithmNone || len(data) == 0 {
		return data, AlgorithmNone, nil
	}

	compressed, err := compressWith(data, algo)
	if err != nil {
		return nil, "", errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("codec: compress with %s", algo), err)
	}

	if float64(len(compressed)) > float64(len(data))*(1-DefaultMargin) {
		return data, AlgorithmNone, nil
	}
	return compressed, algo, nil
}

// Decompress reverses Compress. AlgorithmNone returns data unchanged.
func Decompress(data []byte, algo Algorithm) ([]byte, error) {
	switch algo {
	case AlgorithmNone, "":
		return data, nil
	case AlgorithmZSTD:
		return decompressZSTD(data)
	case AlgorithmLZ4:
		return decompressLZ4(data)
	case AlgorithmGZIP:
		return decompressGZIP(data)
	default:
		return nil, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("codec: unknown algorithm %q", algo), nil)
	}
}

func compressWith(data []byte, algo Algorithm) ([]byte, error) {
	switch algo {
	case AlgorithmZSTD:
		return compressZSTD(data)
	case AlgorithmLZ4:
		return compressLZ4(data)
	case AlgorithmGZIP:
		return compressGZIP(data)
	default:
		return nil, fmt.Errorf("unknown algorithm %q", algo)
	}
}

func compressZSTD(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, make([]byte, 0, len(data))), nil
}

func decompressZSTD(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, errors.Corruption("codec: zstd decode failed", err)
	}
	return out, nil
}

func compressLZ4(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressLZ4(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Corruption("codec: lz4 decode failed", err)
	}
	return out, nil
}

func compressGZIP(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressGZIP(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Corruption("codec: gzip reader", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Corruption("codec: gzip decode failed", err)
	}
	return out, nil
}
