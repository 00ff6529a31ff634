package backup

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// extensions of supported snapshot formats
const (
	ExtNone   = ""
	ExtZstd   = ".zst"
	ExtBrotli = ".br"
	ExtGzip   = ".gz"
)

func compressionExt(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".zst", ".zstd":
		return ExtZstd
	case ExtBrotli, ExtGzip:
		return ext
	}
	return ExtNone
}

// ValidExt returns true if ext is a supported compression extension
func ValidExt(ext string) bool {
	switch ext {
	case ExtNone, ExtZstd, ExtBrotli, ExtGzip:
		return true
	}
	return false
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error {
	return nil
}

// newCompressingWriter returns a writer compressing with format implied by ext.
// Close() flushes compressed data but doesn't close w.
func newCompressingWriter(w io.Writer, ext string) (io.WriteCloser, error) {
	switch ext {
	case ExtZstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	case ExtBrotli:
		return brotli.NewWriterLevel(w, brotli.BestCompression), nil
	case ExtGzip:
		return gzip.NewWriterLevel(w, gzip.BestCompression)
	case ExtNone:
		return nopWriteCloser{w}, nil
	}
	return nil, fmt.Errorf("unsupported compression '%s'", ext)
}

// implement io.ReadCloser over os.File wrapped with io.Reader.
// io.Closer goes to os.File, io.Reader goes to wrapping reader
type readerWrappedFile struct {
	f       *os.File
	r       io.Reader
	onClose func()
}

func (rc *readerWrappedFile) Close() error {
	if rc.onClose != nil {
		rc.onClose()
	}
	return rc.f.Close()
}

func (rc *readerWrappedFile) Read(p []byte) (int, error) {
	return rc.r.Read(p)
}

// OpenSnapshot opens a snapshot file, decompressing based on file extension
func OpenSnapshot(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	switch compressionExt(path) {
	case ExtGzip:
		r, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &readerWrappedFile{f: f, r: r}, nil
	case ExtZstd:
		r, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &readerWrappedFile{f: f, r: r, onClose: r.Close}, nil
	case ExtBrotli:
		return &readerWrappedFile{f: f, r: brotli.NewReader(f)}, nil
	}
	return f, nil
}

// ReadSnapshot returns uncompressed content of a snapshot file
func ReadSnapshot(path string) ([]byte, error) {
	r, err := OpenSnapshot(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
