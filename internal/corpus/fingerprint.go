package corpus

import (
	"crypto/md5" // #nosec G501 -- duplicate detection, not integrity
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	DefaultBlockSize = 1 << 20
	DefaultMaxBlocks = 10
)

// Fingerprinter hashes at most MaxBlocks blocks of BlockSize bytes from the
// start of a file. Files that share that prefix collide even when they
// differ later on.
type Fingerprinter struct {
	BlockSize int
	MaxBlocks int
}

// NewFingerprinter returns a Fingerprinter, substituting defaults for
// non-positive arguments.
func NewFingerprinter(blockSize, maxBlocks int) *Fingerprinter {
	if blockSize < 1 {
		blockSize = DefaultBlockSize
	}
	if maxBlocks < 1 {
		maxBlocks = DefaultMaxBlocks
	}
	return &Fingerprinter{BlockSize: blockSize, MaxBlocks: maxBlocks}
}

// File returns the hex fingerprint of the file at path.
func (f *Fingerprinter) File(path string) (string, error) {
	fh, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer fh.Close()
	return f.Reader(fh)
}

// Reader returns the hex fingerprint of the stream prefix.
func (f *Fingerprinter) Reader(r io.Reader) (string, error) {
	h := md5.New() // #nosec G401
	buf := make([]byte, f.BlockSize)
	for i := 0; i < f.MaxBlocks; i++ {
		n, err := io.ReadFull(r, buf)
		h.Write(buf[:n])
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("reading block %d: %w", i, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
