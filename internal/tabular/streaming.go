package tabular

// streaming.go provides the reader used to feed text files to the loader and
// the line matcher without holding raw bytes in memory. NewTextReader decodes
// any supported encoding to UTF-8 on the fly, dropping a leading BOM and
// replacing invalid sequences. OpenText applies it to a file.

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/text/transform"
)

// NewTextReader wraps r with a decoder for the named encoding.
func NewTextReader(r io.Reader, encodingName string) (io.Reader, error) {
	enc, ok := EncodingByName(encodingName)
	if !ok {
		return nil, fmt.Errorf("unsupported encoding %q", encodingName)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// TextFile is an open text file decoded to UTF-8.
type TextFile struct {
	io.Reader
	// Size is the raw file size in bytes, 0 if unknown.
	Size int64
	file *os.File
}

// Close closes the underlying file.
func (t *TextFile) Close() error {
	return t.file.Close()
}

// OpenText opens path and decodes the content with the named encoding. Open
// failures are *FileAccessError; an unknown encoding is a *LoadError.
func OpenText(path, encodingName string) (*TextFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FileAccessError{Path: path, Err: err}
	}

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	r, err := NewTextReader(f, encodingName)
	if err != nil {
		f.Close()
		return nil, &LoadError{Path: path, Reason: "decode", Err: err}
	}

	return &TextFile{Reader: r, Size: size, file: f}, nil
}
