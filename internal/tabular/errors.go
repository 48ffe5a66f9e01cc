package tabular

import "fmt"

// FileAccessError reports a file that could not be opened or read at all.
// It is a per-file condition: multi-file runs record it and move on.
type FileAccessError struct {
	Path string
	Err  error
}

func (e *FileAccessError) Error() string {
	return fmt.Sprintf("file access error: %s: %v", e.Path, e.Err)
}

func (e *FileAccessError) Unwrap() error { return e.Err }

// LoadError reports a file that was readable but could not be decoded or
// parsed into a table (corrupt workbook, malformed quoting, unknown encoding).
type LoadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load error: %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("load error: %s: %s", e.Path, e.Reason)
}

func (e *LoadError) Unwrap() error { return e.Err }
