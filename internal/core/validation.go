package core

// validation.go checks a search request before any file I/O.
//
// Validate returns a normalized copy of the request. The root is cleaned,
// terms are trimmed and deduplicated, and the mode defaults to "any". File
// types default to the configured list. The first problem found is returned
// as a ValidationError carrying the code MapError reports.

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/JonMunkholm/colsearch/internal/match"
)

// DefaultFileTypes are searched when neither the request nor the caller's
// options name any.
var DefaultFileTypes = []string{"csv", "tsv", "txt", "xlsx"}

// ValidationError rejects a search request.
type ValidationError struct {
	Field   string // Request field: root, column, terms, mode, fileTypes, exclude
	Value   string // The offending value, if any
	Message string
	Code    string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("validation failed: %s %q: %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// Validate returns the normalized request or a *ValidationError.
func (req SearchRequest) Validate(defaultTypes []string) (SearchRequest, error) {
	out := req

	out.Root = strings.TrimSpace(req.Root)
	if out.Root == "" {
		return req, &ValidationError{Field: "root", Message: "a folder to search is required", Code: "VAL001"}
	}
	out.Root = filepath.Clean(out.Root)

	out.Column = strings.TrimSpace(req.Column)
	if out.Column == "" {
		return req, &ValidationError{Field: "column", Message: "a column name is required", Code: "VAL002"}
	}

	out.Terms = match.NormalizeTerms(req.Terms)
	if len(out.Terms) == 0 {
		return req, &ValidationError{Field: "terms", Message: "at least one search term is required", Code: "VAL003"}
	}

	mode, err := match.ParseMode(string(req.Mode))
	if err != nil {
		return req, &ValidationError{Field: "mode", Value: string(req.Mode), Message: "must be any or all", Code: "VAL004"}
	}
	out.Mode = mode

	types := req.FileTypes
	if len(types) == 0 {
		types = defaultTypes
	}
	if len(types) == 0 {
		types = DefaultFileTypes
	}
	out.FileTypes, err = normalizeFileTypes(types)
	if err != nil {
		return req, err
	}

	out.Exclude = nil
	for _, p := range req.Exclude {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return req, &ValidationError{Field: "exclude", Value: p, Message: "invalid glob pattern", Code: "VAL004"}
		}
		out.Exclude = append(out.Exclude, filepath.ToSlash(p))
	}

	return out, nil
}

// normalizeFileTypes lowercases extensions, strips "*." and "." prefixes and
// drops duplicates.
func normalizeFileTypes(types []string) ([]string, error) {
	seen := make(map[string]bool, len(types))
	out := make([]string, 0, len(types))
	for _, t := range types {
		ext := strings.ToLower(strings.TrimSpace(t))
		ext = strings.TrimPrefix(ext, "*")
		ext = strings.TrimPrefix(ext, ".")
		if ext == "" {
			continue
		}
		if strings.ContainsAny(ext, `/\*?[]{},.`) {
			return nil, &ValidationError{Field: "fileTypes", Value: t, Message: "must be a plain extension such as csv", Code: "VAL004"}
		}
		if seen[ext] {
			continue
		}
		seen[ext] = true
		out = append(out, ext)
	}
	if len(out) == 0 {
		return nil, &ValidationError{Field: "fileTypes", Message: "at least one file type is required", Code: "VAL004"}
	}
	return out, nil
}

// includePattern builds a case-insensitive doublestar pattern matching any
// of the extensions at any depth, e.g. "**/*.{[cC][sS][vV],[tT][xX][tT]}".
func includePattern(types []string) string {
	alts := make([]string, len(types))
	for i, ext := range types {
		var b strings.Builder
		for _, r := range ext {
			lower, upper := strings.ToLower(string(r)), strings.ToUpper(string(r))
			if lower == upper {
				b.WriteRune(r)
				continue
			}
			b.WriteString("[" + lower + upper + "]")
		}
		alts[i] = b.String()
	}
	if len(alts) == 1 {
		return "**/*." + alts[0]
	}
	return "**/*.{" + strings.Join(alts, ",") + "}"
}

