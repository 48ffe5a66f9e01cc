package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/JonMunkholm/colsearch/internal/export"
	"github.com/JonMunkholm/colsearch/internal/match"
	"github.com/JonMunkholm/colsearch/internal/tabular"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{
			name:     "nil error returns empty",
			err:      nil,
			wantCode: "",
		},
		{
			name:     "missing root",
			err:      &ValidationError{Field: "root", Message: "a folder to search is required", Code: "VAL001"},
			wantCode: "VAL001",
		},
		{
			name:     "wrapped invalid mode",
			err:      fmt.Errorf("start: %w", &ValidationError{Field: "mode", Value: "some", Message: "must be any or all", Code: "VAL004"}),
			wantCode: "VAL004",
		},
		{
			name:     "file access",
			err:      &tabular.FileAccessError{Path: "a.csv", Err: os.ErrPermission},
			wantCode: "FILE001",
		},
		{
			name:     "load error",
			err:      &tabular.LoadError{Path: "a.xls", Reason: "legacy .xls workbooks are not supported"},
			wantCode: "FILE002",
		},
		{
			name:     "column not found",
			err:      &match.ColumnNotFoundError{Path: "a.csv", Column: "zip"},
			wantCode: "FILE003",
		},
		{
			name:     "export write",
			err:      &export.ExportError{Path: "/ro/out.csv", Err: os.ErrPermission},
			wantCode: "EXP001",
		},
		{
			name:     "export format",
			err:      &export.ExportError{Path: "out.pdf", Err: export.ErrUnsupportedFormat},
			wantCode: "EXP002",
		},
		{
			name:     "cancelled run",
			err:      fmt.Errorf("%w: %w", ErrRunCancelled, context.Canceled),
			wantCode: "RUN001",
		},
		{
			name:     "timed out run",
			err:      fmt.Errorf("%w: %w", ErrRunCancelled, context.DeadlineExceeded),
			wantCode: "RUN001",
		},
		{
			name:     "too many runs",
			err:      ErrTooManyRuns,
			wantCode: "RUN002",
		},
		{
			name:     "run not found",
			err:      fmt.Errorf("%w: abc", ErrRunNotFound),
			wantCode: "RUN003",
		},
		{
			name:     "root vanished",
			err:      &RootError{Root: "/data", Err: os.ErrNotExist},
			wantCode: "RUN004",
		},
		{
			name:     "untyped pattern match",
			err:      errors.New("upstream: search root unavailable: /x: gone"),
			wantCode: "RUN004",
		},
		{
			name:     "rate limit maps correctly",
			err:      errors.New("rate limit exceeded"),
			wantCode: "RATE001",
		},
		{
			name:     "case insensitive matching",
			err:      errors.New("FILE TOO LARGE: 300MB"),
			wantCode: "FILE004",
		},
		{
			name:     "unknown error returns default",
			err:      errors.New("some random internal error"),
			wantCode: "ERR000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if tt.err != nil && got.Message == "" {
				t.Errorf("MapError() message is empty for %v", tt.err)
			}
		})
	}
}

func TestMapError_TimeoutMessage(t *testing.T) {
	got := MapError(fmt.Errorf("%w: %w", ErrRunCancelled, context.DeadlineExceeded))
	if got.Message != "Search timed out" {
		t.Errorf("MapError() message = %q, want timeout message", got.Message)
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(fmt.Errorf("%w: 42", ErrRunNotFound))

	expected := "Search not found (Code: RUN003). The search may have expired. Please start a new search"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}

	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestFormatUserError_Validation(t *testing.T) {
	_, err := SearchRequest{Root: "/data", Column: "zip"}.Validate(nil)
	result := FormatUserError(err)

	expected := "At least one search term is required (Code: VAL003). Enter one or more search terms"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error is not user facing",
			err:  nil,
			want: false,
		},
		{
			name: "known error is user facing",
			err:  ErrTooManyRuns,
			want: true,
		},
		{
			name: "unknown error is not user facing",
			err:  errors.New("random internal error xyz"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsUserFacing(tt.err)
			if got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}
