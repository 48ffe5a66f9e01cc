// Package core runs multi-file column searches.
//
// The package is independent of any transport: the HTTP server and the CLI
// both drive it.
//
// # Search Workflow
//
// A run walks a root folder, keeps files whose extension is one of the
// requested file types, and processes them one at a time in sorted order:
//
//  1. The sniffer picks the text encoding and delimiter (text files only)
//  2. The loader reads headers and rows
//  3. Files with usable structure are matched on the target column; other
//     text files fall back to line matching
//  4. Per-file outcomes are recorded and the scan moves on
//
// [Search] runs synchronously. [Service.StartSearch] runs in the background
// under a [RunLimiter]; progress is broadcast through
// [Service.SubscribeProgress] and the result is kept for the configured
// retention before it is forgotten. Summaries of finished runs go to a
// [HistoryStore].
//
// # Error Handling
//
// Errors are mapped to user-facing messages with [MapError]. Each message
// carries a code for support reference:
//
//   - VAL001-VAL004: request validation
//   - FILE001-FILE004: per-file conditions
//   - EXP001-EXP002: export
//   - RUN001-RUN004: run lifecycle
package core
