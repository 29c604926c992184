// Package core runs the tabwork workflow: raw uploads, parse previews, the
// final import with cleaning, table edits, summaries and joins.
//
// It holds no transport code. The web server and the tests drive it through
// [Service]; the engine packages (dialect, clean, mutate, summary, join) do
// the table work and the store package keeps the results.
//
// # Workflow
//
//  1. [Service.Upload] stores one or two raw files under a new session.
//  2. [Service.Preview] parses the first rows of a raw file with candidate
//     options so the user can pick encoding, delimiter and quoting.
//  3. [Service.Import] parses and cleans every raw file and saves each as a
//     working table keyed "<session>/<slot>". Files fail independently.
//  4. [Service.ApplyChanges], [Service.Summarize], [Service.Join] and
//     [Service.Export] work on saved tables by key.
//
// # Concurrency
//
// Imports and joins take a slot from a [Limiter] first. When every slot
// stays busy for the configured wait the call fails with [ErrBusy]. Within
// one import, files are processed by a bounded errgroup.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a code for support reference:
//
//   - PARSE001-PARSE005: file could not be parsed
//   - COL001-COL002: column errors
//   - STORE001-STORE003: table store errors
//   - FILE001-FILE006: upload errors
//   - JOIN001-JOIN002: join request errors
package core
