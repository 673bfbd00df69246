// Package core is the import engine for beneficiary and participant
// spreadsheets.
//
// It has no knowledge of HTTP, files or databases. Callers hand it rows
// through a [SheetReader] and persistence through a [RecordStore]; the
// web server, the CLI and the tests all drive the same code.
//
// # Pipeline
//
// Each data row goes through four stages:
//
//   - Resolve: the [Resolver] maps spreadsheet headers to canonical fields
//     using each field's alias list. Matching ignores case, accents,
//     punctuation and repeated spaces.
//   - Normalize: the [Normalizer] turns raw strings into typed [Value]s
//     (names, sex codes, phone numbers, dates, booleans, code tables).
//   - Validate: the [RowValidator] checks required fields, formats and
//     cross-field rules, and builds a [CanonicalRecord] when the row is clean.
//   - Commit: the [DuplicateDetector] looks the record's [DuplicateKey] up in
//     the session and in the store, then the row is created, updated or
//     skipped according to the [DuplicatePolicy].
//
// Resolve, normalize and validate run in parallel. Commits are serial, in
// file order, so a later row always sees the outcome of an earlier one.
//
// # Schemas
//
// Import kinds are registered at init time with [Register]. The built-in
// beneficiary and participant schemas live in the schemas subpackage:
//
//	import _ "github.com/JonMunkholm/medimport/internal/core/schemas"
//
// Alias lists can be extended at runtime with [AliasOverrides] loaded from
// YAML.
//
// # Sessions
//
// A [Session] runs once. [Service] wraps sessions with a concurrency
// limiter, a timeout, background execution and a history store:
//
//	svc, _ := core.NewService(core.ServiceDeps{Store: store, Scopes: store}, core.ServiceConfig{})
//	summary, err := svc.Import(ctx, core.ImportRequest{
//	    Kind:   core.KindBeneficiary,
//	    Scope:  42,
//	    Source: reader,
//	})
//
// The returned [ImportSummary] carries counts, per-row errors, warnings,
// the success rate and, for participants, the status buckets.
package core
