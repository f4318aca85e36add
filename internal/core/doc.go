// Package core reconciles the student roster, the grade feed and the
// enrollment feed into one denormalized fact table and accounts for what
// happened along the way.
//
// This package holds all domain logic independent of file formats, storage
// and transport. It can be driven by the CLI, the scheduler, the HTTP API or
// tests without modification.
//
// # Stages
//
// A run moves data strictly forward through five stages:
//
//  1. [Reconcile] picks the canonical key, renames aliased key columns,
//     coerces numeric columns and drops rows without a usable key.
//  2. [Clean] deduplicates the roster, fills missing addresses and
//     normalizes scores.
//  3. [BuildFacts] left-joins grades to the roster and then to enrollment.
//  4. [Aggregate] derives [RunMetrics] from what the earlier stages did.
//  5. The [Recorder] appends one [RunLogEntry] per run, success or failure.
//
// Every stage returns new tables; none mutates its input. [Transform] runs
// stages 1 to 4 as a pure function. [Pipeline] adds extraction, persistence
// and the audit row around it.
//
// # Events
//
// The core never logs directly. It reports progress and failures through an
// [EventSink]; the logging package adapts it to slog.
//
// # Error Handling
//
// Technical errors are mapped to operator-facing messages with [MapError].
// Each category has a code for support reference:
//
//   - SRC001-SRC004: unreadable or malformed inputs
//   - KEY001: roster without columns
//   - STO001-STO003: persistence failures
//   - RUN001-RUN002: concurrency and deadlines
package core
