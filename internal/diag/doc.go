// Package diag defines the diagnostic model shared by the ABI analysis phases.
//
// # Purpose
//
//   - Provide deterministic, serialisable records for findings produced while
//     loading an ABI description, laying out types, classifying them, planning
//     calls and folding constants.
//   - Offer light-weight utilities (Reporter, Bag) that let producers emit
//     diagnostics without coupling to storage or formatting.
//
// # Scope
//
// Package diag does not format or print anything. Rendering lives in
// internal/report; orchestration lives in internal/driver.
//
// # Data model
//
// Diagnostic is the central record:
//
//   - Severity – tri-level enum (Info, Warning, Error) defined in severity.go.
//   - Code – compact numeric identifier (see codes.go) with stable string form.
//   - Message – short, actionable text.
//   - Primary – the source.Span of the declaration that triggered the finding.
//   - Notes – optional secondary spans/messages, e.g. "field declared here".
//
// ABI errors are compile errors: each is reported once at the point of type
// use and the offending declaration produces no layout or plan.
package diag
