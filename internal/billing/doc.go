// Package billing defines the provider abstraction layer for the toolkit.
//
// This package provides the provider-neutral Record structure, the
// capability-tier interfaces implemented by the per-provider clients, the
// shared error taxonomy, and billing-cycle helpers.
//
// Capability tiers (implemented per provider, one interface per tier):
//
//	type MonthlySource interface   // basic fetch: whole month in one call
//	type PaginatedSource interface // paged fetch: accumulate pages in order
//	type ReportSource interface    // async fetch: request, poll, download
//
// Error taxonomy (match with errors.As):
//   - ValidationError: malformed input, never retried
//   - AuthenticationError: credential rejection, never retried
//   - ProviderError: any other non-success response, retry is a caller concern
//   - RateLimitError: provider throttling, caller-level backoff expected
//   - ReportGenerationError: terminal async report failure
//   - TimeoutError: polling budget exhausted while still pending; recoverable
//     with a larger budget
//
// All errors propagate as values. The library never logs to global state;
// presentation belongs to the caller.
package billing
