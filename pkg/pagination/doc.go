// Package pagination walks cursor-paginated endpoints sequentially.
//
// OpenSea's event endpoints return a page of results together with an opaque
// "next" cursor. The walker requests page n+1 only after page n has been
// consumed, appends every page's events to a single accumulator in the order
// the remote API returned them, and stops when a page carries no cursor.
//
// Example usage:
//
//	walker := pagination.NewWalker(fetcher, pagination.DefaultConfig())
//	events, err := walker.Walk(ctx)
//
// The walker:
//   - Carries the cursor forward unmodified (it is never generated locally)
//   - Fails the whole walk on the first page error (no partial results)
//   - Checks context cancellation between pages
//   - Optionally bounds the number of pages (MaxPages, 0 = unlimited)
//
// Retries are the fetcher's concern; each FetchPage call owns its own retry budget.
package pagination
