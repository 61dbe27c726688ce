// Package bindings implements the license-key/device-binding protocol over a
// flat `key,device_id` text file held in a GitHub repository.
//
// # Store layout
//
// The store is an ordered sequence of records serialized one per line:
//
//	ABCDE123456789012,UNBOUND
//	FGHIJ210987654321,device-44af
//
// The sentinel device id UNBOUND marks a key that has not been claimed yet.
// A key becomes bound to the first device that validates with it, and stays
// bound to exactly that device afterwards.
//
// # Access paths
//
// Two read strategies exist behind distinct interfaces:
//
//   - RecordStore/ContentStore: the GitHub contents API, which returns the
//     blob SHA as an opaque version token. All writes go through this path
//     and are conditional on the token.
//   - FastReader: the public raw-content mirror, cheaper but without a
//     version token, so it can never feed a write directly.
//
// Writes are full-file rewrites wrapped in a bounded compare-and-swap loop:
// on a version conflict the caller re-reads, re-applies its change and
// retries, surfacing a hard failure once the attempt budget is spent.
package bindings
