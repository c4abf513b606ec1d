// Package conv converts sizes and counts read from disk or from the host
// into the fixed-width fields of on-disk headers, failing instead of
// truncating.
package conv
