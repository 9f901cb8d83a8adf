// Package httputil provides shared HTTP plumbing for the search API:
// JSON response helpers, query-parameter parsing, and middleware for request
// IDs, structured request logging, and panic recovery.
package httputil
