// Package preflight runs the health checks behind `docrag doctor`.
//
// The checker validates:
//   - the data directory is writable and has free space
//   - every configured corpus source exists
//   - every configured corpus is built and not older than its source
//   - the configured embedder answers and matches each built index
//
// Required checks that fail make the project unusable; warnings describe
// states that still work but deserve attention, such as a stale build.
package preflight
