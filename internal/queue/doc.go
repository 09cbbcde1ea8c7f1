// Package queue persists the upload queue in SQLite and exposes the
// controlled mutations that drive item lifecycle.
//
// Items move through pending -> uploading -> processing -> complete|error,
// with retry returning an errored item to pending. Every mutation rewrites
// the row; callers re-read items instead of holding references across
// mutations. Insertion order (the rowid) defines processing order.
//
// The database is transient working state, not an archive. Schema changes
// bump the version in schema.go; users clear the database to adopt a new
// schema.
package queue
