// Package tasks provides the REST client for task progress and
// results. Live progress arrives over the websocket subscription in
// package progress; this client covers the polled endpoints used for
// resynchronization and for fetching finished transcripts.
package tasks
