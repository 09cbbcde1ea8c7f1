// Package controller orchestrates the transcription workflow: it pulls
// ready items from the queue one at a time, routes each to the direct
// or chunked upload path, follows task progress over the live
// subscription, and records terminal outcomes back into the queue.
package controller
