// Package language holds the supported transcription languages and the
// filename-based detection used at enqueue time.
package language
