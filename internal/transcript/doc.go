// Package transcript renders completed transcription results into
// subtitle and text formats.
package transcript
