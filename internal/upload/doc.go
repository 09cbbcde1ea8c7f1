// Package upload moves media files to the transcription service. Small
// files go up in a single multipart request; large files use the
// resumable chunked protocol with a pre-assigned task identifier. The
// package also tracks transfer speed and remaining time for display.
package upload
