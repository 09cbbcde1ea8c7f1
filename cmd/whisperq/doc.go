// Command whisperq manages a local queue of media files and sends them
// to a whisper transcription service, following each task's progress
// until the transcript is ready.
package main
