// Package processing queries the remote pipeline for the status of an uploaded
// artifact (transcription, analysis, completion).
package processing
