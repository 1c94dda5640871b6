// Package storage uploads artifacts to the remote storage endpoint.
//
// Uploads are streamed as multipart/form-data through an io.Pipe so large
// recordings are never buffered in memory; the caller's reader controls pace,
// which is how the transfer channel implements byte progress and pausing.
package storage
