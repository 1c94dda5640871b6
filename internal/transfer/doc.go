// Package transfer runs one artifact upload and reports byte-level progress.
//
// A Channel wraps the artifact reader with a pause gate and a byte counter
// before handing it to the storage uploader. Pausing blocks the reader, so
// bytes already sent stay sent and resume continues the same HTTP stream.
// Cancel stops the stream within one read. A Channel runs at most once; a
// retry builds a new Channel.
package transfer
