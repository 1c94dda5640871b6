// Package logs reads the daemon log file for `callpipe logs`.
//
// Reads are bounded: only the trailing lines the caller asks for are kept in
// memory, and follow mode polls the file from the last offset until the
// context is cancelled. Lines can be narrowed to a single task by id.
package logs
