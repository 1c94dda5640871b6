// Command callpipe runs the upload daemon and talks to it over its HTTP API.
//
// `callpipe serve` starts the daemon in the foreground. Every other command
// is a thin client: submit recordings, watch progress, pause, resume, cancel
// or retry tasks, and inspect history and daemon status. Output is rendered
// as tables for terminals; most commands accept --json for scripting.
package main
