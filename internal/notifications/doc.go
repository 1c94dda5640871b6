// Package notifications delivers task outcomes via ntfy.
//
// The service publishes to the topic configured in config.toml and degrades
// to a no-op when no topic is set. Individual events can be switched off in
// the [notifications] section; suppressed events return nil without a request.
//
// Notifier adapts the service to the workflow observer contract. Sends run on
// their own goroutines so a slow ntfy server never delays a transfer.
package notifications
