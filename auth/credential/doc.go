// Package credential lets one service call another with a cached service
// token. The Cache logs in with the configured service-account credentials,
// holds the token until shortly before expiry, and refreshes on demand under
// a single-flight lock so concurrent callers never trigger duplicate logins.
package credential
