// Package middleware provides the HTTP gates shared by every service in the
// platform: Authenticate resolves a bearer token into a request principal,
// Authorize enforces the per-route role rules. The two are separate layers so
// services can mount Authenticate globally and Authorize per route group.
package middleware
