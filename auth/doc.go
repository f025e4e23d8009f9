// Package auth implements the shared authentication layer of the Auto-Repair
// platform: minting signed session tokens against a principal store, and the
// one-time bootstrap of the machine account that peer services authenticate as.
//
// The package is assembled through [Builder] and exposes [Service] as the only
// component allowed to mint tokens. Request-side verification lives in
// auth/middleware, outbound machine credentials in auth/credential, and the
// token codec itself in auth/token.
//
// Service methods are safe for concurrent use after [Builder.Build].
package auth
