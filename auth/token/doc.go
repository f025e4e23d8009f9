// Package token implements the platform's token codec: signing claim sets
// into compact HS256 tokens and verifying inbound tokens back into claims.
//
// Every service instance holds the same symmetric key, so a token minted by
// the identity service verifies anywhere on the platform. Verification
// failures are classified into distinct sentinel errors (empty, malformed,
// unsupported, expired, bad signature) so gates and handlers can respond
// precisely; see [Manager.Parse].
package token
