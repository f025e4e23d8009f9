// Package password hashes and verifies login secrets with argon2id, encoded
// in the standard PHC string format so parameters can be raised later without
// invalidating stored hashes.
package password
