// Package internal holds helpers shared by the twofa engine: numeric code
// generation, code hashing, and verification message rendering. Nothing here
// is part of the public API.
package internal
