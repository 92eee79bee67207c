// Package auth provides token verification for the transport handshake.
//
// # Overview
//
// Clients authenticate the websocket handshake with a bearer token in the
// Authorization header. Tokens are JWTs signed with a shared HMAC-SHA256
// secret; the subject claim identifies the caller for logging.
//
// Authentication is optional. A server configured without a secret accepts
// every handshake; a server configured with one rejects missing, malformed,
// and expired tokens before the websocket upgrade.
//
// # Token Format
//
// Tokens carry three registered claims:
//
//	sub: caller identity (free-form string)
//	iat: issued-at
//	exp: expiry
//
// The flow-server `token` subcommand mints tokens with this layout.
package auth
