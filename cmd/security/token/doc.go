// Package token digests refresh tokens before they touch storage. The
// session store only ever sees the hex digest; verifying a presented token
// means digesting it again and comparing for exact equality.
//
// When PULSE_TOKEN_HMAC_KEY is set the digest is keyed, so a leaked sessions
// table cannot be replayed without the key.
package token
