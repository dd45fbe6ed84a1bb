// Package jwt issues and verifies the access/refresh token pair.
//
// Both token classes are HS256 JWTs signed with separate secrets, so a leaked
// access secret cannot mint refresh tokens and vice versa. Claims decode into
// the fixed [Claims] struct; unknown fields, missing required fields or a
// token-type mismatch are rejected. Every verification failure surfaces as
// [ErrInvalidToken] with no detail about which check failed.
package jwt
