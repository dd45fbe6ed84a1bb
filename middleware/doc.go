// Package middleware exposes HTTP middleware that authenticates requests with
// authcore access tokens.
//
// # Guards
//
//   - [RequireAccess] verifies the bearer token only and never touches the
//     account store.
//   - [RequireAccount] also loads the account profile, so deleted accounts
//     are rejected before their access tokens expire.
//
// Both read the Authorization header and inject the verified claims into the
// request context. [RequestMeta] records client IP and user agent for audit
// events.
//
// This package translates HTTP semantics into Engine calls. It does not parse
// tokens itself.
package middleware
