// Package flows contains one orchestration function per Engine operation.
//
// Each Run* function takes a typed dependency struct and touches the outside
// world only through it, so flows can be tested with in-memory fakes and the
// Engine stays a thin adapter. Flows never hold state between calls and
// never import the root package.
//
// Password hashing always runs before or after store calls, never while a
// store operation is in flight.
package flows
