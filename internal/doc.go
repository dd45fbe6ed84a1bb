// Package internal holds helpers private to authcore: verification token
// generation and the at-rest digest applied to every token a store persists.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: one orchestration function per Engine operation
package internal
