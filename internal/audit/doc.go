// Package audit dispatches security-relevant engine events asynchronously.
//
// The engine decides which events to emit; this package only buffers them
// and hands them to a caller-supplied [Sink].
package audit
