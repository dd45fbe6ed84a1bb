// Package account defines the account record and the persistence contract
// consumed by the authcore engine.
//
// Store implementations live under store/. Every implementation must enforce
// email uniqueness itself (case-insensitive) and must implement
// RotateRefreshTokenIfMatches and MarkVerified as single atomic operations.
package account
