// Package postgres implements account.Store on PostgreSQL via pgx.
//
// Email uniqueness is enforced by a unique index on email_normalized, which
// the store fills with account.NormalizeEmail, so concurrent signups for one
// address cannot both commit. Refresh
// rotation and email verification are single conditional UPDATE statements.
// Schema changes ship as embedded golang-migrate migrations; see Migrator.
package postgres
