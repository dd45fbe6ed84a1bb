// Package password hashes and verifies account passwords.
//
// bcrypt (cost 12) is the default algorithm. Argon2id is available as an
// alternative and is encoded in PHC format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Set] hashes with the configured algorithm and verifies any digest whose
// prefix it recognizes, so switching algorithms does not lock out accounts
// hashed under the previous one.
//
// Verify never returns an error. Malformed digests, unknown algorithms and
// wrong passwords all report false.
package password
