// Package password implements credential hashing and verification.
//
// # Formats
//
// New credentials are hashed with argon2id and encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Two older formats are still verified so existing accounts keep working:
// bcrypt strings ($2a$, $2b$, $2y$) and salted SHA-256 digests stored with a
// separate base64 salt. [Chain] picks the verifier from the stored format and
// reports through [Chain.NeedsUpgrade] when a credential should be re-hashed
// after the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve credentials. Callers supply plaintext and receive hashes.
//   - Import any other authsvc package.
//   - Log plaintext passwords.
package password
