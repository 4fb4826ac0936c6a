// Package password hashes and verifies account passwords with Argon2id.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters than the
// current configuration so the engine can re-hash after a successful login.
// Strength policy is not decided here; only empty and oversized inputs are refused.
package password
