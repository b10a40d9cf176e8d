package access

import (
	"crypto/sha1"
	"encoding/hex"

	"golang.org/x/crypto/argon2"
)

// PasswordEncrypter is the pluggable one-way transform applied to passwords
// before they are persisted or matched.
//
// Implementations must be idempotent under re-application: encrypting an
// already-encrypted value returns it unchanged. Save and update both funnel
// through the same encryption point, so without this guarantee a password a
// caller already hashed would be hashed twice.
type PasswordEncrypter interface {
	Encrypt(password string) string
}

// PlaintextEncrypter returns its input unchanged. Only suitable for tests
// and non-production configurations.
type PlaintextEncrypter struct{}

func (PlaintextEncrypter) Encrypt(password string) string { return password }

const sha1HexLength = 40

// SHA1Encrypter hashes passwords with SHA-1, optionally appending a fixed
// server-side salt first. The digest renders as lowercase hexadecimal,
// zero-padded to 40 characters.
//
// An input whose length already equals the digest length is treated as
// encrypted and returned unchanged. That is a heuristic, not a proof; it is
// what makes the transform idempotent. The salt is a shared server secret,
// not a per-user random value; callers needing stronger guarantees should
// supply a different PasswordEncrypter.
type SHA1Encrypter struct {
	salt string
}

// NewSHA1Encrypter builds an encrypter with the given salt. An empty salt
// disables salting.
func NewSHA1Encrypter(salt string) *SHA1Encrypter {
	return &SHA1Encrypter{salt: salt}
}

func (e *SHA1Encrypter) Encrypt(password string) string {
	if len(password) == sha1HexLength {
		return password
	}
	sum := sha1.Sum([]byte(password + e.salt))
	return hex.EncodeToString(sum[:])
}

const argon2HexLength = 64

// Argon2Encrypter derives a deterministic argon2id digest keyed on a fixed
// server-side salt, rendered as 64 lowercase hex characters. Determinism is
// required because authentication matches login and encrypted password in a
// single combined lookup; a per-user random salt cannot support that flow.
// The same already-encrypted length heuristic as SHA1Encrypter applies.
type Argon2Encrypter struct {
	salt []byte
}

// NewArgon2Encrypter builds an argon2id encrypter with the given salt.
func NewArgon2Encrypter(salt string) *Argon2Encrypter {
	return &Argon2Encrypter{salt: []byte(salt)}
}

func (e *Argon2Encrypter) Encrypt(password string) string {
	if len(password) == argon2HexLength {
		return password
	}
	const (
		iterations  = 2
		memory      = 64 * 1024
		parallelism = 1
		keyLength   = 32
	)
	sum := argon2.IDKey([]byte(password), e.salt, iterations, memory, parallelism, keyLength)
	return hex.EncodeToString(sum)
}
