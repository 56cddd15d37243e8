package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Operator passwords are stored as Argon2id PHC strings, e.g.
// $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>. Parameters follow the
// OWASP recommendation for interactive logins.
const (
	hashIterations  uint32 = 3
	hashMemoryKiB   uint32 = 64 * 1024
	hashParallelism uint8  = 1
	hashLength      uint32 = 32
	saltLength             = 16
)

var errMalformedHash = errors.New("malformed password hash")

// phcHash is a decoded PHC string: the stored digest plus the parameters
// it was derived with, so verification survives future parameter bumps.
type phcHash struct {
	salt        []byte
	digest      []byte
	iterations  uint32
	memoryKiB   uint32
	parallelism uint8
}

// HashPassword derives an Argon2id hash of the password under a fresh
// random salt and encodes it as a PHC string.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	digest := argon2.IDKey([]byte(password), salt,
		hashIterations, hashMemoryKiB, hashParallelism, hashLength)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		hashMemoryKiB, hashIterations, hashParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest))
	return encoded, nil
}

// VerifyPassword reports whether password matches the stored PHC hash.
// The comparison is constant-time; a malformed hash is an error, not a
// mismatch, so corrupt operator rows surface loudly.
func VerifyPassword(password, encoded string) (bool, error) {
	h, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(password), h.salt,
		h.iterations, h.memoryKiB, h.parallelism, uint32(len(h.digest))) //nolint:gosec // G115: digest length fits uint32

	return subtle.ConstantTimeCompare(h.digest, candidate) == 1, nil
}

func parsePHC(encoded string) (phcHash, error) {
	var h phcHash

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 { //nolint:mnd // $argon2id$v$params$salt$digest
		return h, errMalformedHash
	}
	if parts[1] != "argon2id" {
		return h, fmt.Errorf("%w: unsupported algorithm %q", errMalformedHash, parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return h, fmt.Errorf("%w: bad version field", errMalformedHash)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d",
		&h.memoryKiB, &h.iterations, &h.parallelism); err != nil {
		return h, fmt.Errorf("%w: bad parameter field", errMalformedHash)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return h, fmt.Errorf("%w: bad salt encoding", errMalformedHash)
	}
	if h.digest, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return h, fmt.Errorf("%w: bad digest encoding", errMalformedHash)
	}
	return h, nil
}
