package database

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id cost parameters per the OWASP password storage guidance.
const (
	hashTime    = 3
	hashMemory  = 64 * 1024 // KiB
	hashThreads = 4
	hashKeyLen  = 32
	hashSaltLen = 16
)

// HashPassword derives an Argon2id hash of password. The result is
// self-describing:
//
//	$argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
//
// so cost parameters can be raised later without invalidating stored
// credentials.
func HashPassword(password string) (string, error) {
	salt := make([]byte, hashSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, hashTime, hashMemory, hashThreads, hashKeyLen)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		hashMemory, hashTime, hashThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return encoded, nil
}

// CheckPassword reports whether password matches the encoded Argon2id
// hash. The comparison is constant time.
func CheckPassword(password, encoded string) (bool, error) {
	salt, want, cost, err := parseEncodedHash(encoded)
	if err != nil {
		return false, err
	}

	got := argon2.IDKey([]byte(password), salt, cost.time, cost.memory, cost.threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(want, got) == 1, nil
}

type argon2Cost struct {
	memory  uint32
	time    uint32
	threads uint8
}

func parseEncodedHash(encoded string) (salt, hash []byte, cost argon2Cost, err error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 {
		return nil, nil, cost, fmt.Errorf("malformed password hash: %d fields", len(fields))
	}
	if fields[1] != "argon2id" {
		return nil, nil, cost, fmt.Errorf("unsupported hash algorithm %q", fields[1])
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return nil, nil, cost, fmt.Errorf("parsing hash version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, cost, fmt.Errorf("unsupported argon2 version %d", version)
	}

	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &cost.memory, &cost.time, &cost.threads); err != nil {
		return nil, nil, cost, fmt.Errorf("parsing hash cost: %w", err)
	}

	if salt, err = base64.RawStdEncoding.DecodeString(fields[4]); err != nil {
		return nil, nil, cost, fmt.Errorf("decoding salt: %w", err)
	}
	if hash, err = base64.RawStdEncoding.DecodeString(fields[5]); err != nil {
		return nil, nil, cost, fmt.Errorf("decoding hash: %w", err)
	}
	return salt, hash, cost, nil
}
