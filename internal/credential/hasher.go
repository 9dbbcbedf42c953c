// Package credential implements the Credential Store (C1): hashing and
// verification of refresh-token secrets and agent tokens, and generation of
// opaque secrets and MFA bootstrap codes.
//
// Hashing uses argon2id, a memory-hard KDF, so cost is tunable along both
// the time and memory axes rather than bcrypt's single cost factor. Hash
// output is encoded as a self-describing string (`argon2id$v=19$m=...,t=...,
// p=...$salt$hash`, all base64-raw-url) so stored hashes remain verifiable
// even if tuning parameters change later.
package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Params controls the argon2id cost. Defaults follow the OWASP-recommended
// floor for interactive login; CMS_KDF_* env vars let an operator tune for
// their hardware.
type Params struct {
	Time    uint32
	MemoryKB uint32
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

// DefaultParams returns the built-in argon2id tuning used when configuration
// does not override it.
func DefaultParams() Params {
	return Params{
		Time:     3,
		MemoryKB: 64 * 1024,
		Threads:  2,
		KeyLen:   32,
		SaltLen:  16,
	}
}

// Hasher implements C1's four operations: hash_token, verify_token,
// generate_secret, generate_mfa_code.
type Hasher struct {
	params Params
}

// NewHasher builds a Hasher with the given argon2id parameters.
func NewHasher(params Params) *Hasher {
	return &Hasher{params: params}
}

// HashToken hashes plain under a salted, memory-hard KDF. Each call draws a
// fresh random salt, so two hashes of the same plaintext never match
// byte-for-byte, but both verify.
func (h *Hasher) HashToken(plain string) (string, error) {
	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("credential: generate salt: %w", err)
	}

	sum := argon2.IDKey([]byte(plain), salt, h.params.Time, h.params.MemoryKB, h.params.Threads, h.params.KeyLen)

	encoded := fmt.Sprintf(
		"argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKB,
		h.params.Time,
		h.params.Threads,
		base64.RawURLEncoding.EncodeToString(salt),
		base64.RawURLEncoding.EncodeToString(sum),
	)
	return encoded, nil
}

// VerifyToken checks plain against opaqueHash in constant time. A malformed
// hash is treated as a verification failure, never as an error, per C1's
// fail mode: "malformed hash (reported as invalid credential)".
func (h *Hasher) VerifyToken(plain string, opaqueHash string) bool {
	params, salt, want, ok := decode(opaqueHash)
	if !ok {
		return false
	}

	got := argon2.IDKey([]byte(plain), salt, params.Time, params.MemoryKB, params.Threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

func decode(encoded string) (Params, []byte, []byte, bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != "argon2id" {
		return Params{}, nil, nil, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[1], "v=%d", &version); err != nil {
		return Params{}, nil, nil, false
	}

	var memoryKB, time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[2], "m=%d,t=%d,p=%d", &memoryKB, &time, &threads); err != nil {
		return Params{}, nil, nil, false
	}

	salt, err := base64.RawURLEncoding.DecodeString(parts[3])
	if err != nil {
		return Params{}, nil, nil, false
	}

	hash, err := base64.RawURLEncoding.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, false
	}

	return Params{Time: time, MemoryKB: memoryKB, Threads: threads}, salt, hash, true
}

// GenerateSecret returns nBytes of cryptographically random data.
func (h *Hasher) GenerateSecret(nBytes int) ([]byte, error) {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("credential: generate secret: %w", err)
	}
	return buf, nil
}

const mfaAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateMFACode returns a 6-character code drawn uniformly from a fixed
// alphanumeric alphabet, using rejection sampling so the distribution over
// mfaAlphabet stays uniform regardless of alphabet length.
func (h *Hasher) GenerateMFACode() (string, error) {
	const length = 6
	alphabetLen := byte(len(mfaAlphabet))
	maxMultiple := byte(256 - (256 % int(alphabetLen)))

	out := make([]byte, length)
	buf := make([]byte, 1)
	for i := 0; i < length; i++ {
		for {
			if _, err := rand.Read(buf); err != nil {
				return "", fmt.Errorf("credential: generate mfa code: %w", err)
			}
			if buf[0] < maxMultiple {
				out[i] = mfaAlphabet[buf[0]%alphabetLen]
				break
			}
		}
	}
	return string(out), nil
}
