// Package password hashes and verifies account passwords with argon2id.
//
// Hashes are self-describing so verification never needs the parameters the
// hasher was built with:
//
//	$argon2id$v=19$m=65536,t=1,p=4$<salt>$<digest>
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"

	apperrors "github.com/jrsteele09/energy-community-auth/internal/errors"
)

// Hasher is the one-way password hashing capability used by the auth service.
type Hasher interface {
	// Hash returns a salted, encoded hash of the password.
	Hash(password string) (string, error)

	// Verify reports whether candidate matches the stored hash. A malformed
	// stored hash is a mismatch, not an error.
	Verify(candidate, stored string) bool
}

// Argon2Hasher implements Hasher using argon2id.
type Argon2Hasher struct {
	time    uint32
	memory  uint32
	threads uint8
	keyLen  uint32
	saltLen int
}

var _ Hasher = (*Argon2Hasher)(nil)

// Option configures the argon2id hasher.
type Option func(*Argon2Hasher)

// WithTime sets the number of iterations (default: 1).
func WithTime(t uint32) Option {
	return func(h *Argon2Hasher) {
		if t > 0 {
			h.time = t
		}
	}
}

// WithMemory sets the memory usage in KiB (default: 64*1024).
func WithMemory(m uint32) Option {
	return func(h *Argon2Hasher) {
		if m > 0 {
			h.memory = m
		}
	}
}

// WithThreads sets the parallelism (default: 4).
func WithThreads(t uint8) Option {
	return func(h *Argon2Hasher) {
		if t > 0 {
			h.threads = t
		}
	}
}

// NewArgon2Hasher creates an argon2id password hasher with OWASP defaults.
func NewArgon2Hasher(options ...Option) *Argon2Hasher {
	h := &Argon2Hasher{
		time:    1,
		memory:  64 * 1024,
		threads: 4,
		keyLen:  32,
		saltLen: 16,
	}
	for _, opt := range options {
		opt(h)
	}
	return h
}

func (h *Argon2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", errors.Wrap(apperrors.ErrHashingFailure, "[Argon2Hasher.Hash] generate salt: "+err.Error())
	}

	digest := argon2.IDKey([]byte(password), salt, h.time, h.memory, h.threads, h.keyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.memory, h.time, h.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	), nil
}

func (h *Argon2Hasher) Verify(candidate, stored string) bool {
	params, salt, digest, err := decode(stored)
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(candidate), salt, params.time, params.memory, params.threads, uint32(len(digest)))
	return subtle.ConstantTimeCompare(digest, computed) == 1
}

type parameters struct {
	time    uint32
	memory  uint32
	threads uint8
}

func decode(encoded string) (parameters, []byte, []byte, error) {
	var p parameters

	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, digest
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, nil, errors.New("unsupported hash format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, errors.Wrap(err, "parse version")
	}
	if version != argon2.Version {
		return p, nil, nil, errors.Errorf("incompatible argon2 version %d", version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, nil, nil, errors.Wrap(err, "parse parameters")
	}
	if p.time == 0 || p.memory == 0 || p.threads == 0 {
		return p, nil, nil, errors.New("zero argon2 parameter")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, errors.Wrap(err, "decode salt")
	}

	digest, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(digest) == 0 {
		return p, nil, nil, errors.New("decode digest")
	}

	return p, salt, digest, nil
}
