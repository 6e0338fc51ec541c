package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"
)

// phcVersion is argon2.Version (0x13).
const phcVersion = "v=19"

var b64 = base64.RawStdEncoding

// phcHash is a decoded $argon2id$v=19$m=..,t=..,p=..$salt$key string.
type phcHash struct {
	params Argon2idParams
	salt   []byte
	key    []byte
}

func (h phcHash) String() string {
	return "$argon2id$" + phcVersion +
		"$m=" + strconv.FormatUint(uint64(h.params.MemoryKiB), 10) +
		",t=" + strconv.FormatUint(uint64(h.params.Iterations), 10) +
		",p=" + strconv.FormatUint(uint64(h.params.Parallelism), 10) +
		"$" + b64.EncodeToString(h.salt) +
		"$" + b64.EncodeToString(h.key)
}

func (h phcHash) derive(password string) []byte {
	return argon2.IDKey(
		[]byte(password),
		h.salt,
		h.params.Iterations,
		h.params.MemoryKiB,
		h.params.Parallelism,
		h.params.KeyLength,
	)
}

// Hash validates password against the policy and returns its PHC-encoded Argon2id hash.
// sessiond only hashes when seeding accounts; login paths call Confirm.
func (c Config) Hash(password string) (string, error) {
	if err := c.Validate(password); err != nil {
		return "", err
	}

	h := phcHash{params: c.Params, salt: make([]byte, c.Params.SaltLength)}
	if _, err := rand.Read(h.salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}
	h.key = h.derive(password)
	return h.String(), nil
}

// Verify reports whether password matches encodedHash.
// Malformed or out-of-bounds hashes return ErrInvalidHash.
func (c Config) Verify(encodedHash, password string) (bool, error) {
	h, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	// Stored hashes may be cheaper than the current params, never much costlier.
	if !c.accepts(h.params) {
		return false, ErrInvalidHash
	}
	// Oversized inputs cannot have been hashed under the policy.
	if c.Policy.MaxLength > 0 && utf8.RuneCountInString(password) > c.Policy.MaxLength {
		return false, nil
	}
	return subtle.ConstantTimeCompare(h.derive(password), h.key) == 1, nil
}

func (c Config) accepts(got Argon2idParams) bool {
	limit := c.Params
	switch {
	case got.MemoryKiB > limit.MemoryKiB*2:
		return false
	case got.Iterations > limit.Iterations*2:
		return false
	case uint32(got.Parallelism) > uint32(limit.Parallelism)*2:
		return false
	case got.SaltLength < 8 || got.SaltLength > 64:
		return false
	case got.KeyLength < 16 || got.KeyLength > 128:
		return false
	}
	return true
}

func parsePHC(encoded string) (phcHash, error) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" || parts[2] != phcVersion {
		return phcHash{}, ErrInvalidHash
	}

	var h phcHash
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return phcHash{}, ErrInvalidHash
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return phcHash{}, ErrInvalidHash
		}
		switch k {
		case "m":
			h.params.MemoryKiB = uint32(n)
		case "t":
			h.params.Iterations = uint32(n)
		case "p":
			if n > 255 {
				return phcHash{}, ErrInvalidHash
			}
			h.params.Parallelism = uint8(n)
		default:
			return phcHash{}, ErrInvalidHash
		}
	}
	if h.params.MemoryKiB == 0 || h.params.Iterations == 0 || h.params.Parallelism == 0 {
		return phcHash{}, ErrInvalidHash
	}

	var err error
	if h.salt, err = b64.DecodeString(parts[4]); err != nil {
		return phcHash{}, ErrInvalidHash
	}
	if h.key, err = b64.DecodeString(parts[5]); err != nil {
		return phcHash{}, ErrInvalidHash
	}
	h.params.SaltLength = uint32(len(h.salt)) // #nosec G115 -- bounded by accepts().
	h.params.KeyLength = uint32(len(h.key))   // #nosec G115 -- bounded by accepts().
	return h, nil
}
