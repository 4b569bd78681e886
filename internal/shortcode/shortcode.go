// Package shortcode derives short codes from record identities and validates
// caller-chosen aliases.
//
// A derived code is the base62 encoding of the first 64 bits of
// SHA-256(decimal id || url), padded with the base62 encoding of the id when
// the digest encodes to fewer symbols than requested, then truncated to the
// requested length. The derivation must stay byte-for-byte stable: previously
// issued codes are persisted and shared.
package shortcode

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/vadimbarashkov/shortlink/pkg/base62"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// MinLength is the shortest configurable code length. Shorter codes keep
	// too few digest symbols to make collisions on the short code constraint rare.
	MinLength = 6
	// MaxLength is the widest code the short_code column accepts.
	MaxLength = 64
	// MaxAliasLength is the longest accepted custom alias.
	MaxAliasLength = 50

	placeholderPrefix = "~"

	// digestLen bounds the base62 encoding of a 64-bit digest prefix.
	digestLen = 11
)

// Derive returns a code of exactly length symbols for the record identified by id.
// It is pure: the same arguments always yield the same code. id must not be negative.
func Derive(originalURL string, id int64, length int) string {
	if length <= 0 {
		return ""
	}

	idStr := strconv.FormatInt(id, 10)
	sum := sha256.Sum256([]byte(idStr + originalURL))

	var sb strings.Builder
	sb.Grow(length + digestLen)
	sb.WriteString(base62.Encode(binary.BigEndian.Uint64(sum[:8])))

	if sb.Len() < length {
		idCode := base62.Encode(uint64(id))
		for sb.Len() < length {
			sb.WriteString(idCode)
		}
	}

	return sb.String()[:length]
}

// NewPlaceholder returns a unique sentinel code for a freshly inserted record.
// It starts with a symbol outside both the base62 alphabet and the alias
// charset, so it can never equal a derived code or an alias.
func NewPlaceholder() (string, error) {
	const op = "shortcode.NewPlaceholder"

	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("%s: failed to generate placeholder: %w", op, err)
	}

	return placeholderPrefix + id, nil
}

// IsPlaceholder reports whether code has not been finalized yet.
func IsPlaceholder(code string) bool {
	return strings.HasPrefix(code, placeholderPrefix)
}

// IsValidAlias reports whether alias is 1..MaxAliasLength characters of the
// base62 alphabet, hyphen or underscore.
func IsValidAlias(alias string) bool {
	return len(alias) <= MaxAliasLength && isCode(alias)
}

// IsValidCode reports whether code could have been issued, either derived or
// as an alias. Placeholders are never valid codes.
func IsValidCode(code string) bool {
	return len(code) <= MaxLength && isCode(code)
}

func isCode(s string) bool {
	if s == "" {
		return false
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if !base62.IsSymbol(c) && c != '-' && c != '_' {
			return false
		}
	}

	return true
}
