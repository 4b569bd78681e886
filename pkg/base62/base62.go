// Package base62 encodes unsigned integers with the 0-9A-Za-z alphabet.
package base62

// Alphabet is the fixed symbol order of persisted short codes.
// Changing it breaks every code issued before.
const Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const base = uint64(len(Alphabet))

// maxEncodedLen is the length of the encoding of math.MaxUint64.
const maxEncodedLen = 11

// Encode returns the positional base62 representation of num.
// Zero encodes as the first symbol of the alphabet.
func Encode(num uint64) string {
	if num == 0 {
		return Alphabet[:1]
	}

	var buf [maxEncodedLen]byte
	i := len(buf)

	for num > 0 {
		i--
		buf[i] = Alphabet[num%base]
		num /= base
	}

	return string(buf[i:])
}

// IsValid reports whether s is non-empty and made only of alphabet symbols.
func IsValid(s string) bool {
	if s == "" {
		return false
	}

	for i := 0; i < len(s); i++ {
		if !IsSymbol(s[i]) {
			return false
		}
	}

	return true
}

// IsSymbol reports whether c belongs to the alphabet.
func IsSymbol(c byte) bool {
	return ('0' <= c && c <= '9') || ('A' <= c && c <= 'Z') || ('a' <= c && c <= 'z')
}
