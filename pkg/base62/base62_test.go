package base62

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		num  uint64
		want string
	}{
		{name: "zero", num: 0, want: "0"},
		{name: "one", num: 1, want: "1"},
		{name: "ten", num: 10, want: "A"},
		{name: "base minus one", num: 61, want: "z"},
		{name: "base", num: 62, want: "10"},
		{name: "large number", num: 123456789, want: "8M0kX"},
		{name: "six symbols", num: 3521614606207, want: "zzzzzz"},
		{name: "max uint64", num: math.MaxUint64, want: "LygHa16AHYF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Encode(tt.num))
		})
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name string
		s    string
		want bool
	}{
		{name: "empty", s: "", want: false},
		{name: "digits and letters", s: "aZ09", want: true},
		{name: "hyphen", s: "ab-c", want: false},
		{name: "underscore", s: "ab_c", want: false},
		{name: "placeholder prefix", s: "~abc", want: false},
		{name: "non ascii", s: "abç", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValid(tt.s))
		})
	}
}
