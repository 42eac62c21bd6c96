package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"User@Example.COM", "user@example.com"},
		{"  user@example.com  ", "user@example.com"},
		// Кириллические двойники из буфера обмена.
		{"аdmin@exаmple.соm", "admin@example.com"},
		{"рухе@mail.ru", "pyxe@mail.ru"},
		{"plain@mail.ru", "plain@mail.ru"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, normalizeEmail(tc.in), "input %q", tc.in)
	}
}

func TestEmailRegexp(t *testing.T) {
	valid := []string{"a@b.co", "user.name+tag@example.org", "x_1%2@sub.domain.io"}
	for _, e := range valid {
		assert.True(t, emailRegexp.MatchString(e), "должен принимать %q", e)
	}
	invalid := []string{"", "user", "user@", "@example.com", "user@example", "user @example.com"}
	for _, e := range invalid {
		assert.False(t, emailRegexp.MatchString(e), "должен отклонять %q", e)
	}
}
