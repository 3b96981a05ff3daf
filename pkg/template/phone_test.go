package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+923001234567", "+923001234567"},
		{"923001234567", "+923001234567"},
		{"0092 300 1234567", "+923001234567"},
		{"+92-300-123.4567", "+923001234567"},
		{"(92) 300 1234567", "+923001234567"},
		{"  +923001234567  ", "+923001234567"},
	}
	for _, c := range cases {
		got, err := NormalizePhone(c.in)
		assert.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestNormalizePhone_Rejected(t *testing.T) {
	for _, in := range []string{
		"",
		"1234567",          // too short
		"1234567890123456", // too long
		"92300abc4567",
		"whatsapp:+923001234567",
	} {
		_, err := NormalizePhone(in)
		assert.Error(t, err, in)
	}
}

func TestStoredPhone(t *testing.T) {
	assert.Equal(t, "923001234567", StoredPhone("+923001234567"))
	assert.Equal(t, "923001234567", StoredPhone("923001234567"))
}
