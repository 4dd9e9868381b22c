package clientip

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRealClientIP(t *testing.T) {
	cases := map[string]string{
		"203.0.113.7:5555":          "203.0.113.7",
		"[::ffff:203.0.113.7]:5555": "203.0.113.7",
		"[2001:DB8::1]:443":         "2001:db8::1",
		"203.0.113.7":               "203.0.113.7",
		"pipe":                      "pipe",
	}
	for remote, want := range cases {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = remote
		assert.Equal(t, want, RealClientIP(r), remote)
	}
}

func TestRealClientIPIgnoresForwardingHeaders(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "198.51.100.2:1000"
	r.Header.Set("X-Forwarded-For", "1.1.1.1")
	r.Header.Set("X-Real-IP", "1.1.1.1")
	assert.Equal(t, "198.51.100.2", RealClientIP(r))
}
