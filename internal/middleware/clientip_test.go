package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIPExtractor_Extract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		trusted    []string
		remoteAddr string
		xff        string
		want       string
	}{
		{
			name:       "no trusted proxies ignores header",
			remoteAddr: "203.0.113.5:1234",
			xff:        "198.51.100.1",
			want:       "203.0.113.5",
		},
		{
			name:       "untrusted peer ignores header",
			trusted:    []string{"10.0.0.0/8"},
			remoteAddr: "203.0.113.5:1234",
			xff:        "198.51.100.1",
			want:       "203.0.113.5",
		},
		{
			name:       "trusted peer uses first untrusted hop from the right",
			trusted:    []string{"10.0.0.0/8"},
			remoteAddr: "10.1.2.3:1234",
			xff:        "198.51.100.7, 198.51.100.1, 10.9.9.9",
			want:       "198.51.100.1",
		},
		{
			name:       "single address proxy",
			trusted:    []string{"192.0.2.10"},
			remoteAddr: "192.0.2.10:80",
			xff:        "198.51.100.1",
			want:       "198.51.100.1",
		},
		{
			name:       "all hops trusted falls back to peer",
			trusted:    []string{"10.0.0.0/8"},
			remoteAddr: "10.1.2.3:1234",
			xff:        "10.2.2.2, ,10.3.3.3",
			want:       "10.1.2.3",
		},
		{
			name:       "trusted peer without header",
			trusted:    []string{"10.0.0.0/8"},
			remoteAddr: "10.1.2.3:1234",
			want:       "10.1.2.3",
		},
		{
			name:       "ipv4 mapped peer",
			trusted:    []string{"10.0.0.0/8"},
			remoteAddr: "[::ffff:10.1.2.3]:1234",
			xff:        "198.51.100.1",
			want:       "198.51.100.1",
		},
		{
			name:       "ipv6 proxy",
			trusted:    []string{"fd00::/8"},
			remoteAddr: "[fd00::1]:443",
			xff:        "2001:db8::5",
			want:       "2001:db8::5",
		},
		{
			name:       "invalid entries are skipped",
			trusted:    []string{"not-a-cidr", ""},
			remoteAddr: "10.1.2.3:1234",
			xff:        "198.51.100.1",
			want:       "10.1.2.3",
		},
		{
			name:       "peer without port",
			remoteAddr: "203.0.113.5",
			want:       "203.0.113.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set(HeaderXForwardedFor, tt.xff)
			}

			assert.Equal(t, tt.want, NewClientIPExtractor(tt.trusted).Extract(req))
		})
	}
}
