package netutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHostPort(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{name: "wildcard listen", input: "0.0.0.0:10902", wantHost: "0.0.0.0", wantPort: 10902},
		{name: "hostname", input: "prometheus.local:9090", wantHost: "prometheus.local", wantPort: 9090},
		{name: "IPv6", input: "[::1]:10901", wantHost: "::1", wantPort: 10901},
		{name: "empty host", input: ":10902", wantHost: "", wantPort: 10902},
		{name: "missing port", input: "localhost", wantErr: true},
		{name: "invalid port", input: "localhost:abc", wantErr: true},
		{name: "empty string", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, err := ParseHostPort(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPort, port)
		})
	}
}

func TestDialAddress(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"0.0.0.0:10902", "127.0.0.1:10902"},
		{":10901", "127.0.0.1:10901"},
		{"[::]:10901", "[::1]:10901"},
		{"10.0.0.5:10902", "10.0.0.5:10902"},
		{"sidecar.local:10902", "sidecar.local:10902"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := DialAddress(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := DialAddress("10902")
	assert.Error(t, err)
}
