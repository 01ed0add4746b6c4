package main

import "testing"

func TestListenerURL(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		scheme  string
		address string
		path    string
		want    string
	}{
		"default_port_only":    {scheme: "http", address: ":9370", want: "http://localhost:9370"},
		"explicit_localhost":   {scheme: "http", address: "localhost:8000", path: "/metrics", want: "http://localhost:8000/metrics"},
		"explicit_ipv4_any":    {scheme: "grpc", address: "0.0.0.0:9371", want: "grpc://localhost:9371"},
		"explicit_ipv4_local":  {scheme: "http", address: "127.0.0.1:9370", want: "http://127.0.0.1:9370"},
		"explicit_ipv6_any":    {scheme: "http", address: "[::]:9370", want: "http://localhost:9370"},
		"explicit_ipv6_custom": {scheme: "http", address: "[2001:db8::1]:9370", want: "http://[2001:db8::1]:9370"},
		"console":              {scheme: "ws", address: ":9370", path: "/console", want: "ws://localhost:9370/console"},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got := listenerURL(tc.scheme, tc.address, tc.path)
			if got != tc.want {
				t.Fatalf("listenerURL(%q, %q, %q) = %q, want %q", tc.scheme, tc.address, tc.path, got, tc.want)
			}
		})
	}
}

func TestNormaliseHostPortNoPort(t *testing.T) {
	t.Parallel()

	got := normaliseHostPort("")
	if got != "localhost" {
		t.Fatalf("expected localhost for empty address, got %q", got)
	}
}
