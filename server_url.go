package main

import (
	"fmt"
	"net"
	"strings"
)

// listenerURL returns a human-friendly URL for a listener address.
// 1.- The scheme is supplied by the caller (http, ws, grpc).
// 2.- Normalise the configured address so the message always shows a reachable host:port pair.
func listenerURL(scheme, address, path string) string {
	return fmt.Sprintf("%s://%s%s", scheme, normaliseHostPort(address), path)
}

func normaliseHostPort(address string) string {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return "localhost"
	}
	host, port, err := net.SplitHostPort(trimmed)
	if err != nil {
		if strings.HasPrefix(trimmed, ":") {
			return "localhost" + trimmed
		}
		return trimmed
	}
	host = strings.TrimSpace(host)
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
